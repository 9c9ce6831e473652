package commands

import (
	"github.com/spf13/cobra"

	"github.com/cairn-scm/cairn/src/config"
)

var _config = config.NewDefaultConfig()

// RootCmd is the root command for cairn
var RootCmd = &cobra.Command{
	Use:              "cairn",
	Short:            "cairn smart server",
	TraverseChildren: true,
}
