package commands

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cairn-scm/cairn/src/server"
	"github.com/cairn-scm/cairn/src/signals"
)

// NewServeCmd returns the command that starts a cairn server
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Serve a directory of repositories",
		PreRunE: loadConfig,
		RunE:    runServe,
	}
	AddServeFlags(cmd)
	return cmd
}

/*******************************************************************************
* SERVE
*******************************************************************************/

func runServe(cmd *cobra.Command, args []string) error {
	logger := _config.Logger()

	restore := signals.InstallHangupHandler(logger)
	defer restore()

	if _config.Inet {
		srv, err := server.NewPipeServer(_config, os.Stdin, os.Stdout)
		if err != nil {
			logger.WithError(err).Error("Cannot initialize pipe server")
			return err
		}
		return srv.Serve()
	}

	if _config.HTTPAddr != "" {
		httpSrv, err := server.NewHTTPServer(_config)
		if err != nil {
			logger.WithError(err).Error("Cannot initialize HTTP server")
			return err
		}
		go func() {
			if err := httpSrv.Serve(); err != nil {
				logger.WithError(err).Error("HTTP server failed")
			}
		}()
	}

	srv, err := server.NewTCPServer(_config)
	if err != nil {
		logger.WithError(err).Error("Cannot initialize TCP server")
		return err
	}
	return srv.Serve()
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

// AddServeFlags adds flags to the Serve command
func AddServeFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("directory", "d", _config.Directory, "Root of the served tree")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.LogFile, "Copy info and debug output to this file")

	// Network
	cmd.Flags().StringP("listen", "l", _config.BindAddr, "Listen IP:Port for the TCP server")
	cmd.Flags().String("http-listen", _config.HTTPAddr, "Listen IP:Port for the HTTP front end (empty disables)")
	cmd.Flags().Bool("inet", _config.Inet, "Serve one connection over stdin/stdout and exit")
	cmd.Flags().DurationP("timeout", "t", _config.Timeout, "Drop connections idle for this long")

	// Access
	cmd.Flags().Bool("readonly", _config.ReadOnly, "Refuse mutating operations")
	cmd.Flags().Bool("no-vfs", _config.NoVFS, "Refuse raw filesystem verbs")

	// Tuning
	cmd.Flags().Int("search-budget", _config.SearchBudget, "Approximate byte budget of one parent-map response")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	if err := bindFlagsLoadViper(cmd); err != nil {
		return err
	}

	_config.Logger().WithFields(logrus.Fields{
		"Directory":    _config.Directory,
		"BindAddr":     _config.BindAddr,
		"HTTPAddr":     _config.HTTPAddr,
		"Inet":         _config.Inet,
		"ReadOnly":     _config.ReadOnly,
		"NoVFS":        _config.NoVFS,
		"Timeout":      _config.Timeout,
		"SearchBudget": _config.SearchBudget,
		"LogLevel":     _config.LogLevel,
	}).Debug("SERVE")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for a config file in [directory]/cairn.toml (.json, .yaml also work)
	viper.SetConfigName("cairn")
	viper.AddConfigPath(_config.Directory)

	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debugf("No config file found in: %s", _config.Directory)
	} else {
		return err
	}

	// second unmarshal to read from the config file
	return viper.Unmarshal(_config)
}
