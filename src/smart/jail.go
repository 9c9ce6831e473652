package smart

import (
	"fmt"
	"strings"

	"github.com/cairn-scm/cairn/src/transport"
)

// JailBreakError reports a request that resolved a transport outside the
// backing root, for example via ".." segments in a client path.
type JailBreakError struct {
	Path string
}

func (e *JailBreakError) Error() string {
	return fmt.Sprintf("jail break: %s is not below the backing transport", e.Path)
}

// Jail confines path resolution during one request to descendants of its
// root. The handler installs a jail on the command before running it and
// tears it down afterwards, so a verb can only reach transports the jail has
// approved.
type Jail struct {
	root transport.Transport
}

// NewJail builds a jail rooted at the backing transport.
func NewJail(root transport.Transport) *Jail {
	return &Jail{root: root}
}

// Check returns a JailBreakError unless t is the root or below it.
func (j *Jail) Check(t transport.Transport) error {
	if strings.HasPrefix(t.Base(), j.root.Base()) {
		return nil
	}
	return &JailBreakError{Path: t.Base()}
}
