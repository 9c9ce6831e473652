package smart

import (
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cairn-scm/cairn/src/transport"
)

// commandBase carries what every verb needs: the backing transport, the
// client-visible root, the installed jail and a logger. Verbs embed it.
type commandBase struct {
	backing        transport.Transport
	rootClientPath string
	logger         *logrus.Entry
	jail           *Jail
}

func newCommandBase(backing transport.Transport, rootClientPath string, logger *logrus.Entry) commandBase {
	return commandBase{
		backing:        backing,
		rootClientPath: rootClientPath,
		logger:         logger,
	}
}

func (c *commandBase) InstallJail(j *Jail) {
	c.jail = j
}

func (c *commandBase) TeardownJail() {
	c.jail = nil
}

// DoBody rejects bodies by default; verbs that take one override it.
func (c *commandBase) DoBody(body []byte) (*Response, error) {
	return nil, errors.New("smart: unexpected request body")
}

// TranslateClientPath maps a client-supplied absolute path to a path
// relative to the backing transport. Paths outside the served prefix fail
// with PathNotChild.
func (c *commandBase) TranslateClientPath(clientPath string) (string, error) {
	if clientPath+"/" == c.rootClientPath {
		return "", nil
	}
	if !strings.HasPrefix(clientPath, c.rootClientPath) {
		return "", &transport.PathNotChildError{Path: clientPath, Base: c.rootClientPath}
	}
	return strings.TrimPrefix(clientPath, c.rootClientPath), nil
}

// checkJailed verifies that a translated relpath still resolves inside the
// backing root. ".." segments survive translation, so every verb that hands a
// relpath to the backing transport must pass it through here first.
func (c *commandBase) checkJailed(relpath string) error {
	if c.jail == nil {
		return nil
	}
	t, err := c.backing.Clone(relpath)
	if err != nil {
		return err
	}
	return c.jail.Check(t)
}

// TransportFromClientPath resolves a client path to a transport, enforcing
// the jail. A path that clones outside the backing root fails with
// JailBreak even though the clone itself is legal.
func (c *commandBase) TransportFromClientPath(clientPath string) (transport.Transport, error) {
	rel, err := c.TranslateClientPath(clientPath)
	if err != nil {
		return nil, err
	}
	t, err := c.backing.Clone(rel)
	if err != nil {
		return nil, err
	}
	if c.jail != nil {
		if err := c.jail.Check(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// helloCommand answers the protocol probe with the highest protocol version
// this server speaks on the probed framing.
type helloCommand struct {
	commandBase
}

func (c *helloCommand) Do(args []string) (*Response, error) {
	return SuccessResponse("ok", "2"), nil
}

// isReadonlyCommand reports whether the served tree refuses writes.
type isReadonlyCommand struct {
	commandBase
}

func (c *isReadonlyCommand) Do(args []string) (*Response, error) {
	if c.backing.IsReadonly() {
		return SuccessResponse("yes"), nil
	}
	return SuccessResponse("no"), nil
}

func init() {
	RegisterVerb("hello", InfoRead, func(b transport.Transport, root string, l *logrus.Entry) Command {
		return &helloCommand{newCommandBase(b, root, l)}
	})
	RegisterVerb("Transport.is_readonly", InfoRead, func(b transport.Transport, root string, l *logrus.Entry) Command {
		return &isReadonlyCommand{newCommandBase(b, root, l)}
	})
}
