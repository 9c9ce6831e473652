package smart

import (
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/cairn-scm/cairn/src/transport"
)

// The VFS verbs expose the backing transport one filesystem call at a time.
// They are a compatibility escape hatch for clients predating the high-level
// repository verbs, and the whole family can be refused via the handler's
// refuseVFS switch.

type vfsCommand struct {
	commandBase
}

// relpath translates the single path argument every VFS verb starts with and
// verifies it stays inside the jail.
func (c *vfsCommand) relpath(args []string) (string, error) {
	if len(args) < 1 {
		return "", fmt.Errorf("smart: missing path argument")
	}
	rel, err := c.TranslateClientPath(args[0])
	if err != nil {
		return "", err
	}
	if err := c.checkJailed(rel); err != nil {
		return "", err
	}
	return rel, nil
}

type hasCommand struct{ vfsCommand }

func (c *hasCommand) Do(args []string) (*Response, error) {
	rel, err := c.relpath(args)
	if err != nil {
		return nil, err
	}
	ok, err := c.backing.Has(rel)
	if err != nil {
		return nil, err
	}
	if ok {
		return SuccessResponse("yes"), nil
	}
	return SuccessResponse("no"), nil
}

type getCommand struct{ vfsCommand }

func (c *getCommand) Do(args []string) (*Response, error) {
	rel, err := c.relpath(args)
	if err != nil {
		return nil, err
	}
	data, err := c.backing.Get(rel)
	if err != nil {
		return nil, err
	}
	return SuccessResponseWithBody(data, "ok"), nil
}

type putCommand struct {
	vfsCommand
	target string
}

func (c *putCommand) Do(args []string) (*Response, error) {
	rel, err := c.relpath(args)
	if err != nil {
		return nil, err
	}
	c.target = rel
	return nil, nil // body follows
}

func (c *putCommand) DoBody(body []byte) (*Response, error) {
	if err := c.backing.Put(c.target, body); err != nil {
		return nil, err
	}
	return SuccessResponse("ok"), nil
}

type mkdirCommand struct{ vfsCommand }

func (c *mkdirCommand) Do(args []string) (*Response, error) {
	rel, err := c.relpath(args)
	if err != nil {
		return nil, err
	}
	if err := c.backing.Mkdir(rel); err != nil {
		return nil, err
	}
	return SuccessResponse("ok"), nil
}

type deleteCommand struct{ vfsCommand }

func (c *deleteCommand) Do(args []string) (*Response, error) {
	rel, err := c.relpath(args)
	if err != nil {
		return nil, err
	}
	if err := c.backing.Delete(rel); err != nil {
		return nil, err
	}
	return SuccessResponse("ok"), nil
}

type listDirCommand struct{ vfsCommand }

func (c *listDirCommand) Do(args []string) (*Response, error) {
	rel, err := c.relpath(args)
	if err != nil {
		return nil, err
	}
	names, err := c.backing.List(rel)
	if err != nil {
		return nil, err
	}
	return SuccessResponse(append([]string{"names"}, names...)...), nil
}

type statCommand struct{ vfsCommand }

func (c *statCommand) Do(args []string) (*Response, error) {
	rel, err := c.relpath(args)
	if err != nil {
		return nil, err
	}
	info, err := c.backing.Stat(rel)
	if err != nil {
		return nil, err
	}
	return SuccessResponse(
		"stat",
		strconv.FormatInt(info.Size(), 10),
		strconv.FormatUint(uint64(info.Mode()), 8),
	), nil
}

func init() {
	vfs := func(build func(vfsCommand) Command) CommandFactory {
		return func(b transport.Transport, root string, l *logrus.Entry) Command {
			return build(vfsCommand{newCommandBase(b, root, l)})
		}
	}
	RegisterVerb("has", InfoVFS, vfs(func(c vfsCommand) Command { return &hasCommand{c} }))
	RegisterVerb("get", InfoVFS, vfs(func(c vfsCommand) Command { return &getCommand{c} }))
	RegisterVerb("put", InfoVFS, vfs(func(c vfsCommand) Command { return &putCommand{vfsCommand: c} }))
	RegisterVerb("mkdir", InfoVFS, vfs(func(c vfsCommand) Command { return &mkdirCommand{c} }))
	RegisterVerb("delete", InfoVFS, vfs(func(c vfsCommand) Command { return &deleteCommand{c} }))
	RegisterVerb("list_dir", InfoVFS, vfs(func(c vfsCommand) Command { return &listDirCommand{c} }))
	RegisterVerb("stat", InfoVFS, vfs(func(c vfsCommand) Command { return &statCommand{c} }))
}
