package smart

import (
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sirupsen/logrus"

	"github.com/cairn-scm/cairn/src/transport"
)

// Verb classifications. Clients use them to account for traffic; the server
// uses InfoVFS to refuse raw filesystem access when so configured.
const (
	// InfoRead marks verbs that only read high-level state.
	InfoRead = "read"
	// InfoIdem marks idempotent mutations.
	InfoIdem = "idem"
	// InfoMutate marks non-idempotent mutations.
	InfoMutate = "mutate"
	// InfoVFS marks raw filesystem pass-through verbs.
	InfoVFS = "vfs"
)

// CommandFactory builds a fresh command bound to the backing transport and
// the client-visible root path.
type CommandFactory func(backing transport.Transport, rootClientPath string, logger *logrus.Entry) Command

type registration struct {
	New  CommandFactory
	Info string
}

var commands = xsync.NewMapOf[string, registration]()

// RegisterVerb adds a verb to the global catalogue. Called from init; a
// duplicate name is a programming error.
func RegisterVerb(name string, info string, factory CommandFactory) {
	if _, loaded := commands.LoadOrStore(name, registration{New: factory, Info: info}); loaded {
		panic("smart: verb registered twice: " + name)
	}
}

func lookupVerb(name string) (registration, bool) {
	return commands.Load(name)
}

// VerbInfo returns a verb's classification, or false for unknown verbs.
func VerbInfo(name string) (string, bool) {
	reg, ok := commands.Load(name)
	if !ok {
		return "", false
	}
	return reg.Info, true
}

// IsVFSVerb reports whether the verb is raw filesystem pass-through.
func IsVFSVerb(name string) bool {
	info, ok := VerbInfo(name)
	return ok && info == InfoVFS
}
