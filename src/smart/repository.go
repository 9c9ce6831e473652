package smart

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cairn-scm/cairn/src/graph"
	"github.com/cairn-scm/cairn/src/store"
	"github.com/cairn-scm/cairn/src/transport"
)

// RepoDir is the directory, relative to a repository root, holding the
// revision store.
const RepoDir = ".cairn/db"

// IncludeMissingFlag asks get_parent_map to report queried-but-absent keys
// instead of dropping them.
const IncludeMissingFlag = "include-missing:"

// SearchBudget bounds one get_parent_map response; see graph.Expand.
var SearchBudget = graph.DefaultSearchBudget

// OpenRepository resolves a transport to the revision store beneath it.
// Swappable so tests can serve in-memory graphs.
var OpenRepository = func(t transport.Transport) (store.Store, error) {
	local, ok := t.(*transport.LocalTransport)
	if !ok {
		return nil, store.NewErr(store.NoRepository, t.Base())
	}
	return store.LoadBadgerStore(filepath.Join(local.LocalPath(), filepath.FromSlash(RepoDir)))
}

// repoCommand resolves the repository a verb operates on. Resolution goes
// through TransportFromClientPath, so the jail vets the path.
type repoCommand struct {
	commandBase
}

func (c *repoCommand) openRepo(clientPath string) (store.Store, error) {
	t, err := c.TransportFromClientPath(clientPath)
	if err != nil {
		return nil, err
	}
	return OpenRepository(t)
}

type repoOpenCommand struct{ repoCommand }

func (c *repoOpenCommand) Do(args []string) (*Response, error) {
	if len(args) < 1 {
		return FailedResponse("error", "missing path argument"), nil
	}
	st, err := c.openRepo(args[0])
	if err != nil {
		return nil, err
	}
	st.Close()
	return SuccessResponse("ok"), nil
}

type hasRevisionCommand struct{ repoCommand }

func (c *hasRevisionCommand) Do(args []string) (*Response, error) {
	if len(args) < 2 {
		return FailedResponse("error", "want path and revision arguments"), nil
	}
	st, err := c.openRepo(args[0])
	if err != nil {
		return nil, err
	}
	defer st.Close()

	ok, err := st.HasRevision(args[1])
	if err != nil {
		return nil, err
	}
	if ok {
		return SuccessResponse("yes"), nil
	}
	return SuccessResponse("no"), nil
}

type allRevisionIDsCommand struct{ repoCommand }

func (c *allRevisionIDsCommand) Do(args []string) (*Response, error) {
	if len(args) < 1 {
		return FailedResponse("error", "missing path argument"), nil
	}
	st, err := c.openRepo(args[0])
	if err != nil {
		return nil, err
	}
	defer st.Close()

	ids, err := st.AllRevisionIDs()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return SuccessResponseWithBody([]byte(strings.Join(ids, "\n")), "ok"), nil
}

// getParentMapCommand implements the graph-search round trip: args carry the
// queried revisions, the body carries the client's search recipe, and the
// response body is a compressed parent-map fragment.
type getParentMapCommand struct {
	repoCommand
	clientPath     string
	queried        []string
	includeMissing bool
}

func (c *getParentMapCommand) Do(args []string) (*Response, error) {
	if len(args) < 1 {
		return FailedResponse("error", "missing path argument"), nil
	}
	c.clientPath = args[0]
	rest := args[1:]
	if len(rest) > 0 && rest[0] == IncludeMissingFlag {
		c.includeMissing = true
		rest = rest[1:]
	}
	c.queried = rest
	return nil, nil // recipe body follows
}

func (c *getParentMapCommand) DoBody(body []byte) (*Response, error) {
	st, err := c.openRepo(c.clientPath)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	recipe, err := graph.DecodeRecipe(body)
	if err != nil {
		c.logger.WithError(err).Debug("Undecodable search recipe")
		return nil, errBadSearch
	}

	clientSeen := map[string]bool{}
	if len(recipe.Start) > 0 {
		clientSeen, err = graph.RecreateSearch(st, recipe)
		if err != nil {
			return nil, err
		}
	} else if recipe.Count != 0 {
		return nil, errBadSearch
	}
	// The queried keys are exactly what the client wants back, even if its
	// earlier search walked over them.
	for _, q := range c.queried {
		delete(clientSeen, q)
	}

	result, err := graph.Expand(st, c.queried, clientSeen, c.includeMissing, SearchBudget)
	if err != nil {
		return nil, err
	}
	encoded, err := graph.EncodeParentMapBody(result)
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"queried": len(c.queried),
		"entries": len(result),
	}).Debug("Served parent map")

	return SuccessResponseWithBody(encoded, "ok"), nil
}

func init() {
	repo := func(build func(repoCommand) Command) CommandFactory {
		return func(b transport.Transport, root string, l *logrus.Entry) Command {
			return build(repoCommand{newCommandBase(b, root, l)})
		}
	}
	RegisterVerb("Repository.open", InfoRead, repo(func(c repoCommand) Command {
		return &repoOpenCommand{c}
	}))
	RegisterVerb("Repository.has_revision", InfoRead, repo(func(c repoCommand) Command {
		return &hasRevisionCommand{c}
	}))
	RegisterVerb("Repository.all_revision_ids", InfoRead, repo(func(c repoCommand) Command {
		return &allRevisionIDsCommand{c}
	}))
	RegisterVerb("Repository.get_parent_map", InfoRead, repo(func(c repoCommand) Command {
		return &getParentMapCommand{repoCommand: c}
	}))
}
