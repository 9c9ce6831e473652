package smart

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cairn-scm/cairn/src/common"
	"github.com/cairn-scm/cairn/src/graph"
	"github.com/cairn-scm/cairn/src/store"
	"github.com/cairn-scm/cairn/src/transport"
)

func newTestBacking(t *testing.T) *transport.LocalTransport {
	dir, err := ioutil.TempDir("", "cairn_smart")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	backing, err := transport.NewLocalTransport(dir, false)
	require.NoError(t, err)
	return backing
}

func newTestHandler(t *testing.T, refuseVFS bool) *Handler {
	return NewHandler(newTestBacking(t), "/", refuseVFS, common.NewTestEntry(t, "smart"))
}

func TestHelloVerb(t *testing.T) {
	h := newTestHandler(t, false)
	h.ArgsReceived([]string{"hello"})

	require.True(t, h.Finished())
	assert.True(t, h.Response().Successful)
	assert.Equal(t, []string{"ok", "2"}, h.Response().Args)
}

func TestUnknownVerb(t *testing.T) {
	h := newTestHandler(t, false)
	h.ArgsReceived([]string{"frob", "arg"})

	require.True(t, h.Finished())
	assert.False(t, h.Response().Successful)
	assert.Equal(t, []string{"UnknownMethod", "frob"}, h.Response().Args)
}

func TestIsReadonlyVerb(t *testing.T) {
	h := newTestHandler(t, false)
	h.ArgsReceived([]string{"Transport.is_readonly"})

	require.True(t, h.Finished())
	assert.Equal(t, []string{"no"}, h.Response().Args)
}

func TestVFSPutAndGet(t *testing.T) {
	backing := newTestBacking(t)
	logger := common.NewTestEntry(t, "smart")

	h := NewHandler(backing, "/", false, logger)
	h.ArgsReceived([]string{"put", "/greeting"})
	require.False(t, h.Finished())
	h.AcceptBody([]byte("hello "))
	h.AcceptBody([]byte("there"))
	h.EndReceived()
	require.True(t, h.Finished())
	assert.Equal(t, []string{"ok"}, h.Response().Args)

	h = NewHandler(backing, "/", false, logger)
	h.ArgsReceived([]string{"get", "/greeting"})
	require.True(t, h.Finished())
	assert.True(t, h.Response().Successful)
	assert.Equal(t, []byte("hello there"), h.Response().Body)
}

func TestVFSRefused(t *testing.T) {
	h := newTestHandler(t, true)
	h.ArgsReceived([]string{"get", "/anything"})

	require.True(t, h.Finished())
	assert.False(t, h.Response().Successful)
	assert.Equal(t, []string{"VfsRequestNotAllowed"}, h.Response().Args)

	// High-level verbs still work with VFS refused.
	h = newTestHandler(t, true)
	h.ArgsReceived([]string{"hello"})
	require.True(t, h.Finished())
	assert.True(t, h.Response().Successful)
}

func TestGetMissingFileTranslates(t *testing.T) {
	h := newTestHandler(t, false)
	h.ArgsReceived([]string{"get", "/nope"})

	require.True(t, h.Finished())
	assert.Equal(t, []string{"NoSuchFile", "nope"}, h.Response().Args)
}

func TestPathOutsideServedPrefix(t *testing.T) {
	backing := newTestBacking(t)
	h := NewHandler(backing, "/served", false, common.NewTestEntry(t, "smart"))
	h.ArgsReceived([]string{"get", "/elsewhere/file"})

	require.True(t, h.Finished())
	require.False(t, h.Response().Successful)
	assert.Equal(t, "PathNotChild", h.Response().Args[0])
}

func TestJailBreak(t *testing.T) {
	h := newTestHandler(t, false)
	h.ArgsReceived([]string{"Repository.open", "/../escaped"})

	require.True(t, h.Finished())
	require.False(t, h.Response().Successful)
	assert.Equal(t, "JailBreak", h.Response().Args[0])
}

func TestVFSJailStopsEscapes(t *testing.T) {
	// Serve a subdirectory with a file planted next to it, outside the
	// served root.
	dir, err := ioutil.TempDir("", "cairn_smart")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "secret"), []byte("top secret"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "served"), 0755))

	backing, err := transport.NewLocalTransport(filepath.Join(dir, "served"), false)
	require.NoError(t, err)
	logger := common.NewTestEntry(t, "smart")

	// Reads must not reach outside, whether the ".." is leading or buried.
	for _, clientPath := range []string{"/../secret", "/sub/../../secret"} {
		h := NewHandler(backing, "/", false, logger)
		h.ArgsReceived([]string{"get", clientPath})

		require.True(t, h.Finished(), clientPath)
		require.False(t, h.Response().Successful, clientPath)
		assert.Equal(t, "JailBreak", h.Response().Args[0], clientPath)
		assert.Empty(t, h.Response().Body, clientPath)
	}

	// Neither must writes or deletes.
	h := NewHandler(backing, "/", false, logger)
	h.ArgsReceived([]string{"put", "/../planted"})
	require.True(t, h.Finished())
	assert.Equal(t, "JailBreak", h.Response().Args[0])
	_, err = os.Stat(filepath.Join(dir, "planted"))
	assert.True(t, os.IsNotExist(err))

	h = NewHandler(backing, "/", false, logger)
	h.ArgsReceived([]string{"delete", "/../secret"})
	require.True(t, h.Finished())
	assert.Equal(t, "JailBreak", h.Response().Args[0])
	_, err = os.Stat(filepath.Join(dir, "secret"))
	assert.NoError(t, err)
}

func TestRepositoryOpenMissing(t *testing.T) {
	h := newTestHandler(t, false)
	h.ArgsReceived([]string{"Repository.open", "/"})

	require.True(t, h.Finished())
	assert.Equal(t, []string{"norepository"}, h.Response().Args)
}

// withInmemRepo swaps the repository opener for a shared in-memory store.
func withInmemRepo(t *testing.T, st store.Store) {
	orig := OpenRepository
	OpenRepository = func(transport.Transport) (store.Store, error) {
		return st, nil
	}
	t.Cleanup(func() { OpenRepository = orig })
}

// inmemNoClose keeps a shared test store open across requests that Close it.
type inmemNoClose struct {
	*store.InmemStore
}

func (s inmemNoClose) Close() error { return nil }

func newDiamondStore(t *testing.T) store.Store {
	st := store.NewInmemStore()
	require.NoError(t, st.AddRevision("root", nil))
	require.NoError(t, st.AddRevision("a", []string{"root"}))
	require.NoError(t, st.AddRevision("b", []string{"a"}))
	require.NoError(t, st.AddRevision("c", []string{"a"}))
	require.NoError(t, st.AddRevision("d", []string{"b", "c"}))
	return inmemNoClose{st}
}

func TestRepositoryHasRevision(t *testing.T) {
	withInmemRepo(t, newDiamondStore(t))

	h := newTestHandler(t, false)
	h.ArgsReceived([]string{"Repository.has_revision", "/", "d"})
	require.True(t, h.Finished())
	assert.Equal(t, []string{"yes"}, h.Response().Args)

	h = newTestHandler(t, false)
	h.ArgsReceived([]string{"Repository.has_revision", "/", "ghost"})
	require.True(t, h.Finished())
	assert.Equal(t, []string{"no"}, h.Response().Args)
}

func TestRepositoryAllRevisionIDs(t *testing.T) {
	withInmemRepo(t, newDiamondStore(t))

	h := newTestHandler(t, false)
	h.ArgsReceived([]string{"Repository.all_revision_ids", "/"})
	require.True(t, h.Finished())
	assert.Equal(t, []byte("a\nb\nc\nd\nroot"), h.Response().Body)
}

func TestGetParentMap(t *testing.T) {
	withInmemRepo(t, newDiamondStore(t))

	h := newTestHandler(t, false)
	h.ArgsReceived([]string{"Repository.get_parent_map", "/", "d"})
	require.False(t, h.Finished())

	// Fresh client: empty search recipe.
	h.AcceptBody(graph.SearchRecipe{}.Encode())
	h.EndReceived()

	require.True(t, h.Finished())
	require.True(t, h.Response().Successful)
	assert.Equal(t, []string{"ok"}, h.Response().Args)

	result, err := graph.DecodeParentMapBody(h.Response().Body)
	require.NoError(t, err)
	// The whole diamond fits well within the budget.
	assert.Equal(t, map[string][]string{
		"d":    {"b", "c"},
		"b":    {"a"},
		"c":    {"a"},
		"a":    {"root"},
		"root": {},
	}, result)
}

func TestGetParentMapIncludeMissing(t *testing.T) {
	withInmemRepo(t, newDiamondStore(t))

	h := newTestHandler(t, false)
	h.ArgsReceived([]string{"Repository.get_parent_map", "/", IncludeMissingFlag, "ghost"})
	h.AcceptBody(graph.SearchRecipe{}.Encode())
	h.EndReceived()

	require.True(t, h.Finished())
	result, err := graph.DecodeParentMapBody(h.Response().Body)
	require.NoError(t, err)
	_, reported := result[graph.MissingPrefix+"ghost"]
	assert.True(t, reported)
}

func TestGetParentMapBadSearch(t *testing.T) {
	withInmemRepo(t, newDiamondStore(t))

	// A recipe claiming the wrong seen count is a hard error.
	h := newTestHandler(t, false)
	h.ArgsReceived([]string{"Repository.get_parent_map", "/", "d"})
	h.AcceptBody(graph.SearchRecipe{Start: []string{"d"}, Count: 1}.Encode())
	h.EndReceived()

	require.True(t, h.Finished())
	assert.Equal(t, []string{"BadSearch"}, h.Response().Args)

	// So is an undecodable recipe.
	h = newTestHandler(t, false)
	h.ArgsReceived([]string{"Repository.get_parent_map", "/", "d"})
	h.AcceptBody([]byte("gibberish"))
	h.EndReceived()

	require.True(t, h.Finished())
	assert.Equal(t, []string{"BadSearch"}, h.Response().Args)
}

func TestVerbInfo(t *testing.T) {
	info, ok := VerbInfo("get")
	require.True(t, ok)
	assert.Equal(t, InfoVFS, info)
	assert.True(t, IsVFSVerb("put"))
	assert.False(t, IsVFSVerb("hello"))

	_, ok = VerbInfo("frob")
	assert.False(t, ok)
}
