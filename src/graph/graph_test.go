package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapProvider serves parents straight from a map, like a repository would.
type mapProvider map[string][]string

func (m mapProvider) GetParentMap(ids []string) (map[string][]string, error) {
	res := make(map[string][]string)
	for _, id := range ids {
		if parents, ok := m[id]; ok {
			res[id] = parents
		}
	}
	return res, nil
}

// diamond: d -> (b, c) -> a -> root
var diamond = mapProvider{
	"root": {},
	"a":    {"root"},
	"b":    {"a"},
	"c":    {"a"},
	"d":    {"b", "c"},
}

func TestSearcherWalk(t *testing.T) {
	s := NewBreadthFirstSearcher(diamond, []string{"d"})

	frontier, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, []string{"d"}, frontier)

	frontier, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, frontier)

	frontier, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, frontier)

	frontier, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, []string{"root"}, frontier)

	_, err = s.Next()
	assert.Equal(t, ErrSearchExhausted, err)

	assert.Len(t, s.Seen(), 5)
}

func TestSearcherStop(t *testing.T) {
	s := NewBreadthFirstSearcher(diamond, []string{"d"})

	_, err := s.Next()
	require.NoError(t, err)
	frontier, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, frontier)

	// Stop at b: its ancestry is only reachable through c now.
	s.StopSearchingAny([]string{"b"})

	frontier, err = s.Next()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, frontier)

	seen := s.Seen()
	assert.False(t, seen["b"])
	assert.True(t, seen["c"])

	recipe := s.Recipe()
	assert.Equal(t, []string{"d"}, recipe.Start)
	assert.Equal(t, []string{"b"}, recipe.Exclude)
	assert.Equal(t, len(seen), recipe.Count)
}

func TestSearcherStartSearching(t *testing.T) {
	s := NewBreadthFirstSearcher(diamond, []string{"b"})

	_, err := s.Next()
	require.NoError(t, err)

	// c joins the walk after it has started.
	added := s.StartSearching([]string{"c"})
	assert.Equal(t, []string{"c"}, added)

	frontier, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, frontier)

	assert.Empty(t, s.StartSearching([]string{"c", "a"}))

	recipe := s.Recipe()
	assert.Equal(t, []string{"b", "c"}, recipe.Start)
}

func TestRecipeRoundTrip(t *testing.T) {
	recipe := SearchRecipe{
		Start:   []string{"d", "e"},
		Exclude: []string{"a"},
		Count:   7,
	}
	decoded, err := DecodeRecipe(recipe.Encode())
	require.NoError(t, err)
	assert.Equal(t, recipe, decoded)

	// Empty key sets survive the trip too.
	empty := SearchRecipe{Count: 0}
	decoded, err = DecodeRecipe(empty.Encode())
	require.NoError(t, err)
	assert.Nil(t, decoded.Start)
	assert.Nil(t, decoded.Exclude)
	assert.Equal(t, 0, decoded.Count)
}

func TestDecodeRecipeMalformed(t *testing.T) {
	_, err := DecodeRecipe([]byte("only one line"))
	require.Error(t, err)

	_, err = DecodeRecipe([]byte("a\nb\nnot-a-number"))
	require.Error(t, err)
}

func TestRecreateSearch(t *testing.T) {
	// Walk the diamond from d, stopping at b, and capture the recipe.
	s := NewBreadthFirstSearcher(diamond, []string{"d"})
	for {
		frontier, err := s.Next()
		if err == ErrSearchExhausted {
			break
		}
		require.NoError(t, err)
		for _, k := range frontier {
			if k == "b" {
				s.StopSearchingAny([]string{"b"})
			}
		}
	}

	seen, err := RecreateSearch(diamond, s.Recipe())
	require.NoError(t, err)
	assert.Equal(t, s.Seen(), seen)
}

func TestRecreateSearchCountMismatch(t *testing.T) {
	recipe := SearchRecipe{Start: []string{"d"}, Count: 2}
	_, err := RecreateSearch(diamond, recipe)
	require.Error(t, err)

	mismatch, ok := err.(*CountMismatchError)
	require.True(t, ok)
	assert.Equal(t, 2, mismatch.Want)
	assert.Equal(t, 5, mismatch.Got)
}

func TestExpandStopsAtClientSeen(t *testing.T) {
	result, err := Expand(diamond, []string{"d"}, map[string]bool{"a": true}, false, DefaultSearchBudget)
	require.NoError(t, err)

	// a and its ancestry are already on the client.
	assert.Equal(t, map[string][]string{
		"d": {"b", "c"},
		"b": {"a"},
		"c": {"a"},
	}, result)
}

func TestExpandIncludeMissing(t *testing.T) {
	result, err := Expand(diamond, []string{"a", "ghost"}, nil, true, DefaultSearchBudget)
	require.NoError(t, err)

	assert.Equal(t, []string{"root"}, result["a"])
	_, reported := result[MissingPrefix+"ghost"]
	assert.True(t, reported)

	// Without the flag, absent keys are silently dropped.
	result, err = Expand(diamond, []string{"ghost"}, nil, false, DefaultSearchBudget)
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestExpandNeverSplitsFrontier(t *testing.T) {
	g := mapProvider{
		"t":  {"a", "b", "c"},
		"a":  {"d1"},
		"b":  {"d2"},
		"c":  {"d3"},
		"d1": {},
		"d2": {},
		"d3": {},
	}

	// Budget admits the first layer but is crossed by the second. The
	// second layer must still come back whole, and the third not at all.
	result, err := Expand(g, []string{"t"}, nil, false, 10)
	require.NoError(t, err)

	assert.Equal(t, map[string][]string{
		"t": {"a", "b", "c"},
		"a": {"d1"},
		"b": {"d2"},
		"c": {"d3"},
	}, result)
}

func TestParentMapBodyRoundTrip(t *testing.T) {
	in := map[string][]string{
		"d":             {"b", "c"},
		"root":          {},
		"missing:ghost": {},
	}
	body, err := EncodeParentMapBody(in)
	require.NoError(t, err)

	out, err := DecodeParentMapBody(body)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestParentMapBodyEmpty(t *testing.T) {
	body, err := EncodeParentMapBody(nil)
	require.NoError(t, err)

	out, err := DecodeParentMapBody(body)
	require.NoError(t, err)
	assert.Empty(t, out)
}
