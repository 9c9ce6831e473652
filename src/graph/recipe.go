package graph

import (
	"fmt"
	"strconv"
	"strings"
)

// SearchRecipe describes a suspended breadth-first search: the keys it
// started from, the keys it was told to stop at, and how many keys it had
// seen. It crosses the wire as three newline-separated lines, with the key
// sets space-joined.
type SearchRecipe struct {
	Start   []string
	Exclude []string
	Count   int
}

// CountMismatchError reports that replaying a recipe yielded a different
// number of keys than the recipe claimed. This is distinct from a missing
// revision: it means the two sides no longer agree on the graph, for example
// after a concurrent push.
type CountMismatchError struct {
	Want int
	Got  int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("graph: search replay saw %d keys, recipe claims %d", e.Got, e.Want)
}

// Encode serializes the recipe.
func (r SearchRecipe) Encode() []byte {
	lines := []string{
		strings.Join(r.Start, " "),
		strings.Join(r.Exclude, " "),
		strconv.Itoa(r.Count),
	}
	return []byte(strings.Join(lines, "\n"))
}

// DecodeRecipe parses a serialized recipe.
func DecodeRecipe(body []byte) (SearchRecipe, error) {
	lines := strings.Split(string(body), "\n")
	if len(lines) != 3 {
		return SearchRecipe{}, fmt.Errorf("graph: recipe has %d lines, want 3", len(lines))
	}
	count, err := strconv.Atoi(lines[2])
	if err != nil {
		return SearchRecipe{}, fmt.Errorf("graph: bad recipe count %q", lines[2])
	}
	return SearchRecipe{
		Start:   splitKeys(lines[0]),
		Exclude: splitKeys(lines[1]),
		Count:   count,
	}, nil
}

func splitKeys(line string) []string {
	if line == "" {
		return nil
	}
	return strings.Split(line, " ")
}

// RecreateSearch replays a recipe against the provider and returns the set of
// keys the originating searcher had seen. The replay walks breadth-first from
// the recipe's start keys, stopping at every exclude key it encounters, and
// fails with a CountMismatchError if the final seen count disagrees with the
// recipe.
func RecreateSearch(provider ParentsProvider, recipe SearchRecipe) (map[string]bool, error) {
	searcher := NewBreadthFirstSearcher(provider, recipe.Start)
	exclude := make(map[string]bool, len(recipe.Exclude))
	for _, k := range recipe.Exclude {
		exclude[k] = true
	}

	for {
		frontier, err := searcher.Next()
		if err == ErrSearchExhausted {
			break
		}
		if err != nil {
			return nil, err
		}
		var stop []string
		for _, k := range frontier {
			if exclude[k] {
				stop = append(stop, k)
			}
		}
		if len(stop) > 0 {
			searcher.StopSearchingAny(stop)
		}
	}

	seen := searcher.Seen()
	if len(seen) != recipe.Count {
		return nil, &CountMismatchError{Want: recipe.Count, Got: len(seen)}
	}
	return seen, nil
}
