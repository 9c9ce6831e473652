// Package graph implements the ancestry negotiation shared by client and
// server: a breadth-first walker over a revision graph, a compact recipe
// format for suspending and resuming a walk across a round trip, and the
// bounded frontier expansion that decides how much parent data to ship back
// per request.
package graph

import (
	"errors"
	"sort"
)

// ErrSearchExhausted is returned by Next when the walk has no more frontiers.
var ErrSearchExhausted = errors.New("graph: search exhausted")

// ParentsProvider supplies the parents of revisions. Absent revisions are
// simply missing from the returned map.
type ParentsProvider interface {
	GetParentMap(ids []string) (map[string][]string, error)
}

// BreadthFirstSearcher walks a revision graph one frontier at a time,
// starting from a set of tip keys and following parent links. Keys stopped
// with StopSearchingAny are not walked through and do not count as seen, so
// two searchers replaying the same recipe always agree on the seen count.
type BreadthFirstSearcher struct {
	provider ParentsProvider
	start    []string
	last     map[string]bool
	seen     map[string]bool
	stopped  map[string]bool
	started  bool
}

// NewBreadthFirstSearcher creates a searcher rooted at the given keys.
func NewBreadthFirstSearcher(provider ParentsProvider, start []string) *BreadthFirstSearcher {
	cp := make([]string, len(start))
	copy(cp, start)
	return &BreadthFirstSearcher{
		provider: provider,
		start:    cp,
		last:     make(map[string]bool),
		seen:     make(map[string]bool),
		stopped:  make(map[string]bool),
	}
}

// Next returns the next frontier: the start keys on the first call, then the
// not-yet-seen parents of the previous frontier, skipping keys that were
// stopped. Returns ErrSearchExhausted when nothing is left to walk.
func (s *BreadthFirstSearcher) Next() ([]string, error) {
	var current map[string]bool
	if !s.started {
		s.started = true
		current = make(map[string]bool, len(s.start))
		for _, k := range s.start {
			current[k] = true
		}
	} else {
		var query []string
		for k := range s.last {
			if !s.stopped[k] {
				query = append(query, k)
			}
		}
		parents, err := s.provider.GetParentMap(query)
		if err != nil {
			return nil, err
		}
		current = make(map[string]bool)
		for _, ps := range parents {
			for _, p := range ps {
				if !s.seen[p] {
					current[p] = true
				}
			}
		}
	}

	if len(current) == 0 {
		return nil, ErrSearchExhausted
	}

	for k := range current {
		s.seen[k] = true
	}
	s.last = current

	frontier := make([]string, 0, len(current))
	for k := range current {
		frontier = append(frontier, k)
	}
	sort.Strings(frontier)
	return frontier, nil
}

// StartSearching adds keys as extra roots of the walk. Keys already seen are
// ignored; the rest join the current frontier so the next call to Next walks
// through their parents. Returns the keys that were actually new.
func (s *BreadthFirstSearcher) StartSearching(keys []string) []string {
	added := []string{}
	for _, k := range keys {
		if s.seen[k] {
			continue
		}
		s.start = append(s.start, k)
		added = append(added, k)
		if s.started {
			s.seen[k] = true
			s.last[k] = true
		}
	}
	sort.Strings(added)
	return added
}

// StopSearchingAny marks keys from the most recent frontier as stopped: their
// parents will not be walked and they no longer count as seen.
func (s *BreadthFirstSearcher) StopSearchingAny(keys []string) {
	for _, k := range keys {
		if s.last[k] {
			s.stopped[k] = true
			delete(s.seen, k)
		}
	}
}

// Seen returns the set of keys visited so far, excluding stopped keys.
func (s *BreadthFirstSearcher) Seen() map[string]bool {
	out := make(map[string]bool, len(s.seen))
	for k := range s.seen {
		out[k] = true
	}
	return out
}

// Recipe captures the searcher's state so a peer can replay it.
func (s *BreadthFirstSearcher) Recipe() SearchRecipe {
	excl := make([]string, 0, len(s.stopped))
	for k := range s.stopped {
		excl = append(excl, k)
	}
	sort.Strings(excl)

	start := make([]string, len(s.start))
	copy(start, s.start)
	sort.Strings(start)

	return SearchRecipe{
		Start:   start,
		Exclude: excl,
		Count:   len(s.seen),
	}
}
