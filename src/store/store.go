// Package store persists the revision graph served by the smart protocol: a
// mapping from revision id to its ordered parent ids. Two implementations are
// provided, an in-memory store for tests and short-lived servers, and a
// badger-backed store for real repositories.
package store

import "fmt"

// Store gives access to the parent data of a revision graph.
type Store interface {
	// AddRevision records a revision and its ordered parents. An empty
	// parent list means the revision has no parents.
	AddRevision(id string, parents []string) error

	// HasRevision reports whether the revision is present.
	HasRevision(id string) (bool, error)

	// AllRevisionIDs returns every revision id in the store, unsorted.
	AllRevisionIDs() ([]string, error)

	// GetParentMap returns the parents of each requested revision that is
	// present. Absent revisions are simply missing from the result.
	GetParentMap(ids []string) (map[string][]string, error)

	Close() error
}

// ErrType distinguishes store error conditions.
type ErrType uint32

const (
	// RevisionExists indicates an attempt to re-add a revision.
	RevisionExists ErrType = iota
	// NoRepository indicates that no repository exists at the given path.
	NoRepository
)

// Err is the error type returned by stores.
type Err struct {
	errType ErrType
	key     string
}

// NewErr creates a store error for the given key.
func NewErr(errType ErrType, key string) *Err {
	return &Err{errType: errType, key: key}
}

func (e *Err) Error() string {
	m := ""
	switch e.errType {
	case RevisionExists:
		m = "revision already exists"
	case NoRepository:
		m = "no repository present"
	}
	return fmt.Sprintf("%s: %s", m, e.key)
}

// Is checks that an error is a store Err with the given code.
func Is(err error, t ErrType) bool {
	storeErr, ok := err.(*Err)
	return ok && storeErr.errType == t
}

// Key returns the revision id or path the error refers to.
func (e *Err) Key() string {
	return e.key
}
