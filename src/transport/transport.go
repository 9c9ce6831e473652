// Package transport provides the filesystem abstraction that backs a smart
// server. A Transport is rooted at a directory; request handlers resolve all
// client-supplied paths through one, which is what makes jail enforcement
// possible at a single choke point.
package transport

import (
	"os"
)

// Transport is a handle on a directory tree. Clone may traverse outside the
// original root ("transport/../elsewhere" is a valid clone); containment is
// the jail's job, not the transport's.
type Transport interface {
	// Base returns the absolute root of this transport, with a trailing
	// separator.
	Base() string

	// Clone returns a transport rooted at relpath, resolved against Base.
	Clone(relpath string) (Transport, error)

	// Relpath converts an absolute path to a path relative to Base. It
	// returns a PathNotChildError if abspath is not under Base.
	Relpath(abspath string) (string, error)

	Has(relpath string) (bool, error)
	Get(relpath string) ([]byte, error)
	Put(relpath string, data []byte) error
	Delete(relpath string) error
	Mkdir(relpath string) error
	List(relpath string) ([]string, error)
	Stat(relpath string) (os.FileInfo, error)

	// IsReadonly reports whether mutating operations are refused.
	IsReadonly() bool
}
