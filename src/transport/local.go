package transport

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
)

// LocalTransport serves a directory of the local filesystem.
type LocalTransport struct {
	base     string
	readonly bool
}

// NewLocalTransport returns a transport rooted at path. The path is made
// absolute but is not required to exist yet.
func NewLocalTransport(path string, readonly bool) (*LocalTransport, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return &LocalTransport{base: withTrailingSep(abs), readonly: readonly}, nil
}

func withTrailingSep(p string) string {
	if !strings.HasSuffix(p, string(filepath.Separator)) {
		p += string(filepath.Separator)
	}
	return p
}

// Base implements the Transport interface.
func (t *LocalTransport) Base() string {
	return t.base
}

// LocalPath returns the root directory without the trailing separator. It is
// what on-disk stores (eg. the badger revision store) open directly.
func (t *LocalTransport) LocalPath() string {
	return strings.TrimSuffix(t.base, string(filepath.Separator))
}

// IsReadonly implements the Transport interface.
func (t *LocalTransport) IsReadonly() bool {
	return t.readonly
}

// resolve maps a client-relative path to an absolute filesystem path. ".."
// segments are honoured, so the result may escape the base; callers that care
// run the result through a jail.
func (t *LocalTransport) resolve(relpath string) string {
	return filepath.Clean(filepath.Join(t.LocalPath(), filepath.FromSlash(relpath)))
}

// Clone implements the Transport interface.
func (t *LocalTransport) Clone(relpath string) (Transport, error) {
	return &LocalTransport{
		base:     withTrailingSep(t.resolve(relpath)),
		readonly: t.readonly,
	}, nil
}

// Relpath implements the Transport interface.
func (t *LocalTransport) Relpath(abspath string) (string, error) {
	cleaned := withTrailingSep(filepath.Clean(abspath))
	if !strings.HasPrefix(cleaned, t.base) && cleaned != t.base {
		return "", &PathNotChildError{Path: abspath, Base: t.base}
	}
	rel := strings.TrimPrefix(cleaned, t.base)
	return filepath.ToSlash(strings.TrimSuffix(rel, string(filepath.Separator))), nil
}

// Has implements the Transport interface.
func (t *LocalTransport) Has(relpath string) (bool, error) {
	_, err := os.Stat(t.resolve(relpath))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Get implements the Transport interface.
func (t *LocalTransport) Get(relpath string) ([]byte, error) {
	data, err := ioutil.ReadFile(t.resolve(relpath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NoSuchFileError{Path: relpath}
		}
		return nil, err
	}
	return data, nil
}

// Put implements the Transport interface.
func (t *LocalTransport) Put(relpath string, data []byte) error {
	if t.readonly {
		return &ReadOnlyError{Path: relpath}
	}
	return ioutil.WriteFile(t.resolve(relpath), data, 0644)
}

// Delete implements the Transport interface.
func (t *LocalTransport) Delete(relpath string) error {
	if t.readonly {
		return &ReadOnlyError{Path: relpath}
	}
	target := t.resolve(relpath)
	if _, err := os.Stat(target); os.IsNotExist(err) {
		return &NoSuchFileError{Path: relpath}
	}
	if err := os.Remove(target); err != nil {
		if pe, ok := err.(*os.PathError); ok && pe.Err != nil &&
			strings.Contains(pe.Err.Error(), "not empty") {
			return &DirectoryNotEmptyError{Path: relpath}
		}
		return err
	}
	return nil
}

// Mkdir implements the Transport interface.
func (t *LocalTransport) Mkdir(relpath string) error {
	if t.readonly {
		return &ReadOnlyError{Path: relpath}
	}
	if err := os.Mkdir(t.resolve(relpath), 0755); err != nil {
		if os.IsExist(err) {
			return &FileExistsError{Path: relpath}
		}
		if os.IsNotExist(err) {
			return &NoSuchFileError{Path: relpath}
		}
		return err
	}
	return nil
}

// List implements the Transport interface.
func (t *LocalTransport) List(relpath string) ([]string, error) {
	entries, err := ioutil.ReadDir(t.resolve(relpath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NoSuchFileError{Path: relpath}
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// Stat implements the Transport interface.
func (t *LocalTransport) Stat(relpath string) (os.FileInfo, error) {
	info, err := os.Stat(t.resolve(relpath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NoSuchFileError{Path: relpath}
		}
		return nil, err
	}
	return info, nil
}
