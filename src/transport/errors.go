package transport

import "fmt"

// NoSuchFileError is returned when a path does not exist.
type NoSuchFileError struct {
	Path string
}

func (e *NoSuchFileError) Error() string {
	return fmt.Sprintf("no such file: %s", e.Path)
}

// FileExistsError is returned when a path unexpectedly already exists.
type FileExistsError struct {
	Path string
}

func (e *FileExistsError) Error() string {
	return fmt.Sprintf("file exists: %s", e.Path)
}

// PathNotChildError is returned when a path is not below a required root.
type PathNotChildError struct {
	Path string
	Base string
}

func (e *PathNotChildError) Error() string {
	return fmt.Sprintf("path %q is not a child of %q", e.Path, e.Base)
}

// ReadOnlyError is returned for mutating operations on a read-only transport.
type ReadOnlyError struct {
	Path string
}

func (e *ReadOnlyError) Error() string {
	return fmt.Sprintf("read-only transport: %s", e.Path)
}

// DirectoryNotEmptyError is returned when deleting a non-empty directory.
type DirectoryNotEmptyError struct {
	Path string
}

func (e *DirectoryNotEmptyError) Error() string {
	return fmt.Sprintf("directory not empty: %s", e.Path)
}
