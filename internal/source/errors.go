package source

import (
	"fmt"
	"io/fs"
)

// MissingFileError reports a document, fragment or dictionary file that
// does not exist.
type MissingFileError struct {
	Path string
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("file %s does not exist", e.Path)
}

func (e *MissingFileError) Unwrap() error { return fs.ErrNotExist }
