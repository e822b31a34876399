// Package audio provides local media backends for the player adapter.
package audio

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// Errors
var (
	ErrInvalidMediaID = errors.New("invalid media ID")
	ErrNotInLibrary   = errors.New("media not found in library")
)

const libraryExt = ".mp3"

// Library maps media IDs to audio files stored as <dir>/<id>.mp3.
type Library struct {
	dir string
}

// NewLibrary creates a library rooted at dir.
func NewLibrary(dir string) *Library {
	return &Library{dir: dir}
}

// Dir returns the library root.
func (l *Library) Dir() string {
	return l.dir
}

// Path resolves the file for id. IDs containing path elements are rejected.
func (l *Library) Path(id string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) || strings.ContainsRune(id, 0) {
		return "", errors.Wrapf(ErrInvalidMediaID, "%q", id)
	}
	path := filepath.Join(l.dir, id+libraryExt)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.Wrapf(ErrNotInLibrary, "%s", id)
		}
		return "", errors.Wrapf(err, "failed to stat %s", path)
	}
	if info.IsDir() {
		return "", errors.Wrapf(ErrNotInLibrary, "%s is a directory", id)
	}
	return path, nil
}

// Has reports whether id resolves to a file.
func (l *Library) Has(id string) bool {
	_, err := l.Path(id)
	return err == nil
}
