package subtitle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrOutputExists is returned by CreateFile when the target exists and
// overwriting was not requested.
var ErrOutputExists = errors.New("output file already exists")

// CreateFile creates path and its parent directories. Without overwrite the
// file must not already exist.
func CreateFile(path string, overwrite bool) (*os.File, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0644)
	if errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("%w: %s", ErrOutputExists, path)
	}
	return f, err
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0755)
}
