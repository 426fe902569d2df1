package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileSource reads <dir>/<callerID>.json from the local filesystem.
type FileSource struct {
	Dir string
}

// NewFileSource creates a FileSource rooted at dir.
func NewFileSource(dir string) *FileSource {
	return &FileSource{Dir: dir}
}

// Fetch implements Source.
func (s *FileSource) Fetch(ctx context.Context, callerID string) ([]byte, error) {
	name, err := objectName(callerID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.Dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("FileSource.Fetch: reading %s: %w", name, err)
	}
	return data, nil
}

// objectName maps a caller id to the file/object holding its snapshot.
func objectName(callerID string) (string, error) {
	if callerID == "" || strings.ContainsAny(callerID, `/\`) || callerID == "." || callerID == ".." {
		return "", fmt.Errorf("invalid caller id %q", callerID)
	}
	return callerID + ".json", nil
}
