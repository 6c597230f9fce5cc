package media

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"
)

// Storage keeps media files flat under one directory of fs.
type Storage struct {
	fs      afero.Fs
	baseURL string
}

// NewStorage roots fs at root; an empty root uses fs as is.
func NewStorage(fs afero.Fs, root, baseURL string) *Storage {
	if root != "" {
		fs = afero.NewBasePathFs(fs, root)
	}
	return &Storage{fs: fs, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *Storage) Put(diskName string, data []byte) error {
	if err := afero.WriteFile(s.fs, diskName, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", diskName, err)
	}
	return nil
}

// Remove deletes diskName; a missing file is not an error.
func (s *Storage) Remove(diskName string) error {
	if err := s.fs.Remove(diskName); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", diskName, err)
	}
	return nil
}

func (s *Storage) Exists(diskName string) bool {
	ok, _ := afero.Exists(s.fs, diskName)
	return ok
}

func (s *Storage) URL(diskName string) string {
	return s.baseURL + "/" + path.Base(diskName)
}

// FS exposes the rooted filesystem for serving files.
func (s *Storage) FS() afero.Fs {
	return s.fs
}
