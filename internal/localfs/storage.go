package localfs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// FileEntry represents a file or directory in the local filesystem.
type FileEntry struct {
	Path    string      // Full path to the file
	Name    string      // Base name of the file
	Size    int64       // Size in bytes (0 for directories)
	IsDir   bool        // True if this is a directory
	ModTime time.Time   // Last modification time
	Mode    fs.FileMode // File mode/permissions
}

// Storage is the Local Storage capability. References are filesystem paths.
type Storage struct {
	fs afero.Fs
}

// New wraps an afero filesystem.
func New(fsys afero.Fs) *Storage {
	return &Storage{fs: fsys}
}

// NewOS returns a Storage backed by the real filesystem.
func NewOS() *Storage {
	return New(afero.NewOsFs())
}

// Fs exposes the underlying filesystem.
func (s *Storage) Fs() afero.Fs {
	return s.fs
}

// IsDir reports whether ref names an existing directory. A missing path is
// (false, nil).
func (s *Storage) IsDir(ref string) (bool, error) {
	if ref == "" {
		return false, nil
	}
	ok, err := afero.IsDir(s.fs, ref)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

// ListDirectory returns the contents of a directory, filtered by options,
// sorted by name.
func (s *Storage) ListDirectory(ref string, opts ListOptions) ([]FileEntry, error) {
	infos, err := afero.ReadDir(s.fs, ref)
	if err != nil {
		return nil, err
	}

	result := make([]FileEntry, 0, len(infos))
	for _, info := range infos {
		name := info.Name()

		// Filter hidden files unless explicitly included
		if !opts.IncludeHidden && IsHiddenName(name) {
			continue
		}
		if opts.FilesOnly && info.IsDir() {
			continue
		}

		result = append(result, FileEntry{
			Path:    filepath.Join(ref, name),
			Name:    name,
			Size:    info.Size(),
			IsDir:   info.IsDir(),
			ModTime: info.ModTime(),
			Mode:    info.Mode(),
		})
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// ListChildren returns the names of every immediate child of ref, hidden
// entries and directories included.
func (s *Storage) ListChildren(ref string) ([]string, error) {
	entries, err := s.ListDirectory(ref, ListOptions{IncludeHidden: true})
	if err != nil {
		return nil, err
	}
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names, nil
}

// CreateFile creates name inside folderRef and returns the new file's
// reference. ok is false when folderRef is absent or not a directory.
// An existing file with the same name is truncated.
func (s *Storage) CreateFile(folderRef, name string) (fileRef string, ok bool, err error) {
	isDir, err := s.IsDir(folderRef)
	if err != nil {
		return "", false, err
	}
	if !isDir {
		return "", false, nil
	}

	name = CleanName(name)
	if name == "" {
		return "", false, fmt.Errorf("invalid file name")
	}

	fileRef = filepath.Join(folderRef, name)
	f, err := s.fs.OpenFile(fileRef, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", false, err
	}
	if err := f.Close(); err != nil {
		return "", false, err
	}
	return fileRef, true, nil
}

// OpenWriteStream opens an existing file for writing from the start.
func (s *Storage) OpenWriteStream(fileRef string) (io.WriteCloser, error) {
	return s.fs.OpenFile(fileRef, os.O_WRONLY|os.O_TRUNC, 0o644)
}

// OpenReadStream opens a file for reading. The returned stream also
// implements Stat.
func (s *Storage) OpenReadStream(fileRef string) (io.ReadCloser, error) {
	return s.fs.Open(fileRef)
}

// Remove deletes a file. A missing file is not an error.
func (s *Storage) Remove(fileRef string) error {
	err := s.fs.Remove(fileRef)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// CleanName strips leading separators and any directory components, leaving
// a bare file name.
func CleanName(name string) string {
	name = strings.TrimLeft(name, `/\`)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if name == "." || name == ".." {
		return ""
	}
	return name
}
