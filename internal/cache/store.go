// Package cache persists the last verified entitlement and license state.
// Records are replaced whole on every save so concurrent readers never see a
// partial write; corrupt records load as absent rather than failing.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

const (
	privateDirPerm  = 0o700
	privateFilePerm = 0o600

	// maxRecordSize bounds reads so a replaced or garbage file cannot make
	// loading allocate unbounded memory.
	maxRecordSize = 1 << 20
)

var errUnsafeCachePath = errors.New("unsafe cache path")

// Store is the byte-oriented key-value capability the cache is built on.
// Read reports a missing key as (nil, nil). Writes replace the value whole.
type Store interface {
	Read(key string) ([]byte, error)
	Write(key string, data []byte) error
	Delete(key string) error
}

// FileStore keeps each key as an owner-only file in a single directory,
// written via temp-file-then-rename so readers never observe partial data.
type FileStore struct {
	dir string
}

// NewFileStore creates a file-backed store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("cache directory cannot be empty")
	}
	return &FileStore{dir: filepath.Clean(dir)}, nil
}

func (f *FileStore) path(key string) (string, error) {
	if key == "" || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("%w: invalid key %q", errUnsafeCachePath, key)
	}
	return filepath.Join(f.dir, key), nil
}

func isMissingPathError(err error) bool {
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}

func validateRegularFile(path string, info os.FileInfo) error {
	if info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("%w: refusing symlink %q", errUnsafeCachePath, path)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: non-regular path %q", errUnsafeCachePath, path)
	}
	return nil
}

// Read returns the value for key, or (nil, nil) when absent.
func (f *FileStore) Read(key string) ([]byte, error) {
	path, err := f.path(key)
	if err != nil {
		return nil, err
	}
	info, err := os.Lstat(path)
	if err != nil {
		if isMissingPathError(err) {
			return nil, nil
		}
		return nil, err
	}
	if err := validateRegularFile(path, info); err != nil {
		return nil, err
	}
	if info.Size() > maxRecordSize {
		return nil, fmt.Errorf("%w: %q exceeds size limit", errUnsafeCachePath, path)
	}
	return os.ReadFile(path)
}

// Write atomically replaces the value for key.
func (f *FileStore) Write(key string, data []byte) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(f.dir, privateDirPerm); err != nil {
		return err
	}
	if err := os.Chmod(f.dir, privateDirPerm); err != nil {
		return err
	}

	if info, err := os.Lstat(path); err == nil {
		if err := validateRegularFile(path, info); err != nil {
			return err
		}
	} else if !isMissingPathError(err) {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := tmp.Chmod(privateFilePerm); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	cleanup = false
	return nil
}

// Delete removes the value for key. Deleting an absent key is not an error.
func (f *FileStore) Delete(key string) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
