package common

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data next to path in a temporary file and renames it
// over path, so readers only ever see the old or the new content.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := writeTemp(path, data, perm)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename %s: %w", tmp, err)
	}
	return nil
}

// CreateFileExclusive atomically creates path with data. It fails with an
// error wrapping os.ErrExist if path already exists.
func CreateFileExclusive(path string, data []byte, perm os.FileMode) error {
	tmp, err := writeTemp(path, data, perm)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)
	// unlike rename, link refuses to replace an existing file
	if err := os.Link(tmp, path); err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	return nil
}

func writeTemp(path string, data []byte, perm os.FileMode) (string, error) {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file in %s: %w", dir, err)
	}
	name := f.Name()
	cleanup := func() {
		f.Close()
		os.Remove(name)
	}
	if _, err := f.Write(data); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := f.Chmod(perm); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to chmod %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return "", fmt.Errorf("failed to sync %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("failed to close %s: %w", name, err)
	}
	return name, nil
}
