// Package filestore reads and writes files named by request subpaths under a
// base directory. There is no locking: concurrent writers to the same name race
// at the filesystem layer.
package filestore

import (
	"os"

	"httpd/internal/errors"
	"httpd/internal/paths"
)

// Store is safe for concurrent use; it holds only read-only configuration.
type Store struct {
	dir     string
	confine bool
}

// New creates a store rooted at dir. An empty dir leaves the store unconfigured
// and every operation fails with DirectoryNotConfigured. With confine set, names
// resolving outside dir are refused.
func New(dir string, confine bool) *Store {
	return &Store{dir: dir, confine: confine}
}

// Dir returns the configured base directory, or "".
func (s *Store) Dir() string {
	return s.dir
}

// Configured reports whether a base directory was supplied.
func (s *Store) Configured() bool {
	return s.dir != ""
}

// Read returns the full contents of the named file. Any open or read failure is
// reported as FileNotFound, whatever the underlying cause.
func (s *Store) Read(name string) ([]byte, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.FileNotFound, "file not found: "+name, err)
	}
	return data, nil
}

// Write creates or truncates the named file and writes body verbatim.
func (s *Store) Write(name string, body []byte) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, body, 0644); err != nil {
		return errors.New(errors.FileWriteFailed, "failed to write "+name, err)
	}
	return nil
}

func (s *Store) resolve(name string) (string, error) {
	if !s.Configured() {
		return "", errors.New(errors.DirectoryNotConfigured, "no directory configured for file routes", nil)
	}

	path := paths.JoinBase(s.dir, name)
	if s.confine && !paths.IsWithin(path, s.dir) {
		return "", errors.New(errors.PathOutsideDirectory, "path escapes directory: "+name, nil)
	}
	return path, nil
}
