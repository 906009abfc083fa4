// Package paths resolves the user home directory and file route paths.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	// HomeEnvVar overrides the default home directory location
	HomeEnvVar = "HTTPD_HOME"
	// DefaultHome is the directory name under the user's home
	DefaultHome = ".httpd"
)

// GetHome returns the directory holding user-level config and logs.
// Uses $HTTPD_HOME when set, otherwise ~/.httpd.
func GetHome() (string, error) {
	if home := os.Getenv(HomeEnvVar); home != "" {
		return home, nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userHome, DefaultHome), nil
}

// JoinBase joins a base directory with a file name taken from a request
func JoinBase(base string, name string) string {
	return filepath.Join(base, filepath.FromSlash(name))
}

// IsWithin reports whether path is base or lies below it once symlinks are
// followed. A path that does not exist yet is judged by its parent directory.
func IsWithin(path string, base string) bool {
	realPath, err := realpath(path)
	if err != nil {
		return false
	}
	realBase, err := realpath(base)
	if err != nil {
		return false
	}

	rel, err := filepath.Rel(realBase, realPath)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// realpath returns the absolute, symlink-free form of path. Missing leaf
// components are kept as written.
func realpath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	parent, err := filepath.EvalSymlinks(filepath.Dir(abs))
	if err != nil {
		if os.IsNotExist(err) {
			return abs, nil
		}
		return "", err
	}
	return filepath.Join(parent, filepath.Base(abs)), nil
}
