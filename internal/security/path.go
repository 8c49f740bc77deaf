// Package security keeps file access inside configured directories.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Root confines paths to one directory tree
type Root struct {
	dir string
}

// NewRoot creates a Root for dir. The directory does not need to exist yet.
func NewRoot(dir string) (*Root, error) {
	if dir == "" {
		return nil, fmt.Errorf("directory cannot be empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve directory: %w", err)
	}
	return &Root{dir: filepath.Clean(abs)}, nil
}

// Dir returns the absolute root directory
func (r *Root) Dir() string {
	return r.dir
}

// Resolve joins name onto the root, or takes it as is when absolute, and
// fails if the result escapes the root
func (r *Root) Resolve(name string) (string, error) {
	name = strings.ReplaceAll(name, "\x00", "")
	if name == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	path := name
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.dir, path)
	}
	path = filepath.Clean(path)

	ok, err := r.Contains(path)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("path is outside %s: %s", r.dir, name)
	}
	return path, nil
}

// Contains reports whether path lies inside the root, following a symlink
// at path and in the root itself
func (r *Root) Contains(path string) (bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("failed to resolve path: %w", err)
	}
	abs = filepath.Clean(abs)

	target := abs
	if info, err := os.Lstat(abs); err == nil && info.Mode()&os.ModeSymlink != 0 {
		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			target = resolved
		}
	}

	dirs := []string{r.dir}
	if resolved, err := filepath.EvalSymlinks(r.dir); err == nil && resolved != r.dir {
		dirs = append(dirs, resolved)
	}

	return within(abs, dirs) && within(target, dirs), nil
}

func within(path string, dirs []string) bool {
	for _, dir := range dirs {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// EnsureDir creates the root directory if it does not exist
func (r *Root) EnsureDir() error {
	info, err := os.Stat(r.dir)
	if os.IsNotExist(err) {
		return os.MkdirAll(r.dir, 0o755)
	}
	if err != nil {
		return fmt.Errorf("cannot access directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", r.dir)
	}
	return nil
}
