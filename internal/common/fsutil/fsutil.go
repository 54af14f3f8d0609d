package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsafePath is returned by SafeJoin when an element would escape the root.
var ErrUnsafePath = errors.New("fsutil: path escapes root")

// ExpandHome expands a leading '~' to the user's home directory.
func ExpandHome(path string) (string, error) {
	if path == "" {
		return path, nil
	}
	if path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	// handle cases like ~/.cache/warmsetd
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}

// PathExists checks if the given path exists.
func PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, os.ErrNotExist)
}

// SafeJoin joins untrusted elements (model or chunk ids) under root. Each
// element must stay inside the directory it is joined to.
func SafeJoin(root string, elems ...string) (string, error) {
	up := ".." + string(filepath.Separator)
	for _, e := range elems {
		c := filepath.Clean(e)
		if e == "" || filepath.IsAbs(e) || strings.ContainsRune(e, 0) ||
			c == "." || c == ".." || strings.HasPrefix(c, up) {
			return "", fmt.Errorf("%q: %w", e, ErrUnsafePath)
		}
	}
	p := filepath.Join(append([]string{root}, elems...)...)
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, up) {
		return "", fmt.Errorf("%q: %w", filepath.Join(elems...), ErrUnsafePath)
	}
	return p, nil
}

// FirstExisting returns the first of dir/name+ext that exists, trying exts in
// order. ok is false when none exist.
func FirstExisting(dir, name string, exts ...string) (string, bool) {
	for _, ext := range exts {
		p := filepath.Join(dir, name+ext)
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, true
		}
	}
	return "", false
}
