// Package fsys reads files and lists directories below a served root.
package fsys

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

var (
	// ErrNotFound means the file or directory does not exist or could not be opened.
	ErrNotFound = errors.New("not found")
	// ErrRead means the target was opened but reading or enumerating it failed.
	ErrRead = errors.New("read failed")
	// ErrOutsideRoot means the path climbs above the served root.
	ErrOutsideRoot = errors.New("path escapes root")
)

// Dir serves the tree below a root directory.
type Dir struct {
	root string
}

// New returns a Dir rooted at root. An empty root means the working directory.
func New(root string) *Dir {
	if root == "" {
		root = "."
	}
	return &Dir{root: filepath.Clean(root)}
}

// Root returns the host directory d serves.
func (d *Dir) Root() string {
	return d.root
}

// Resolve maps a server-relative path such as "/docs/a.txt" to a host path
// under the root. Dot-dot segments are applied lexically and a path that
// would leave the root is rejected with ErrOutsideRoot.
func (d *Dir) Resolve(urlPath string) (string, error) {
	var kept []string
	for _, seg := range strings.Split(urlPath, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(kept) == 0 {
				return "", fmt.Errorf("%w: %q", ErrOutsideRoot, urlPath)
			}
			kept = kept[:len(kept)-1]
		default:
			kept = append(kept, seg)
		}
	}
	return filepath.Join(d.root, filepath.FromSlash(strings.Join(kept, "/"))), nil
}

// ReadFile returns the full contents of the file at urlPath.
func (d *Dir) ReadFile(urlPath string) ([]byte, error) {
	name, err := d.Resolve(urlPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrRead, name, err)
	}
	return data, nil
}

// List returns the names of the immediate entries of the directory at
// urlPath, exactly as stored on disk. Directory names carry a trailing "/".
// Entries whose names are not valid UTF-8, or whose metadata cannot be read,
// are left out. Names are ordered case-insensitively with digit runs compared
// as numbers, so "file2" sorts before "file10".
func (d *Dir) List(urlPath string) ([]string, error) {
	dir, err := d.Resolve(urlPath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrRead, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRead, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !utf8.ValidString(name) {
			continue
		}
		// Stat rather than e.Info so symlinked directories list as directories.
		fi, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		if fi.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}

	// A Collator keeps scratch buffers, so each call gets its own.
	collate.New(language.Und, collate.IgnoreCase, collate.Numeric).SortStrings(names)
	return names, nil
}
