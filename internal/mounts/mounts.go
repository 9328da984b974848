// Package mounts provides the front-end file system for the shell. A mount is
// either a sub-directory of an embedded fs.FS, so that the embedded front-end
// appears at the top level like an os.DirFS would, or a directory on disk used
// while developing the front-end.
package mounts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Mount is a named fs.FS backed by an embedded fs or a directory.
type Mount struct {
	Name string
	Dir  string // "" when the mount is embedded
	fs.FS
}

// ErrInvalidName reports a mount name which is not an fs.ValidPath.
type ErrInvalidName struct {
	name string
}

// Error fulfills the Error interface requirement for ErrInvalidName.
func (e ErrInvalidName) Error() string {
	return fmt.Sprintf("mount name %q is not a valid fs.ValidPath path", e.name)
}

// New mounts the subdirectory name of embedded or, if dir is not empty, the
// directory dir. Given
//
//	//go:embed frontend
//	var frontendFS embed.FS
//
// New("frontend", frontendFS, "") serves "frontend/index.html" as "index.html",
// and New("frontend", frontendFS, "../ui/dist") serves "../ui/dist/index.html"
// as "index.html".
func New(name string, embedded fs.FS, dir string) (*Mount, error) {

	if name == "" {
		return nil, errors.New("no name provided for mount")
	}
	if !fs.ValidPath(name) {
		return nil, ErrInvalidName{name}
	}

	if dir == "" {
		if embedded == nil {
			return nil, fmt.Errorf("mount %q has neither an embedded fs nor a directory", name)
		}
		subFS, err := fs.Sub(embedded, name)
		if err != nil {
			return nil, fmt.Errorf("could not sub-mount embedded fs at %q: %w", name, err)
		}
		if _, err := fs.Stat(subFS, "."); err != nil {
			return nil, fmt.Errorf("embedded fs has no %q directory: %w", name, err)
		}
		return &Mount{Name: name, FS: subFS}, nil
	}

	s, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("mount at %q error: %w", dir, err)
	}
	if !s.IsDir() {
		return nil, fmt.Errorf("mount at %q is not a directory", dir)
	}
	return &Mount{Name: name, Dir: dir, FS: os.DirFS(dir)}, nil
}

// Embedded reports whether the mount serves embedded files.
func (m *Mount) Embedded() bool {
	return m.Dir == ""
}

// String describes the mount and its contents.
func (m *Mount) String() string {
	source := "embedded"
	if !m.Embedded() {
		source = m.Dir
	}
	tree, _ := Tree(m.FS)
	return fmt.Sprintf("mount %q (%s):\n%s", m.Name, source, tree)
}

// Materialize writes the mount contents into target, which is created and must
// not already exist.
func (m *Mount) Materialize(target string) error {

	if _, err := os.Stat(target); !os.IsNotExist(err) {
		if err != nil {
			return fmt.Errorf("materialize target %q: %w", target, err)
		}
		return fmt.Errorf("materialize target %q already exists", target)
	}
	if err := os.MkdirAll(target, 0755); err != nil {
		return fmt.Errorf("could not create %q: %w", target, err)
	}

	return fs.WalkDir(m.FS, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		fullPath := filepath.Join(target, filepath.FromSlash(path))

		if d.IsDir() {
			if err := os.MkdirAll(fullPath, 0755); err != nil {
				return fmt.Errorf("could not make dir %q: %w", fullPath, err)
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		data, err := fs.ReadFile(m.FS, path)
		if err != nil {
			return fmt.Errorf("could not read %q from mount %s: %w", path, m.Name, err)
		}
		if err := os.WriteFile(fullPath, data, 0644); err != nil {
			return fmt.Errorf("could not write %q: %w", fullPath, err)
		}
		return nil
	})
}

// Tree lists the files and directories of fsys, one per line, indented by
// depth, with directories suffixed by a slash.
func Tree(fsys fs.FS) (string, error) {
	var b strings.Builder
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == "." {
			b.WriteString("./\n")
			return nil
		}
		depth := strings.Count(path, "/") + 1
		name := d.Name()
		if d.IsDir() {
			name += "/"
		}
		fmt.Fprintf(&b, "%s%s\n", strings.Repeat("  ", depth), name)
		return nil
	})
	return b.String(), err
}
