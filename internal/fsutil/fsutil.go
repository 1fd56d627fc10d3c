package fsutil

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"
)

var (
	// ErrOutOfBounds is returned when a requested path would leave the root.
	ErrOutOfBounds = errors.New("path outside root")
	// ErrNotRegular is returned by OpenRead for pipes, sockets and devices.
	ErrNotRegular = errors.New("not a regular file")
)

// Root is the canonical absolute directory every request is confined to.
type Root struct {
	abs string
}

// NewRoot makes dir absolute, resolves symlinks and checks that it is a
// directory.
func NewRoot(dir string) (Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Root{}, fmt.Errorf("abs root: %w", err)
	}
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return Root{}, fmt.Errorf("resolve root: %w", err)
	}
	st, err := os.Stat(abs)
	if err != nil {
		return Root{}, fmt.Errorf("stat root: %w", err)
	}
	if !st.IsDir() {
		return Root{}, fmt.Errorf("root %s is not a directory", abs)
	}
	return Root{abs: filepath.Clean(abs)}, nil
}

func (r Root) String() string { return r.abs }

// ConfinedPath is a filesystem path proven to be the root or one of its
// descendants, together with the untrusted string it was derived from.
type ConfinedPath struct {
	Absolute  string
	Requested string

	root string
}

// Rel returns the slash-separated path relative to the root ("" for root).
func (c ConfinedPath) Rel() string {
	rel, err := filepath.Rel(c.root, c.Absolute)
	if err != nil || rel == "." {
		return ""
	}
	return filepath.ToSlash(rel)
}

// IsRoot reports whether the path is the root itself.
func (c ConfinedPath) IsRoot() bool { return c.Absolute == c.root }

// CleanRelPath takes a user path like "", ".", "/a/b", "a//b", and returns a
// slash-based, no-leading-slash relative path ("" means root). It does not
// collapse "..": callers must reject those first.
func CleanRelPath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimLeft(p, "/")
	if p == "" || p == "." {
		return ""
	}
	p = path.Clean(p)
	if p == "." {
		return ""
	}
	return p
}

// HasTraversal reports whether any component of p is "..", either literally
// or once percent-decoded. Whitespace around a component is ignored.
func HasTraversal(p string) bool {
	p = strings.ReplaceAll(p, "\\", "/")
	for _, part := range strings.Split(p, "/") {
		if strings.TrimSpace(part) == ".." {
			return true
		}
		if dec, err := url.PathUnescape(part); err == nil && dec != part {
			if HasTraversal(dec) {
				return true
			}
		}
	}
	return false
}

// Resolve confines requested to root. Any ".." component is rejected
// outright, symlinks are resolved, and containment is checked by path
// components rather than string prefix.
func Resolve(root Root, requested string) (ConfinedPath, error) {
	if root.abs == "" {
		return ConfinedPath{}, errors.New("fsutil: zero Root")
	}
	if strings.Contains(requested, "\x00") || HasTraversal(requested) {
		return ConfinedPath{}, ErrOutOfBounds
	}
	rel := CleanRelPath(requested)
	if HasTraversal(rel) {
		return ConfinedPath{}, ErrOutOfBounds
	}
	joined := root.abs
	if rel != "" {
		joined = filepath.Join(root.abs, filepath.FromSlash(rel))
	}
	abs, err := canonicalize(joined)
	if err != nil {
		return ConfinedPath{}, err
	}
	if !Within(root.abs, abs) {
		return ConfinedPath{}, ErrOutOfBounds
	}
	return ConfinedPath{Absolute: abs, Requested: requested, root: root.abs}, nil
}

// Within reports whether p is base or a descendant of base. Both must be
// clean absolute paths.
func Within(base, p string) bool {
	rel, err := filepath.Rel(base, p)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return !filepath.IsAbs(rel)
}

// canonicalize resolves symlinks in p. For a path that does not exist yet the
// deepest existing ancestor is resolved and the missing tail re-appended.
func canonicalize(p string) (string, error) {
	p = filepath.Clean(p)
	var tail []string
	cur := p
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			for i := len(tail) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, tail[i])
			}
			return filepath.Clean(resolved), nil
		}
		if !IsNotExist(err) {
			return "", fmt.Errorf("resolve %s: %w", p, err)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return p, nil
		}
		tail = append(tail, filepath.Base(cur))
		cur = parent
	}
}

// OpenRead opens abs read-only, accepting only regular files and
// directories. The open is non-blocking so a FIFO cannot stall the caller;
// the type check is made on the opened descriptor.
func OpenRead(abs string) (*os.File, os.FileInfo, error) {
	f, err := os.OpenFile(abs, os.O_RDONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	if !st.Mode().IsRegular() && !st.IsDir() {
		f.Close()
		return nil, nil, ErrNotRegular
	}
	return f, st, nil
}

// IsNotExist reports whether err means the path is missing, including the
// case where a parent component is a regular file.
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}
