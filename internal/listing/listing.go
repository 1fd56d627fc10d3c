// Package listing enumerates and orders the entries of a confined directory.
package listing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"tinyfm/internal/fsutil"
)

var ErrNotFound = errors.New("directory not found")

// Entry is one child of a listed directory.
type Entry struct {
	Name    string
	IsDir   bool
	Size    uint64
	ModTime time.Time
}

// Lister lists directories and orders entries for one locale.
type Lister struct {
	tag language.Tag
}

// New returns a Lister collating names for locale (BCP 47). Unknown or empty
// locales fall back to the root collation.
func New(locale string) *Lister {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.Und
	}
	return &Lister{tag: tag}
}

// List returns the immediate children of dir: directories first, then files,
// each group in locale order. Children that cannot be stat'ed are skipped.
func (l *Lister) List(ctx context.Context, dir fsutil.ConfinedPath) ([]Entry, error) {
	f, st, err := fsutil.OpenRead(dir.Absolute)
	if err != nil {
		if fsutil.IsNotExist(err) || errors.Is(err, fsutil.ErrNotRegular) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open %s: %w", dir.Rel(), err)
	}
	if !st.IsDir() {
		f.Close()
		return nil, ErrNotFound
	}
	defer f.Close()
	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir.Rel(), err)
	}

	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// Stat follows symlinks; broken links and unreadable entries drop out.
		info, err := os.Stat(filepath.Join(dir.Absolute, name))
		if err != nil {
			continue
		}
		e := Entry{Name: name, IsDir: info.IsDir(), ModTime: info.ModTime()}
		if !e.IsDir && info.Size() > 0 {
			e.Size = uint64(info.Size())
		}
		entries = append(entries, e)
	}
	l.Sort(entries)
	return entries, nil
}

// Sort orders entries in place: directories before files, then by collated
// name with a byte-wise tie break so the order is total.
func (l *Lister) Sort(entries []Entry) {
	// Collators are not safe for concurrent use.
	c := collate.New(l.tag)
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.IsDir != b.IsDir {
			return a.IsDir
		}
		if r := c.CompareString(a.Name, b.Name); r != 0 {
			return r < 0
		}
		return a.Name < b.Name
	})
}
