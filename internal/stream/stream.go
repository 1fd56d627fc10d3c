// Package stream opens confined files for inline viewing or download and
// copies them to a response without buffering whole files.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"tinyfm/internal/fsutil"
)

var (
	ErrNotFound    = errors.New("file not found")
	ErrIsDirectory = errors.New("is a directory")
)

// Mode selects how a file is presented.
type Mode int

const (
	View Mode = iota
	Download
)

func (m Mode) String() string {
	if m == Download {
		return "download"
	}
	return "view"
}

const bufSize = 32 * 1024

// Stream is an open file plus the headers describing it. Close must be
// called on every path; Serve and WriteTo do not close it.
type Stream struct {
	Name        string
	Size        int64
	ModTime     time.Time
	ContentType string
	Mode        Mode

	f *os.File
}

// Open opens a regular file for mode. Directories fail with ErrIsDirectory;
// pipes, sockets and devices with ErrNotFound.
func Open(cp fsutil.ConfinedPath, mode Mode) (*Stream, error) {
	f, st, err := fsutil.OpenRead(cp.Absolute)
	if err != nil {
		if fsutil.IsNotExist(err) || errors.Is(err, fsutil.ErrNotRegular) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open %s: %w", cp.Rel(), err)
	}
	if st.IsDir() {
		f.Close()
		return nil, ErrIsDirectory
	}
	s := &Stream{
		Name:    filepath.Base(cp.Absolute),
		Size:    st.Size(),
		ModTime: st.ModTime(),
		Mode:    mode,
		f:       f,
	}
	if mode == Download {
		s.ContentType = "application/octet-stream"
	} else {
		s.ContentType = ContentTypeForName(s.Name)
	}
	return s, nil
}

func (s *Stream) Close() error {
	return s.f.Close()
}

// SetHeaders writes the response headers for the stream.
func (s *Stream) SetHeaders(h http.Header) {
	h.Set("Content-Type", s.ContentType)
	h.Set("Content-Length", strconv.FormatInt(s.Size, 10))
	h.Set("Last-Modified", s.ModTime.UTC().Format(http.TimeFormat))
	if s.Mode == Download {
		h.Set("Content-Disposition", attachment(s.Name))
	} else {
		h.Set("Content-Disposition", inline(s.Name))
		// Viewed HTML/SVG must not run script on our origin.
		h.Set("Content-Security-Policy", "sandbox")
	}
}

// Serve writes headers, a 200 status and the body. HEAD requests get
// headers only.
func (s *Stream) Serve(w http.ResponseWriter, r *http.Request) (int64, error) {
	s.SetHeaders(w.Header())
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return 0, nil
	}
	return s.WriteTo(r.Context(), w)
}

// WriteTo copies the file to w with a fixed buffer, stopping early when ctx
// is done (client went away).
func (s *Stream) WriteTo(ctx context.Context, w io.Writer) (int64, error) {
	buf := make([]byte, bufSize)
	return io.CopyBuffer(w, &ctxReader{ctx: ctx, r: s.f}, buf)
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func attachment(name string) string {
	return disposition("attachment", name)
}

func inline(name string) string {
	return disposition("inline", name)
}

func disposition(kind, name string) string {
	// FormatMediaType quotes as needed and switches to RFC 2231 for non-ASCII.
	if v := mime.FormatMediaType(kind, map[string]string{"filename": name}); v != "" {
		return v
	}
	return kind
}

var viewTypes = map[string]string{
	".txt":  "text/plain; charset=utf-8",
	".log":  "text/plain; charset=utf-8",
	".md":   "text/plain; charset=utf-8",
	".html": "text/html; charset=utf-8",
	".css":  "text/css; charset=utf-8",
	".js":   "text/javascript; charset=utf-8",
	".json": "application/json",
	".xml":  "text/xml; charset=utf-8",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".pdf":  "application/pdf",
}

// ContentTypeForName maps a file name onto the inline-view allow-list.
// Anything else is served as plain text.
func ContentTypeForName(name string) string {
	if ct, ok := viewTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "text/plain; charset=utf-8"
}

// IsImage reports whether name has an image extension in the allow-list.
func IsImage(name string) bool {
	return strings.HasPrefix(ContentTypeForName(name), "image/")
}
