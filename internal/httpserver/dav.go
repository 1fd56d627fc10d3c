package httpserver

import (
	"context"
	"errors"
	"net/http"
	"os"

	"golang.org/x/net/webdav"

	"tinyfm/internal/auth"
	"tinyfm/internal/fsutil"
)

// davHandler serves a read-only WebDAV view of the root under /dav/.
// Callers authenticate with the session cookie or HTTP Basic.
func (s *Server) davHandler() http.Handler {
	dav := &webdav.Handler{
		Prefix:     "/dav",
		FileSystem: readOnlyFS{root: s.root},
		LockSystem: webdav.NewMemLS(),
		Logger: func(r *http.Request, err error) {
			if err != nil {
				s.log.Debug("webdav", "method", r.Method, "path", r.URL.Path, "err", err)
			}
		},
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.gate.AuthorizeBasic(r)
		if !ok {
			auth.Challenge(w)
			return
		}
		if user != "" {
			noteUser(r.Context(), user)
			r = r.WithContext(auth.WithUser(r.Context(), user))
		}
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions, "PROPFIND":
		default:
			w.Header().Set("Allow", "GET, HEAD, OPTIONS, PROPFIND")
			http.Error(w, "read-only", http.StatusMethodNotAllowed)
			return
		}
		dav.ServeHTTP(w, r)
	})
}

// readOnlyFS is a webdav.FileSystem confined to root that refuses writes.
type readOnlyFS struct {
	root fsutil.Root
}

const writeFlags = os.O_WRONLY | os.O_RDWR | os.O_CREATE | os.O_TRUNC | os.O_APPEND

func (fs readOnlyFS) resolve(name string) (string, error) {
	cp, err := fsutil.Resolve(fs.root, name)
	if err != nil {
		if errors.Is(err, fsutil.ErrOutOfBounds) {
			return "", os.ErrPermission
		}
		return "", err
	}
	return cp.Absolute, nil
}

func (fs readOnlyFS) Mkdir(ctx context.Context, name string, perm os.FileMode) error {
	return os.ErrPermission
}

func (fs readOnlyFS) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	if flag&writeFlags != 0 {
		return nil, os.ErrPermission
	}
	abs, err := fs.resolve(name)
	if err != nil {
		return nil, err
	}
	f, _, err := fsutil.OpenRead(abs)
	if err != nil {
		if errors.Is(err, fsutil.ErrNotRegular) {
			return nil, os.ErrNotExist
		}
		return nil, err
	}
	return readOnlyFile{f}, nil
}

func (fs readOnlyFS) RemoveAll(ctx context.Context, name string) error {
	return os.ErrPermission
}

func (fs readOnlyFS) Rename(ctx context.Context, oldName, newName string) error {
	return os.ErrPermission
}

func (fs readOnlyFS) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	abs, err := fs.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.Stat(abs)
}

type readOnlyFile struct {
	*os.File
}

func (readOnlyFile) Write([]byte) (int, error) {
	return 0, os.ErrPermission
}
