package httpserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"tinyfm/internal/auth"
	"tinyfm/internal/config"
	"tinyfm/internal/fsutil"
	"tinyfm/internal/listing"
	"tinyfm/internal/logger"
	"tinyfm/internal/session"
	"tinyfm/internal/stream"
	"tinyfm/internal/thumb"
)

const maxLoginBody = 64 << 10

type Options struct {
	Config   config.Config
	Root     fsutil.Root
	Sessions session.Store
}

type Server struct {
	cfg    config.Config
	root   fsutil.Root
	gate   *auth.Gate
	lister *listing.Lister
	log    *slog.Logger
}

func New(opts Options) (*Server, error) {
	gate, err := auth.NewGate(opts.Config.Auth, opts.Sessions)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:    opts.Config,
		root:   opts.Root,
		gate:   gate,
		lister: listing.New(opts.Config.Locale),
		log:    logger.WithComponent("http"),
	}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// health
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok\n")
	})

	mux.HandleFunc("/logout", s.handleLogout)

	if s.cfg.WebDAV.Enabled {
		mux.Handle("/dav/", s.davHandler())
	}

	mux.Handle("/", s.requireLogin(http.HandlerFunc(s.route)))

	return withHeaders(s.accessLog(mux))
}

// requireLogin lets authenticated requests through. Everything else gets the
// login form with a 200, except a POST to / which is a login attempt.
func (s *Server) requireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sess, ok := s.gate.Authorize(r); ok {
			if sess.Username != "" {
				noteUser(r.Context(), sess.Username)
				r = r.WithContext(auth.WithUser(r.Context(), sess.Username))
			}
			next.ServeHTTP(w, r)
			return
		}
		if r.Method == http.MethodPost && r.URL.Path == "/" {
			s.handleLogin(w, r)
			return
		}
		s.renderLogin(w, false)
	})
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/":
		s.handleList(w, r)
	case "/download":
		s.handleFile(w, r, stream.Download)
	case "/view":
		s.handleFile(w, r, stream.View)
	case "/thumb":
		s.handleThumb(w, r)
	default:
		http.NotFound(w, r)
	}
}

// --- handlers ---

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxLoginBody)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	username := r.PostForm.Get("username")
	if !s.gate.CheckCredentials(username, r.PostForm.Get("password")) {
		s.log.Info("login failed", "user", username, "remote", r.RemoteAddr)
		s.renderLogin(w, true)
		return
	}
	if err := s.gate.Login(w, r, username); err != nil {
		s.fail(w, r, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.gate.Logout(w, r)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	cp, err := fsutil.Resolve(s.root, r.URL.Query().Get("p"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	entries, err := s.lister.List(r.Context(), cp)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page := newListPage(s.cfg.AppTitle, cp.Rel(), s.gate.Enabled(), entries)
	if err := render(w, "list.html", page); err != nil {
		s.log.Warn("render listing", "path", cp.Rel(), "err", err)
	}
}

func (s *Server) handleFile(w http.ResponseWriter, r *http.Request, mode stream.Mode) {
	cp, err := fsutil.Resolve(s.root, r.URL.Query().Get("f"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	st, err := stream.Open(cp, mode)
	if err != nil {
		if mode == stream.View && errors.Is(err, stream.ErrIsDirectory) {
			err = stream.ErrNotFound
		}
		s.fail(w, r, err)
		return
	}
	defer st.Close()

	n, err := st.Serve(w, r)
	if err != nil {
		// Headers are already out; all that is left is to note it.
		s.log.Debug("stream aborted", "path", cp.Rel(), "mode", mode, "sent", n, "size", st.Size, "err", err)
	}
}

func (s *Server) handleThumb(w http.ResponseWriter, r *http.Request) {
	cp, err := fsutil.Resolve(s.root, r.URL.Query().Get("f"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	b, err := thumb.Make(r.Context(), cp, thumb.DefaultMax)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	_, _ = w.Write(b)
}

func (s *Server) renderLogin(w http.ResponseWriter, failed bool) {
	if err := render(w, "login.html", loginPage{Title: s.cfg.AppTitle, Failed: failed}); err != nil {
		s.log.Warn("render login", "err", err)
	}
}

// --- errors ---

// statusFor maps a typed failure onto the fixed status code contract.
func statusFor(err error) int {
	switch {
	case errors.Is(err, fsutil.ErrOutOfBounds):
		return http.StatusForbidden
	case errors.Is(err, listing.ErrNotFound),
		errors.Is(err, stream.ErrNotFound),
		errors.Is(err, thumb.ErrUnsupported):
		return http.StatusNotFound
	case errors.Is(err, stream.ErrIsDirectory):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.log.Warn("request failed", "method", r.Method, "path", r.URL.Path, "user", auth.UserFromContext(r.Context()), "err", err)
		http.Error(w, "internal server error", code)
		return
	}
	s.log.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", code, "err", err)
	http.Error(w, messageFor(code), code)
}

func messageFor(code int) string {
	switch code {
	case http.StatusForbidden:
		return "forbidden: access denied"
	case http.StatusNotFound:
		return "not found"
	case http.StatusBadRequest:
		return "cannot download a directory"
	default:
		return http.StatusText(code)
	}
}
