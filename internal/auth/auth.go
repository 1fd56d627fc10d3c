package auth

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tinyfm/internal/config"
	"tinyfm/internal/logger"
	"tinyfm/internal/session"
)

type ctxKey string

const userKey ctxKey = "tinyfm.user"

func UserFromContext(ctx context.Context) string {
	v, _ := ctx.Value(userKey).(string)
	return v
}

func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// Gate decides whether a request belongs to a logged-in caller and handles
// the login/logout side channel. It holds the single configured credential.
type Gate struct {
	enabled    bool
	username   string
	hash       []byte
	cookieName string
	secure     bool
	store      session.Store
	log        *slog.Logger
}

// NewGate builds a Gate from cfg. A plain-text password is hashed here so
// the comparison path is the same as for a configured bcrypt hash.
func NewGate(cfg config.Auth, store session.Store) (*Gate, error) {
	g := &Gate{
		enabled:    cfg.On(),
		username:   cfg.Username,
		cookieName: cfg.CookieName,
		secure:     cfg.SecureCookie,
		store:      store,
		log:        logger.WithComponent("auth"),
	}
	if g.cookieName == "" {
		g.cookieName = config.DefaultCookieName
	}
	if !g.enabled {
		return g, nil
	}
	if store == nil {
		return nil, errors.New("auth: session store is required")
	}
	switch {
	case cfg.Bcrypt != "":
		if _, err := bcrypt.Cost([]byte(cfg.Bcrypt)); err != nil {
			return nil, errors.New("auth: invalid bcrypt hash")
		}
		g.hash = []byte(cfg.Bcrypt)
	case cfg.Password != "":
		h, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, err
		}
		g.hash = h
	default:
		return nil, errors.New("auth: no password configured")
	}
	return g, nil
}

func (g *Gate) Enabled() bool { return g.enabled }

func (g *Gate) CookieName() string { return g.cookieName }

// Authorize reports whether r carries a live authenticated session. With
// auth disabled every request is authorized.
func (g *Gate) Authorize(r *http.Request) (session.Session, bool) {
	if !g.enabled {
		return session.Session{}, true
	}
	c, err := r.Cookie(g.cookieName)
	if err != nil || c.Value == "" {
		return session.Session{}, false
	}
	s, ok, err := g.store.Lookup(r.Context(), c.Value)
	if err != nil {
		g.log.Warn("session lookup failed", "err", err)
		return session.Session{}, false
	}
	if !ok || !s.Authenticated {
		return session.Session{}, false
	}
	return s, true
}

// CheckCredentials compares against the configured user. Both the username
// and the bcrypt comparison always run.
func (g *Gate) CheckCredentials(username, password string) bool {
	if !g.enabled {
		return true
	}
	if strings.Contains(username, "\x00") || strings.Contains(password, "\x00") {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(g.username)) == 1
	passOK := bcrypt.CompareHashAndPassword(g.hash, []byte(password)) == nil
	return userOK && passOK
}

// Login creates a session for username and sets the session cookie.
func (g *Gate) Login(w http.ResponseWriter, r *http.Request, username string) error {
	id, err := g.store.Create(r.Context(), username)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     g.cookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteLaxMode,
	})
	g.log.Info("login", "user", username, "remote", r.RemoteAddr)
	return nil
}

// Logout drops the caller's session, if any, and expires the cookie.
func (g *Gate) Logout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(g.cookieName); err == nil && c.Value != "" && g.store != nil {
		if err := g.store.Invalidate(r.Context(), c.Value); err != nil {
			g.log.Warn("session invalidate failed", "err", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     g.cookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   g.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// AuthorizeBasic accepts either a session cookie or HTTP Basic credentials.
// WebDAV clients only speak the latter.
func (g *Gate) AuthorizeBasic(r *http.Request) (string, bool) {
	if s, ok := g.Authorize(r); ok {
		return s.Username, true
	}
	u, p, ok := parseBasicAuth(r.Header.Get("Authorization"))
	if !ok || !g.CheckCredentials(u, p) {
		return "", false
	}
	return u, true
}

// Challenge asks the client for Basic credentials.
func Challenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="tinyfm"`)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func parseBasicAuth(v string) (user, pass string, ok bool) {
	const prefix = "Basic "
	if !strings.HasPrefix(v, prefix) {
		return "", "", false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(strings.TrimPrefix(v, prefix)))
	if err != nil {
		return "", "", false
	}
	s := string(raw)
	i := strings.IndexByte(s, ':')
	if i < 0 {
		return "", "", false
	}
	u := s[:i]
	p := s[i+1:]
	if u == "" {
		return "", "", false
	}
	return u, p, true
}

// HashPassword returns a bcrypt hash for the passwd subcommand.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return "", errors.New("invalid bcrypt cost")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
