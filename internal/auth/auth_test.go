package auth

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tinyfm/internal/config"
	"tinyfm/internal/session"
)

func newTestGate(t *testing.T) (*Gate, *session.MemoryStore) {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte("admin@123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	store := session.NewMemoryStore(time.Hour)
	g, err := NewGate(config.Auth{Username: "admin", Bcrypt: string(h), CookieName: "SID"}, store)
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	return g, store
}

func TestCheckCredentials(t *testing.T) {
	g, _ := newTestGate(t)
	tests := []struct {
		user, pass string
		want       bool
	}{
		{"admin", "admin@123", true},
		{"admin", "wrong", false},
		{"root", "admin@123", false},
		{"", "", false},
		{"admin\x00", "admin@123", false},
	}
	for _, tt := range tests {
		if got := g.CheckCredentials(tt.user, tt.pass); got != tt.want {
			t.Errorf("CheckCredentials(%q, %q) = %v, want %v", tt.user, tt.pass, got, tt.want)
		}
	}
}

func TestAuthorizeFlow(t *testing.T) {
	g, store := newTestGate(t)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := g.Authorize(r); ok {
		t.Fatal("request without cookie authorized")
	}

	w := httptest.NewRecorder()
	if err := g.Login(w, httptest.NewRequest(http.MethodPost, "/", nil), "admin"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("got %d cookies", len(cookies))
	}
	c := cookies[0]
	if c.Name != "SID" || !c.HttpOnly || c.Path != "/" {
		t.Errorf("unexpected cookie %+v", c)
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(c)
	s, ok := g.Authorize(r)
	if !ok || s.Username != "admin" {
		t.Fatalf("Authorize with cookie: ok=%v s=%+v", ok, s)
	}

	w = httptest.NewRecorder()
	g.Logout(w, r)
	cleared := w.Result().Cookies()
	if len(cleared) != 1 || cleared[0].Value != "" || cleared[0].MaxAge >= 0 {
		t.Errorf("cookie not cleared: %+v", cleared)
	}
	if _, ok := g.Authorize(r); ok {
		t.Fatal("session survived Logout")
	}
	if store.Len() != 0 {
		t.Errorf("store len = %d", store.Len())
	}
}

func TestAuthorizeRejectsForgedCookie(t *testing.T) {
	g, _ := newTestGate(t)
	id, _ := session.NewID()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: "SID", Value: id})
	if _, ok := g.Authorize(r); ok {
		t.Fatal("unknown session id authorized")
	}
}

type unauthStore struct{ session.Store }

func (unauthStore) Lookup(ctx context.Context, id string) (session.Session, bool, error) {
	return session.Session{ID: id, Username: "x", Authenticated: false}, true, nil
}

func TestAuthorizeRequiresAuthenticatedFlag(t *testing.T) {
	h, _ := bcrypt.GenerateFromPassword([]byte("p"), bcrypt.MinCost)
	g, err := NewGate(config.Auth{Username: "a", Bcrypt: string(h)}, unauthStore{})
	if err != nil {
		t.Fatal(err)
	}
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: config.DefaultCookieName, Value: "whatever"})
	if _, ok := g.Authorize(r); ok {
		t.Fatal("unauthenticated session authorized")
	}
}

func TestDisabledGateAuthorizesEverything(t *testing.T) {
	off := false
	g, err := NewGate(config.Auth{Enabled: &off}, nil)
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	if _, ok := g.Authorize(httptest.NewRequest(http.MethodGet, "/", nil)); !ok {
		t.Fatal("disabled gate rejected request")
	}
}

func TestNewGateErrors(t *testing.T) {
	store := session.NewMemoryStore(0)
	if _, err := NewGate(config.Auth{Username: "a", Bcrypt: "not-a-hash"}, store); err == nil {
		t.Error("expected error for invalid hash")
	}
	if _, err := NewGate(config.Auth{Username: "a"}, store); err == nil {
		t.Error("expected error without password")
	}
	if _, err := NewGate(config.Auth{Username: "a", Password: "p"}, nil); err == nil {
		t.Error("expected error without store")
	}
}

func TestAuthorizeBasic(t *testing.T) {
	g, _ := newTestGate(t)
	r := httptest.NewRequest(http.MethodGet, "/dav/", nil)
	r.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:admin@123")))
	if u, ok := g.AuthorizeBasic(r); !ok || u != "admin" {
		t.Fatalf("AuthorizeBasic = %q, %v", u, ok)
	}
	r.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:nope")))
	if _, ok := g.AuthorizeBasic(r); ok {
		t.Fatal("bad basic credentials accepted")
	}
}

func TestParseBasicAuth(t *testing.T) {
	enc := func(s string) string { return "Basic " + base64.StdEncoding.EncodeToString([]byte(s)) }
	tests := []struct {
		in         string
		user, pass string
		ok         bool
	}{
		{enc("a:b"), "a", "b", true},
		{enc("a:b:c"), "a", "b:c", true},
		{enc(":b"), "", "", false},
		{enc("nocolon"), "", "", false},
		{"Bearer x", "", "", false},
		{"Basic !!!", "", "", false},
	}
	for _, tt := range tests {
		u, p, ok := parseBasicAuth(tt.in)
		if u != tt.user || p != tt.pass || ok != tt.ok {
			t.Errorf("parseBasicAuth(%q) = %q %q %v", tt.in, u, p, ok)
		}
	}
}

func TestHashPassword(t *testing.T) {
	h, err := HashPassword("secret", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(h), []byte("secret")) != nil {
		t.Error("hash does not verify")
	}
	if _, err := HashPassword("secret", 99); err == nil {
		t.Error("expected error for invalid cost")
	}
}

func TestUserContext(t *testing.T) {
	ctx := WithUser(context.Background(), "admin")
	if got := UserFromContext(ctx); got != "admin" {
		t.Errorf("UserFromContext = %q", got)
	}
	if got := UserFromContext(context.Background()); got != "" {
		t.Errorf("empty context user = %q", got)
	}
}
