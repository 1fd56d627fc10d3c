// Package session holds authenticated sessions keyed by opaque tokens.
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// ErrUnavailable wraps backend failures so callers can tell them apart from
// a missing session.
var ErrUnavailable = errors.New("session store unavailable")

const idBytes = 32

// Session is the server-side state behind a session cookie.
type Session struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Authenticated bool      `json:"authenticated"`
	CreatedAt     time.Time `json:"createdAt"`
	LastSeen      time.Time `json:"lastSeen"`
}

// Store abstracts session CRUD so sessions can live in memory (default) or
// in Redis.
type Store interface {
	// Create registers an authenticated session for username and returns its id.
	Create(ctx context.Context, username string) (string, error)
	// Lookup returns the session for id. ok is false for unknown or expired ids.
	Lookup(ctx context.Context, id string) (s Session, ok bool, err error)
	// Invalidate removes id. Unknown ids are not an error.
	Invalidate(ctx context.Context, id string) error
}

// NewID returns a 256-bit random token, hex encoded.
func NewID() (string, error) {
	var b [idBytes]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

// ValidID reports whether id has the shape NewID produces. Lookups skip the
// backend for anything else.
func ValidID(id string) bool {
	if len(id) != idBytes*2 {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}
