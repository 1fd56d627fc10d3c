package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sessions in Redis under <prefix>:sess:<id> as JSON.
// Expiry is delegated to Redis key TTLs and slides on Lookup via GETEX.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisStore(rdb redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl, now: time.Now}
}

func (r *RedisStore) key(id string) string {
	return r.prefix + ":sess:" + id
}

func (r *RedisStore) Create(ctx context.Context, username string) (string, error) {
	id, err := NewID()
	if err != nil {
		return "", err
	}
	now := r.now()
	b, err := json.Marshal(Session{
		ID:            id,
		Username:      username,
		Authenticated: true,
		CreatedAt:     now,
		LastSeen:      now,
	})
	if err != nil {
		return "", err
	}
	// ttl 0 means no expiry for SET.
	if err := r.rdb.Set(ctx, r.key(id), b, r.ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return id, nil
}

func (r *RedisStore) Lookup(ctx context.Context, id string) (Session, bool, error) {
	if !ValidID(id) {
		return Session{}, false, nil
	}
	var (
		raw string
		err error
	)
	if r.ttl > 0 {
		raw, err = r.rdb.GetEx(ctx, r.key(id), r.ttl).Result()
	} else {
		raw, err = r.rdb.Get(ctx, r.key(id)).Result()
	}
	if errors.Is(err, redis.Nil) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		// Treat a corrupt blob as absent rather than failing every request.
		return Session{}, false, nil
	}
	s.LastSeen = r.now()
	return s, true, nil
}

func (r *RedisStore) Invalidate(ctx context.Context, id string) error {
	if err := r.rdb.Del(ctx, r.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Ping checks connectivity; used at startup.
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
