package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 5

// stringGetter is satisfied by both the client and a WATCH transaction.
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a Redis-backed session store. Keys never expire;
// retention is handled outside of this store.
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "session:",
	}
}

func (r *RedisStore) key(sessionID string) string {
	return r.prefix + sessionID
}

func (r *RedisStore) Insert(ctx context.Context, s *Session) error {
	if err := checkIDs(s); err != nil {
		return err
	}

	data, err := json.Marshal(s.Record())
	if err != nil {
		return fmt.Errorf("session: failed to marshal: %w", err)
	}

	ok, err := r.client.SetNX(ctx, r.key(s.SessionID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrDuplicate
	}
	return nil
}

func (r *RedisStore) FindOne(ctx context.Context, f Filter) (*Session, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}

	rec, err := r.get(ctx, r.client, f.SessionID)
	if err != nil {
		return nil, err
	}
	if !f.Matches(*rec) {
		return nil, ErrNotFound
	}
	return rec.Session()
}

// UpdateOne runs the guard check and the write inside WATCH/MULTI, retrying
// when another client touched the key in between.
func (r *RedisStore) UpdateOne(ctx context.Context, f Filter, p Patch) (bool, error) {
	if err := f.validate(); err != nil {
		return false, err
	}
	if p.empty() {
		return false, errors.New("empty patch")
	}

	key := r.key(f.SessionID)

	for i := 0; i < maxTxRetries; i++ {
		applied := false
		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			rec, err := r.get(ctx, tx, f.SessionID)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			if !f.Matches(*rec) {
				return nil
			}

			p.Apply(rec)
			data, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("session: failed to marshal: %w", err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, 0)
				return nil
			})
			if err == nil {
				applied = true
			}
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return false, err
		}
		return applied, nil
	}

	return false, fmt.Errorf("session: update of %s kept conflicting", f.SessionID)
}

func (r *RedisStore) get(ctx context.Context, c stringGetter, sessionID string) (*Record, error) {
	val, err := c.Get(ctx, r.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, fmt.Errorf("session: failed to unmarshal: %w", err)
	}
	return &rec, nil
}
