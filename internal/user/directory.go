package user

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const directoryKey = "directory:users"

// Directory serves the user list for presence rosters. The roster is
// rebroadcast on every connect/disconnect, so the list is cached in Redis
// with a short TTL; a nil client falls straight through to Postgres. Cache
// failures are never fatal, the store answer wins.
type Directory struct {
	repo *Repository
	rdb  *redis.Client
	ttl  time.Duration
	log  zerolog.Logger
}

func NewDirectory(repo *Repository, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *Directory {
	return &Directory{
		repo: repo,
		rdb:  rdb,
		ttl:  ttl,
		log:  log.With().Str("component", "directory").Logger(),
	}
}

// List returns all known users, preferring the cache.
func (d *Directory) List(ctx context.Context) ([]User, error) {
	if d.rdb != nil {
		raw, err := d.rdb.Get(ctx, directoryKey).Bytes()
		if err == nil {
			var users []User
			if err := json.Unmarshal(raw, &users); err == nil {
				return users, nil
			}
			// Unreadable cache entry: drop it and refill from the store.
			d.rdb.Del(ctx, directoryKey)
		} else if err != redis.Nil {
			d.log.Warn().Err(err).Msg("directory cache read failed")
		}
	}

	users, err := d.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	if d.rdb != nil {
		if raw, err := json.Marshal(users); err == nil {
			if err := d.rdb.Set(ctx, directoryKey, raw, d.ttl).Err(); err != nil {
				d.log.Warn().Err(err).Msg("directory cache write failed")
			}
		}
	}
	return users, nil
}

// Invalidate drops the cached list; called after a new registration.
func (d *Directory) Invalidate(ctx context.Context) {
	if d.rdb == nil {
		return
	}
	if err := d.rdb.Del(ctx, directoryKey).Err(); err != nil {
		d.log.Warn().Err(err).Msg("directory cache invalidation failed")
	}
}
