// Package cache keeps display names in Redis in front of the user table.
package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// NameSource is the authoritative lookup the cache sits in front of.
type NameSource interface {
	DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error)
}

// Profiles is a read-through display-name cache. Names are only used for
// display, so a stale entry lives at most one TTL. Redis failures fall back
// to the source.
type Profiles struct {
	src    NameSource
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	log    *slog.Logger
}

// NewProfiles wraps src. With a nil client every call goes to src.
func NewProfiles(src NameSource, rdb *redis.Client, ttl time.Duration, log *slog.Logger) *Profiles {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Profiles{src: src, rdb: rdb, ttl: ttl, prefix: "profile:name:", log: log}
}

func (p *Profiles) key(id string) string { return p.prefix + id }

// DisplayNames returns cached names and loads the rest from the source.
func (p *Profiles) DisplayNames(ctx context.Context, ids []string) (map[string]string, error) {
	if p.rdb == nil || len(ids) == 0 {
		return p.src.DisplayNames(ctx, ids)
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = p.key(id)
	}
	vals, err := p.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		p.log.WarnContext(ctx, "profile cache read failed", slog.String("error", err.Error()))
		return p.src.DisplayNames(ctx, ids)
	}

	out := make(map[string]string, len(ids))
	var misses []string
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[ids[i]] = s
			continue
		}
		misses = append(misses, ids[i])
	}
	if len(misses) == 0 {
		return out, nil
	}

	loaded, err := p.src.DisplayNames(ctx, misses)
	if err != nil {
		return nil, err
	}
	pipe := p.rdb.Pipeline()
	for id, name := range loaded {
		out[id] = name
		pipe.SetEx(ctx, p.key(id), name, p.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		p.log.WarnContext(ctx, "profile cache write failed", slog.String("error", err.Error()))
	}
	return out, nil
}
