package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/slotswap/internal/config"
	"github.com/iliyamo/slotswap/internal/notify"
)

// Generation is a Redis counter that is part of every cache key. Bumping it
// makes all earlier entries unreachable; they expire on their own TTL.
type Generation struct {
	rdb *redis.Client
	key string
}

func NewGeneration(rdb *redis.Client, prefix string) *Generation {
	return &Generation{rdb: rdb, key: prefix + ":gen"}
}

// Current returns the counter, 0 if it was never bumped.
func (g *Generation) Current(ctx context.Context) (int64, error) {
	n, err := g.rdb.Get(ctx, g.key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func (g *Generation) Bump(ctx context.Context) error {
	return g.rdb.Incr(ctx, g.key).Err()
}

// ChangePublisher is what the engine hands its changes to.
type ChangePublisher interface {
	Publish(ctx context.Context, c notify.Change)
}

// InvalidatingPublisher bumps the generation before passing a change on, so
// a write is never followed by a cached read of the state before it.
type InvalidatingPublisher struct {
	gen  *Generation
	next ChangePublisher
	log  *slog.Logger
}

// Publisher wraps next so every local change invalidates the cache in the
// caller's own request path.
func (g *Generation) Publisher(next ChangePublisher, log *slog.Logger) *InvalidatingPublisher {
	return &InvalidatingPublisher{gen: g, next: next, log: log}
}

func (p *InvalidatingPublisher) Publish(ctx context.Context, c notify.Change) {
	if err := p.gen.Bump(context.WithoutCancel(ctx)); err != nil {
		p.log.WarnContext(ctx, "cache invalidation failed", slog.String("error", err.Error()))
	}
	p.next.Publish(ctx, c)
}

// Invalidate bumps g for every change relayed from a peer instance until ctx
// ends. Local changes are already bumped by Publisher.
func (g *Generation) Invalidate(ctx context.Context, broker *notify.Broker, log *slog.Logger) error {
	sub, err := broker.Subscribe(notify.Filter{})
	if err != nil {
		return err
	}
	defer sub.Release(ctx, log, "cache-invalidation")
	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-sub.C():
			if !ok {
				return nil
			}
			if c.Origin == "" {
				continue
			}
			if err := g.Bump(ctx); err != nil {
				log.WarnContext(ctx, "cache invalidation failed", slog.String("error", err.Error()))
			}
		}
	}
}

// captureWriter captures response body/status while forwarding to the client.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	size   int64
	limit  int64
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	if cw.limit <= 0 {
		cw.buf.Write(b)
	} else if remain := cw.limit - cw.size; remain > 0 {
		cw.buf.Write(b[:min(int64(len(b)), remain)])
	}
	cw.size += int64(len(b))
	return cw.ResponseWriter.Write(b)
}

// cacheKeyFrom builds a stable key. Listings differ per caller, so the
// caller is always part of it.
func cacheKeyFrom(prefix string, c echo.Context, gen int64) string {
	parts := []string{"user", identity(c), "route", c.Path(), "q", c.Request().URL.RawQuery}
	sum := sha1.Sum([]byte(strings.Join(parts, ":")))
	return fmt.Sprintf("%s:%d:%x", prefix, gen, sum[:])
}

// encodePayload packs: [4 bytes status][4 bytes headerLen][headerJSON][body]
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
	hdrJSON, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(hdrJSON)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
	copy(out[8:], hdrJSON)
	copy(out[8+len(hdrJSON):], body)
	return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status = int(binary.BigEndian.Uint32(bs[0:4]))
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if hlen < 0 || 8+hlen > len(bs) {
		return 0, nil, nil, false
	}
	header = make(http.Header)
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &header); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, header, bs[8+hlen:], true
}

// NewRedisCache caches successful responses per caller and per generation.
// A nil client, a nil generation or a disabled config turns it off.
func NewRedisCache(cfg config.CacheConfig, rdb *redis.Client, gen *Generation) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil || gen == nil {
		return passthrough
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	maxBody := int64(cfg.MaxBodyBytes)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Method != http.MethodGet {
				return next(c)
			}
			ctx := c.Request().Context()
			g, err := gen.Current(ctx)
			if err != nil {
				return next(c)
			}
			key := cacheKeyFrom(cfg.Prefix, c, g)

			if bs, err := rdb.Get(ctx, key).Bytes(); err == nil {
				if status, hdr, body, ok := decodePayload(bs); ok {
					for k, vals := range hdr {
						if strings.EqualFold(k, echo.HeaderContentLength) {
							continue
						}
						for _, v := range vals {
							c.Response().Header().Add(k, v)
						}
					}
					c.Response().Header().Set("X-Cache", "HIT")
					c.Response().WriteHeader(status)
					_, _ = c.Response().Write(body)
					return nil
				}
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: maxBody}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if cw.status != http.StatusOK || (maxBody > 0 && cw.size > maxBody) {
				return nil
			}
			hdr := c.Response().Header().Clone()
			hdr.Del("X-Cache")
			if payload, err := encodePayload(cw.status, hdr, cw.buf.Bytes()); err == nil {
				_ = rdb.SetEx(context.WithoutCancel(ctx), key, payload, ttl).Err()
			}
			return nil
		}
	}
}
