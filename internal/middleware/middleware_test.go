package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/slotswap/internal/config"
	"github.com/iliyamo/slotswap/internal/notify"
	"github.com/iliyamo/slotswap/internal/utils"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func whoami(c echo.Context) error {
	return c.String(http.StatusOK, UserID(c))
}

func TestJWTAuth(t *testing.T) {
	e := echo.New()
	e.GET("/me", whoami, JWTAuth("secret"))
	tok, err := utils.NewAccessToken("secret", "user-7", 5)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		query  string
		status int
		body   string
	}{
		{"bearer", "Bearer " + tok.Token, "", http.StatusOK, "user-7"},
		{"query token", "", "?access_token=" + tok.Token, http.StatusOK, "user-7"},
		{"missing", "", "", http.StatusUnauthorized, ""},
		{"garbage", "Bearer nope", "", http.StatusUnauthorized, ""},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/me"+tc.query, nil)
		if tc.header != "" {
			req.Header.Set(echo.HeaderAuthorization, tc.header)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		assert.Equal(t, tc.status, rec.Code, tc.name)
		if tc.body != "" {
			assert.Equal(t, tc.body, rec.Body.String(), tc.name)
		}
	}
}

func TestTokenBucket(t *testing.T) {
	rdb := newRedis(t)
	cfg := config.RateLimitConfig{
		Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Hour,
		TTL: 2 * time.Hour, KeyStrategy: "ip", Prefix: "rl",
	}
	e := echo.New()
	e.GET("/ping", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) },
		NewTokenBucket(cfg, rdb, discard))

	codes := make([]int, 3)
	for i := range codes {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
		codes[i] = rec.Code
		if i == 2 {
			assert.Equal(t, "3600", rec.Header().Get("Retry-After"))
			assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
		}
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}

func TestTokenBucketDisabledWithoutRedis(t *testing.T) {
	mw := NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil, discard)
	called := false
	h := mw(func(echo.Context) error { called = true; return nil })
	require.NoError(t, h(echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())))
	assert.True(t, called)
}

func TestRedisCacheIsPerUserAndGeneration(t *testing.T) {
	rdb := newRedis(t)
	gen := NewGeneration(rdb, "cache")
	cfg := config.CacheConfig{Enabled: true, TTL: time.Minute, Prefix: "cache"}

	hits := 0
	e := echo.New()
	setUser := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(userIDKey, c.Request().Header.Get("X-User"))
			return next(c)
		}
	}
	e.GET("/list", func(c echo.Context) error {
		hits++
		return c.JSON(http.StatusOK, echo.Map{"user": UserID(c), "n": hits})
	}, setUser, NewRedisCache(cfg, rdb, gen))

	get := func(user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/list?x=1", nil)
		req.Header.Set("X-User", user)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	first := get("alice")
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	again := get("alice")
	assert.Equal(t, "HIT", again.Header().Get("X-Cache"))
	assert.JSONEq(t, first.Body.String(), again.Body.String())
	assert.Equal(t, "MISS", get("bob").Header().Get("X-Cache"))
	assert.Equal(t, 2, hits)

	require.NoError(t, gen.Bump(context.Background()))
	fresh := get("alice")
	assert.Equal(t, "MISS", fresh.Header().Get("X-Cache"))
	var body map[string]any
	require.NoError(t, json.Unmarshal(fresh.Body.Bytes(), &body))
	assert.EqualValues(t, 3, body["n"])
}

func TestGenerationFollowsPeerChanges(t *testing.T) {
	rdb := newRedis(t)
	gen := NewGeneration(rdb, "cache")
	b := notify.NewBroker(4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gen.Invalidate(ctx, b, discard) }()
	require.Eventually(t, func() bool { return b.Len() == 1 }, time.Second, 5*time.Millisecond)

	// local changes are bumped by the publisher, not here
	b.Publish(ctx, notify.Change{Topic: notify.TopicSlots, Kind: notify.KindUpdated, EntityID: "s0"})
	b.Publish(ctx, notify.Change{Topic: notify.TopicSlots, Kind: notify.KindUpdated, EntityID: "s1", Origin: "peer"})
	require.Eventually(t, func() bool {
		n, err := gen.Current(context.Background())
		return err == nil && n == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	n, err := gen.Current(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestPublisherInvalidatesBeforeReturning(t *testing.T) {
	rdb := newRedis(t)
	gen := NewGeneration(rdb, "cache")
	b := notify.NewBroker(4)
	t.Cleanup(b.Close)
	sub, err := b.Subscribe(notify.Filter{})
	require.NoError(t, err)
	pub := gen.Publisher(b, discard)

	hits := 0
	e := echo.New()
	e.GET("/slots/mine", func(c echo.Context) error {
		hits++
		return c.JSON(http.StatusOK, echo.Map{"n": hits})
	}, func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set(userIDKey, "alice")
			return next(c)
		}
	}, NewRedisCache(config.CacheConfig{Enabled: true, TTL: time.Minute, Prefix: "cache"}, rdb, gen))
	get := func() string {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/slots/mine", nil))
		return rec.Header().Get("X-Cache")
	}

	assert.Equal(t, "MISS", get())
	assert.Equal(t, "HIT", get())

	pub.Publish(context.Background(), notify.Change{Topic: notify.TopicRequests, Kind: notify.KindUpdated, EntityID: "r1"})
	assert.Equal(t, "MISS", get(), "a read right after the write must not see the old page")
	assert.Equal(t, 2, hits)

	select {
	case c := <-sub.C():
		assert.Equal(t, "r1", c.EntityID)
	default:
		t.Fatal("change was not passed on")
	}
}

func TestCachePayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(201, hdr, []byte(`{"a":1}`))
	require.NoError(t, err)
	status, gotHdr, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, 201, status)
	assert.Equal(t, hdr, gotHdr)
	assert.Equal(t, `{"a":1}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 0})
	assert.False(t, ok)
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	e := echo.New()
	e.GET("/boom", func(c echo.Context) error { return echo.NewHTTPError(http.StatusTeapot) }, RequestLogger(log))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "http.request", line["msg"])
	assert.EqualValues(t, http.StatusTeapot, line["status"])
	assert.Equal(t, "/boom", line["route"])
}
