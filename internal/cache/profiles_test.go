package cache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	mu    sync.Mutex
	names map[string]string
	asked [][]string
	err   error
}

func (s *countingSource) DisplayNames(_ context.Context, ids []string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := append([]string(nil), ids...)
	sort.Strings(cp)
	s.asked = append(s.asked, cp)
	if s.err != nil {
		return nil, s.err
	}
	out := map[string]string{}
	for _, id := range ids {
		if n, ok := s.names[id]; ok {
			out[id] = n
		}
	}
	return out, nil
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestProfilesReadThrough(t *testing.T) {
	mr, rdb := newRedis(t)
	src := &countingSource{names: map[string]string{"a": "Ann", "b": "Ben"}}
	p := NewProfiles(src, rdb, time.Minute, nil)
	ctx := context.Background()

	got, err := p.DisplayNames(ctx, []string{"a", "b", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "Ann", "b": "Ben"}, got)

	got, err = p.DisplayNames(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "Ann", "b": "Ben"}, got)
	require.Len(t, src.asked, 1, "second lookup is served from redis")

	mr.FastForward(2 * time.Minute)
	_, err = p.DisplayNames(ctx, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b", "ghost"}, {"a"}}, src.asked)
}

func TestProfilesRedisDownFallsBack(t *testing.T) {
	mr, rdb := newRedis(t)
	src := &countingSource{names: map[string]string{"a": "Ann"}}
	p := NewProfiles(src, rdb, time.Minute, nil)
	mr.Close()

	got, err := p.DisplayNames(context.Background(), []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, "Ann", got["a"])
}

func TestProfilesWithoutRedis(t *testing.T) {
	src := &countingSource{err: errors.New("db down")}
	p := NewProfiles(src, nil, 0, nil)
	_, err := p.DisplayNames(context.Background(), []string{"a"})
	assert.EqualError(t, err, "db down")
}
