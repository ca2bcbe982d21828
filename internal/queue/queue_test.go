package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/slotswap/internal/notify"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func sample() notify.Change {
	return notify.Change{
		Topic:    notify.TopicRequests,
		Kind:     notify.KindUpdated,
		EntityID: "r1",
		UserIDs:  []string{"alice", "bob"},
		At:       time.Date(2026, 4, 6, 8, 0, 0, 123000000, time.UTC),
	}
}

func TestEncodeDecode(t *testing.T) {
	body, err := encode("node-a", sample())
	require.NoError(t, err)

	got, err := decode(body)
	require.NoError(t, err)
	want := sample()
	want.Origin = "node-a"
	assert.Equal(t, want, got)
}

func TestDecodeRejects(t *testing.T) {
	for name, body := range map[string]string{
		"not json":    `{`,
		"old version": `{"v":0,"origin":"a","topic":"slots","kind":"created","entity_id":"s","at":"2026-04-06T08:00:00Z"}`,
		"bad topic":   `{"v":1,"origin":"a","topic":"users","kind":"created","entity_id":"s","at":"2026-04-06T08:00:00Z"}`,
		"no topic":    `{"v":1,"origin":"a","topic":"","kind":"created","entity_id":"s","at":"2026-04-06T08:00:00Z"}`,
		"bad kind":    `{"v":1,"origin":"a","topic":"slots","kind":"moved","entity_id":"s","at":"2026-04-06T08:00:00Z"}`,
		"no origin":   `{"v":1,"topic":"slots","kind":"created","entity_id":"s","at":"2026-04-06T08:00:00Z"}`,
		"bad time":    `{"v":1,"origin":"a","topic":"slots","kind":"created","entity_id":"s","at":"yesterday"}`,
	} {
		_, err := decode([]byte(body))
		assert.Error(t, err, name)
	}
}

func TestConsumerHandleSkipsOwnOrigin(t *testing.T) {
	b := notify.NewBroker(4)
	defer b.Close()
	sub, err := b.Subscribe(notify.Filter{UserID: "bob"})
	require.NoError(t, err)

	c := NewConsumer("", "x", "node-a", b, discard)
	own, _ := encode("node-a", sample())
	peer, _ := encode("node-b", sample())

	require.NoError(t, c.handle(context.Background(), own))
	require.NoError(t, c.handle(context.Background(), peer))
	require.Error(t, c.handle(context.Background(), []byte("junk")))

	select {
	case got := <-sub.C():
		assert.Equal(t, "node-b", got.Origin)
	case <-time.After(time.Second):
		t.Fatal("peer change not republished")
	}
	select {
	case got := <-sub.C():
		t.Fatalf("unexpected change %+v", got)
	default:
	}
}

type fakeSender struct {
	mu   sync.Mutex
	got  []notify.Change
	fail bool
	sent chan struct{}
}

func (f *fakeSender) PublishChange(_ context.Context, c notify.Change) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	defer func() { f.sent <- struct{}{} }()
	if f.fail {
		return errors.New("broker unreachable")
	}
	f.got = append(f.got, c)
	return nil
}

func TestForwardRelaysLocalChangesOnly(t *testing.T) {
	b := notify.NewBroker(8)
	out := &fakeSender{sent: make(chan struct{}, 8)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Forward(ctx, b, out, discard) }()

	require.Eventually(t, func() bool { return b.Len() == 1 }, time.Second, 5*time.Millisecond)

	relayed := sample()
	relayed.Origin = "node-b"
	b.Publish(ctx, relayed)
	b.Publish(ctx, sample())

	select {
	case <-out.sent:
	case <-time.After(time.Second):
		t.Fatal("local change not forwarded")
	}
	cancel()
	require.NoError(t, <-done)

	out.mu.Lock()
	defer out.mu.Unlock()
	require.Len(t, out.got, 1)
	assert.Equal(t, "", out.got[0].Origin)
	assert.Equal(t, 0, b.Len())
}

func TestForwardSurvivesSendFailure(t *testing.T) {
	b := notify.NewBroker(8)
	out := &fakeSender{fail: true, sent: make(chan struct{}, 8)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- Forward(ctx, b, out, discard) }()
	require.Eventually(t, func() bool { return b.Len() == 1 }, time.Second, 5*time.Millisecond)

	b.Publish(ctx, sample())
	<-out.sent
	b.Close()
	require.NoError(t, <-done)
}
