// Package swap is the slot-swap negotiation engine. It is the only way to
// mutate event slots and swap requests: every operation takes the caller's
// identity, checks authorization and the current state inside one storage
// transaction, applies the transition, and publishes a change signal after
// commit.
package swap

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/slotswap/internal/database"
	"github.com/iliyamo/slotswap/internal/model"
	"github.com/iliyamo/slotswap/internal/notify"
	"github.com/iliyamo/slotswap/internal/swap/internal/store"
)

// ProfileResolver resolves user ids to display names. Missing ids are simply
// absent from the result.
type ProfileResolver interface {
	DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error)
}

// Publisher receives a change after the transaction that made it commits.
type Publisher interface {
	Publish(ctx context.Context, c notify.Change)
}

type storage interface {
	RunInTx(ctx context.Context, fn func(tx store.Tx) error) error

	Slot(ctx context.Context, id string) (model.EventSlot, error)
	Request(ctx context.Context, id string) (model.SwapRequest, error)
	SlotsByOwner(ctx context.Context, ownerID string, status model.TradeStatus) ([]model.EventSlot, error)
	TradableSlots(ctx context.Context, excludingOwnerID string) ([]model.EventSlot, error)
	IncomingRequests(ctx context.Context, userID string) ([]model.SwapRequestView, error)
	OutgoingRequests(ctx context.Context, userID string) ([]model.SwapRequestView, error)
}

// Engine validates and executes slot and swap request transitions.
type Engine struct {
	store    storage
	profiles ProfileResolver
	changes  Publisher
	log      *slog.Logger
	now      func() time.Time
	newID    func() string
	readDB   *sqlx.DB
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides id generation.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

// WithReadDB serves listings and single-row reads from a separate pool so
// they never wait behind an open write transaction. nil is ignored.
func WithReadDB(db *sqlx.DB) Option {
	return func(e *Engine) { e.readDB = db }
}

// New builds an engine over db. profiles and changes may be nil: names are
// then left empty and no change signals are sent.
func New(db *sqlx.DB, dialect database.Dialect, profiles ProfileResolver, changes Publisher, opts ...Option) *Engine {
	st := store.New(db, dialect)
	e := newEngine(st, profiles, changes, opts...)
	st.WithReader(e.readDB)
	return e
}

func newEngine(st storage, profiles ProfileResolver, changes Publisher, opts ...Option) *Engine {
	e := &Engine{
		store:    st,
		profiles: profiles,
		changes:  changes,
		log:      slog.Default(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) clock() time.Time {
	return e.now().UTC().Truncate(time.Millisecond)
}

func (e *Engine) publish(ctx context.Context, changes ...notify.Change) {
	if e.changes == nil {
		return
	}
	for _, c := range changes {
		e.changes.Publish(ctx, c)
	}
}

// lockSlots locks both slots in id order so crossing proposals on the same
// pair cannot deadlock.
func lockSlots(ctx context.Context, tx store.Tx, a, b string) (model.EventSlot, model.EventSlot, error) {
	ids := []string{a, b}
	sort.Strings(ids)
	locked := make(map[string]model.EventSlot, 2)
	for _, id := range ids {
		s, err := tx.SlotForUpdate(ctx, id)
		if err != nil {
			return model.EventSlot{}, model.EventSlot{}, notFound(err, "slot", id)
		}
		locked[id] = s
	}
	return locked[a], locked[b], nil
}

func notFound(err error, entity, id string) error {
	if errors.Is(err, model.ErrNotFound) {
		return model.NotFound(entity, id)
	}
	return err
}

// staleAsConflict reports a compare-and-set miss as a conflict.
func staleAsConflict(err error, reason string) error {
	if errors.Is(err, store.ErrStale) {
		return model.Conflict(reason)
	}
	return err
}
