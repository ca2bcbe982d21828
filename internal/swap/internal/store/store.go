// Package store persists event slots and swap requests. It is internal to
// the swap package: every mutation goes through the negotiation engine,
// which owns authorization and transition checks.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/slotswap/internal/database"
	"github.com/iliyamo/slotswap/internal/model"
)

// ErrStale is returned by compare-and-set writes that matched no row: the
// state the caller read is no longer current.
var ErrStale = errors.New("stale precondition")

// Store is the SQL-backed slot and request storage.
type Store struct {
	db   *sqlx.DB
	read *sqlx.DB
	lock string
}

// New wraps db. The dialect decides how rows are locked inside transactions.
func New(db *sqlx.DB, d database.Dialect) *Store {
	return &Store{db: db, read: db, lock: d.LockSuffix()}
}

// WithReader sends the non-transactional reads to r. A nil r keeps them on
// the write pool.
func (s *Store) WithReader(r *sqlx.DB) *Store {
	if r != nil {
		s.read = r
	}
	return s
}

// Tx is the set of operations available inside RunInTx. Reads lock the rows
// they return; writes are compare-and-set against the status the caller
// expects and fail with ErrStale otherwise.
type Tx interface {
	SlotForUpdate(ctx context.Context, id string) (model.EventSlot, error)
	RequestForUpdate(ctx context.Context, id string) (model.SwapRequest, error)
	HasPendingRequest(ctx context.Context, slotID string) (bool, error)
	RequestsForSlot(ctx context.Context, slotID string) ([]model.SwapRequest, error)

	InsertSlot(ctx context.Context, s model.EventSlot) error
	UpdateSlotStatus(ctx context.Context, id string, from, to model.TradeStatus, at time.Time) error
	TransferSlot(ctx context.Context, id, fromOwner, toOwner string, from, to model.TradeStatus, at time.Time) error
	DeleteSlot(ctx context.Context, id string) error

	InsertRequest(ctx context.Context, r model.SwapRequest) error
	UpdateRequestStatus(ctx context.Context, id string, from, to model.RequestStatus, at time.Time) error
	DeleteRequest(ctx context.Context, id string) error
}

// RunInTx executes fn within a database transaction.
// On success: commits.
// On error from fn: rolls back and returns the error.
// On panic from fn: rolls back and re-panics.
// fn must only use the Tx it is given; on SQLite the write pool holds a
// single connection and any other write would wait forever.
func (s *Store) RunInTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", mapError(err))
	}

	defer func() {
		if r := recover(); r != nil {
			_ = sqlTx.Rollback()
			panic(r)
		}
	}()

	if err := fn(&txStore{tx: sqlTx, lock: s.lock}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", mapError(err))
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

const slotColumns = `id, owner_id, title, start_time, end_time, trade_status, created_at, updated_at`

type slotRow struct {
	ID          string            `db:"id"`
	OwnerID     string            `db:"owner_id"`
	Title       string            `db:"title"`
	StartTime   int64             `db:"start_time"`
	EndTime     int64             `db:"end_time"`
	TradeStatus model.TradeStatus `db:"trade_status"`
	CreatedAt   int64             `db:"created_at"`
	UpdatedAt   int64             `db:"updated_at"`
}

func (r slotRow) toModel() model.EventSlot {
	return model.EventSlot{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Title:       r.Title,
		StartTime:   fromMillis(r.StartTime),
		EndTime:     fromMillis(r.EndTime),
		TradeStatus: r.TradeStatus,
		CreatedAt:   fromMillis(r.CreatedAt),
		UpdatedAt:   fromMillis(r.UpdatedAt),
	}
}

const requestColumns = `id, requester_id, receiver_id, requester_slot_id, receiver_slot_id, status, created_at, updated_at`

type requestRow struct {
	ID              string              `db:"id"`
	RequesterID     string              `db:"requester_id"`
	ReceiverID      string              `db:"receiver_id"`
	RequesterSlotID string              `db:"requester_slot_id"`
	ReceiverSlotID  string              `db:"receiver_slot_id"`
	Status          model.RequestStatus `db:"status"`
	CreatedAt       int64               `db:"created_at"`
	UpdatedAt       int64               `db:"updated_at"`
}

func (r requestRow) toModel() model.SwapRequest {
	return model.SwapRequest{
		ID:              r.ID,
		RequesterID:     r.RequesterID,
		ReceiverID:      r.ReceiverID,
		RequesterSlotID: r.RequesterSlotID,
		ReceiverSlotID:  r.ReceiverSlotID,
		Status:          r.Status,
		CreatedAt:       fromMillis(r.CreatedAt),
		UpdatedAt:       fromMillis(r.UpdatedAt),
	}
}

func slotsToModel(rows []slotRow) []model.EventSlot {
	out := make([]model.EventSlot, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out
}

// expectOne turns a compare-and-set result into ErrStale when nothing matched.
func expectOne(res interface{ RowsAffected() (int64, error) }) error {
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(err)
	}
	if n != 1 {
		return ErrStale
	}
	return nil
}
