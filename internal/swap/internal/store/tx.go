package store

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/slotswap/internal/model"
)

type txStore struct {
	tx   *sqlx.Tx
	lock string
}

func (t *txStore) SlotForUpdate(ctx context.Context, id string) (model.EventSlot, error) {
	var row slotRow
	err := t.tx.GetContext(ctx, &row,
		`SELECT `+slotColumns+` FROM event_slots WHERE id = ?`+t.lock, id)
	if err != nil {
		return model.EventSlot{}, mapError(err)
	}
	return row.toModel(), nil
}

func (t *txStore) RequestForUpdate(ctx context.Context, id string) (model.SwapRequest, error) {
	var row requestRow
	err := t.tx.GetContext(ctx, &row,
		`SELECT `+requestColumns+` FROM swap_requests WHERE id = ?`+t.lock, id)
	if err != nil {
		return model.SwapRequest{}, mapError(err)
	}
	return row.toModel(), nil
}

// HasPendingRequest reports whether slotID is referenced by a PENDING
// request on either side.
func (t *txStore) HasPendingRequest(ctx context.Context, slotID string) (bool, error) {
	var n int
	err := t.tx.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM swap_requests
		 WHERE status = ? AND (requester_slot_id = ? OR receiver_slot_id = ?)`,
		model.RequestStatusPending, slotID, slotID)
	if err != nil {
		return false, mapError(err)
	}
	return n > 0, nil
}

// RequestsForSlot returns every request referencing slotID.
func (t *txStore) RequestsForSlot(ctx context.Context, slotID string) ([]model.SwapRequest, error) {
	var rows []requestRow
	err := t.tx.SelectContext(ctx, &rows,
		`SELECT `+requestColumns+` FROM swap_requests
		 WHERE requester_slot_id = ? OR receiver_slot_id = ?`,
		slotID, slotID)
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]model.SwapRequest, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

func (t *txStore) InsertSlot(ctx context.Context, s model.EventSlot) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO event_slots (`+slotColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.OwnerID, s.Title, toMillis(s.StartTime), toMillis(s.EndTime),
		s.TradeStatus, toMillis(s.CreatedAt), toMillis(s.UpdatedAt))
	return mapError(err)
}

func (t *txStore) UpdateSlotStatus(ctx context.Context, id string, from, to model.TradeStatus, at time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE event_slots SET trade_status = ?, updated_at = ?
		 WHERE id = ? AND trade_status = ?`,
		to, toMillis(at), id, from)
	if err != nil {
		return mapError(err)
	}
	return expectOne(res)
}

// TransferSlot hands the slot to toOwner and sets its status in one write,
// guarded by the owner and status the caller locked.
func (t *txStore) TransferSlot(ctx context.Context, id, fromOwner, toOwner string, from, to model.TradeStatus, at time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE event_slots SET owner_id = ?, trade_status = ?, updated_at = ?
		 WHERE id = ? AND owner_id = ? AND trade_status = ?`,
		toOwner, to, toMillis(at), id, fromOwner, from)
	if err != nil {
		return mapError(err)
	}
	return expectOne(res)
}

// DeleteSlot removes a slot that is not held by a pending request. Terminal
// requests referencing it are removed by the foreign key cascade.
func (t *txStore) DeleteSlot(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx,
		`DELETE FROM event_slots WHERE id = ? AND trade_status <> ?`,
		id, model.TradeStatusPending)
	if err != nil {
		return mapError(err)
	}
	return expectOne(res)
}

func (t *txStore) InsertRequest(ctx context.Context, r model.SwapRequest) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO swap_requests (`+requestColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RequesterID, r.ReceiverID, r.RequesterSlotID, r.ReceiverSlotID,
		r.Status, toMillis(r.CreatedAt), toMillis(r.UpdatedAt))
	return mapError(err)
}

func (t *txStore) UpdateRequestStatus(ctx context.Context, id string, from, to model.RequestStatus, at time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE swap_requests SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		to, toMillis(at), id, from)
	if err != nil {
		return mapError(err)
	}
	return expectOne(res)
}

// DeleteRequest removes a terminal request.
func (t *txStore) DeleteRequest(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx,
		`DELETE FROM swap_requests WHERE id = ? AND status <> ?`,
		id, model.RequestStatusPending)
	if err != nil {
		return mapError(err)
	}
	return expectOne(res)
}
