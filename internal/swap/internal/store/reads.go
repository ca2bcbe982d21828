package store

import (
	"context"

	"github.com/iliyamo/slotswap/internal/model"
)

// Slot returns one slot by id.
func (s *Store) Slot(ctx context.Context, id string) (model.EventSlot, error) {
	var row slotRow
	if err := s.read.GetContext(ctx, &row,
		`SELECT `+slotColumns+` FROM event_slots WHERE id = ?`, id); err != nil {
		return model.EventSlot{}, mapError(err)
	}
	return row.toModel(), nil
}

// Request returns one request by id.
func (s *Store) Request(ctx context.Context, id string) (model.SwapRequest, error) {
	var row requestRow
	if err := s.read.GetContext(ctx, &row,
		`SELECT `+requestColumns+` FROM swap_requests WHERE id = ?`, id); err != nil {
		return model.SwapRequest{}, mapError(err)
	}
	return row.toModel(), nil
}

// SlotsByOwner lists ownerID's slots by start time. An unspecified status
// returns every slot.
func (s *Store) SlotsByOwner(ctx context.Context, ownerID string, status model.TradeStatus) ([]model.EventSlot, error) {
	var rows []slotRow
	var err error
	if status == model.TradeStatusUnspecified {
		err = s.read.SelectContext(ctx, &rows,
			`SELECT `+slotColumns+` FROM event_slots
			 WHERE owner_id = ?
			 ORDER BY start_time ASC, id ASC`, ownerID)
	} else {
		err = s.read.SelectContext(ctx, &rows,
			`SELECT `+slotColumns+` FROM event_slots
			 WHERE owner_id = ? AND trade_status = ?
			 ORDER BY start_time ASC, id ASC`, ownerID, status)
	}
	if err != nil {
		return nil, mapError(err)
	}
	return slotsToModel(rows), nil
}

// TradableSlots lists every TRADABLE slot not owned by excludingOwnerID.
func (s *Store) TradableSlots(ctx context.Context, excludingOwnerID string) ([]model.EventSlot, error) {
	var rows []slotRow
	if err := s.read.SelectContext(ctx, &rows,
		`SELECT `+slotColumns+` FROM event_slots
		 WHERE trade_status = ? AND owner_id <> ?
		 ORDER BY start_time ASC, id ASC`,
		model.TradeStatusTradable, excludingOwnerID); err != nil {
		return nil, mapError(err)
	}
	return slotsToModel(rows), nil
}

type requestViewRow struct {
	requestRow
	RSOwnerID     string            `db:"rs_owner_id"`
	RSTitle       string            `db:"rs_title"`
	RSStartTime   int64             `db:"rs_start_time"`
	RSEndTime     int64             `db:"rs_end_time"`
	RSTradeStatus model.TradeStatus `db:"rs_trade_status"`
	VSOwnerID     string            `db:"vs_owner_id"`
	VSTitle       string            `db:"vs_title"`
	VSStartTime   int64             `db:"vs_start_time"`
	VSEndTime     int64             `db:"vs_end_time"`
	VSTradeStatus model.TradeStatus `db:"vs_trade_status"`
}

func (r requestViewRow) toModel() model.SwapRequestView {
	req := r.requestRow.toModel()
	return model.SwapRequestView{
		SwapRequest: req,
		RequesterSlot: model.SlotSummary{
			ID:          req.RequesterSlotID,
			OwnerID:     r.RSOwnerID,
			Title:       r.RSTitle,
			StartTime:   fromMillis(r.RSStartTime),
			EndTime:     fromMillis(r.RSEndTime),
			TradeStatus: r.RSTradeStatus,
		},
		ReceiverSlot: model.SlotSummary{
			ID:          req.ReceiverSlotID,
			OwnerID:     r.VSOwnerID,
			Title:       r.VSTitle,
			StartTime:   fromMillis(r.VSStartTime),
			EndTime:     fromMillis(r.VSEndTime),
			TradeStatus: r.VSTradeStatus,
		},
	}
}

const requestViewQuery = `
SELECT r.id, r.requester_id, r.receiver_id, r.requester_slot_id, r.receiver_slot_id,
       r.status, r.created_at, r.updated_at,
       rs.owner_id AS rs_owner_id, rs.title AS rs_title, rs.start_time AS rs_start_time,
       rs.end_time AS rs_end_time, rs.trade_status AS rs_trade_status,
       vs.owner_id AS vs_owner_id, vs.title AS vs_title, vs.start_time AS vs_start_time,
       vs.end_time AS vs_end_time, vs.trade_status AS vs_trade_status
FROM swap_requests r
JOIN event_slots rs ON rs.id = r.requester_slot_id
JOIN event_slots vs ON vs.id = r.receiver_slot_id
`

func (s *Store) requestViews(ctx context.Context, where string, userID string) ([]model.SwapRequestView, error) {
	var rows []requestViewRow
	if err := s.read.SelectContext(ctx, &rows,
		requestViewQuery+where+` ORDER BY r.created_at DESC, r.id DESC`, userID); err != nil {
		return nil, mapError(err)
	}
	out := make([]model.SwapRequestView, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// IncomingRequests lists requests where userID is the receiver, newest first.
func (s *Store) IncomingRequests(ctx context.Context, userID string) ([]model.SwapRequestView, error) {
	return s.requestViews(ctx, `WHERE r.receiver_id = ?`, userID)
}

// OutgoingRequests lists requests where userID is the requester, newest first.
func (s *Store) OutgoingRequests(ctx context.Context, userID string) ([]model.SwapRequestView, error) {
	return s.requestViews(ctx, `WHERE r.requester_id = ?`, userID)
}
