package swap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iliyamo/slotswap/internal/model"
	"github.com/iliyamo/slotswap/internal/notify"
	"github.com/iliyamo/slotswap/internal/swap/internal/store"
)

// CreateSlot stores a new BUSY slot for in.OwnerID.
func (e *Engine) CreateSlot(ctx context.Context, in CreateSlotInput) (model.EventSlot, error) {
	in = in.normalize()
	if err := in.Validate(); err != nil {
		return model.EventSlot{}, err
	}

	now := e.clock()
	slot := model.EventSlot{
		ID:          e.newID(),
		OwnerID:     in.OwnerID,
		Title:       in.Title,
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
		TradeStatus: model.TradeStatusBusy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := e.store.RunInTx(ctx, func(tx store.Tx) error {
		return tx.InsertSlot(ctx, slot)
	})
	if err != nil {
		// the only foreign key on a new slot is its owner
		return model.EventSlot{}, notFound(err, "user", in.OwnerID)
	}

	e.log.InfoContext(ctx, "slot created",
		slog.String("slot_id", slot.ID),
		slog.String("user_id", slot.OwnerID))
	e.publish(ctx, slotChange(notify.KindCreated, slot.ID, now, slot.OwnerID))
	return slot, nil
}

// SetTradeStatus toggles a slot between BUSY and TRADABLE. Only the owner
// may do so, and never while the slot is held by a pending request.
// Setting the status the slot already has is a no-op.
func (e *Engine) SetTradeStatus(ctx context.Context, in SetTradeStatusInput) (model.EventSlot, error) {
	if err := in.Validate(); err != nil {
		return model.EventSlot{}, err
	}

	now := e.clock()
	var (
		out     model.EventSlot
		changed bool
	)
	err := e.store.RunInTx(ctx, func(tx store.Tx) error {
		slot, err := tx.SlotForUpdate(ctx, in.SlotID)
		if err != nil {
			return notFound(err, "slot", in.SlotID)
		}
		if slot.OwnerID != in.CallerID {
			return model.Forbidden("only the owner may change a slot's trade status")
		}
		if slot.TradeStatus == model.TradeStatusPending {
			return &model.StateError{Entity: "slot", ID: slot.ID, Status: slot.TradeStatus.String(), Action: "change trade status of"}
		}
		out = slot
		if slot.TradeStatus == in.Target {
			return nil
		}
		if !slot.TradeStatus.CanTransitionTo(in.Target) {
			return &model.StateError{Entity: "slot", ID: slot.ID, Status: slot.TradeStatus.String(), Action: "change trade status of"}
		}
		if err := tx.UpdateSlotStatus(ctx, slot.ID, slot.TradeStatus, in.Target, now); err != nil {
			return staleAsConflict(err, "slot changed concurrently")
		}
		out.TradeStatus = in.Target
		out.UpdatedAt = now
		changed = true
		return nil
	})
	if err != nil {
		return model.EventSlot{}, err
	}

	if changed {
		e.log.InfoContext(ctx, "slot trade status changed",
			slog.String("slot_id", out.ID),
			slog.String("user_id", in.CallerID),
			slog.String("trade_status", out.TradeStatus.String()))
		e.publish(ctx, slotChange(notify.KindUpdated, out.ID, now, out.OwnerID))
	}
	return out, nil
}

// DeleteSlot removes a slot owned by callerID. Pending slots cannot be
// deleted; terminal requests that reference the slot go with it.
func (e *Engine) DeleteSlot(ctx context.Context, slotID, callerID string) error {
	if err := requireIDs("slot_id", slotID, "caller_id", callerID); err != nil {
		return err
	}

	now := e.clock()
	var (
		slot    model.EventSlot
		removed []model.SwapRequest
	)
	err := e.store.RunInTx(ctx, func(tx store.Tx) error {
		var err error
		slot, err = tx.SlotForUpdate(ctx, slotID)
		if err != nil {
			return notFound(err, "slot", slotID)
		}
		if slot.OwnerID != callerID {
			return model.Forbidden("only the owner may delete a slot")
		}
		if slot.TradeStatus == model.TradeStatusPending {
			return &model.StateError{Entity: "slot", ID: slot.ID, Status: slot.TradeStatus.String(), Action: "delete"}
		}
		removed, err = tx.RequestsForSlot(ctx, slot.ID)
		if err != nil {
			return err
		}
		if err := tx.DeleteSlot(ctx, slot.ID); err != nil {
			return staleAsConflict(err, "slot changed concurrently")
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.log.InfoContext(ctx, "slot deleted",
		slog.String("slot_id", slot.ID),
		slog.String("user_id", callerID),
		slog.Int("requests_removed", len(removed)))
	changes := []notify.Change{slotChange(notify.KindDeleted, slot.ID, now, slot.OwnerID)}
	for _, r := range removed {
		changes = append(changes, requestChange(notify.KindDeleted, r, now))
	}
	e.publish(ctx, changes...)
	return nil
}

// ListByOwner returns ownerID's slots by start time, optionally restricted to
// one status.
func (e *Engine) ListByOwner(ctx context.Context, ownerID string, status model.TradeStatus) ([]model.EventSlot, error) {
	if err := requireIDs("owner_id", ownerID); err != nil {
		return nil, err
	}
	if status != model.TradeStatusUnspecified && !status.Valid() {
		return nil, model.NewValidationError("trade_status", "unknown status")
	}
	slots, err := e.store.SlotsByOwner(ctx, ownerID, status)
	if err != nil {
		return nil, fmt.Errorf("list slots by owner: %w", err)
	}
	return slots, nil
}

// ListTradable returns every TRADABLE slot not owned by excludingOwnerID,
// by start time, with each owner's display name.
func (e *Engine) ListTradable(ctx context.Context, excludingOwnerID string) ([]model.TradableSlot, error) {
	slots, err := e.store.TradableSlots(ctx, excludingOwnerID)
	if err != nil {
		return nil, fmt.Errorf("list tradable slots: %w", err)
	}
	ids := make([]string, 0, len(slots))
	for _, s := range slots {
		ids = append(ids, s.OwnerID)
	}
	names := e.displayNames(ctx, ids)

	out := make([]model.TradableSlot, 0, len(slots))
	for _, s := range slots {
		out = append(out, model.TradableSlot{EventSlot: s, OwnerName: names[s.OwnerID]})
	}
	return out, nil
}

// Slot returns one slot. Any caller may read it.
func (e *Engine) Slot(ctx context.Context, slotID string) (model.EventSlot, error) {
	s, err := e.store.Slot(ctx, slotID)
	if err != nil {
		return model.EventSlot{}, notFound(err, "slot", slotID)
	}
	return s, nil
}

// displayNames resolves names for display only; a resolver failure leaves
// names empty rather than failing the read.
func (e *Engine) displayNames(ctx context.Context, ids []string) map[string]string {
	if e.profiles == nil || len(ids) == 0 {
		return map[string]string{}
	}
	names, err := e.profiles.DisplayNames(ctx, dedupe(ids))
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			e.log.WarnContext(ctx, "resolve display names failed", slog.String("error", err.Error()))
		}
		return map[string]string{}
	}
	return names
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
