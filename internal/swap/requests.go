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

// ProposeSwap offers in.RequesterSlotID in exchange for in.ReceiverSlotID.
// Both slots must be TRADABLE and free of pending requests when the
// transaction runs, not merely when the caller last looked; otherwise the
// proposal fails with a conflict. On success both slots are TRADE_PENDING
// and the new request is PENDING.
func (e *Engine) ProposeSwap(ctx context.Context, in ProposeInput) (model.SwapRequest, error) {
	if err := in.Validate(); err != nil {
		return model.SwapRequest{}, err
	}

	now := e.clock()
	var req model.SwapRequest
	err := e.store.RunInTx(ctx, func(tx store.Tx) error {
		mine, theirs, err := lockSlots(ctx, tx, in.RequesterSlotID, in.ReceiverSlotID)
		if err != nil {
			return err
		}
		if mine.OwnerID != in.RequesterID {
			return model.Forbidden("requester does not own the offered slot")
		}
		if theirs.OwnerID == in.RequesterID {
			return model.NewValidationError("receiver_slot_id", "cannot swap with your own slot")
		}
		if in.ReceiverID != "" && theirs.OwnerID != in.ReceiverID {
			return model.Conflict("requested slot has changed owner")
		}
		for _, s := range []model.EventSlot{mine, theirs} {
			if s.TradeStatus != model.TradeStatusTradable {
				return model.Conflict(fmt.Sprintf("slot %s is %s, not TRADABLE", s.ID, s.TradeStatus))
			}
			pending, err := tx.HasPendingRequest(ctx, s.ID)
			if err != nil {
				return err
			}
			if pending {
				return model.Conflict(fmt.Sprintf("slot %s is already part of a pending request", s.ID))
			}
		}
		for _, s := range []model.EventSlot{mine, theirs} {
			if err := tx.UpdateSlotStatus(ctx, s.ID, model.TradeStatusTradable, model.TradeStatusPending, now); err != nil {
				return staleAsConflict(err, "slot was claimed concurrently")
			}
		}

		req = model.SwapRequest{
			ID:              e.newID(),
			RequesterID:     in.RequesterID,
			ReceiverID:      theirs.OwnerID,
			RequesterSlotID: mine.ID,
			ReceiverSlotID:  theirs.ID,
			Status:          model.RequestStatusPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		return tx.InsertRequest(ctx, req)
	})
	if err != nil {
		return model.SwapRequest{}, err
	}

	e.log.InfoContext(ctx, "swap proposed",
		slog.String("request_id", req.ID),
		slog.String("user_id", req.RequesterID),
		slog.String("receiver_id", req.ReceiverID))
	e.publish(ctx,
		requestChange(notify.KindCreated, req, now),
		slotChange(notify.KindUpdated, req.RequesterSlotID, now, req.RequesterID),
		slotChange(notify.KindUpdated, req.ReceiverSlotID, now, req.ReceiverID),
	)
	return req, nil
}

// AcceptSwap executes a pending request. Only the receiver may accept. In a
// single transaction the two slots change owners, both become BUSY, and the
// request becomes ACCEPTED; if any step fails none of them is applied.
func (e *Engine) AcceptSwap(ctx context.Context, requestID, callerID string) (model.SwapRequest, error) {
	if err := requireIDs("request_id", requestID, "caller_id", callerID); err != nil {
		return model.SwapRequest{}, err
	}

	now := e.clock()
	var req model.SwapRequest
	err := e.store.RunInTx(ctx, func(tx store.Tx) error {
		var err error
		req, err = tx.RequestForUpdate(ctx, requestID)
		if err != nil {
			return notFound(err, "swap request", requestID)
		}
		if req.ReceiverID != callerID {
			return model.Forbidden("only the receiver may accept a swap request")
		}
		if !req.Status.CanTransitionTo(model.RequestStatusAccepted) {
			return &model.StateError{Entity: "request", ID: req.ID, Status: req.Status.String(), Action: "accept"}
		}

		offered, wanted, err := lockSlots(ctx, tx, req.RequesterSlotID, req.ReceiverSlotID)
		if err != nil {
			return err
		}
		if err := checkHeld(offered, req.RequesterID); err != nil {
			return err
		}
		if err := checkHeld(wanted, req.ReceiverID); err != nil {
			return err
		}

		if err := tx.TransferSlot(ctx, offered.ID, req.RequesterID, req.ReceiverID,
			model.TradeStatusPending, model.TradeStatusBusy, now); err != nil {
			return staleAsConflict(err, "slot changed concurrently")
		}
		if err := tx.TransferSlot(ctx, wanted.ID, req.ReceiverID, req.RequesterID,
			model.TradeStatusPending, model.TradeStatusBusy, now); err != nil {
			return staleAsConflict(err, "slot changed concurrently")
		}
		if err := tx.UpdateRequestStatus(ctx, req.ID, model.RequestStatusPending, model.RequestStatusAccepted, now); err != nil {
			return staleAsState(err, req, "accept")
		}
		req.Status = model.RequestStatusAccepted
		req.UpdatedAt = now
		return nil
	})
	if err != nil {
		return model.SwapRequest{}, err
	}

	e.log.InfoContext(ctx, "swap accepted",
		slog.String("request_id", req.ID),
		slog.String("user_id", callerID),
		slog.String("requester_id", req.RequesterID))
	// each slot now belongs to the other party; both owners care
	e.publish(ctx,
		requestChange(notify.KindUpdated, req, now),
		slotChange(notify.KindUpdated, req.RequesterSlotID, now, req.RequesterID, req.ReceiverID),
		slotChange(notify.KindUpdated, req.ReceiverSlotID, now, req.ReceiverID, req.RequesterID),
	)
	return req, nil
}

// RejectSwap closes a pending request without exchanging anything. Either
// party may reject; both slots return to TRADABLE.
func (e *Engine) RejectSwap(ctx context.Context, requestID, callerID string) (model.SwapRequest, error) {
	if err := requireIDs("request_id", requestID, "caller_id", callerID); err != nil {
		return model.SwapRequest{}, err
	}

	now := e.clock()
	var req model.SwapRequest
	err := e.store.RunInTx(ctx, func(tx store.Tx) error {
		var err error
		req, err = tx.RequestForUpdate(ctx, requestID)
		if err != nil {
			return notFound(err, "swap request", requestID)
		}
		if !req.Involves(callerID) {
			return model.Forbidden("only the requester or receiver may reject a swap request")
		}
		if !req.Status.CanTransitionTo(model.RequestStatusRejected) {
			return &model.StateError{Entity: "request", ID: req.ID, Status: req.Status.String(), Action: "reject"}
		}

		offered, wanted, err := lockSlots(ctx, tx, req.RequesterSlotID, req.ReceiverSlotID)
		if err != nil {
			return err
		}
		if err := checkHeld(offered, req.RequesterID); err != nil {
			return err
		}
		if err := checkHeld(wanted, req.ReceiverID); err != nil {
			return err
		}
		for _, s := range []model.EventSlot{offered, wanted} {
			if err := tx.UpdateSlotStatus(ctx, s.ID, model.TradeStatusPending, model.TradeStatusTradable, now); err != nil {
				return staleAsConflict(err, "slot changed concurrently")
			}
		}
		if err := tx.UpdateRequestStatus(ctx, req.ID, model.RequestStatusPending, model.RequestStatusRejected, now); err != nil {
			return staleAsState(err, req, "reject")
		}
		req.Status = model.RequestStatusRejected
		req.UpdatedAt = now
		return nil
	})
	if err != nil {
		return model.SwapRequest{}, err
	}

	e.log.InfoContext(ctx, "swap rejected",
		slog.String("request_id", req.ID),
		slog.String("user_id", callerID))
	e.publish(ctx,
		requestChange(notify.KindUpdated, req, now),
		slotChange(notify.KindUpdated, req.RequesterSlotID, now, req.RequesterID),
		slotChange(notify.KindUpdated, req.ReceiverSlotID, now, req.ReceiverID),
	)
	return req, nil
}

// RemoveRequest deletes a terminal request. Only its two parties may remove
// it; slots are not touched.
func (e *Engine) RemoveRequest(ctx context.Context, requestID, callerID string) error {
	if err := requireIDs("request_id", requestID, "caller_id", callerID); err != nil {
		return err
	}

	now := e.clock()
	var req model.SwapRequest
	err := e.store.RunInTx(ctx, func(tx store.Tx) error {
		var err error
		req, err = tx.RequestForUpdate(ctx, requestID)
		if err != nil {
			return notFound(err, "swap request", requestID)
		}
		if !req.Involves(callerID) {
			return model.Forbidden("only the requester or receiver may delete a swap request")
		}
		if !req.Status.Terminal() {
			return &model.StateError{Entity: "request", ID: req.ID, Status: req.Status.String(), Action: "delete"}
		}
		if err := tx.DeleteRequest(ctx, req.ID); err != nil {
			return staleAsConflict(err, "request changed concurrently")
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.log.InfoContext(ctx, "swap request deleted",
		slog.String("request_id", req.ID),
		slog.String("user_id", callerID))
	e.publish(ctx, requestChange(notify.KindDeleted, req, now))
	return nil
}

// IncomingFor lists requests received by userID, newest first.
func (e *Engine) IncomingFor(ctx context.Context, userID string) ([]model.SwapRequestView, error) {
	if err := requireIDs("user_id", userID); err != nil {
		return nil, err
	}
	views, err := e.store.IncomingRequests(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list incoming requests: %w", err)
	}
	return e.withNames(ctx, views), nil
}

// OutgoingFor lists requests sent by userID, newest first.
func (e *Engine) OutgoingFor(ctx context.Context, userID string) ([]model.SwapRequestView, error) {
	if err := requireIDs("user_id", userID); err != nil {
		return nil, err
	}
	views, err := e.store.OutgoingRequests(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list outgoing requests: %w", err)
	}
	return e.withNames(ctx, views), nil
}

// Request returns one request to either of its parties.
func (e *Engine) Request(ctx context.Context, requestID, callerID string) (model.SwapRequest, error) {
	req, err := e.store.Request(ctx, requestID)
	if err != nil {
		return model.SwapRequest{}, notFound(err, "swap request", requestID)
	}
	if !req.Involves(callerID) {
		return model.SwapRequest{}, model.Forbidden("not a party to this swap request")
	}
	return req, nil
}

func (e *Engine) withNames(ctx context.Context, views []model.SwapRequestView) []model.SwapRequestView {
	ids := make([]string, 0, 2*len(views))
	for _, v := range views {
		ids = append(ids, v.RequesterID, v.ReceiverID)
	}
	names := e.displayNames(ctx, ids)
	for i := range views {
		views[i].RequesterName = names[views[i].RequesterID]
		views[i].ReceiverName = names[views[i].ReceiverID]
	}
	return views
}

// checkHeld verifies a slot referenced by a pending request is still
// TRADE_PENDING under its original owner.
func checkHeld(s model.EventSlot, owner string) error {
	if s.OwnerID != owner || s.TradeStatus != model.TradeStatusPending {
		return model.Conflict(fmt.Sprintf("slot %s no longer matches the request", s.ID))
	}
	return nil
}

// staleAsState reports a lost race on the request row as the request no
// longer being pending.
func staleAsState(err error, req model.SwapRequest, action string) error {
	if errors.Is(err, store.ErrStale) {
		return &model.StateError{Entity: "request", ID: req.ID, Status: "terminal", Action: action}
	}
	return err
}
