package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slotswap/internal/model"
	"github.com/iliyamo/slotswap/internal/swap"
)

// SwapService is the part of the negotiation engine the swap endpoints use.
type SwapService interface {
	ProposeSwap(ctx context.Context, in swap.ProposeInput) (model.SwapRequest, error)
	AcceptSwap(ctx context.Context, requestID, callerID string) (model.SwapRequest, error)
	RejectSwap(ctx context.Context, requestID, callerID string) (model.SwapRequest, error)
	RemoveRequest(ctx context.Context, requestID, callerID string) error
	IncomingFor(ctx context.Context, userID string) ([]model.SwapRequestView, error)
	OutgoingFor(ctx context.Context, userID string) ([]model.SwapRequestView, error)
	Request(ctx context.Context, requestID, callerID string) (model.SwapRequest, error)
}

type SwapHandler struct {
	Swaps SwapService
	Log   *slog.Logger
}

type proposeReq struct {
	RequesterSlotID string `json:"requester_slot_id"`
	ReceiverSlotID  string `json:"receiver_slot_id"`
	ReceiverID      string `json:"receiver_id"`
}

// Propose offers one of the caller's slots for someone else's.
func (h *SwapHandler) Propose(c echo.Context) error {
	uid, err := callerID(c)
	if err != nil {
		return err
	}
	var req proposeReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "body", "invalid JSON")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	r, err := h.Swaps.ProposeSwap(ctx, swap.ProposeInput{
		RequesterID:     uid,
		RequesterSlotID: req.RequesterSlotID,
		ReceiverSlotID:  req.ReceiverSlotID,
		ReceiverID:      req.ReceiverID,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *SwapHandler) Accept(c echo.Context) error {
	return h.resolve(c, h.Swaps.AcceptSwap)
}

func (h *SwapHandler) Reject(c echo.Context) error {
	return h.resolve(c, h.Swaps.RejectSwap)
}

func (h *SwapHandler) resolve(c echo.Context, op func(ctx context.Context, requestID, callerID string) (model.SwapRequest, error)) error {
	uid, err := callerID(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	r, err := op(ctx, c.Param("id"), uid)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, r)
}

// Get returns one request to either party.
func (h *SwapHandler) Get(c echo.Context) error {
	uid, err := callerID(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	r, err := h.Swaps.Request(ctx, c.Param("id"), uid)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *SwapHandler) Incoming(c echo.Context) error {
	return h.list(c, h.Swaps.IncomingFor)
}

func (h *SwapHandler) Outgoing(c echo.Context) error {
	return h.list(c, h.Swaps.OutgoingFor)
}

func (h *SwapHandler) list(c echo.Context, op func(ctx context.Context, userID string) ([]model.SwapRequestView, error)) error {
	uid, err := callerID(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	views, err := op(ctx, uid)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": views})
}

// Delete removes a terminal request.
func (h *SwapHandler) Delete(c echo.Context) error {
	uid, err := callerID(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	if err := h.Swaps.RemoveRequest(ctx, c.Param("id"), uid); err != nil {
		return respondError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
