package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slotswap/internal/model"
	"github.com/iliyamo/slotswap/internal/swap"
)

// SlotService is the part of the negotiation engine the slot endpoints use.
type SlotService interface {
	CreateSlot(ctx context.Context, in swap.CreateSlotInput) (model.EventSlot, error)
	SetTradeStatus(ctx context.Context, in swap.SetTradeStatusInput) (model.EventSlot, error)
	DeleteSlot(ctx context.Context, slotID, callerID string) error
	ListByOwner(ctx context.Context, ownerID string, status model.TradeStatus) ([]model.EventSlot, error)
	ListTradable(ctx context.Context, excludingOwnerID string) ([]model.TradableSlot, error)
	Slot(ctx context.Context, slotID string) (model.EventSlot, error)
}

type SlotHandler struct {
	Slots SlotService
	Log   *slog.Logger
}

type createSlotReq struct {
	Title     string    `json:"title"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type setStatusReq struct {
	TradeStatus string `json:"trade_status"`
}

// Create stores a new BUSY slot for the caller.
func (h *SlotHandler) Create(c echo.Context) error {
	uid, err := callerID(c)
	if err != nil {
		return err
	}
	var req createSlotReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "body", "invalid JSON or time format (RFC 3339)")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	slot, err := h.Slots.CreateSlot(ctx, swap.CreateSlotInput{
		OwnerID: uid, Title: req.Title, StartTime: req.StartTime, EndTime: req.EndTime,
	})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, slot)
}

// Get returns one slot.
func (h *SlotHandler) Get(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()
	slot, err := h.Slots.Slot(ctx, c.Param("id"))
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, slot)
}

// Mine lists the caller's slots, optionally filtered by ?status=.
func (h *SlotHandler) Mine(c echo.Context) error {
	uid, err := callerID(c)
	if err != nil {
		return err
	}
	status := model.TradeStatusUnspecified
	if raw := c.QueryParam("status"); raw != "" {
		if status, err = model.ParseTradeStatus(raw); err != nil {
			return badRequest(c, "status", "unknown trade status")
		}
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	slots, err := h.Slots.ListByOwner(ctx, uid, status)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": slots})
}

// Marketplace lists other users' TRADABLE slots.
func (h *SlotHandler) Marketplace(c echo.Context) error {
	uid, err := callerID(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	slots, err := h.Slots.ListTradable(ctx, uid)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": slots})
}

// SetStatus toggles the caller's slot between BUSY and TRADABLE.
func (h *SlotHandler) SetStatus(c echo.Context) error {
	uid, err := callerID(c)
	if err != nil {
		return err
	}
	var req setStatusReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "body", "invalid JSON")
	}
	target, err := model.ParseTradeStatus(req.TradeStatus)
	if err != nil {
		return badRequest(c, "trade_status", "must be BUSY or TRADABLE")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	slot, err := h.Slots.SetTradeStatus(ctx, swap.SetTradeStatusInput{SlotID: c.Param("id"), CallerID: uid, Target: target})
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, slot)
}

// Delete removes the caller's slot.
func (h *SlotHandler) Delete(c echo.Context) error {
	uid, err := callerID(c)
	if err != nil {
		return err
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	if err := h.Slots.DeleteSlot(ctx, c.Param("id"), uid); err != nil {
		return respondError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
