package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slotswap/internal/notify"
)

// EventsHandler streams change signals as server-sent events.
type EventsHandler struct {
	Broker    *notify.Broker
	Heartbeat time.Duration
	Log       *slog.Logger
}

// Stream subscribes the caller until the client disconnects.
//
// ?topic=slots|requests narrows the stream. By default only changes that
// concern the caller are sent; ?scope=all on the slots topic follows every
// slot, which is what a marketplace view needs.
func (h *EventsHandler) Stream(c echo.Context) error {
	uid, err := callerID(c)
	if err != nil {
		return err
	}
	topic, err := notify.ParseTopic(c.QueryParam("topic"))
	if err != nil {
		return badRequest(c, "topic", "must be slots or requests")
	}
	filter := notify.Filter{Topic: topic, UserID: uid}
	switch c.QueryParam("scope") {
	case "", "mine":
	case "all":
		if topic != notify.TopicSlots {
			return badRequest(c, "scope", "scope=all requires topic=slots")
		}
		filter.UserID = ""
	default:
		return badRequest(c, "scope", "must be mine or all")
	}

	sub, err := h.Broker.Subscribe(filter)
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorResp{Error: "unavailable", Message: "shutting down"})
	}
	defer sub.Release(c.Request().Context(), h.Log, "sse:"+uid)

	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(res, ": connected\n\n"); err != nil {
		return nil
	}
	res.Flush()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := fmt.Fprint(res, ": ping\n\n"); err != nil {
				return nil
			}
			res.Flush()
		case change, ok := <-sub.C():
			if !ok {
				return nil
			}
			data, err := json.Marshal(change)
			if err != nil {
				h.Log.WarnContext(ctx, "encode change failed", slog.String("error", err.Error()))
				continue
			}
			if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", change.Topic, data); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}
