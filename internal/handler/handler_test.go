package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/slotswap/internal/model"
	"github.com/iliyamo/slotswap/internal/notify"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestRespondErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{model.NewValidationError("title", "required"), http.StatusBadRequest, "validation"},
		{fmt.Errorf("wrapped: %w", model.ErrValidation), http.StatusBadRequest, "validation"},
		{model.Forbidden("not yours"), http.StatusForbidden, "forbidden"},
		{model.NotFound("slot", "s1"), http.StatusNotFound, "not_found"},
		{&model.StateError{Entity: "request", ID: "r1", Status: "ACCEPTED", Action: "accept"}, http.StatusConflict, "invalid_state"},
		{model.Conflict("taken"), http.StatusConflict, "conflict"},
		{errors.New("disk on fire"), http.StatusInternalServerError, "internal"},
	}
	e := echo.New()
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		require.NoError(t, respondError(c, discard, tc.err))
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())

		var body errorResp
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, tc.code, body.Error)
		if tc.status == http.StatusInternalServerError {
			assert.NotContains(t, body.Message, "disk")
		}
	}
}

func TestRespondErrorListsFields(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	err := &model.ValidationError{Errors: []model.FieldError{{Field: "title", Message: "required"}, {Field: "end_time", Message: "must be after start_time"}}}
	require.NoError(t, respondError(c, discard, err))

	var body errorResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, err.Errors, body.Fields)
}

func withUser(id string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("user_id", id)
			return next(c)
		}
	}
}

func TestEventsStream(t *testing.T) {
	broker := notify.NewBroker(8)
	h := &EventsHandler{Broker: broker, Heartbeat: time.Hour, Log: discard}
	e := echo.New()
	e.GET("/events", h.Stream, withUser("bob"))
	srv := httptest.NewServer(e)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events?topic=requests", nil)
	require.NoError(t, err)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))

	r := bufio.NewReader(res.Body)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)
	require.Eventually(t, func() bool { return broker.Len() == 1 }, time.Second, 5*time.Millisecond)

	// not bob's, then the wrong topic, then one for bob
	broker.Publish(ctx, notify.Change{Topic: notify.TopicRequests, Kind: notify.KindCreated, EntityID: "r0", UserIDs: []string{"alice", "carol"}})
	broker.Publish(ctx, notify.Change{Topic: notify.TopicSlots, Kind: notify.KindUpdated, EntityID: "s1", UserIDs: []string{"bob"}})
	broker.Publish(ctx, notify.Change{Topic: notify.TopicRequests, Kind: notify.KindCreated, EntityID: "r1", UserIDs: []string{"alice", "bob"}})

	var event, data string
	for data == "" {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}
	assert.Equal(t, "requests", event)
	var got notify.Change
	require.NoError(t, json.Unmarshal([]byte(data), &got))
	assert.Equal(t, "r1", got.EntityID)

	cancel()
	require.Eventually(t, func() bool { return broker.Len() == 0 }, time.Second, 5*time.Millisecond,
		"disconnect releases the subscription")
}

func TestEventsStreamRejectsBadParams(t *testing.T) {
	h := &EventsHandler{Broker: notify.NewBroker(1), Log: discard}
	e := echo.New()
	e.GET("/events", h.Stream, withUser("bob"))

	for _, q := range []string{"?topic=users", "?topic=requests&scope=all", "?scope=everyone"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events"+q, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestAnonymousCallerIsUnauthorized(t *testing.T) {
	h := &SlotHandler{Log: discard}
	e := echo.New()
	e.GET("/mine", h.Mine)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mine", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
