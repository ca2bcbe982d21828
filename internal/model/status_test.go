package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTradeStatusTransitions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from, to TradeStatus
		ok       bool
	}{
		{TradeStatusBusy, TradeStatusTradable, true},
		{TradeStatusBusy, TradeStatusPending, false},
		{TradeStatusTradable, TradeStatusBusy, true},
		{TradeStatusTradable, TradeStatusPending, true},
		{TradeStatusPending, TradeStatusBusy, true},
		{TradeStatusPending, TradeStatusTradable, true},
		{TradeStatusUnspecified, TradeStatusBusy, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTradeStatusOwnerSettable(t *testing.T) {
	t.Parallel()

	assert.True(t, TradeStatusBusy.OwnerSettable())
	assert.True(t, TradeStatusTradable.OwnerSettable())
	assert.False(t, TradeStatusPending.OwnerSettable())
	assert.False(t, TradeStatusUnspecified.OwnerSettable())
}

func TestParseTradeStatusAliases(t *testing.T) {
	t.Parallel()

	s, err := ParseTradeStatus("swappable")
	require.NoError(t, err)
	assert.Equal(t, TradeStatusTradable, s)

	s, err = ParseTradeStatus("SWAP_PENDING")
	require.NoError(t, err)
	assert.Equal(t, TradeStatusPending, s)

	_, err = ParseTradeStatus("FREE")
	assert.Error(t, err)
}

func TestRequestStatusTerminal(t *testing.T) {
	t.Parallel()

	assert.True(t, RequestStatusPending.CanTransitionTo(RequestStatusAccepted))
	assert.True(t, RequestStatusPending.CanTransitionTo(RequestStatusRejected))
	for _, s := range []RequestStatus{RequestStatusAccepted, RequestStatusRejected} {
		assert.True(t, s.Terminal())
		for _, next := range []RequestStatus{RequestStatusPending, RequestStatusAccepted, RequestStatusRejected} {
			assert.False(t, s.CanTransitionTo(next), "%s -> %s", s, next)
		}
	}
	assert.False(t, RequestStatusPending.Terminal())
}

func TestStatusJSON(t *testing.T) {
	t.Parallel()

	out, err := json.Marshal(EventSlot{ID: "s1", TradeStatus: TradeStatusPending})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"trade_status":"TRADE_PENDING"`)

	var r SwapRequest
	require.NoError(t, json.Unmarshal([]byte(`{"status":"rejected"}`), &r))
	assert.Equal(t, RequestStatusRejected, r.Status)

	_, err = json.Marshal(EventSlot{})
	assert.Error(t, err, "unspecified status must not serialize")
}

func TestStatusScan(t *testing.T) {
	t.Parallel()

	var s TradeStatus
	require.NoError(t, s.Scan([]byte("TRADABLE")))
	assert.Equal(t, TradeStatusTradable, s)
	assert.Error(t, s.Scan(int64(2)))

	v, err := RequestStatusAccepted.Value()
	require.NoError(t, err)
	assert.Equal(t, "ACCEPTED", v)
}

func TestErrorTaxonomyUnwraps(t *testing.T) {
	t.Parallel()

	assert.True(t, errors.Is(NewValidationError("title", "required"), ErrValidation))
	assert.True(t, errors.Is(&StateError{Entity: "slot", ID: "s", Status: "TRADE_PENDING", Action: "delete"}, ErrInvalidState))
	assert.True(t, errors.Is(Forbidden("not the owner"), ErrForbidden))
	assert.True(t, errors.Is(Conflict("slot taken"), ErrConflict))
	assert.True(t, errors.Is(NotFound("slot", "x"), ErrNotFound))

	var ve *ValidationError
	require.True(t, errors.As(NewValidationError("end_time", "must be after start_time"), &ve))
	assert.Equal(t, "end_time", ve.Errors[0].Field)
}

func TestSwapRequestInvolves(t *testing.T) {
	t.Parallel()

	r := SwapRequest{RequesterID: "a", ReceiverID: "b"}
	assert.True(t, r.Involves("a"))
	assert.True(t, r.Involves("b"))
	assert.False(t, r.Involves("c"))
	assert.False(t, r.Involves(""))
}
