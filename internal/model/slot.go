package model

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// TradeStatus is the tradability state of an event slot.
type TradeStatus uint8

const (
	// TradeStatusUnspecified is the zero value and never persisted.
	TradeStatusUnspecified TradeStatus = iota
	// TradeStatusBusy means the owner keeps the slot.
	TradeStatusBusy
	// TradeStatusTradable means the owner offers the slot for exchange.
	TradeStatusTradable
	// TradeStatusPending means the slot is held by exactly one pending swap request.
	TradeStatusPending
)

// slotTransitions lists every legal slot status change. Owner toggles use
// BUSY <-> TRADABLE; the negotiation engine alone moves slots in and out of
// TRADE_PENDING.
var slotTransitions = map[TradeStatus][]TradeStatus{
	TradeStatusBusy:     {TradeStatusTradable},
	TradeStatusTradable: {TradeStatusBusy, TradeStatusPending},
	TradeStatusPending:  {TradeStatusBusy, TradeStatusTradable},
}

// String returns the persisted label of the status.
func (s TradeStatus) String() string {
	switch s {
	case TradeStatusBusy:
		return "BUSY"
	case TradeStatusTradable:
		return "TRADABLE"
	case TradeStatusPending:
		return "TRADE_PENDING"
	default:
		return "UNSPECIFIED"
	}
}

// Valid reports whether s is one of the three persisted states.
func (s TradeStatus) Valid() bool {
	return s >= TradeStatusBusy && s <= TradeStatusPending
}

// OwnerSettable reports whether an owner may request s directly.
func (s TradeStatus) OwnerSettable() bool {
	return s == TradeStatusBusy || s == TradeStatusTradable
}

// CanTransitionTo reports whether the table allows s -> next.
func (s TradeStatus) CanTransitionTo(next TradeStatus) bool {
	for _, t := range slotTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// ParseTradeStatus converts a label (case-insensitive) to a TradeStatus.
// "SWAPPABLE" and "SWAP_PENDING" are accepted as aliases.
func ParseTradeStatus(label string) (TradeStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "BUSY":
		return TradeStatusBusy, nil
	case "TRADABLE", "SWAPPABLE":
		return TradeStatusTradable, nil
	case "TRADE_PENDING", "SWAP_PENDING":
		return TradeStatusPending, nil
	}
	return TradeStatusUnspecified, fmt.Errorf("unknown trade status %q", label)
}

func (s TradeStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid trade status %d", s)
	}
	return []byte(s.String()), nil
}

func (s *TradeStatus) UnmarshalText(b []byte) error {
	v, err := ParseTradeStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Value stores the label.
func (s TradeStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid trade status %d", s)
	}
	return s.String(), nil
}

// Scan reads the label written by Value.
func (s *TradeStatus) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case []byte:
		return s.UnmarshalText(v)
	}
	return fmt.Errorf("scan trade status: unsupported type %T", src)
}

// EventSlot is a bookable time interval owned by a user.
//
// Fields:
//
//	ID          – event_slots.id (uuid).
//	OwnerID     – current owner; changes only through an accepted swap.
//	Title       – display text.
//	StartTime   – inclusive start, always before EndTime.
//	EndTime     – exclusive end.
//	TradeStatus – BUSY, TRADABLE or TRADE_PENDING.
//	CreatedAt   – insertion time.
//	UpdatedAt   – last mutation time.
type EventSlot struct {
	ID          string      `json:"id"`
	OwnerID     string      `json:"owner_id"`
	Title       string      `json:"title"`
	StartTime   time.Time   `json:"start_time"`
	EndTime     time.Time   `json:"end_time"`
	TradeStatus TradeStatus `json:"trade_status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// TradableSlot is a marketplace row: a TRADABLE slot plus its owner's name.
type TradableSlot struct {
	EventSlot
	OwnerName string `json:"owner_name"`
}
