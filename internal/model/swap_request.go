package model

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// RequestStatus is the lifecycle status of a swap request.
type RequestStatus uint8

const (
	RequestStatusUnspecified RequestStatus = iota
	RequestStatusPending
	RequestStatusAccepted
	RequestStatusRejected
)

// Both terminal states are sinks.
var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestStatusPending: {RequestStatusAccepted, RequestStatusRejected},
}

func (s RequestStatus) String() string {
	switch s {
	case RequestStatusPending:
		return "PENDING"
	case RequestStatusAccepted:
		return "ACCEPTED"
	case RequestStatusRejected:
		return "REJECTED"
	default:
		return "UNSPECIFIED"
	}
}

func (s RequestStatus) Valid() bool {
	return s >= RequestStatusPending && s <= RequestStatusRejected
}

// Terminal reports whether no further status change is possible.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusAccepted || s == RequestStatusRejected
}

func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	for _, t := range requestTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// ParseRequestStatus converts a label (case-insensitive) to a RequestStatus.
func ParseRequestStatus(label string) (RequestStatus, error) {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "PENDING":
		return RequestStatusPending, nil
	case "ACCEPTED":
		return RequestStatusAccepted, nil
	case "REJECTED":
		return RequestStatusRejected, nil
	}
	return RequestStatusUnspecified, fmt.Errorf("unknown request status %q", label)
}

func (s RequestStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid request status %d", s)
	}
	return []byte(s.String()), nil
}

func (s *RequestStatus) UnmarshalText(b []byte) error {
	v, err := ParseRequestStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s RequestStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid request status %d", s)
	}
	return s.String(), nil
}

func (s *RequestStatus) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case []byte:
		return s.UnmarshalText(v)
	}
	return fmt.Errorf("scan request status: unsupported type %T", src)
}

// SwapRequest is a proposed exchange of two slots between two users. It
// references slots by id only; slot details are always read live.
type SwapRequest struct {
	ID              string        `json:"id"`
	RequesterID     string        `json:"requester_id"`
	ReceiverID      string        `json:"receiver_id"`
	RequesterSlotID string        `json:"requester_slot_id"`
	ReceiverSlotID  string        `json:"receiver_slot_id"`
	Status          RequestStatus `json:"status"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Involves reports whether userID is one of the two parties.
func (r SwapRequest) Involves(userID string) bool {
	return userID != "" && (r.RequesterID == userID || r.ReceiverID == userID)
}

// SlotSummary is the live view of a slot referenced by a request.
type SlotSummary struct {
	ID          string      `json:"id"`
	OwnerID     string      `json:"owner_id"`
	Title       string      `json:"title"`
	StartTime   time.Time   `json:"start_time"`
	EndTime     time.Time   `json:"end_time"`
	TradeStatus TradeStatus `json:"trade_status"`
}

// SwapRequestView is a ledger row joined with current slot and profile data
// for display.
type SwapRequestView struct {
	SwapRequest
	RequesterName string      `json:"requester_name"`
	ReceiverName  string      `json:"receiver_name"`
	RequesterSlot SlotSummary `json:"requester_slot"`
	ReceiverSlot  SlotSummary `json:"receiver_slot"`
}
