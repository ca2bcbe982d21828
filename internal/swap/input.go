package swap

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/iliyamo/slotswap/internal/model"
)

const maxTitleLen = 200

// CreateSlotInput holds the parameters for creating a slot.
type CreateSlotInput struct {
	OwnerID   string
	Title     string
	StartTime time.Time
	EndTime   time.Time
}

func (i CreateSlotInput) normalize() CreateSlotInput {
	i.OwnerID = strings.TrimSpace(i.OwnerID)
	i.Title = strings.TrimSpace(i.Title)
	i.StartTime = i.StartTime.UTC().Truncate(time.Millisecond)
	i.EndTime = i.EndTime.UTC().Truncate(time.Millisecond)
	return i
}

// Validate checks all fields and collects all errors.
func (i CreateSlotInput) Validate() error {
	var errs []model.FieldError
	if i.OwnerID == "" {
		errs = append(errs, model.FieldError{Field: "owner_id", Message: "required"})
	}
	if i.Title == "" {
		errs = append(errs, model.FieldError{Field: "title", Message: "required"})
	}
	if utf8.RuneCountInString(i.Title) > maxTitleLen {
		errs = append(errs, model.FieldError{Field: "title", Message: "max 200 characters"})
	}
	if i.StartTime.IsZero() {
		errs = append(errs, model.FieldError{Field: "start_time", Message: "required"})
	}
	if i.EndTime.IsZero() {
		errs = append(errs, model.FieldError{Field: "end_time", Message: "required"})
	}
	if !i.StartTime.IsZero() && !i.EndTime.IsZero() && !i.StartTime.Before(i.EndTime) {
		errs = append(errs, model.FieldError{Field: "end_time", Message: "must be after start_time"})
	}
	if len(errs) > 0 {
		return &model.ValidationError{Errors: errs}
	}
	return nil
}

// SetTradeStatusInput holds the parameters for an owner status toggle.
type SetTradeStatusInput struct {
	SlotID   string
	CallerID string
	Target   model.TradeStatus
}

// Validate checks all fields and collects all errors.
func (i SetTradeStatusInput) Validate() error {
	var errs []model.FieldError
	if strings.TrimSpace(i.SlotID) == "" {
		errs = append(errs, model.FieldError{Field: "slot_id", Message: "required"})
	}
	if strings.TrimSpace(i.CallerID) == "" {
		errs = append(errs, model.FieldError{Field: "caller_id", Message: "required"})
	}
	if !i.Target.OwnerSettable() {
		errs = append(errs, model.FieldError{Field: "trade_status", Message: "must be BUSY or TRADABLE"})
	}
	if len(errs) > 0 {
		return &model.ValidationError{Errors: errs}
	}
	return nil
}

// ProposeInput holds the parameters for proposing a swap. ReceiverID is
// optional; when set it must still own the receiver slot.
type ProposeInput struct {
	RequesterID     string
	RequesterSlotID string
	ReceiverSlotID  string
	ReceiverID      string
}

// Validate checks all fields and collects all errors.
func (i ProposeInput) Validate() error {
	var errs []model.FieldError
	if strings.TrimSpace(i.RequesterID) == "" {
		errs = append(errs, model.FieldError{Field: "requester_id", Message: "required"})
	}
	if strings.TrimSpace(i.RequesterSlotID) == "" {
		errs = append(errs, model.FieldError{Field: "requester_slot_id", Message: "required"})
	}
	if strings.TrimSpace(i.ReceiverSlotID) == "" {
		errs = append(errs, model.FieldError{Field: "receiver_slot_id", Message: "required"})
	}
	if i.RequesterSlotID != "" && i.RequesterSlotID == i.ReceiverSlotID {
		errs = append(errs, model.FieldError{Field: "receiver_slot_id", Message: "must differ from requester_slot_id"})
	}
	if i.ReceiverID != "" && i.ReceiverID == i.RequesterID {
		errs = append(errs, model.FieldError{Field: "receiver_id", Message: "cannot swap with yourself"})
	}
	if len(errs) > 0 {
		return &model.ValidationError{Errors: errs}
	}
	return nil
}

func requireIDs(pairs ...string) error {
	var errs []model.FieldError
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			errs = append(errs, model.FieldError{Field: pairs[i], Message: "required"})
		}
	}
	if len(errs) > 0 {
		return &model.ValidationError{Errors: errs}
	}
	return nil
}
