package swap

import (
	"time"

	"github.com/iliyamo/slotswap/internal/model"
	"github.com/iliyamo/slotswap/internal/notify"
)

func slotChange(kind notify.Kind, slotID string, at time.Time, owners ...string) notify.Change {
	return notify.Change{
		Topic:    notify.TopicSlots,
		Kind:     kind,
		EntityID: slotID,
		UserIDs:  owners,
		At:       at,
	}
}

func requestChange(kind notify.Kind, r model.SwapRequest, at time.Time) notify.Change {
	return notify.Change{
		Topic:    notify.TopicRequests,
		Kind:     kind,
		EntityID: r.ID,
		UserIDs:  []string{r.RequesterID, r.ReceiverID},
		At:       at,
	}
}
