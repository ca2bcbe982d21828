// Package queue relays change signals between server instances over a
// RabbitMQ fanout exchange, so subscribers connected to one instance hear
// about mutations committed through another.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/iliyamo/slotswap/internal/notify"
)

const eventVersion = 1

// ChangeEvent is the wire form of a notify.Change.
type ChangeEvent struct {
	Version  int      `json:"v"`
	Origin   string   `json:"origin"`
	Topic    string   `json:"topic"`
	Kind     string   `json:"kind"`
	EntityID string   `json:"entity_id"`
	UserIDs  []string `json:"user_ids"`
	At       string   `json:"at"`
}

// NewChangeEvent stamps c with the publishing instance.
func NewChangeEvent(origin string, c notify.Change) ChangeEvent {
	return ChangeEvent{
		Version:  eventVersion,
		Origin:   origin,
		Topic:    string(c.Topic),
		Kind:     string(c.Kind),
		EntityID: c.EntityID,
		UserIDs:  c.UserIDs,
		At:       c.At.UTC().Format(time.RFC3339Nano),
	}
}

// Change converts the event back, keeping Origin so it is not relayed again.
func (ev ChangeEvent) Change() (notify.Change, error) {
	if ev.Version != eventVersion {
		return notify.Change{}, fmt.Errorf("unsupported event version %d", ev.Version)
	}
	topic, err := notify.ParseTopic(ev.Topic)
	if err != nil || topic == "" {
		return notify.Change{}, fmt.Errorf("bad topic %q", ev.Topic)
	}
	switch notify.Kind(ev.Kind) {
	case notify.KindCreated, notify.KindUpdated, notify.KindDeleted:
	default:
		return notify.Change{}, fmt.Errorf("bad kind %q", ev.Kind)
	}
	if ev.Origin == "" || ev.EntityID == "" {
		return notify.Change{}, fmt.Errorf("event missing origin or entity id")
	}
	at, err := time.Parse(time.RFC3339Nano, ev.At)
	if err != nil {
		return notify.Change{}, fmt.Errorf("bad timestamp: %w", err)
	}
	return notify.Change{
		Topic:    topic,
		Kind:     notify.Kind(ev.Kind),
		EntityID: ev.EntityID,
		UserIDs:  ev.UserIDs,
		At:       at,
		Origin:   ev.Origin,
	}, nil
}

func encode(origin string, c notify.Change) ([]byte, error) {
	return json.Marshal(NewChangeEvent(origin, c))
}

func decode(body []byte) (notify.Change, error) {
	var ev ChangeEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return notify.Change{}, fmt.Errorf("unmarshal: %w", err)
	}
	return ev.Change()
}
