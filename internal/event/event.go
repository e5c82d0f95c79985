package event

import (
	"time"

	"github.com/google/uuid"

	"thinkora-client/internal/model"
)

type Type string

const (
	TypeSessionChanged Type = "session.changed"
	TypeSessionExpired Type = "session.expired"
)

type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	Snapshot  model.Snapshot `json:"snapshot"`
	Timestamp string         `json:"timestamp"`
}

func New(t Type, snapshot model.Snapshot) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Snapshot:  snapshot,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// Listener receives events synchronously, in publish order. It must not
// block and must not call back into the publisher on the same goroutine.
type Listener func(Event)

type Bus interface {
	Publish(e Event)
	Listen(fn Listener) func()
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}
