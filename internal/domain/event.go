package domain

import (
	"context"
	"time"
)

// EventStatus is the moderation state of an event. Only approved events can
// have tickets issued or checked in.
type EventStatus string

const (
	EventDraft    EventStatus = "draft"
	EventPending  EventStatus = "pending"
	EventApproved EventStatus = "approved"
	EventRejected EventStatus = "rejected"
)

// Event is the read model consumed by issuance and check-in. Event CRUD and
// moderation live in a separate system; this side never mutates events.
// swagger:model Event
type Event struct {
	ID       string      `json:"id"`
	OrgName  string      `json:"org_name"`
	Title    string      `json:"title"`
	Location string      `json:"location"`
	Capacity int         `json:"capacity"`
	Status   EventStatus `json:"status"`
	StartAt  time.Time   `json:"start_at"`
	EndAt    time.Time   `json:"end_at"`
}

// Approved reports whether tickets may be issued or checked in for the event.
func (e *Event) Approved() bool {
	return e.Status == EventApproved
}

// Unlimited reports whether the event enforces no capacity bound. Capacity 0
// is the inherited "no limit" sentinel; a genuinely zero-capacity event is
// not representable and stays a product decision to revisit.
func (e *Event) Unlimited() bool {
	return e.Capacity == 0
}

// Ended reports whether the event's end time has passed.
func (e *Event) Ended(now time.Time) bool {
	return !e.EndAt.IsZero() && !e.EndAt.After(now)
}

// EventRepository is the read-only view of events owned by the external
// event-management system.
type EventRepository interface {
	GetByID(ctx context.Context, id string) (*Event, error)
}
