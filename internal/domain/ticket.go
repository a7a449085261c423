package domain

import (
	"context"
	"time"
)

// TicketStatus is the stored lifecycle state of a ticket.
type TicketStatus string

const (
	TicketIssued    TicketStatus = "issued"
	TicketUsed      TicketStatus = "used"
	TicketCancelled TicketStatus = "cancelled"
	// TicketExpired is a derived read: the stored status stays "issued" after
	// expires_at passes, but EffectiveStatus and the check-in predicate
	// report expired.
	TicketExpired TicketStatus = "expired"
)

// Ticket is one holder's admission right to one event.
// swagger:model Ticket
type Ticket struct {
	ID        string       `json:"id"`
	EventID   string       `json:"event_id"`
	HolderID  string       `json:"holder_id"`
	Status    TicketStatus `json:"status"`
	SeatLabel string       `json:"seat_label,omitempty"`
	Notes     string       `json:"notes,omitempty"`
	// Payload is the codec-encoded check-in record, computed once at
	// issuance from the ticket's own fields and immutable after that.
	Payload   string     `json:"payload"`
	IssuedAt  time.Time  `json:"issued_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// NewTicket returns a freshly issued ticket.
func NewTicket(id, eventID, holderID, seatLabel, notes, payload string, issuedAt time.Time, expiresAt *time.Time) *Ticket {
	return &Ticket{
		ID:        id,
		EventID:   eventID,
		HolderID:  holderID,
		Status:    TicketIssued,
		SeatLabel: seatLabel,
		Notes:     notes,
		Payload:   payload,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}
}

// Expired reports whether the ticket's expiry, if any, has passed.
func (t *Ticket) Expired(now time.Time) bool {
	return t.ExpiresAt != nil && !t.ExpiresAt.After(now)
}

// EffectiveStatus is the status as seen by readers: an issued ticket whose
// expiry has passed reads as expired without a stored transition.
func (t *Ticket) EffectiveStatus(now time.Time) TicketStatus {
	if t.Status == TicketIssued && t.Expired(now) {
		return TicketExpired
	}
	return t.Status
}

// EventTicket is a ticket joined with holder identity, the row shape consumed
// by the external attendee-export generator.
// swagger:model EventTicket
type EventTicket struct {
	Ticket
	HolderEmail string `json:"holder_email"`
	HolderName  string `json:"holder_name"`
}

// TicketRepository is durable ticket storage. Issue and CheckIn are single
// atomic operations: both re-validate their preconditions inside one
// transaction so concurrent callers cannot oversell an event or double-use
// a ticket.
type TicketRepository interface {
	// Issue persists a new issued ticket. Inside one transaction it locks the
	// event row, re-checks approval, the one-non-cancelled-ticket-per-holder
	// rule, and remaining capacity (skipped when capacity is the unlimited
	// sentinel 0), then inserts. Returns ErrEventNotFound,
	// ErrEventNotApproved, ErrDuplicateTicket, or ErrCapacityExceeded.
	Issue(ctx context.Context, t *Ticket) error

	// CheckIn atomically validates and consumes the ticket: the row is locked,
	// the presented event, stored status, expiry, and event approval are
	// evaluated, and the issued to used transition (setting used_at = now) is
	// applied in the same transaction. Returns the updated ticket or one of
	// ErrTicketNotFound, ErrWrongEvent, ErrAlreadyUsed, ErrTicketCancelled,
	// ErrTicketExpired, ErrEventNotApproved.
	CheckIn(ctx context.Context, ticketID, presentedEventID string, now time.Time) (*Ticket, error)

	// Cancel transitions issued to cancelled. Cancelling a used ticket returns
	// ErrAlreadyUsed; cancelling a cancelled ticket is a no-op.
	Cancel(ctx context.Context, ticketID string) (*Ticket, error)

	GetByID(ctx context.Context, id string) (*Ticket, error)
	ListByHolder(ctx context.Context, holderID string) ([]*Ticket, error)
	ListByEvent(ctx context.Context, eventID string) ([]*EventTicket, error)
}

// IssueTicketInput carries the caller-supplied fields for issuance.
type IssueTicketInput struct {
	EventID   string
	HolderID  string
	SeatLabel string
	Notes     string
	ExpiresAt *time.Time
}

// IssuanceService creates tickets and triggers the confirmation email.
type IssuanceService interface {
	IssueTicket(ctx context.Context, in IssueTicketInput) (*Ticket, error)
}

// RejectReason enumerates why a check-in was refused.
type RejectReason string

const (
	ReasonNotFound         RejectReason = "not_found"
	ReasonWrongEvent       RejectReason = "wrong_event"
	ReasonAlreadyUsed      RejectReason = "already_used"
	ReasonCancelled        RejectReason = "cancelled"
	ReasonExpired          RejectReason = "expired"
	ReasonEventNotApproved RejectReason = "event_not_approved"
	// ReasonInvalidPayload covers scanned input the codec could not decode:
	// "no valid ticket found in image".
	ReasonInvalidPayload RejectReason = "invalid_payload"
)

// CheckInResult is the structured outcome of a check-in attempt. Exactly one
// of Accepted or Reason is meaningful; Ticket is the post-transition snapshot
// when accepted and the current snapshot (if known) when rejected.
// swagger:model CheckInResult
type CheckInResult struct {
	Accepted bool         `json:"accepted"`
	Reason   RejectReason `json:"reason,omitempty"`
	Ticket   *Ticket      `json:"ticket,omitempty"`
}

// CheckInService validates and consumes tickets presented at the door.
type CheckInService interface {
	// CheckIn consumes the ticket with the given id for the presenting event.
	// Precondition failures are reported in the result, not as errors; the
	// error return is for storage faults only.
	CheckIn(ctx context.Context, presentedEventID, ticketID string) (*CheckInResult, error)
	// CheckInPayload decodes a scanned payload and checks in the referenced
	// ticket. Undecodable input rejects with ReasonInvalidPayload.
	CheckInPayload(ctx context.Context, presentedEventID, payload string) (*CheckInResult, error)
	// Cancel voids an issued ticket. Cancelling a used ticket fails with
	// ErrAlreadyUsed.
	Cancel(ctx context.Context, ticketID string) (*Ticket, error)
}

// TicketQueryService serves holder-facing reads and the export boundary.
type TicketQueryService interface {
	GetTicket(ctx context.Context, id string) (*Ticket, error)
	ListHolderTickets(ctx context.Context, holderID string) ([]*Ticket, error)
	// ListEventTickets is the read-only listing consumed by the external
	// CSV/report generator.
	ListEventTickets(ctx context.Context, eventID string) ([]*EventTicket, error)
	// ViewSigned resolves a signed email link token to its ticket, verifying
	// that the token was minted for the ticket holder's address.
	ViewSigned(ctx context.Context, token string) (*Ticket, error)
}
