package domain

import "errors"

// Sentinel errors shared across services and repositories. Repositories map
// driver-level failures (sql.ErrNoRows, unique violations) onto these so
// callers never branch on storage details.
var (
	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")

	ErrEventNotFound    = errors.New("event not found")
	ErrHolderNotFound   = errors.New("holder not found")
	ErrEventNotApproved = errors.New("event is not approved")
	ErrEventEnded       = errors.New("event has already ended")

	ErrCapacityExceeded = errors.New("event is at capacity")
	ErrDuplicateTicket  = errors.New("holder already has a ticket for this event")

	ErrTicketNotFound  = errors.New("ticket not found")
	ErrAlreadyUsed     = errors.New("ticket has already been used")
	ErrTicketCancelled = errors.New("ticket is cancelled")
	ErrTicketExpired   = errors.New("ticket has expired")
	ErrWrongEvent      = errors.New("ticket belongs to a different event")

	ErrRateLimited = errors.New("resend rate limit exceeded")
)
