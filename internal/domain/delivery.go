package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// DeliveryStatus is the lifecycle of one notification lineage. "sent" is
// terminal for a send key: once reached, no entry with that key sends again.
type DeliveryStatus string

const (
	DeliveryQueued DeliveryStatus = "queued"
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
)

// ConfirmationTemplate identifies the ticket confirmation email template and
// is part of the send key, so a future second template gets its own
// deduplication lineage.
const ConfirmationTemplate = "claim_confirmation"

// SendKey is the deduplication axis for notifications: a deterministic
// digest over recipient address, ticket id, and template identifier.
func SendKey(to, ticketID, template string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", to, ticketID, template)))
	return hex.EncodeToString(sum[:])
}

// DeliveryContext is the render-data snapshot captured at enqueue time, so a
// retry sends what the holder was promised even if the event row changes
// afterwards. Stored as JSON alongside the log entry.
type DeliveryContext struct {
	HolderName   string `json:"holder_name"`
	EventTitle   string `json:"event_title"`
	EventWhen    string `json:"event_when"`
	Location     string `json:"location"`
	TicketID     string `json:"ticket_id"`
	Seat         string `json:"seat,omitempty"`
	Organizer    string `json:"organizer,omitempty"`
	SupportEmail string `json:"support_email"`
	ViewURL      string `json:"view_url"`
	// Payload is the codec-encoded check-in record rendered into the QR
	// attachment.
	Payload string `json:"payload"`
}

// DeliveryLogEntry is one notification attempt lineage: the idempotency and
// audit record for a (recipient, ticket, template) triple.
// swagger:model DeliveryLogEntry
type DeliveryLogEntry struct {
	ID            string          `json:"id"`
	SendKey       string          `json:"send_key"`
	To            string          `json:"to"`
	Subject       string          `json:"subject"`
	Template      string          `json:"template"`
	Status        DeliveryStatus  `json:"status"`
	Attempts      int             `json:"attempts"`
	LastError     string          `json:"last_error,omitempty"`
	TicketID      string          `json:"ticket_id"`
	EventID       string          `json:"event_id"`
	Context       DeliveryContext `json:"context"`
	NextAttemptAt time.Time       `json:"next_attempt_at"`
	SentAt        *time.Time      `json:"sent_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// DeliveryLogRepository is the durable queue and idempotency ledger for
// notifications. It is owned exclusively by the dispatcher; nothing else
// writes to it.
type DeliveryLogRepository interface {
	// EnqueueIfNotSent inserts a new queued entry unless an entry with the
	// same send key has already reached "sent", in which case it reports
	// created=false and changes nothing. The existence check and the insert
	// are one atomic statement. A "failed" lineage is superseded by the new
	// queued entry.
	EnqueueIfNotSent(ctx context.Context, e *DeliveryLogEntry) (created bool, err error)

	// ClaimDue leases up to limit queued entries whose next_attempt_at has
	// passed, pushing their next_attempt_at forward by lease so concurrent
	// workers never claim the same entry twice.
	ClaimDue(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]*DeliveryLogEntry, error)

	// MarkSent conditionally finishes an entry. It succeeds only if the entry
	// is not already sent; ok=false means another worker won the race and the
	// caller must not treat its own send as the delivery of record.
	MarkSent(ctx context.Context, id string, at time.Time) (ok bool, err error)

	// RecordFailure stores the attempt count and error. When exhausted is
	// true the entry becomes terminal ("failed"); otherwise it stays queued
	// with next_attempt_at set to the backoff deadline.
	RecordFailure(ctx context.Context, id string, attempts int, lastError string, nextAttemptAt time.Time, exhausted bool) error

	// ListByStatus is the operator inspection window (e.g. terminal failures).
	ListByStatus(ctx context.Context, status DeliveryStatus, limit int) ([]*DeliveryLogEntry, error)
}

// NotificationQueue is the boundary issuance talks to: fire-and-forget from
// the caller's perspective, observable only through the delivery log.
type NotificationQueue interface {
	// Enqueue queues the confirmation for the ticket. It is a no-op success
	// when a confirmation with the same send key was already sent.
	Enqueue(ctx context.Context, ticketID string) error
	// Resend re-queues the confirmation at the holder's request, subject to
	// the per-recipient rate limit. Returns ErrForbidden when holderID does
	// not own the ticket and ErrRateLimited when over the window.
	Resend(ctx context.Context, ticketID, holderID string) error
}

// EmailAttachment is a file attached to an outgoing message.
type EmailAttachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// EmailMessage is a fully rendered outgoing email.
type EmailMessage struct {
	To          string
	Subject     string
	HTMLBody    string
	TextBody    string
	Attachments []EmailAttachment
}

// Mailer transmits a rendered message. Implementations may use SES, SMTP,
// etc. Errors are treated as transient by the dispatcher and retried.
type Mailer interface {
	Send(ctx context.Context, msg *EmailMessage) error
}

// EmailTemplateRenderer renders a named template set (subject, html, text).
type EmailTemplateRenderer interface {
	Render(templateName string, data any) (subject, htmlBody, textBody string, err error)
}

// ResendLimiter bounds how often a recipient can trigger a resend within a
// rolling window.
type ResendLimiter interface {
	// Allow reports whether the recipient has a slot left. It consumes
	// nothing.
	Allow(ctx context.Context, recipient string) (bool, error)
	// Record counts one successful resend against the recipient's window.
	Record(ctx context.Context, recipient string) error
}

// TicketTokenSigner mints and verifies the signed token embedded in the
// emailed view link. The signing secret is injected at construction; there
// is no process-global signing state.
type TicketTokenSigner interface {
	Sign(ticketID, email string) (string, error)
	Verify(token string) (ticketID, email string, err error)
}
