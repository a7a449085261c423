package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"campustickets/internal/domain"
)

// uniqueViolation is the postgres error code backing the partial unique
// index on (event_id, holder_id) WHERE status <> 'cancelled'.
const uniqueViolation = "23505"

type ticketRepository struct {
	DB *sql.DB
}

func NewTicketRepository(db *sql.DB) domain.TicketRepository {
	return &ticketRepository{
		DB: db,
	}
}

// Issue re-validates approval, uniqueness, and capacity inside a single
// transaction with the event row locked, then inserts. Locking the event row
// serializes concurrent issuance per event, so the capacity count read here
// still holds at commit time.
func (r *ticketRepository) Issue(ctx context.Context, t *domain.Ticket) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin issue tx: %w", err)
	}
	defer tx.Rollback()

	var (
		status   string
		capacity int
	)
	err = tx.QueryRowContext(ctx, `
		SELECT status, capacity
		FROM events
		WHERE id = $1
		FOR UPDATE
	`, t.EventID).Scan(&status, &capacity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrEventNotFound
		}
		return fmt.Errorf("lock event: %w", err)
	}
	if status != string(domain.EventApproved) {
		return domain.ErrEventNotApproved
	}

	var exists bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM tickets
			WHERE event_id = $1 AND holder_id = $2 AND status <> 'cancelled'
		)
	`, t.EventID, t.HolderID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check duplicate ticket: %w", err)
	}
	if exists {
		return domain.ErrDuplicateTicket
	}

	// Capacity 0 is the "no limit enforced" sentinel.
	if capacity > 0 {
		var issued int
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM tickets
			WHERE event_id = $1 AND status = 'issued'
		`, t.EventID).Scan(&issued)
		if err != nil {
			return fmt.Errorf("count issued tickets: %w", err)
		}
		if issued >= capacity {
			return domain.ErrCapacityExceeded
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tickets (id, event_id, holder_id, status, seat_label, notes, payload, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, t.ID, t.EventID, t.HolderID, string(t.Status), t.SeatLabel, t.Notes, t.Payload, t.IssuedAt, t.ExpiresAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return domain.ErrDuplicateTicket
		}
		return fmt.Errorf("insert ticket: %w", err)
	}

	return tx.Commit()
}

// CheckIn locks the ticket row, evaluates the full validity predicate, and
// applies the issued to used transition in the same transaction, so two
// concurrent scans of the same ticket cannot both be accepted.
func (r *ticketRepository) CheckIn(ctx context.Context, ticketID, presentedEventID string, now time.Time) (*domain.Ticket, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin check-in tx: %w", err)
	}
	defer tx.Rollback()

	t := &domain.Ticket{ID: ticketID}
	var eventStatus string
	err = tx.QueryRowContext(ctx, `
		SELECT t.event_id, t.holder_id, t.status, t.seat_label, t.notes, t.payload, t.issued_at, t.used_at, t.expires_at, e.status
		FROM tickets t
		JOIN events e ON e.id = t.event_id
		WHERE t.id = $1
		FOR UPDATE OF t
	`, ticketID).Scan(&t.EventID, &t.HolderID, &t.Status, &t.SeatLabel, &t.Notes, &t.Payload, &t.IssuedAt, &t.UsedAt, &t.ExpiresAt, &eventStatus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTicketNotFound
		}
		return nil, fmt.Errorf("lock ticket: %w", err)
	}

	if t.EventID != presentedEventID {
		return nil, domain.ErrWrongEvent
	}
	switch t.Status {
	case domain.TicketUsed:
		return nil, domain.ErrAlreadyUsed
	case domain.TicketCancelled:
		return nil, domain.ErrTicketCancelled
	}
	if t.Expired(now) {
		return nil, domain.ErrTicketExpired
	}
	if eventStatus != string(domain.EventApproved) {
		return nil, domain.ErrEventNotApproved
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE tickets SET status = 'used', used_at = $2 WHERE id = $1
	`, ticketID, now)
	if err != nil {
		return nil, fmt.Errorf("mark ticket used: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit check-in: %w", err)
	}

	t.Status = domain.TicketUsed
	t.UsedAt = &now
	return t, nil
}

func (r *ticketRepository) Cancel(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin cancel tx: %w", err)
	}
	defer tx.Rollback()

	t := &domain.Ticket{ID: ticketID}
	err = tx.QueryRowContext(ctx, `
		SELECT event_id, holder_id, status, seat_label, notes, payload, issued_at, used_at, expires_at
		FROM tickets
		WHERE id = $1
		FOR UPDATE
	`, ticketID).Scan(&t.EventID, &t.HolderID, &t.Status, &t.SeatLabel, &t.Notes, &t.Payload, &t.IssuedAt, &t.UsedAt, &t.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTicketNotFound
		}
		return nil, fmt.Errorf("lock ticket: %w", err)
	}

	switch t.Status {
	case domain.TicketUsed:
		return nil, domain.ErrAlreadyUsed
	case domain.TicketCancelled:
		// Cancelling twice is a no-op.
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit cancel: %w", err)
		}
		return t, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE tickets SET status = 'cancelled' WHERE id = $1
	`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("mark ticket cancelled: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit cancel: %w", err)
	}

	t.Status = domain.TicketCancelled
	return t, nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	t := &domain.Ticket{ID: id}
	err := r.DB.QueryRowContext(ctx, `
		SELECT event_id, holder_id, status, seat_label, notes, payload, issued_at, used_at, expires_at
		FROM tickets
		WHERE id = $1
	`, id).Scan(&t.EventID, &t.HolderID, &t.Status, &t.SeatLabel, &t.Notes, &t.Payload, &t.IssuedAt, &t.UsedAt, &t.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTicketNotFound
		}
		return nil, err
	}
	return t, nil
}

func (r *ticketRepository) ListByHolder(ctx context.Context, holderID string) ([]*domain.Ticket, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, event_id, holder_id, status, seat_label, notes, payload, issued_at, used_at, expires_at
		FROM tickets
		WHERE holder_id = $1
		ORDER BY issued_at DESC
	`, holderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []*domain.Ticket
	for rows.Next() {
		t := &domain.Ticket{}
		if err := rows.Scan(&t.ID, &t.EventID, &t.HolderID, &t.Status, &t.SeatLabel, &t.Notes, &t.Payload, &t.IssuedAt, &t.UsedAt, &t.ExpiresAt); err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if tickets == nil {
		tickets = []*domain.Ticket{}
	}
	return tickets, nil
}

func (r *ticketRepository) ListByEvent(ctx context.Context, eventID string) ([]*domain.EventTicket, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT t.id, t.event_id, t.holder_id, t.status, t.seat_label, t.notes, t.payload, t.issued_at, t.used_at, t.expires_at,
		       h.email, h.display_name
		FROM tickets t
		JOIN holders h ON h.id = t.holder_id
		WHERE t.event_id = $1
		ORDER BY t.issued_at
	`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []*domain.EventTicket
	for rows.Next() {
		t := &domain.EventTicket{}
		if err := rows.Scan(&t.ID, &t.EventID, &t.HolderID, &t.Status, &t.SeatLabel, &t.Notes, &t.Payload, &t.IssuedAt, &t.UsedAt, &t.ExpiresAt, &t.HolderEmail, &t.HolderName); err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if tickets == nil {
		tickets = []*domain.EventTicket{}
	}
	return tickets, nil
}
