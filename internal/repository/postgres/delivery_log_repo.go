package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"campustickets/internal/domain"
)

type deliveryLogRepository struct {
	DB *sql.DB
}

func NewDeliveryLogRepository(db *sql.DB) domain.DeliveryLogRepository {
	return &deliveryLogRepository{
		DB: db,
	}
}

// EnqueueIfNotSent inserts the queued entry unless the send key already has a
// sent entry. The guard and the insert are one statement, so two concurrent
// enqueues for the same key cannot both slip past the check.
func (r *deliveryLogRepository) EnqueueIfNotSent(ctx context.Context, e *domain.DeliveryLogEntry) (bool, error) {
	contextJSON, err := json.Marshal(e.Context)
	if err != nil {
		return false, fmt.Errorf("marshal delivery context: %w", err)
	}

	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO delivery_log (id, send_key, recipient, subject, template, status, attempts, ticket_id, event_id, context, next_attempt_at, created_at)
		SELECT $1, $2, $3, $4, $5, 'queued', 0, $6, $7, $8, $9, $9
		WHERE NOT EXISTS (
			SELECT 1 FROM delivery_log WHERE send_key = $2 AND status = 'sent'
		)
	`, e.ID, e.SendKey, e.To, e.Subject, e.Template, e.TicketID, e.EventID, contextJSON, e.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("enqueue delivery: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ClaimDue leases due queued entries with FOR UPDATE SKIP LOCKED, so workers
// polling concurrently partition the backlog instead of fighting over rows.
// The lease moves next_attempt_at forward; a worker that dies mid-send simply
// lets the entry become due again.
func (r *deliveryLogRepository) ClaimDue(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]*domain.DeliveryLogEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `
		UPDATE delivery_log SET next_attempt_at = $3
		WHERE id IN (
			SELECT dl.id FROM delivery_log dl
			WHERE dl.status = 'queued' AND dl.next_attempt_at <= $2
			AND NOT EXISTS (
				SELECT 1 FROM delivery_log s WHERE s.send_key = dl.send_key AND s.status = 'sent'
			)
			ORDER BY dl.next_attempt_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, send_key, recipient, subject, template, status, attempts, COALESCE(last_error, ''), ticket_id, event_id, context, next_attempt_at, sent_at, created_at
	`, limit, now, now.Add(lease))
	if err != nil {
		return nil, fmt.Errorf("claim due deliveries: %w", err)
	}
	defer rows.Close()
	return scanDeliveryEntries(rows)
}

// MarkSent is the at-most-once gate. The conditional update refuses entries
// already sent, and the partial unique index on (send_key) WHERE status =
// 'sent' makes a second sent row for the same key a constraint violation, so
// two racing workers can never both record a delivery.
func (r *deliveryLogRepository) MarkSent(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE delivery_log SET status = 'sent', sent_at = $2
		WHERE id = $1 AND status <> 'sent'
	`, id, at)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return false, nil
		}
		return false, fmt.Errorf("mark delivery sent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *deliveryLogRepository) RecordFailure(ctx context.Context, id string, attempts int, lastError string, nextAttemptAt time.Time, exhausted bool) error {
	if exhausted {
		_, err := r.DB.ExecContext(ctx, `
			UPDATE delivery_log SET status = 'failed', attempts = $2, last_error = $3
			WHERE id = $1 AND status <> 'sent'
		`, id, attempts, lastError)
		if err != nil {
			return fmt.Errorf("mark delivery failed: %w", err)
		}
		return nil
	}
	_, err := r.DB.ExecContext(ctx, `
		UPDATE delivery_log SET attempts = $2, last_error = $3, next_attempt_at = $4
		WHERE id = $1 AND status = 'queued'
	`, id, attempts, lastError, nextAttemptAt)
	if err != nil {
		return fmt.Errorf("record delivery failure: %w", err)
	}
	return nil
}

func (r *deliveryLogRepository) ListByStatus(ctx context.Context, status domain.DeliveryStatus, limit int) ([]*domain.DeliveryLogEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id, send_key, recipient, subject, template, status, attempts, COALESCE(last_error, ''), ticket_id, event_id, context, next_attempt_at, sent_at, created_at
		FROM delivery_log
		WHERE status = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDeliveryEntries(rows)
}

func scanDeliveryEntries(rows *sql.Rows) ([]*domain.DeliveryLogEntry, error) {
	var entries []*domain.DeliveryLogEntry
	for rows.Next() {
		e := &domain.DeliveryLogEntry{}
		var contextJSON []byte
		if err := rows.Scan(&e.ID, &e.SendKey, &e.To, &e.Subject, &e.Template, &e.Status, &e.Attempts, &e.LastError, &e.TicketID, &e.EventID, &contextJSON, &e.NextAttemptAt, &e.SentAt, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(contextJSON) > 0 {
			if err := json.Unmarshal(contextJSON, &e.Context); err != nil {
				return nil, fmt.Errorf("unmarshal delivery context: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*domain.DeliveryLogEntry{}
	}
	return entries, nil
}
