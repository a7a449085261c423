package postgres

import (
	"context"
	"database/sql"
	"errors"

	"campustickets/internal/domain"
)

type eventRepository struct {
	DB *sql.DB
}

// NewEventRepository returns the read-only view of events. Event rows are
// written by the external event-management system; issuance only reads (and
// briefly locks) them.
func NewEventRepository(db *sql.DB) domain.EventRepository {
	return &eventRepository{
		DB: db,
	}
}

func (r *eventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	query := `
		SELECT id, org_name, title, location, capacity, status, start_at, end_at
		FROM events
		WHERE id = $1
	`
	ev := &domain.Event{}
	err := r.DB.QueryRowContext(ctx, query, id).
		Scan(&ev.ID, &ev.OrgName, &ev.Title, &ev.Location, &ev.Capacity, &ev.Status, &ev.StartAt, &ev.EndAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrEventNotFound
		}
		return nil, err
	}
	return ev, nil
}
