package postgres

import (
	"context"
	"database/sql"
	"errors"

	"campustickets/internal/domain"
)

type holderRepository struct {
	DB *sql.DB
}

// NewHolderRepository returns the read-only view of ticket holders.
func NewHolderRepository(db *sql.DB) domain.HolderRepository {
	return &holderRepository{
		DB: db,
	}
}

func (r *holderRepository) GetByID(ctx context.Context, id string) (*domain.Holder, error) {
	query := `
		SELECT id, email, display_name
		FROM holders
		WHERE id = $1
	`
	h := &domain.Holder{}
	err := r.DB.QueryRowContext(ctx, query, id).
		Scan(&h.ID, &h.Email, &h.DisplayName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrHolderNotFound
		}
		return nil, err
	}
	return h, nil
}
