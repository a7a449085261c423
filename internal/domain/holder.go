package domain

import "context"

// Holder is the read model for a ticket holder: just enough identity to
// address a confirmation email and label a ticket. Account management is
// owned elsewhere.
// swagger:model Holder
type Holder struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// HolderRepository is the read-only view of holders.
type HolderRepository interface {
	GetByID(ctx context.Context, id string) (*Holder, error)
}
