package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"campustickets/internal/domain"
)

type ticketQueryService struct {
	ticketRepo domain.TicketRepository
	holderRepo domain.HolderRepository
	signer     domain.TicketTokenSigner
}

// NewTicketQueryService creates the read side: holder-facing ticket views and
// the per-event listing consumed by the export generator.
func NewTicketQueryService(
	ticketRepo domain.TicketRepository,
	holderRepo domain.HolderRepository,
	signer domain.TicketTokenSigner,
) domain.TicketQueryService {
	return &ticketQueryService{
		ticketRepo: ticketRepo,
		holderRepo: holderRepo,
		signer:     signer,
	}
}

func (s *ticketQueryService) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	t, err := s.ticketRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrTicketNotFound) {
			return nil, domain.ErrTicketNotFound
		}
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return t, nil
}

func (s *ticketQueryService) ListHolderTickets(ctx context.Context, holderID string) ([]*domain.Ticket, error) {
	tickets, err := s.ticketRepo.ListByHolder(ctx, holderID)
	if err != nil {
		return nil, fmt.Errorf("list holder tickets: %w", err)
	}
	return tickets, nil
}

func (s *ticketQueryService) ListEventTickets(ctx context.Context, eventID string) ([]*domain.EventTicket, error) {
	tickets, err := s.ticketRepo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list event tickets: %w", err)
	}
	return tickets, nil
}

// ViewSigned resolves an emailed link token: the token must verify, the
// ticket must exist, and the token's email must match the current holder's
// address.
func (s *ticketQueryService) ViewSigned(ctx context.Context, token string) (*domain.Ticket, error) {
	ticketID, email, err := s.signer.Verify(token)
	if err != nil {
		return nil, domain.ErrForbidden
	}
	t, err := s.ticketRepo.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, domain.ErrTicketNotFound) {
			return nil, domain.ErrTicketNotFound
		}
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	holder, err := s.holderRepo.GetByID(ctx, t.HolderID)
	if err != nil {
		return nil, fmt.Errorf("get holder: %w", err)
	}
	if email != "" && !strings.EqualFold(email, holder.Email) {
		return nil, domain.ErrForbidden
	}
	return t, nil
}
