package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"campustickets/internal/codec"
	"campustickets/internal/domain"
	"campustickets/internal/monitoring"
)

type issuanceService struct {
	ticketRepo domain.TicketRepository
	eventRepo  domain.EventRepository
	holderRepo domain.HolderRepository
	queue      domain.NotificationQueue
	logger     *slog.Logger
	now        func() time.Time
}

// NewIssuanceService creates an IssuanceService with the given repositories
// and notification queue.
func NewIssuanceService(
	ticketRepo domain.TicketRepository,
	eventRepo domain.EventRepository,
	holderRepo domain.HolderRepository,
	queue domain.NotificationQueue,
	logger *slog.Logger,
) domain.IssuanceService {
	return &issuanceService{
		ticketRepo: ticketRepo,
		eventRepo:  eventRepo,
		holderRepo: holderRepo,
		queue:      queue,
		logger:     logger,
		now:        time.Now,
	}
}

// IssueTicket checks the issuance preconditions, persists the ticket, and
// queues exactly one confirmation. The capacity and uniqueness checks run
// again inside the repository transaction; the checks here exist to give
// callers precise errors without burning a transaction on the obvious cases.
func (s *issuanceService) IssueTicket(ctx context.Context, in domain.IssueTicketInput) (*domain.Ticket, error) {
	event, err := s.eventRepo.GetByID(ctx, in.EventID)
	if err != nil {
		if errors.Is(err, domain.ErrEventNotFound) {
			monitoring.IssuanceRejected("event_not_found")
			return nil, domain.ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	if !event.Approved() {
		monitoring.IssuanceRejected("event_not_approved")
		return nil, domain.ErrEventNotApproved
	}
	now := s.now()
	if event.Ended(now) {
		monitoring.IssuanceRejected("event_ended")
		return nil, domain.ErrEventEnded
	}

	holder, err := s.holderRepo.GetByID(ctx, in.HolderID)
	if err != nil {
		if errors.Is(err, domain.ErrHolderNotFound) {
			monitoring.IssuanceRejected("holder_not_found")
			return nil, domain.ErrHolderNotFound
		}
		return nil, fmt.Errorf("get holder: %w", err)
	}

	id := uuid.NewString()
	payload, err := codec.Encode(codec.Payload{
		TicketID:   id,
		EventID:    event.ID,
		HolderID:   holder.ID,
		HolderName: holder.DisplayName,
		IssuedAt:   now.UTC().Truncate(time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("encode ticket payload: %w", err)
	}

	t := domain.NewTicket(id, event.ID, holder.ID, in.SeatLabel, in.Notes, payload, now, in.ExpiresAt)
	if err := s.ticketRepo.Issue(ctx, t); err != nil {
		switch {
		case errors.Is(err, domain.ErrCapacityExceeded):
			monitoring.IssuanceRejected("capacity_exceeded")
		case errors.Is(err, domain.ErrDuplicateTicket):
			monitoring.IssuanceRejected("duplicate_ticket")
		}
		return nil, err
	}
	monitoring.TicketIssued()

	// The ticket exists regardless of what happens to the confirmation; a
	// failed enqueue is logged for retry via the resend path, never unwound.
	if err := s.queue.Enqueue(ctx, t.ID); err != nil {
		s.logger.ErrorContext(ctx, "ticket issued but confirmation enqueue failed",
			"ticket_id", t.ID, "event_id", t.EventID, "err", err)
	}

	return t, nil
}
