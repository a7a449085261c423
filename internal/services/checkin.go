package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"campustickets/internal/codec"
	"campustickets/internal/domain"
	"campustickets/internal/monitoring"
)

type checkInService struct {
	ticketRepo domain.TicketRepository
	logger     *slog.Logger
	now        func() time.Time
}

// NewCheckInService creates a CheckInService backed by the ticket repository.
func NewCheckInService(ticketRepo domain.TicketRepository, logger *slog.Logger) domain.CheckInService {
	return &checkInService{
		ticketRepo: ticketRepo,
		logger:     logger,
		now:        time.Now,
	}
}

// CheckIn delegates the validate-then-transition to the repository's atomic
// operation and folds its precondition errors into a structured rejection.
func (s *checkInService) CheckIn(ctx context.Context, presentedEventID, ticketID string) (*domain.CheckInResult, error) {
	t, err := s.ticketRepo.CheckIn(ctx, ticketID, presentedEventID, s.now())
	if err == nil {
		monitoring.CheckIn("accepted")
		return &domain.CheckInResult{Accepted: true, Ticket: t}, nil
	}

	reason, ok := rejectReasonFor(err)
	if !ok {
		return nil, fmt.Errorf("check in ticket: %w", err)
	}
	monitoring.CheckIn(string(reason))

	result := &domain.CheckInResult{Reason: reason}
	// Attach the current snapshot where one exists; scanners display it so
	// staff can see who tried to reuse a consumed ticket.
	if reason != domain.ReasonNotFound {
		if snapshot, err := s.ticketRepo.GetByID(ctx, ticketID); err == nil {
			result.Ticket = snapshot
		}
	}
	return result, nil
}

// CheckInPayload decodes scanned input and checks in the referenced ticket.
// Undecodable input is a rejection ("no valid ticket found in image"), not a
// fault.
func (s *checkInService) CheckInPayload(ctx context.Context, presentedEventID, payload string) (*domain.CheckInResult, error) {
	p, err := codec.Decode(payload)
	if err != nil {
		monitoring.CheckIn(string(domain.ReasonInvalidPayload))
		return &domain.CheckInResult{Reason: domain.ReasonInvalidPayload}, nil
	}
	return s.CheckIn(ctx, presentedEventID, p.TicketID)
}

func (s *checkInService) Cancel(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	t, err := s.ticketRepo.Cancel(ctx, ticketID)
	if err != nil {
		if errors.Is(err, domain.ErrTicketNotFound) || errors.Is(err, domain.ErrAlreadyUsed) {
			return nil, err
		}
		return nil, fmt.Errorf("cancel ticket: %w", err)
	}
	return t, nil
}

func rejectReasonFor(err error) (domain.RejectReason, bool) {
	switch {
	case errors.Is(err, domain.ErrTicketNotFound):
		return domain.ReasonNotFound, true
	case errors.Is(err, domain.ErrWrongEvent):
		return domain.ReasonWrongEvent, true
	case errors.Is(err, domain.ErrAlreadyUsed):
		return domain.ReasonAlreadyUsed, true
	case errors.Is(err, domain.ErrTicketCancelled):
		return domain.ReasonCancelled, true
	case errors.Is(err, domain.ErrTicketExpired):
		return domain.ReasonExpired, true
	case errors.Is(err, domain.ErrEventNotApproved):
		return domain.ReasonEventNotApproved, true
	}
	return "", false
}
