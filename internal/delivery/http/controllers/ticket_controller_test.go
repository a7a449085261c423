package controllers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"campustickets/internal/delivery/http/helpers"
	"campustickets/internal/delivery/http/middleware"
	"campustickets/internal/domain"
)

const (
	testEventID  = "11111111-1111-1111-1111-111111111111"
	testTicketID = "22222222-2222-2222-2222-222222222222"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type mockIssuanceService struct {
	ticket *domain.Ticket
	err    error
}

func (m *mockIssuanceService) IssueTicket(ctx context.Context, in domain.IssueTicketInput) (*domain.Ticket, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.ticket, nil
}

type mockQueryService struct {
	ticket  *domain.Ticket
	tickets []*domain.Ticket
	rows    []*domain.EventTicket
	err     error
}

func (m *mockQueryService) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.ticket, nil
}

func (m *mockQueryService) ListHolderTickets(ctx context.Context, holderID string) ([]*domain.Ticket, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.tickets, nil
}

func (m *mockQueryService) ListEventTickets(ctx context.Context, eventID string) ([]*domain.EventTicket, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.rows, nil
}

func (m *mockQueryService) ViewSigned(ctx context.Context, token string) (*domain.Ticket, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.ticket, nil
}

type mockCheckInService struct {
	result *domain.CheckInResult
	ticket *domain.Ticket
	err    error
}

func (m *mockCheckInService) CheckIn(ctx context.Context, presentedEventID, ticketID string) (*domain.CheckInResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockCheckInService) CheckInPayload(ctx context.Context, presentedEventID, payload string) (*domain.CheckInResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockCheckInService) Cancel(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.ticket, nil
}

type mockQueue struct {
	resendErr error
	resends   []string
}

func (m *mockQueue) Enqueue(ctx context.Context, ticketID string) error { return nil }

func (m *mockQueue) Resend(ctx context.Context, ticketID, holderID string) error {
	if m.resendErr != nil {
		return m.resendErr
	}
	m.resends = append(m.resends, ticketID)
	return nil
}

func issuedTestTicket() *domain.Ticket {
	return &domain.Ticket{
		ID:       testTicketID,
		EventID:  testEventID,
		HolderID: "h-1",
		Status:   domain.TicketIssued,
		Payload:  `{"ticket_id":"` + testTicketID + `"}`,
		IssuedAt: time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC),
	}
}

func newTestTicketController(issuance *mockIssuanceService, queries *mockQueryService, checkIn *mockCheckInService, queue *mockQueue) *TicketController {
	if issuance == nil {
		issuance = &mockIssuanceService{}
	}
	if queries == nil {
		queries = &mockQueryService{}
	}
	if checkIn == nil {
		checkIn = &mockCheckInService{}
	}
	if queue == nil {
		queue = &mockQueue{}
	}
	return NewTicketController(discardLogger(), issuance, queries, checkIn, queue)
}

func TestTicketController_IssueTicket_Created(t *testing.T) {
	ctrl := newTestTicketController(&mockIssuanceService{ticket: issuedTestTicket()}, nil, nil, nil)

	body := strings.NewReader(`{"event_id":"` + testEventID + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/tickets", body)
	req = req.WithContext(middleware.SetHolderID(req.Context(), "h-1"))
	w := httptest.NewRecorder()

	ctrl.IssueTicket(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, w.Code)
	}
	var resp helpers.APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("expected no error, got %v", resp.Error)
	}
}

func TestTicketController_IssueTicket_Unauthorized(t *testing.T) {
	ctrl := newTestTicketController(nil, nil, nil, nil)

	body := strings.NewReader(`{"event_id":"` + testEventID + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/tickets", body)
	w := httptest.NewRecorder()

	ctrl.IssueTicket(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}

func TestTicketController_IssueTicket_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"event not found", domain.ErrEventNotFound, http.StatusNotFound, helpers.ErrCodeNotFound},
		{"event not approved", domain.ErrEventNotApproved, http.StatusBadRequest, helpers.ErrCodeBadRequest},
		{"event ended", domain.ErrEventEnded, http.StatusBadRequest, helpers.ErrCodeBadRequest},
		{"sold out", domain.ErrCapacityExceeded, http.StatusConflict, helpers.ErrCodeConflict},
		{"duplicate ticket", domain.ErrDuplicateTicket, http.StatusConflict, helpers.ErrCodeConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newTestTicketController(&mockIssuanceService{err: tt.err}, nil, nil, nil)

			body := strings.NewReader(`{"event_id":"` + testEventID + `"}`)
			req := httptest.NewRequest(http.MethodPost, "/tickets", body)
			req = req.WithContext(middleware.SetHolderID(req.Context(), "h-1"))
			w := httptest.NewRecorder()

			ctrl.IssueTicket(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			var resp helpers.APIResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if resp.Error == nil || resp.Error.Code != tt.wantCode {
				t.Fatalf("expected error code %q, got %v", tt.wantCode, resp.Error)
			}
		})
	}
}

func TestTicketController_IssueTicket_InvalidBody(t *testing.T) {
	ctrl := newTestTicketController(nil, nil, nil, nil)

	for _, body := range []string{`{}`, `{"event_id":"not-a-uuid"}`, `{"event_id":"` + testEventID + `","bogus":1}`} {
		req := httptest.NewRequest(http.MethodPost, "/tickets", strings.NewReader(body))
		req = req.WithContext(middleware.SetHolderID(req.Context(), "h-1"))
		w := httptest.NewRecorder()

		ctrl.IssueTicket(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %s: expected status %d, got %d", body, http.StatusBadRequest, w.Code)
		}
	}
}

func TestTicketController_GetTicket_ForbiddenForOtherHolder(t *testing.T) {
	ctrl := newTestTicketController(nil, &mockQueryService{ticket: issuedTestTicket()}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/tickets/"+testTicketID, nil)
	req.SetPathValue("ticketID", testTicketID)
	req = req.WithContext(middleware.SetHolderID(req.Context(), "h-2"))
	w := httptest.NewRecorder()

	ctrl.GetTicket(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected status %d, got %d", http.StatusForbidden, w.Code)
	}
}

func TestTicketController_GetTicket_ExpiredReadsAsExpired(t *testing.T) {
	ticket := issuedTestTicket()
	past := time.Now().Add(-time.Hour)
	ticket.ExpiresAt = &past
	ctrl := newTestTicketController(nil, &mockQueryService{ticket: ticket}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/tickets/"+testTicketID, nil)
	req.SetPathValue("ticketID", testTicketID)
	req = req.WithContext(middleware.SetHolderID(req.Context(), "h-1"))
	w := httptest.NewRecorder()

	ctrl.GetTicket(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	var resp struct {
		Data domain.Ticket `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Data.Status != domain.TicketExpired {
		t.Fatalf("expected status %q, got %q", domain.TicketExpired, resp.Data.Status)
	}
}

func TestTicketController_CancelTicket_UsedConflicts(t *testing.T) {
	ctrl := newTestTicketController(nil,
		&mockQueryService{ticket: issuedTestTicket()},
		&mockCheckInService{err: domain.ErrAlreadyUsed},
		nil)

	req := httptest.NewRequest(http.MethodDelete, "/tickets/"+testTicketID, nil)
	req.SetPathValue("ticketID", testTicketID)
	req = req.WithContext(middleware.SetHolderID(req.Context(), "h-1"))
	w := httptest.NewRecorder()

	ctrl.CancelTicket(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected status %d, got %d", http.StatusConflict, w.Code)
	}
}

func TestTicketController_ResendConfirmation(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"queued", nil, http.StatusAccepted},
		{"rate limited", domain.ErrRateLimited, http.StatusTooManyRequests},
		{"not the holder", domain.ErrForbidden, http.StatusForbidden},
		{"unknown ticket", domain.ErrTicketNotFound, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newTestTicketController(nil, nil, nil, &mockQueue{resendErr: tt.err})

			req := httptest.NewRequest(http.MethodPost, "/tickets/"+testTicketID+"/resend", nil)
			req.SetPathValue("ticketID", testTicketID)
			req = req.WithContext(middleware.SetHolderID(req.Context(), "h-1"))
			w := httptest.NewRecorder()

			ctrl.ResendConfirmation(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
		})
	}
}

func TestTicketController_ViewTicket(t *testing.T) {
	t.Run("missing token", func(t *testing.T) {
		ctrl := newTestTicketController(nil, nil, nil, nil)
		req := httptest.NewRequest(http.MethodGet, "/tickets/view", nil)
		w := httptest.NewRecorder()

		ctrl.ViewTicket(w, req)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, w.Code)
		}
	})

	t.Run("invalid token is forbidden", func(t *testing.T) {
		ctrl := newTestTicketController(nil, &mockQueryService{err: domain.ErrForbidden}, nil, nil)
		req := httptest.NewRequest(http.MethodGet, "/tickets/view?token=bad", nil)
		w := httptest.NewRecorder()

		ctrl.ViewTicket(w, req)

		if w.Code != http.StatusForbidden {
			t.Fatalf("expected status %d, got %d", http.StatusForbidden, w.Code)
		}
	})

	t.Run("valid token returns the ticket", func(t *testing.T) {
		ctrl := newTestTicketController(nil, &mockQueryService{ticket: issuedTestTicket()}, nil, nil)
		req := httptest.NewRequest(http.MethodGet, "/tickets/view?token=good", nil)
		w := httptest.NewRecorder()

		ctrl.ViewTicket(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}
	})
}
