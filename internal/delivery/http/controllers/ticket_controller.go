package controllers

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"campustickets/internal/delivery/http/helpers"
	"campustickets/internal/delivery/http/middleware"
	"campustickets/internal/domain"
)

// uuidRegex matches a canonical UUID string (8-4-4-4-12 hex).
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

type TicketController struct {
	Logger   *slog.Logger
	Issuance domain.IssuanceService
	Queries  domain.TicketQueryService
	CheckIn  domain.CheckInService
	Queue    domain.NotificationQueue
}

func NewTicketController(
	logger *slog.Logger,
	issuance domain.IssuanceService,
	queries domain.TicketQueryService,
	checkIn domain.CheckInService,
	queue domain.NotificationQueue,
) *TicketController {
	return &TicketController{
		Logger:   logger,
		Issuance: issuance,
		Queries:  queries,
		CheckIn:  checkIn,
		Queue:    queue,
	}
}

// ticketView returns a copy of the ticket with the derived status readers see.
func ticketView(t *domain.Ticket) *domain.Ticket {
	cp := *t
	cp.Status = t.EffectiveStatus(time.Now())
	return &cp
}

func ticketViews(tickets []*domain.Ticket) []*domain.Ticket {
	out := make([]*domain.Ticket, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, ticketView(t))
	}
	return out
}

// IssueTicketRequest is the request body for POST /tickets.
type IssueTicketRequest struct {
	EventID   string     `json:"event_id"`
	SeatLabel string     `json:"seat_label,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Validate implements helpers.Validator.
func (r *IssueTicketRequest) Validate() []string {
	r.EventID = strings.TrimSpace(r.EventID)
	var errs []string
	if r.EventID == "" {
		errs = append(errs, "event_id is required")
	} else if !uuidRegex.MatchString(r.EventID) {
		errs = append(errs, "event_id must be a UUID")
	}
	if len(r.SeatLabel) > 32 {
		errs = append(errs, "seat_label must be at most 32 characters")
	}
	if len(r.Notes) > 500 {
		errs = append(errs, "notes must be at most 500 characters")
	}
	return errs
}

// TicketSuccessResponse is the success response envelope for ticket endpoints.
type TicketSuccessResponse struct {
	Data  *domain.Ticket    `json:"data"`
	Error *helpers.APIError `json:"error"`
}

// IssueTicket godoc
// @Summary Issue a ticket for an event
// @Description Issues a ticket for the calling holder. The event must be approved and not ended, the holder may hold at most one non-cancelled ticket per event, and issuance fails once capacity is reached. A confirmation email is queued on success.
// @Tags tickets
// @Accept json
// @Produce json
// @Param X-Holder-ID header string true "Holder ID"
// @Param body body controllers.IssueTicketRequest true "Issuance request"
// @Success 201 {object} controllers.TicketSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request (event not approved or ended)"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: conflict (sold out or already holding a ticket)"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /tickets [post]
func (c *TicketController) IssueTicket(w http.ResponseWriter, r *http.Request) {
	var req IssueTicketRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}

	holderID, ok := middleware.HolderIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}

	ticket, err := c.Issuance.IssueTicket(r.Context(), domain.IssueTicketInput{
		EventID:   req.EventID,
		HolderID:  holderID,
		SeatLabel: req.SeatLabel,
		Notes:     req.Notes,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrEventNotFound):
			helpers.WriteJSONError(w, http.StatusNotFound, helpers.ErrCodeNotFound, "event not found")
		case errors.Is(err, domain.ErrHolderNotFound):
			helpers.WriteJSONError(w, http.StatusNotFound, helpers.ErrCodeNotFound, "holder not found")
		case errors.Is(err, domain.ErrEventNotApproved):
			helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "event is not approved")
		case errors.Is(err, domain.ErrEventEnded):
			helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "event has already ended")
		case errors.Is(err, domain.ErrCapacityExceeded):
			helpers.WriteJSONError(w, http.StatusConflict, helpers.ErrCodeConflict, "event is sold out")
		case errors.Is(err, domain.ErrDuplicateTicket):
			helpers.WriteJSONError(w, http.StatusConflict, helpers.ErrCodeConflict, "holder already has a ticket for this event")
		default:
			c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
			helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, err.Error())
		}
		return
	}

	helpers.WriteJSONSuccess(w, http.StatusCreated, ticketView(ticket))
}

// MyTicketsSuccessResponse is the success response envelope for GET /tickets/mine.
type MyTicketsSuccessResponse struct {
	Data  []*domain.Ticket  `json:"data"`
	Error *helpers.APIError `json:"error"`
}

// MyTickets godoc
// @Summary List the calling holder's tickets
// @Tags tickets
// @Produce json
// @Param X-Holder-ID header string true "Holder ID"
// @Success 200 {object} controllers.MyTicketsSuccessResponse
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /tickets/mine [get]
func (c *TicketController) MyTickets(w http.ResponseWriter, r *http.Request) {
	holderID, ok := middleware.HolderIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}

	tickets, err := c.Queries.ListHolderTickets(r.Context(), holderID)
	if err != nil {
		c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, err.Error())
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, ticketViews(tickets))
}

// GetTicket godoc
// @Summary Get one of the calling holder's tickets
// @Tags tickets
// @Produce json
// @Param X-Holder-ID header string true "Holder ID"
// @Param ticketID path string true "Ticket ID (UUID)"
// @Success 200 {object} controllers.TicketSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /tickets/{ticketID} [get]
func (c *TicketController) GetTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := r.PathValue("ticketID")
	if !uuidRegex.MatchString(ticketID) {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "invalid ticketID")
		return
	}
	holderID, ok := middleware.HolderIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}

	ticket, err := c.Queries.GetTicket(r.Context(), ticketID)
	if err != nil {
		if errors.Is(err, domain.ErrTicketNotFound) {
			helpers.WriteJSONError(w, http.StatusNotFound, helpers.ErrCodeNotFound, "ticket not found")
			return
		}
		c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, err.Error())
		return
	}
	if ticket.HolderID != holderID {
		helpers.WriteJSONError(w, http.StatusForbidden, helpers.ErrCodeForbidden, "forbidden")
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, ticketView(ticket))
}

// CancelTicket godoc
// @Summary Cancel one of the calling holder's tickets
// @Description Voids an issued ticket, freeing its seat. A used ticket cannot be cancelled; cancelling twice is a no-op.
// @Tags tickets
// @Produce json
// @Param X-Holder-ID header string true "Holder ID"
// @Param ticketID path string true "Ticket ID (UUID)"
// @Success 200 {object} controllers.TicketSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 409 {object} helpers.APIResponse "error.code: conflict (ticket already used)"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /tickets/{ticketID} [delete]
func (c *TicketController) CancelTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := r.PathValue("ticketID")
	if !uuidRegex.MatchString(ticketID) {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "invalid ticketID")
		return
	}
	holderID, ok := middleware.HolderIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}

	ticket, err := c.Queries.GetTicket(r.Context(), ticketID)
	if err != nil {
		if errors.Is(err, domain.ErrTicketNotFound) {
			helpers.WriteJSONError(w, http.StatusNotFound, helpers.ErrCodeNotFound, "ticket not found")
			return
		}
		c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, err.Error())
		return
	}
	if ticket.HolderID != holderID {
		helpers.WriteJSONError(w, http.StatusForbidden, helpers.ErrCodeForbidden, "forbidden")
		return
	}

	cancelled, err := c.CheckIn.Cancel(r.Context(), ticketID)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyUsed) {
			helpers.WriteJSONError(w, http.StatusConflict, helpers.ErrCodeConflict, "ticket has already been used")
			return
		}
		c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, err.Error())
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, ticketView(cancelled))
}

// ResendConfirmation godoc
// @Summary Resend the ticket confirmation email
// @Description Re-queues the confirmation for the calling holder's ticket. Limited per recipient within a rolling window; a confirmation that was already delivered for this ticket is not sent twice.
// @Tags tickets
// @Produce json
// @Param X-Holder-ID header string true "Holder ID"
// @Param ticketID path string true "Ticket ID (UUID)"
// @Success 202 {object} helpers.APIResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 401 {object} helpers.APIResponse "error.code: unauthorized"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 429 {object} helpers.APIResponse "error.code: too_many_requests"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /tickets/{ticketID}/resend [post]
func (c *TicketController) ResendConfirmation(w http.ResponseWriter, r *http.Request) {
	ticketID := r.PathValue("ticketID")
	if !uuidRegex.MatchString(ticketID) {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "invalid ticketID")
		return
	}
	holderID, ok := middleware.HolderIDFromContext(r.Context())
	if !ok {
		helpers.WriteJSONError(w, http.StatusUnauthorized, helpers.ErrCodeUnauthorized, "unauthorized")
		return
	}

	if err := c.Queue.Resend(r.Context(), ticketID, holderID); err != nil {
		switch {
		case errors.Is(err, domain.ErrTicketNotFound):
			helpers.WriteJSONError(w, http.StatusNotFound, helpers.ErrCodeNotFound, "ticket not found")
		case errors.Is(err, domain.ErrForbidden):
			helpers.WriteJSONError(w, http.StatusForbidden, helpers.ErrCodeForbidden, "forbidden")
		case errors.Is(err, domain.ErrRateLimited):
			helpers.WriteJSONError(w, http.StatusTooManyRequests, helpers.ErrCodeTooManyRequests, "resend limit reached, try again later")
		default:
			c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
			helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, err.Error())
		}
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// ViewTicket godoc
// @Summary View a ticket through an emailed signed link
// @Description Resolves the signed token from a confirmation email to its ticket. No session is required; the token itself proves the link was minted for the ticket's holder.
// @Tags tickets
// @Produce json
// @Param token query string true "Signed view token"
// @Success 200 {object} controllers.TicketSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 403 {object} helpers.APIResponse "error.code: forbidden (invalid or expired token)"
// @Failure 404 {object} helpers.APIResponse "error.code: not_found"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /tickets/view [get]
func (c *TicketController) ViewTicket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "missing token")
		return
	}

	ticket, err := c.Queries.ViewSigned(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrForbidden):
			helpers.WriteJSONError(w, http.StatusForbidden, helpers.ErrCodeForbidden, "invalid or expired link")
		case errors.Is(err, domain.ErrTicketNotFound):
			helpers.WriteJSONError(w, http.StatusNotFound, helpers.ErrCodeNotFound, "ticket not found")
		default:
			c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
			helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, err.Error())
		}
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, ticketView(ticket))
}
