package controllers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"campustickets/internal/delivery/http/helpers"
	"campustickets/internal/domain"
)

type CheckInController struct {
	Logger  *slog.Logger
	Service domain.CheckInService
	Queries domain.TicketQueryService
}

func NewCheckInController(logger *slog.Logger, svc domain.CheckInService, queries domain.TicketQueryService) *CheckInController {
	return &CheckInController{
		Logger:  logger,
		Service: svc,
		Queries: queries,
	}
}

// CheckInRequest is the request body for POST /events/{eventID}/checkin.
// Exactly one of ticket_id or payload must be set: ticket_id for manual
// entry, payload for the raw scanned QR content.
type CheckInRequest struct {
	TicketID string `json:"ticket_id,omitempty"`
	Payload  string `json:"payload,omitempty"`
}

// Validate implements helpers.Validator.
func (r *CheckInRequest) Validate() []string {
	r.TicketID = strings.TrimSpace(r.TicketID)
	if r.TicketID == "" && r.Payload == "" {
		return []string{"one of ticket_id or payload is required"}
	}
	if r.TicketID != "" && r.Payload != "" {
		return []string{"ticket_id and payload are mutually exclusive"}
	}
	if r.TicketID != "" && !uuidRegex.MatchString(r.TicketID) {
		return []string{"ticket_id must be a UUID"}
	}
	return nil
}

// CheckInSuccessResponse is the success response envelope for POST /events/{eventID}/checkin (200).
type CheckInSuccessResponse struct {
	Data  *domain.CheckInResult `json:"data"`
	Error *helpers.APIError     `json:"error"`
}

// CheckInTicket godoc
// @Summary Check a ticket in at the door
// @Description Validates and consumes a ticket for the presenting event. The outcome, accepted or a rejection reason (wrong_event, already_used, cancelled, expired, event_not_approved, not_found, invalid_payload), is reported in the response body with status 200; non-200 statuses indicate request or server faults, not rejections.
// @Tags checkin
// @Accept json
// @Produce json
// @Param eventID path string true "Event ID (UUID)"
// @Param body body controllers.CheckInRequest true "Ticket reference or scanned payload"
// @Success 200 {object} controllers.CheckInSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID}/checkin [post]
func (c *CheckInController) CheckInTicket(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	if !uuidRegex.MatchString(eventID) {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "invalid eventID")
		return
	}

	var req CheckInRequest
	if !helpers.DecodeAndValidate(w, r, &req) {
		return
	}

	var (
		result *domain.CheckInResult
		err    error
	)
	if req.TicketID != "" {
		result, err = c.Service.CheckIn(r.Context(), eventID, req.TicketID)
	} else {
		result, err = c.Service.CheckInPayload(r.Context(), eventID, req.Payload)
	}
	if err != nil {
		c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, err.Error())
		return
	}
	if result.Ticket != nil {
		result.Ticket = ticketView(result.Ticket)
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, result)
}

// EventTicketsSuccessResponse is the success response envelope for GET /events/{eventID}/tickets (200).
type EventTicketsSuccessResponse struct {
	Data  []*domain.EventTicket `json:"data"`
	Error *helpers.APIError     `json:"error"`
}

// ListEventTickets godoc
// @Summary List tickets for an event
// @Description Returns every ticket for the event joined with holder identity, the row set consumed by the attendee export generator.
// @Tags checkin
// @Produce json
// @Param eventID path string true "Event ID (UUID)"
// @Success 200 {object} controllers.EventTicketsSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /events/{eventID}/tickets [get]
func (c *CheckInController) ListEventTickets(w http.ResponseWriter, r *http.Request) {
	eventID := r.PathValue("eventID")
	if !uuidRegex.MatchString(eventID) {
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "invalid eventID")
		return
	}

	rows, err := c.Queries.ListEventTickets(r.Context(), eventID)
	if err != nil {
		c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, err.Error())
		return
	}

	now := time.Now()
	for _, row := range rows {
		row.Status = row.EffectiveStatus(now)
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, rows)
}
