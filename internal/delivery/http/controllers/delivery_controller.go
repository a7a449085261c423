package controllers

import (
	"log/slog"
	"net/http"
	"strconv"

	"campustickets/internal/delivery/http/helpers"
	"campustickets/internal/domain"
)

// DeliveryController exposes the operator's read-only window into the
// delivery log, mainly for inspecting terminal failures.
type DeliveryController struct {
	Logger      *slog.Logger
	DeliveryLog domain.DeliveryLogRepository
}

func NewDeliveryController(logger *slog.Logger, deliveryLog domain.DeliveryLogRepository) *DeliveryController {
	return &DeliveryController{
		Logger:      logger,
		DeliveryLog: deliveryLog,
	}
}

const (
	defaultDeliveryListLimit = 50
	maxDeliveryListLimit     = 500
)

// DeliveriesSuccessResponse is the success response envelope for GET /admin/deliveries (200).
type DeliveriesSuccessResponse struct {
	Data  []*domain.DeliveryLogEntry `json:"data"`
	Error *helpers.APIError          `json:"error"`
}

// ListDeliveries godoc
// @Summary List delivery log entries by status
// @Description Returns recent delivery log entries with the given status (queued, sent, or failed), newest first.
// @Tags admin
// @Produce json
// @Param status query string false "Delivery status" default(failed)
// @Param limit query int false "Maximum entries" default(50)
// @Success 200 {object} controllers.DeliveriesSuccessResponse
// @Failure 400 {object} helpers.APIResponse "error.code: bad_request"
// @Failure 500 {object} helpers.APIResponse "error.code: internal_error"
// @Router /admin/deliveries [get]
func (c *DeliveryController) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	status := domain.DeliveryStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = domain.DeliveryFailed
	}
	switch status {
	case domain.DeliveryQueued, domain.DeliverySent, domain.DeliveryFailed:
	default:
		helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "status must be queued, sent, or failed")
		return
	}

	limit := defaultDeliveryListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			helpers.WriteJSONError(w, http.StatusBadRequest, helpers.ErrCodeBadRequest, "limit must be a positive integer")
			return
		}
		limit = v
		if limit > maxDeliveryListLimit {
			limit = maxDeliveryListLimit
		}
	}

	entries, err := c.DeliveryLog.ListByStatus(r.Context(), status, limit)
	if err != nil {
		c.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "method", r.Method, "err", err)
		helpers.WriteJSONError(w, http.StatusInternalServerError, helpers.ErrCodeInternalError, err.Error())
		return
	}
	helpers.WriteJSONSuccess(w, http.StatusOK, entries)
}
