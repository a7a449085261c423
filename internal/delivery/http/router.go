package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"campustickets/internal/delivery/http/controllers"
)

// NewRouter initializes the HTTP router with all application routes
func NewRouter(
	ticketController *controllers.TicketController,
	checkInController *controllers.CheckInController,
	deliveryController *controllers.DeliveryController,
) *http.ServeMux {
	mux := http.NewServeMux()

	// Holder-facing ticket routes
	mux.HandleFunc("POST /tickets", ticketController.IssueTicket)
	mux.HandleFunc("GET /tickets/mine", ticketController.MyTickets)
	mux.HandleFunc("GET /tickets/view", ticketController.ViewTicket)
	mux.HandleFunc("GET /tickets/{ticketID}", ticketController.GetTicket)
	mux.HandleFunc("DELETE /tickets/{ticketID}", ticketController.CancelTicket)
	mux.HandleFunc("POST /tickets/{ticketID}/resend", ticketController.ResendConfirmation)

	// Door routes
	mux.HandleFunc("POST /events/{eventID}/checkin", checkInController.CheckInTicket)
	mux.HandleFunc("GET /events/{eventID}/tickets", checkInController.ListEventTickets)

	// Operator routes
	mux.HandleFunc("GET /admin/deliveries", deliveryController.ListDeliveries)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Swagger
	mux.Handle("/swagger/", httpSwagger.WrapHandler)

	return mux
}
