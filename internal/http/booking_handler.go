package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/availability-engine/internal/application"
	"github.com/example/availability-engine/internal/persistence"
)

// BookingHandler serves the write side of the booking lifecycle.
type BookingHandler struct {
	service   *application.BookingService
	responder responder
}

func NewBookingHandler(service *application.BookingService, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{service: service, responder: newResponder(logger)}
}

type bookingRequest struct {
	AccountID    string    `json:"account_id"`
	TypeID       string    `json:"type_id"`
	Start        time.Time `json:"start"`
	InviteeName  string    `json:"invitee_name"`
	InviteeEmail string    `json:"invitee_email"`
	Notes        string    `json:"notes"`
}

type bookingResponse struct {
	ID                string    `json:"id"`
	Status            string    `json:"status"`
	Start             time.Time `json:"start"`
	End               time.Time `json:"end"`
	InviteeName       string    `json:"invitee_name"`
	InviteeEmail      string    `json:"invitee_email"`
	CancellationToken string    `json:"cancellation_token,omitempty"`
	ConferencingURI   string    `json:"conferencing_uri,omitempty"`
	CalendarCreated   bool      `json:"calendar_created"`
}

func toBookingResponse(appointment persistence.Appointment, calendarCreated bool) bookingResponse {
	return bookingResponse{
		ID:                appointment.ID,
		Status:            appointment.Status,
		Start:             appointment.Start,
		End:               appointment.End,
		InviteeName:       appointment.InviteeName,
		InviteeEmail:      appointment.InviteeEmail,
		CancellationToken: appointment.CancellationToken,
		ConferencingURI:   appointment.ConferencingURI,
		CalendarCreated:   calendarCreated,
	}
}

// Create handles POST /bookings.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	result, err := h.service.Book(r.Context(), application.BookingParams{
		AccountID:    req.AccountID,
		TypeID:       req.TypeID,
		Start:        req.Start,
		InviteeName:  req.InviteeName,
		InviteeEmail: req.InviteeEmail,
		Notes:        req.Notes,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated,
		toBookingResponse(result.Appointment, result.CalendarCreated))
}

// Cancel handles POST /bookings/{token}/cancel.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request, token string) {
	appointment, err := h.service.Cancel(r.Context(), token)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	response := toBookingResponse(appointment, appointment.ExternalEventID != "")
	response.CancellationToken = ""
	h.responder.writeJSON(r.Context(), w, http.StatusOK, response)
}

type rescheduleRequest struct {
	Start time.Time `json:"start"`
}

// Reschedule handles POST /bookings/{token}/reschedule.
func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request, token string) {
	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	appointment, err := h.service.Reschedule(r.Context(), application.RescheduleParams{
		CancellationToken: token,
		NewStart:          req.Start,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK,
		toBookingResponse(appointment, appointment.ExternalEventID != ""))
}
