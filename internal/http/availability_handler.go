package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/availability-engine/internal/application"
)

// AvailabilityHandler serves the read side: open dates, slots and prewarm.
type AvailabilityHandler struct {
	service   *application.AvailabilityService
	responder responder
}

func NewAvailabilityHandler(service *application.AvailabilityService, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{service: service, responder: newResponder(logger)}
}

// ListDates handles GET /availability/dates.
func (h *AvailabilityHandler) ListDates(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	days, err := h.service.ListAvailableDates(r.Context(), application.ListDatesParams{
		AccountID: query.Get("account_id"),
		TypeID:    query.Get("type_id"),
		From:      query.Get("from"),
		To:        query.Get("to"),
		TimeZone:  query.Get("timezone"),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"dates": days})
}

// ListSlots handles GET /availability/slots. A team_members parameter with
// comma separated account ids switches to the merged team listing.
func (h *AvailabilityHandler) ListSlots(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var views []application.SlotView
	var err error
	if members := query.Get("team_members"); members != "" {
		views, err = h.service.ListTeamSlots(r.Context(), application.TeamSlotsParams{
			HostAccountID:    query.Get("account_id"),
			MemberAccountIDs: splitMembers(members),
			TypeID:           query.Get("type_id"),
			Date:             query.Get("date"),
			TimeZone:         query.Get("timezone"),
		})
	} else {
		views, err = h.service.ListSlots(r.Context(), application.ListSlotsParams{
			AccountID: query.Get("account_id"),
			TypeID:    query.Get("type_id"),
			Date:      query.Get("date"),
			TimeZone:  query.Get("timezone"),
		})
	}
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	if views == nil {
		views = []application.SlotView{}
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"slots": views})
}

type prewarmRequest struct {
	AccountID string `json:"account_id"`
	Days      int    `json:"days"`
}

// Prewarm handles POST /availability/prewarm. The fill runs in the
// background; the request only confirms it was scheduled.
func (h *AvailabilityHandler) Prewarm(w http.ResponseWriter, r *http.Request) {
	var req prewarmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}
	if req.AccountID == "" {
		h.responder.writeJSON(r.Context(), w, http.StatusUnprocessableEntity, errorResponse{
			Message: "The request contains invalid fields.",
			Errors:  map[string]string{"account_id": "account_id is required"},
		})
		return
	}

	h.service.Prewarm(r.Context(), req.AccountID, req.Days)
	h.responder.writeJSON(r.Context(), w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

func splitMembers(raw string) []string {
	var members []string
	for _, member := range strings.Split(raw, ",") {
		if member = strings.TrimSpace(member); member != "" {
			members = append(members, member)
		}
	}
	return members
}
