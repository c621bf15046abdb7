package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/availability-engine/internal/application"
	"github.com/example/availability-engine/internal/calendar"
)

// ConnectionHandler manages calendar connections. Incoming grants carry
// plaintext tokens over TLS; responses never echo token material back.
type ConnectionHandler struct {
	service   *application.ConnectionService
	responder responder
}

func NewConnectionHandler(service *application.ConnectionService, logger *slog.Logger) *ConnectionHandler {
	return &ConnectionHandler{service: service, responder: newResponder(logger)}
}

type connectRequest struct {
	AccountID    string    `json:"account_id"`
	Provider     string    `json:"provider"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Primary      bool      `json:"primary"`
}

type connectionResponse struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Provider  string    `json:"provider"`
	Email     string    `json:"email,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	Primary   bool      `json:"primary"`
}

func toConnectionResponse(conn calendar.Connection) connectionResponse {
	return connectionResponse{
		ID:        conn.ID,
		AccountID: conn.AccountID,
		Provider:  conn.Provider,
		Email:     conn.Email,
		ExpiresAt: conn.ExpiresAt,
		Primary:   conn.Primary,
	}
}

// Create handles POST /connections.
func (h *ConnectionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	conn, err := h.service.Connect(r.Context(), application.ConnectParams{
		AccountID:    req.AccountID,
		Provider:     req.Provider,
		Email:        req.Email,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		ExpiresAt:    req.ExpiresAt,
		Primary:      req.Primary,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toConnectionResponse(conn))
}

// List handles GET /connections.
func (h *ConnectionHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	connections, err := h.service.List(r.Context(), accountID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	responses := make([]connectionResponse, 0, len(connections))
	for _, conn := range connections {
		responses = append(responses, toConnectionResponse(conn))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, map[string]any{"connections": responses})
}

// Delete handles DELETE /connections/{id}.
func (h *ConnectionHandler) Delete(w http.ResponseWriter, r *http.Request, id string) {
	accountID := r.URL.Query().Get("account_id")
	if err := h.service.Disconnect(r.Context(), accountID, id); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}
