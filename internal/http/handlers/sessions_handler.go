package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"voltway/internal/http/middleware"
	"voltway/internal/models"
	"voltway/internal/service"
)

// SessionOrchestrator drives the charging session state machine.
type SessionOrchestrator interface {
	InitiateSession(ctx context.Context, in service.InitiateSessionInput) (*models.ChargingSession, error)
	Confirm(ctx context.Context, sessionID, party string) (*models.ChargingSession, error)
	Start(ctx context.Context, sessionID string) (*models.ChargingSession, error)
	Stop(ctx context.Context, sessionID, stoppedBy string) (*models.ChargingSession, error)
	Cancel(ctx context.Context, sessionID, cancelledBy, reason string) (*models.ChargingSession, error)
	Status(ctx context.Context, sessionID string) (*service.SessionStatusView, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]models.ChargingSession, error)
}

// SessionsHandler holds the session endpoints.
type SessionsHandler struct {
	svc    SessionOrchestrator
	logger *zap.Logger
}

// NewSessionsHandler builds handler set.
func NewSessionsHandler(svc SessionOrchestrator, logger *zap.Logger) *SessionsHandler {
	return &SessionsHandler{svc: svc, logger: logger}
}

type initiateSessionRequest struct {
	ReservationID string `json:"reservation_id"`
	ChargerID     string `json:"charger_id"`
	VehicleID     string `json:"vehicle_id"`
	UserID        string `json:"user_id"`
	AdminID       string `json:"admin_id"`
}

type confirmSessionRequest struct {
	UserType string `json:"user_type"`
}

type stopSessionRequest struct {
	StoppedBy string `json:"stopped_by"`
}

type cancelSessionRequest struct {
	CancelledBy string `json:"cancelled_by"`
	Reason      string `json:"reason"`
}

// Initiate handles POST /sessions/initiate.
func (h *SessionsHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req initiateSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.ReservationID == "" {
		writeError(w, http.StatusBadRequest, "reservation_id is required")
		return
	}

	sess, err := h.svc.InitiateSession(r.Context(), service.InitiateSessionInput{
		ReservationID: req.ReservationID,
		ChargerID:     req.ChargerID,
		VehicleID:     req.VehicleID,
		UserID:        req.UserID,
		AdminID:       req.AdminID,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// Confirm handles POST /sessions/{id}/confirm.
func (h *SessionsHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	sess, err := h.svc.Confirm(r.Context(), r.PathValue("id"), req.UserType)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Start handles POST /sessions/{id}/start.
func (h *SessionsHandler) Start(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Start(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Stop handles POST /sessions/{id}/stop.
func (h *SessionsHandler) Stop(w http.ResponseWriter, r *http.Request) {
	var req stopSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.StoppedBy == "" {
		req.StoppedBy = models.PartyUser
	}

	sess, err := h.svc.Stop(r.Context(), r.PathValue("id"), req.StoppedBy)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Cancel handles POST /sessions/{id}/cancel.
func (h *SessionsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelSessionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.CancelledBy == "" {
		writeError(w, http.StatusBadRequest, "cancelled_by is required")
		return
	}

	sess, err := h.svc.Cancel(r.Context(), r.PathValue("id"), req.CancelledBy, req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// Status handles GET /sessions/{id}/status.
func (h *SessionsHandler) Status(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Me handles GET /sessions/me.
func (h *SessionsHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		userID = r.Header.Get("X-User-ID")
	}
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	sessions, err := h.svc.ListByUser(r.Context(), userID, 50)
	if err != nil {
		h.logger.Error("list sessions failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}
