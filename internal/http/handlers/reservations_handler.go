package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"voltway/internal/http/middleware"
	"voltway/internal/models"
	"voltway/internal/schedule"
	"voltway/internal/service"
)

// ReservationScheduler commits and cancels reservations.
type ReservationScheduler interface {
	CreateReservation(ctx context.Context, in service.CreateReservationInput) (*models.Reservation, error)
	CancelReservation(ctx context.Context, id, reason string) (*models.Reservation, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Reservation, error)
	NextAvailable(ctx context.Context, chargerID string, minDuration, lookAhead time.Duration) (schedule.Interval, bool, error)
}

// ReservationsHandler holds the reservation endpoints.
type ReservationsHandler struct {
	svc    ReservationScheduler
	logger *zap.Logger
}

// NewReservationsHandler builds handler set.
func NewReservationsHandler(svc ReservationScheduler, logger *zap.Logger) *ReservationsHandler {
	return &ReservationsHandler{svc: svc, logger: logger}
}

type createReservationRequest struct {
	VehicleID          string    `json:"vehicle_id"`
	ChargerID          string    `json:"charger_id"`
	UserID             string    `json:"user_id"`
	StartTime          time.Time `json:"start_time"`
	EndTime            time.Time `json:"end_time"`
	EstimatedChargeMin float64   `json:"estimated_charge_minutes"`
}

type cancelReservationRequest struct {
	Reason string `json:"reason"`
}

// Create handles POST /reservations.
func (h *ReservationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createReservationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.VehicleID == "" || req.ChargerID == "" {
		writeError(w, http.StatusBadRequest, "vehicle_id and charger_id are required")
		return
	}
	userID := req.UserID
	if userID == "" {
		userID, _ = middleware.UserIDFromContext(r.Context())
	}

	res, err := h.svc.CreateReservation(r.Context(), service.CreateReservationInput{
		VehicleID:          req.VehicleID,
		ChargerID:          req.ChargerID,
		UserID:             userID,
		Start:              req.StartTime,
		End:                req.EndTime,
		EstimatedChargeMin: req.EstimatedChargeMin,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Cancel handles POST /reservations/{id}/cancel.
func (h *ReservationsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req cancelReservationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	res, err := h.svc.CancelReservation(r.Context(), id, req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Me handles GET /reservations/me.
func (h *ReservationsHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		userID = r.Header.Get("X-User-ID")
	}
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	reservations, err := h.svc.ListByUser(r.Context(), userID, 50)
	if err != nil {
		h.logger.Error("list reservations failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch reservations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reservations": reservations})
}

// NextAvailable handles GET /chargers/{id}/next-available.
func (h *ReservationsHandler) NextAvailable(w http.ResponseWriter, r *http.Request) {
	chargerID := r.PathValue("id")
	q := r.URL.Query()

	minDurationMin, err := strconv.Atoi(q.Get("min_duration_minutes"))
	if err != nil || minDurationMin <= 0 {
		writeError(w, http.StatusBadRequest, "min_duration_minutes is required")
		return
	}
	lookAheadDays, _ := strconv.Atoi(q.Get("look_ahead_days"))

	window, found, err := h.svc.NextAvailable(r.Context(), chargerID,
		time.Duration(minDurationMin)*time.Minute,
		time.Duration(lookAheadDays)*24*time.Hour,
	)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusOK, map[string]interface{}{"found": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"found": true,
		"start": window.Start.Format(time.RFC3339),
		"end":   window.End.Format(time.RFC3339),
	})
}
