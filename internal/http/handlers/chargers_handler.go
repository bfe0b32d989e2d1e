package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"voltway/internal/models"
	"voltway/internal/service"
)

// ChargerDirectory lists chargers with their live occupancy.
type ChargerDirectory interface {
	ListChargers(ctx context.Context, connector models.ConnectorType, minDuration time.Duration) ([]service.ChargerAvailability, error)
}

// NewChargersHandler returns GET /chargers handler.
func NewChargersHandler(svc ChargerDirectory, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		connector := models.ConnectorType(q.Get("connector"))
		if connector == "" {
			writeError(w, http.StatusBadRequest, "connector is required")
			return
		}
		minDurationMin, _ := strconv.Atoi(q.Get("min_duration_minutes"))

		chargers, err := svc.ListChargers(r.Context(), connector, time.Duration(minDurationMin)*time.Minute)
		if err != nil {
			logger.Error("list chargers failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to fetch chargers")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"chargers": chargers})
	}
}
