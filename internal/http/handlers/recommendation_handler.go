package handlers

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"voltway/internal/geo"
	"voltway/internal/service"
)

// Recommender scores chargers for a driver request.
type Recommender interface {
	Recommend(ctx context.Context, origin geo.Point, vehicleID string, targetChargePct float64, w service.Weights) (*service.Recommendation, error)
}

// NewRecommendationHandler returns GET /recommendation handler.
func NewRecommendationHandler(svc Recommender, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
		lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
		if errLat != nil || errLon != nil {
			writeError(w, http.StatusBadRequest, "lat and lon are required")
			return
		}
		vehicleID := q.Get("vehicle_id")
		if vehicleID == "" {
			writeError(w, http.StatusBadRequest, "vehicle_id is required")
			return
		}
		target, err := strconv.ParseFloat(q.Get("target_charge"), 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "target_charge is required")
			return
		}

		weights := service.Weights{
			Distance:       queryFloat(q.Get("weight_distance")),
			Cost:           queryFloat(q.Get("weight_cost")),
			ChargeDuration: queryFloat(q.Get("weight_charge_duration")),
			Delay:          queryFloat(q.Get("weight_delay")),
		}

		rec, err := svc.Recommend(r.Context(), geo.Point{Lat: lat, Lon: lon}, vehicleID, target, weights)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

func queryFloat(raw string) float64 {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return v
}
