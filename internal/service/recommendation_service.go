package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"voltway/internal/geo"
	"voltway/internal/models"
	"voltway/internal/repository"
	"voltway/internal/schedule"
)

// Weights is a driver's preference vector. Each component must lie in [0, 1].
// Before combination the vector is normalized to sum to 1; an all-zero vector
// falls back to equal weighting.
type Weights struct {
	Distance       float64 `json:"distance"`
	Cost           float64 `json:"cost"`
	ChargeDuration float64 `json:"charge_duration"`
	Delay          float64 `json:"delay"`
}

func (w Weights) validate() error {
	for _, v := range []float64{w.Distance, w.Cost, w.ChargeDuration, w.Delay} {
		if v < 0 || v > 1 {
			return validationf("weights must be in [0, 1]")
		}
	}
	return nil
}

func (w Weights) normalized() Weights {
	sum := w.Distance + w.Cost + w.ChargeDuration + w.Delay
	if sum == 0 {
		return Weights{Distance: 0.25, Cost: 0.25, ChargeDuration: 0.25, Delay: 0.25}
	}
	return Weights{
		Distance:       w.Distance / sum,
		Cost:           w.Cost / sum,
		ChargeDuration: w.ChargeDuration / sum,
		Delay:          w.Delay / sum,
	}
}

// Recommendation is the scorer's winning candidate plus the estimates the
// caller needs to build a reservation proposal.
type Recommendation struct {
	Charger         models.Charger `json:"charger"`
	ChargeMinutes   float64        `json:"charge_minutes"`
	WaitMinutes     float64        `json:"wait_minutes"`
	EnergyNeededKWh float64        `json:"energy_needed_kwh"`
	DistanceKm      float64        `json:"distance_km"`
	EstimatedCost   float64        `json:"estimated_cost"`
	Score           float64        `json:"score"`
}

// RecommendationService ranks compatible chargers against a driver's weighted
// preferences and target state of charge.
type RecommendationService struct {
	chargers ChargerStore
	vehicles VehicleStore
	index    *schedule.Index
	travel   geo.TravelEstimator
	logger   *zap.Logger
	horizon  time.Duration
	now      func() time.Time
}

// NewRecommendationService builds the scorer.
func NewRecommendationService(
	chargers ChargerStore,
	vehicles VehicleStore,
	index *schedule.Index,
	travel geo.TravelEstimator,
	logger *zap.Logger,
	horizon time.Duration,
) *RecommendationService {
	if travel == nil {
		travel = geo.HaversineEstimator{}
	}
	if horizon <= 0 {
		horizon = 7 * 24 * time.Hour
	}
	return &RecommendationService{
		chargers: chargers,
		vehicles: vehicles,
		index:    index,
		travel:   travel,
		logger:   logger,
		horizon:  horizon,
		now:      time.Now,
	}
}

type candidate struct {
	charger  models.Charger
	chargeMn float64
	waitMn   float64
	distKm   float64
	cost     float64
	score    float64
}

// Recommend returns the best charger for the request, or a not-found error when
// no compatible charger has a usable window inside the horizon.
func (s *RecommendationService) Recommend(ctx context.Context, origin geo.Point, vehicleID string, targetChargePct float64, w Weights) (*Recommendation, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}
	if targetChargePct > 100 {
		return nil, validationf("target charge %.1f%% exceeds 100%%", targetChargePct)
	}

	vehicle, err := s.vehicles.GetByID(ctx, vehicleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundf("vehicle %s not found", vehicleID)
		}
		return nil, err
	}
	if targetChargePct <= vehicle.ChargeLevel {
		return nil, notFoundf("vehicle already at %.1f%%, nothing to charge", vehicle.ChargeLevel)
	}

	energyNeeded := vehicle.BatteryCapacityKWh * (targetChargePct - vehicle.ChargeLevel) / 100

	chargers, err := s.chargers.ListByConnector(ctx, vehicle.ConnectorType, models.ChargerStatusAvailable)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	candidates := make([]candidate, 0, len(chargers))
	for _, c := range chargers {
		power := c.PowerKW
		if power <= 0 {
			// rated power unknown: estimate from historical throughput
			if avg, err := s.chargers.AveragePowerKW(ctx, c.ID); err == nil {
				power = avg
			}
		}
		if power <= 0 {
			continue
		}

		chargeMn := energyNeeded / power * 60
		chargeDur := time.Duration(chargeMn * float64(time.Minute))

		var waitMn float64
		if !s.index.IsFree(c.ID, now, now.Add(chargeDur)) {
			window, found := s.index.NextAvailable(c.ID, now, chargeDur, s.horizon)
			if !found {
				continue
			}
			waitMn = window.Start.Sub(now).Minutes()
		}

		distKm, err := s.travel.EstimateKm(ctx, origin, geo.Point{Lat: c.Latitude, Lon: c.Longitude})
		if err != nil {
			distKm = geo.DistanceKm(origin, geo.Point{Lat: c.Latitude, Lon: c.Longitude})
		}

		candidates = append(candidates, candidate{
			charger:  c,
			chargeMn: chargeMn,
			waitMn:   waitMn,
			distKm:   distKm,
			cost:     energyNeeded * c.EnergyPrice,
		})
	}
	if len(candidates) == 0 {
		return nil, notFoundf("no charger can satisfy this request in time")
	}

	score(candidates, w.normalized())

	// deterministic: sort by score, then by charger id
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score < candidates[j].score
		}
		return candidates[i].charger.ID < candidates[j].charger.ID
	})
	best := candidates[0]

	s.logger.Debug("recommendation scored",
		zap.String("charger_id", best.charger.ID),
		zap.Float64("score", best.score),
		zap.Int("candidates", len(candidates)),
	)
	return &Recommendation{
		Charger:         best.charger,
		ChargeMinutes:   best.chargeMn,
		WaitMinutes:     best.waitMn,
		EnergyNeededKWh: energyNeeded,
		DistanceKm:      best.distKm,
		EstimatedCost:   best.cost,
		Score:           best.score,
	}, nil
}

// score min-max normalizes each metric across the candidate set (0 best, 1
// worst) and combines them with the normalized weights. A single candidate
// normalizes to 0 for every metric.
func score(candidates []candidate, w Weights) {
	norm := func(get func(candidate) float64) []float64 {
		lo, hi := get(candidates[0]), get(candidates[0])
		for _, c := range candidates[1:] {
			v := get(c)
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		out := make([]float64, len(candidates))
		if hi == lo {
			return out
		}
		for i, c := range candidates {
			out[i] = (get(c) - lo) / (hi - lo)
		}
		return out
	}

	dist := norm(func(c candidate) float64 { return c.distKm })
	cost := norm(func(c candidate) float64 { return c.cost })
	charge := norm(func(c candidate) float64 { return c.chargeMn })
	delay := norm(func(c candidate) float64 { return c.waitMn })

	for i := range candidates {
		candidates[i].score = w.Distance*dist[i] +
			w.Cost*cost[i] +
			w.ChargeDuration*charge[i] +
			w.Delay*delay[i]
	}
}
