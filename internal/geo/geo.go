package geo

import (
	"context"
	"math"
	"time"
)

const earthRadiusKm = 6371.0

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// DistanceKm returns the great-circle distance between two points (haversine).
func DistanceKm(a, b Point) float64 {
	latA := a.Lat * math.Pi / 180
	latB := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// TravelEstimator estimates driving distance between two points. Implementations
// may call out to an external routing provider.
type TravelEstimator interface {
	EstimateKm(ctx context.Context, from, to Point) (float64, error)
}

// HaversineEstimator is the straight-line estimator used when no routing
// provider is configured.
type HaversineEstimator struct{}

// EstimateKm returns the great-circle distance.
func (HaversineEstimator) EstimateKm(_ context.Context, from, to Point) (float64, error) {
	return DistanceKm(from, to), nil
}

// BoundedEstimator guards a possibly slow estimator with a timeout and falls
// back to straight-line distance on error or deadline, so a slow routing
// dependency cannot stall callers.
type BoundedEstimator struct {
	Inner   TravelEstimator
	Timeout time.Duration
}

// EstimateKm queries the inner estimator within the timeout; any failure yields
// the haversine distance instead.
func (e BoundedEstimator) EstimateKm(ctx context.Context, from, to Point) (float64, error) {
	if e.Inner == nil {
		return DistanceKm(from, to), nil
	}
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		km  float64
		err error
	}
	ch := make(chan result, 1)
	go func() {
		km, err := e.Inner.EstimateKm(ctx, from, to)
		ch <- result{km: km, err: err}
	}()

	select {
	case <-ctx.Done():
		return DistanceKm(from, to), nil
	case res := <-ch:
		if res.err != nil {
			return DistanceKm(from, to), nil
		}
		return res.km, nil
	}
}
