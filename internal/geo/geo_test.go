package geo

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"
)

func TestDistanceKmKnownPoints(t *testing.T) {
	moscow := Point{Lat: 55.7558, Lon: 37.6173}
	spb := Point{Lat: 59.9311, Lon: 30.3609}

	got := DistanceKm(moscow, spb)
	// great-circle distance Moscow-Petersburg is roughly 634 km
	if math.Abs(got-634) > 5 {
		t.Fatalf("DistanceKm = %.1f, want ~634", got)
	}

	if d := DistanceKm(moscow, moscow); d != 0 {
		t.Fatalf("distance to self = %f, want 0", d)
	}
	if d1, d2 := DistanceKm(moscow, spb), DistanceKm(spb, moscow); math.Abs(d1-d2) > 1e-9 {
		t.Fatalf("distance not symmetric: %f vs %f", d1, d2)
	}
}

type stubEstimator struct {
	km    float64
	err   error
	delay time.Duration
}

func (s stubEstimator) EstimateKm(ctx context.Context, _, _ Point) (float64, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return s.km, s.err
}

func TestBoundedEstimatorPassesThrough(t *testing.T) {
	e := BoundedEstimator{Inner: stubEstimator{km: 42}, Timeout: time.Second}
	got, err := e.EstimateKm(context.Background(), Point{}, Point{Lat: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Fatalf("EstimateKm = %f, want 42", got)
	}
}

func TestBoundedEstimatorFallsBackOnError(t *testing.T) {
	from := Point{Lat: 55.7558, Lon: 37.6173}
	to := Point{Lat: 55.76, Lon: 37.62}

	e := BoundedEstimator{Inner: stubEstimator{err: errors.New("routing down")}, Timeout: time.Second}
	got, err := e.EstimateKm(context.Background(), from, to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := DistanceKm(from, to); math.Abs(got-want) > 1e-9 {
		t.Fatalf("fallback = %f, want haversine %f", got, want)
	}
}

func TestBoundedEstimatorFallsBackOnTimeout(t *testing.T) {
	from := Point{Lat: 55.7558, Lon: 37.6173}
	to := Point{Lat: 55.76, Lon: 37.62}

	e := BoundedEstimator{Inner: stubEstimator{km: 999, delay: time.Second}, Timeout: 10 * time.Millisecond}
	got, err := e.EstimateKm(context.Background(), from, to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := DistanceKm(from, to); math.Abs(got-want) > 1e-9 {
		t.Fatalf("timeout fallback = %f, want haversine %f", got, want)
	}
}
