package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Set holds the engine's Prometheus collectors.
type Set struct {
	registry *prometheus.Registry

	ReservationsCreated  prometheus.Counter
	ReservationConflicts prometheus.Counter
	SessionsCompleted    prometheus.Counter
	SessionsCancelled    *prometheus.CounterVec
	EnergyDeliveredKWh   prometheus.Counter
}

// New registers the engine collectors on the given registerer. A nil registerer
// creates a private registry. Already-registered collectors are reused.
func New(reg *prometheus.Registry) (*Set, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	s := &Set{registry: reg}

	s.ReservationsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "charging_reservations_created_total",
		Help: "Reservations successfully committed",
	})
	s.ReservationConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "charging_reservation_conflicts_total",
		Help: "Reservation requests rejected due to an overlapping window",
	})
	s.SessionsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "charging_sessions_completed_total",
		Help: "Charging sessions that reached completed",
	})
	s.SessionsCancelled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "charging_sessions_cancelled_total",
		Help: "Charging sessions cancelled, by initiating party",
	}, []string{"cancelled_by"})
	s.EnergyDeliveredKWh = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "charging_energy_delivered_kwh_total",
		Help: "Total energy billed across completed and cancelled sessions",
	})

	collectors := []prometheus.Collector{
		s.ReservationsCreated,
		s.ReservationConflicts,
		s.SessionsCompleted,
		s.SessionsCancelled,
		s.EnergyDeliveredKWh,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}
	return s, nil
}

// Handler exposes the registry for scraping.
func (s *Set) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}
