package service

import (
	"context"
	"sync"
	"time"

	"voltway/internal/events"
	"voltway/internal/models"
	"voltway/internal/repository"
	"voltway/internal/telemetry"
)

// manualClock drives the services' time in tests.
type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func newManualClock(t time.Time) *manualClock {
	return &manualClock{t: t.UTC()}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type memChargerStore struct {
	mu       sync.Mutex
	chargers map[string]models.Charger
	avgPower map[string]float64
}

func newMemChargerStore(chargers ...models.Charger) *memChargerStore {
	s := &memChargerStore{
		chargers: make(map[string]models.Charger),
		avgPower: make(map[string]float64),
	}
	for _, c := range chargers {
		s.chargers[c.ID] = c
	}
	return s
}

func (s *memChargerStore) GetByID(_ context.Context, id string) (*models.Charger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chargers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (s *memChargerStore) ListByConnector(_ context.Context, connector models.ConnectorType, status string) ([]models.Charger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Charger
	for _, c := range s.chargers {
		if c.ConnectorType == connector && c.Status == status {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memChargerStore) AveragePowerKW(_ context.Context, chargerID string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	avg, ok := s.avgPower[chargerID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	return avg, nil
}

type memVehicleStore struct {
	mu       sync.Mutex
	vehicles map[string]models.Vehicle
}

func newMemVehicleStore(vehicles ...models.Vehicle) *memVehicleStore {
	s := &memVehicleStore{vehicles: make(map[string]models.Vehicle)}
	for _, v := range vehicles {
		s.vehicles[v.ID] = v
	}
	return s
}

func (s *memVehicleStore) GetByID(_ context.Context, id string) (*models.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &v, nil
}

type memReservationStore struct {
	mu           sync.Mutex
	reservations map[string]models.Reservation
	createErr    error
}

func newMemReservationStore() *memReservationStore {
	return &memReservationStore{reservations: make(map[string]models.Reservation)}
}

func (s *memReservationStore) Create(_ context.Context, r *models.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.reservations[r.ID] = *r
	return nil
}

func (s *memReservationStore) GetByID(_ context.Context, id string) (*models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func (s *memReservationStore) Update(_ context.Context, r *models.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reservations[r.ID]; !ok {
		return repository.ErrNotFound
	}
	s.reservations[r.ID] = *r
	return nil
}

func (s *memReservationStore) ListByStatus(_ context.Context, status string) ([]models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Reservation
	for _, r := range s.reservations {
		if r.Status == status {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memReservationStore) ListBlocking(_ context.Context) ([]models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Reservation
	for _, r := range s.reservations {
		if r.Status == models.ReservationStatusUpcoming || r.Status == models.ReservationStatusActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memReservationStore) ListByUser(_ context.Context, userID string, limit int) ([]models.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Reservation
	for _, r := range s.reservations {
		if r.UserID == userID {
			out = append(out, r)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]models.ChargingSession
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: make(map[string]models.ChargingSession)}
}

func (s *memSessionStore) Create(_ context.Context, sess *models.ChargingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = *sess
	return nil
}

func (s *memSessionStore) GetByID(_ context.Context, id string) (*models.ChargingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &sess, nil
}

func (s *memSessionStore) Update(_ context.Context, sess *models.ChargingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; !ok {
		return repository.ErrNotFound
	}
	s.sessions[sess.ID] = *sess
	return nil
}

func (s *memSessionStore) FindNonTerminalByReservation(_ context.Context, reservationID string) (*models.ChargingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.ReservationID == reservationID && !sess.IsTerminal() {
			out := sess
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memSessionStore) ListAwaitingConfirmation(_ context.Context) ([]models.ChargingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ChargingSession
	for _, sess := range s.sessions {
		switch sess.Status {
		case models.SessionStatusWaitingConfirmations, models.SessionStatusAdminConfirmed, models.SessionStatusUserConfirmed:
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *memSessionStore) ListByUser(_ context.Context, userID string, limit int) ([]models.ChargingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ChargingSession
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			out = append(out, sess)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// capturePublisher records every published event.
type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	p.events = append(p.events, ev)
	p.mu.Unlock()
	return nil
}

func (p *capturePublisher) typesSeen() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

// fakeMeter is a deterministic Meter for orchestrator tests.
type fakeMeter struct {
	mu        sync.Mutex
	energy    float64
	power     float64
	stopCalls int
}

func (m *fakeMeter) setEnergy(kwh float64) {
	m.mu.Lock()
	m.energy = kwh
	m.mu.Unlock()
}

func (m *fakeMeter) Reading() telemetry.Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return telemetry.Sample{EnergyKWh: m.energy, PowerKW: m.power}
}

func (m *fakeMeter) Status() telemetry.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return telemetry.Status{EnergyKWh: m.energy, PowerKW: m.power}
}

func (m *fakeMeter) Stop() telemetry.Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalls++
	return telemetry.Sample{EnergyKWh: m.energy}
}
