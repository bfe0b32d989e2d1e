package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"voltway/internal/events"
	"voltway/internal/metrics"
	"voltway/internal/models"
	"voltway/internal/repository"
	"voltway/internal/schedule"
)

// ReservationPolicy holds the scheduler's tunable constants.
type ReservationPolicy struct {
	// Buffer is the safety margin appended to the requested end before the
	// charger is considered free again.
	Buffer time.Duration
	// ClockSkew is how far in the past a start time may lie and still be
	// accepted.
	ClockSkew time.Duration
	// Horizon bounds next-available searches.
	Horizon time.Duration
}

// DefaultReservationPolicy mirrors the observed production constants.
func DefaultReservationPolicy() ReservationPolicy {
	return ReservationPolicy{
		Buffer:    20 * time.Minute,
		ClockSkew: 2 * time.Minute,
		Horizon:   7 * 24 * time.Hour,
	}
}

// ReservationService validates reservation requests against the interval index,
// commits them, and advances reservation status over time.
type ReservationService struct {
	chargers     ChargerStore
	vehicles     VehicleStore
	reservations ReservationStore
	sessions     SessionStore
	index        *schedule.Index
	publisher    events.Publisher
	metrics      *metrics.Set
	logger       *zap.Logger
	policy       ReservationPolicy
	now          func() time.Time
}

// NewReservationService builds the scheduler.
func NewReservationService(
	chargers ChargerStore,
	vehicles VehicleStore,
	reservations ReservationStore,
	sessions SessionStore,
	index *schedule.Index,
	publisher events.Publisher,
	metricSet *metrics.Set,
	logger *zap.Logger,
	policy ReservationPolicy,
) *ReservationService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &ReservationService{
		chargers:     chargers,
		vehicles:     vehicles,
		reservations: reservations,
		sessions:     sessions,
		index:        index,
		publisher:    publisher,
		metrics:      metricSet,
		logger:       logger,
		policy:       policy,
		now:          time.Now,
	}
}

// CreateReservationInput is a driver's reservation request.
type CreateReservationInput struct {
	VehicleID string
	ChargerID string
	UserID    string
	Start     time.Time
	End       time.Time
	// EstimatedChargeMin carries the scorer's tCarga when the reservation
	// comes from an accepted recommendation; zero means unknown.
	EstimatedChargeMin float64
}

// CreateReservation commits a reservation when the charger window is free. The
// free check and the occupation run as one atomic step per charger; on conflict
// the blocking window is returned and the request is never adjusted.
func (s *ReservationService) CreateReservation(ctx context.Context, in CreateReservationInput) (*models.Reservation, error) {
	now := s.now().UTC()
	start := in.Start.UTC()
	end := in.End.UTC()

	if !start.Before(end) {
		return nil, validationf("start time %s is not before end time %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	if start.Before(now.Add(-s.policy.ClockSkew)) {
		return nil, validationf("start time %s is in the past", start.Format(time.RFC3339))
	}

	vehicle, err := s.vehicles.GetByID(ctx, in.VehicleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundf("vehicle %s not found", in.VehicleID)
		}
		return nil, err
	}
	charger, err := s.chargers.GetByID(ctx, in.ChargerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundf("charger %s not found", in.ChargerID)
		}
		return nil, err
	}

	if vehicle.ConnectorType != charger.ConnectorType {
		return nil, validationf("vehicle connector %s does not match charger connector %s", vehicle.ConnectorType, charger.ConnectorType)
	}
	if charger.Status == models.ChargerStatusMaintenance {
		return nil, validationf("charger %s is under maintenance", charger.ID)
	}

	calculatedEnd := end.Add(s.policy.Buffer)
	blocking, ok := s.index.Reserve(charger.ID, start, calculatedEnd)
	if !ok {
		if s.metrics != nil {
			s.metrics.ReservationConflicts.Inc()
		}
		return nil, &ConflictError{Start: blocking.Start, End: blocking.End}
	}

	estimated := in.EstimatedChargeMin
	if estimated <= 0 {
		estimated = end.Sub(start).Minutes()
	}

	res := &models.Reservation{
		ID:                 uuid.NewString(),
		VehicleID:          vehicle.ID,
		ChargerID:          charger.ID,
		UserID:             in.UserID,
		StartTime:          start,
		EndTime:            end,
		CalculatedEndTime:  calculatedEnd,
		EstimatedChargeMin: estimated,
		BufferMin:          int(s.policy.Buffer.Minutes()),
		Status:             models.ReservationStatusUpcoming,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.reservations.Create(ctx, res); err != nil {
		s.index.Release(charger.ID, start, calculatedEnd)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.ReservationsCreated.Inc()
	}
	s.publish(ctx, events.Event{
		Type:          events.TypeReservationCreated,
		ReservationID: res.ID,
		ChargerID:     res.ChargerID,
		UserID:        res.UserID,
	})
	s.logger.Info("reservation created",
		zap.String("reservation_id", res.ID),
		zap.String("charger_id", res.ChargerID),
		zap.Time("start", res.StartTime),
		zap.Time("calculated_end", res.CalculatedEndTime),
	)
	return res, nil
}

// CancelReservation releases the window and marks the reservation cancelled.
// Terminal reservations cannot be cancelled.
func (s *ReservationService) CancelReservation(ctx context.Context, id, reason string) (*models.Reservation, error) {
	res, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundf("reservation %s not found", id)
		}
		return nil, err
	}
	if res.IsTerminal() {
		return nil, &InvalidStateTransitionError{Entity: "reservation", From: res.Status, Action: "cancel"}
	}

	res.Status = models.ReservationStatusCancelled
	res.CancelReason = reason
	if err := s.reservations.Update(ctx, res); err != nil {
		return nil, err
	}
	s.index.Release(res.ChargerID, res.StartTime, res.CalculatedEndTime)

	s.publish(ctx, events.Event{
		Type:          events.TypeReservationCancelled,
		ReservationID: res.ID,
		ChargerID:     res.ChargerID,
		UserID:        res.UserID,
		Reason:        reason,
	})
	s.logger.Info("reservation cancelled",
		zap.String("reservation_id", res.ID),
		zap.String("reason", reason),
	)
	return res, nil
}

// GetReservation returns a reservation by id.
func (s *ReservationService) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	res, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundf("reservation %s not found", id)
		}
		return nil, err
	}
	return res, nil
}

// ListByUser returns the user's reservation history.
func (s *ReservationService) ListByUser(ctx context.Context, userID string, limit int) ([]models.Reservation, error) {
	return s.reservations.ListByUser(ctx, userID, limit)
}

// NextAvailable finds the next free window of at least minDuration on a charger.
func (s *ReservationService) NextAvailable(ctx context.Context, chargerID string, minDuration time.Duration, lookAhead time.Duration) (schedule.Interval, bool, error) {
	if _, err := s.chargers.GetByID(ctx, chargerID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return schedule.Interval{}, false, notFoundf("charger %s not found", chargerID)
		}
		return schedule.Interval{}, false, err
	}
	if lookAhead <= 0 {
		lookAhead = s.policy.Horizon
	}
	window, found := s.index.NextAvailable(chargerID, s.now().UTC(), minDuration, lookAhead)
	return window, found, nil
}

// ChargerAvailability pairs a charger with a live occupancy snapshot.
type ChargerAvailability struct {
	Charger      models.Charger     `json:"charger"`
	AvailableNow bool               `json:"available_now"`
	NextWindow   *schedule.Interval `json:"next_window,omitempty"`
}

// ListChargers returns available chargers for a connector type together with
// whether each is free for minDuration starting now, and the next free window
// when it is not.
func (s *ReservationService) ListChargers(ctx context.Context, connector models.ConnectorType, minDuration time.Duration) ([]ChargerAvailability, error) {
	if minDuration <= 0 {
		minDuration = 30 * time.Minute
	}
	chargers, err := s.chargers.ListByConnector(ctx, connector, models.ChargerStatusAvailable)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	out := make([]ChargerAvailability, 0, len(chargers))
	for _, c := range chargers {
		entry := ChargerAvailability{Charger: c}
		if s.index.IsFree(c.ID, now, now.Add(minDuration)) {
			entry.AvailableNow = true
		} else if window, found := s.index.NextAvailable(c.ID, now, minDuration, s.policy.Horizon); found {
			entry.NextWindow = &window
		}
		out = append(out, entry)
	}
	return out, nil
}

// Sweep advances reservation statuses: upcoming becomes active once the start
// time passes, and active becomes completed once the blocked window elapses
// with no live session attached. Run periodically from the app.
func (s *ReservationService) Sweep(ctx context.Context) error {
	now := s.now().UTC()

	upcoming, err := s.reservations.ListByStatus(ctx, models.ReservationStatusUpcoming)
	if err != nil {
		return err
	}
	for i := range upcoming {
		res := &upcoming[i]
		if now.Before(res.StartTime) {
			continue
		}
		res.Status = models.ReservationStatusActive
		if err := s.reservations.Update(ctx, res); err != nil {
			return err
		}
		s.publish(ctx, events.Event{
			Type:          events.TypeReservationActivated,
			ReservationID: res.ID,
			ChargerID:     res.ChargerID,
			UserID:        res.UserID,
		})
	}

	active, err := s.reservations.ListByStatus(ctx, models.ReservationStatusActive)
	if err != nil {
		return err
	}
	for i := range active {
		res := &active[i]
		if now.Before(res.CalculatedEndTime) {
			continue
		}
		if _, err := s.sessions.FindNonTerminalByReservation(ctx, res.ID); err == nil {
			// a live session still owns this reservation
			continue
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		res.Status = models.ReservationStatusCompleted
		if err := s.reservations.Update(ctx, res); err != nil {
			return err
		}
		s.index.Release(res.ChargerID, res.StartTime, res.CalculatedEndTime)
		s.publish(ctx, events.Event{
			Type:          events.TypeReservationCompleted,
			ReservationID: res.ID,
			ChargerID:     res.ChargerID,
			UserID:        res.UserID,
		})
		s.logger.Info("reservation window elapsed unattended",
			zap.String("reservation_id", res.ID),
			zap.String("charger_id", res.ChargerID),
		)
	}
	return nil
}

// WarmLoad rebuilds the interval index from persisted non-terminal reservations.
func (s *ReservationService) WarmLoad(ctx context.Context) error {
	blocking, err := s.reservations.ListBlocking(ctx)
	if err != nil {
		return err
	}
	byCharger := make(map[string][]schedule.Interval)
	for _, res := range blocking {
		byCharger[res.ChargerID] = append(byCharger[res.ChargerID], schedule.Interval{
			Start: res.StartTime,
			End:   res.CalculatedEndTime,
		})
	}
	for chargerID, intervals := range byCharger {
		s.index.Load(chargerID, intervals)
	}
	s.logger.Info("interval index loaded",
		zap.Int("reservations", len(blocking)),
		zap.Int("chargers", len(byCharger)),
	)
	return nil
}

func (s *ReservationService) publish(ctx context.Context, ev events.Event) {
	ev.OccurredAt = s.now().UTC()
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("failed to publish event", zap.String("type", ev.Type), zap.Error(err))
	}
}
