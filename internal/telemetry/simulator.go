package telemetry

import (
	"sync"
	"time"
)

const recentSampleLimit = 30

// Sample is a single meter reading.
type Sample struct {
	At        time.Time `json:"at"`
	PowerKW   float64   `json:"power_kw"`
	EnergyKWh float64   `json:"energy_kwh"`
}

// Status is a snapshot of a meter for polling clients.
type Status struct {
	SessionID string        `json:"session_id"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
	EnergyKWh float64       `json:"energy_kwh"`
	PowerKW   float64       `json:"power_kw"`
	Recent    []Sample      `json:"recent"`
}

// Simulator produces synthetic meter readings for one charging session: energy
// accrues at the charger's rated power and is capped at the expected delivery,
// so it never exceeds what the vehicle can physically take. It stands in for a
// real metering feed behind the orchestrator's Meter contract.
type Simulator struct {
	sessionID string
	powerKW   float64
	capKWh    float64
	interval  time.Duration
	now       func() time.Time

	mu        sync.Mutex
	startedAt time.Time
	recent    []Sample
	stopped   bool
	final     Sample

	done     chan struct{}
	stopOnce sync.Once
}

// NewSimulator starts a simulator for the session. The sampling goroutine runs
// until Stop is called.
func NewSimulator(sessionID string, powerKW, capKWh float64, interval time.Duration, now func() time.Time) *Simulator {
	if now == nil {
		now = time.Now
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	s := &Simulator{
		sessionID: sessionID,
		powerKW:   powerKW,
		capKWh:    capKWh,
		interval:  interval,
		now:       now,
		startedAt: now().UTC(),
		done:      make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Simulator) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			if !s.stopped {
				s.record(s.sampleLocked())
			}
			s.mu.Unlock()
		}
	}
}

// sampleLocked derives the current reading from elapsed time. Energy is a
// monotone function of elapsed time, clamped at the cap.
func (s *Simulator) sampleLocked() Sample {
	at := s.now().UTC()
	elapsed := at.Sub(s.startedAt)
	energy := s.powerKW * elapsed.Hours()
	power := s.powerKW
	if s.capKWh > 0 && energy >= s.capKWh {
		energy = s.capKWh
		power = 0
	}
	return Sample{At: at, PowerKW: power, EnergyKWh: energy}
}

func (s *Simulator) record(sample Sample) {
	s.recent = append(s.recent, sample)
	if len(s.recent) > recentSampleLimit {
		s.recent = s.recent[len(s.recent)-recentSampleLimit:]
	}
}

// Reading returns the current meter value.
func (s *Simulator) Reading() Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return s.final
	}
	return s.sampleLocked()
}

// Status returns a snapshot for polling clients.
func (s *Simulator) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.final
	if !s.stopped {
		cur = s.sampleLocked()
	}
	recent := make([]Sample, len(s.recent))
	copy(recent, s.recent)
	return Status{
		SessionID: s.sessionID,
		StartedAt: s.startedAt,
		Elapsed:   cur.At.Sub(s.startedAt),
		EnergyKWh: cur.EnergyKWh,
		PowerKW:   cur.PowerKW,
		Recent:    recent,
	}
}

// Stop freezes the meter and returns the final reading. Safe to call more than once.
func (s *Simulator) Stop() Sample {
	s.mu.Lock()
	if !s.stopped {
		s.final = s.sampleLocked()
		s.final.PowerKW = 0
		s.stopped = true
		s.record(s.final)
	}
	final := s.final
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.done) })
	return final
}
