package schedule

import (
	"sort"
	"sync"
	"time"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether two half-open intervals intersect.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Duration returns the interval length.
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Index keeps a per-charger sorted set of occupied intervals. Touching and
// overlapping intervals are coalesced on insert so the structure never holds a
// degenerate overlapping pair. All operations on the same charger are serialized
// by a per-charger mutex; different chargers proceed independently.
type Index struct {
	mu       sync.RWMutex
	chargers map[string]*chargerIntervals
}

type chargerIntervals struct {
	mu sync.Mutex
	// sorted by Start, pairwise disjoint
	intervals []Interval
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{chargers: make(map[string]*chargerIntervals)}
}

func (x *Index) forCharger(chargerID string) *chargerIntervals {
	x.mu.RLock()
	ci := x.chargers[chargerID]
	x.mu.RUnlock()
	if ci != nil {
		return ci
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if ci = x.chargers[chargerID]; ci == nil {
		ci = &chargerIntervals{}
		x.chargers[chargerID] = ci
	}
	return ci
}

// IsFree reports whether [start, end) does not intersect any occupied interval.
func (x *Index) IsFree(chargerID string, start, end time.Time) bool {
	ci := x.forCharger(chargerID)
	ci.mu.Lock()
	defer ci.mu.Unlock()
	_, conflict := ci.conflict(Interval{Start: start, End: end})
	return !conflict
}

// Reserve atomically checks [start, end) and occupies it when free. On conflict
// it returns the first occupied interval blocking the request. The check and the
// insert run under the same per-charger lock, so two concurrent requests for
// overlapping windows can never both succeed.
func (x *Index) Reserve(chargerID string, start, end time.Time) (Interval, bool) {
	ci := x.forCharger(chargerID)
	ci.mu.Lock()
	defer ci.mu.Unlock()

	req := Interval{Start: start, End: end}
	if blocking, conflict := ci.conflict(req); conflict {
		return blocking, false
	}
	ci.insert(req)
	return req, true
}

// Occupy inserts [start, end) regardless of existing occupancy, coalescing as
// needed. Used when rebuilding the index from persisted reservations.
func (x *Index) Occupy(chargerID string, start, end time.Time) {
	ci := x.forCharger(chargerID)
	ci.mu.Lock()
	defer ci.mu.Unlock()
	ci.insert(Interval{Start: start, End: end})
}

// Release frees [start, end), splitting a larger occupied interval when the
// released range falls inside it.
func (x *Index) Release(chargerID string, start, end time.Time) {
	ci := x.forCharger(chargerID)
	ci.mu.Lock()
	defer ci.mu.Unlock()

	rel := Interval{Start: start, End: end}
	out := make([]Interval, 0, len(ci.intervals))
	for _, iv := range ci.intervals {
		if !iv.Overlaps(rel) {
			out = append(out, iv)
			continue
		}
		if iv.Start.Before(rel.Start) {
			out = append(out, Interval{Start: iv.Start, End: rel.Start})
		}
		if rel.End.Before(iv.End) {
			out = append(out, Interval{Start: rel.End, End: iv.End})
		}
	}
	ci.intervals = out
}

// NextAvailable walks the sorted occupied intervals from the given time and
// returns the first gap of at least the requested duration that begins within
// the horizon. The second return value is false when no such window exists.
func (x *Index) NextAvailable(chargerID string, from time.Time, duration, horizon time.Duration) (Interval, bool) {
	if duration <= 0 {
		return Interval{}, false
	}
	ci := x.forCharger(chargerID)
	ci.mu.Lock()
	defer ci.mu.Unlock()

	deadline := from.Add(horizon)
	candidate := from
	for _, iv := range ci.intervals {
		if !iv.End.After(candidate) {
			continue
		}
		if iv.Start.Sub(candidate) >= duration {
			break
		}
		candidate = iv.End
	}
	if candidate.After(deadline) {
		return Interval{}, false
	}
	return Interval{Start: candidate, End: candidate.Add(duration)}, true
}

// Load replaces a charger's occupancy with the given intervals, typically the
// non-terminal reservations read back from storage at startup.
func (x *Index) Load(chargerID string, intervals []Interval) {
	ci := x.forCharger(chargerID)
	ci.mu.Lock()
	defer ci.mu.Unlock()
	ci.intervals = nil
	for _, iv := range intervals {
		ci.insert(iv)
	}
}

// Snapshot returns a copy of the occupied intervals for a charger.
func (x *Index) Snapshot(chargerID string) []Interval {
	ci := x.forCharger(chargerID)
	ci.mu.Lock()
	defer ci.mu.Unlock()
	out := make([]Interval, len(ci.intervals))
	copy(out, ci.intervals)
	return out
}

// conflict returns the first occupied interval overlapping the request.
// Caller holds the per-charger lock.
func (ci *chargerIntervals) conflict(req Interval) (Interval, bool) {
	if !req.Start.Before(req.End) {
		return Interval{}, false
	}
	i := sort.Search(len(ci.intervals), func(i int) bool {
		return ci.intervals[i].End.After(req.Start)
	})
	if i < len(ci.intervals) && ci.intervals[i].Overlaps(req) {
		return ci.intervals[i], true
	}
	return Interval{}, false
}

// insert adds an interval keeping the slice sorted and coalesced.
// Caller holds the per-charger lock.
func (ci *chargerIntervals) insert(iv Interval) {
	if !iv.Start.Before(iv.End) {
		return
	}
	merged := iv
	out := make([]Interval, 0, len(ci.intervals)+1)
	placed := false
	for _, cur := range ci.intervals {
		switch {
		case cur.End.Before(merged.Start):
			out = append(out, cur)
		case merged.End.Before(cur.Start):
			if !placed {
				out = append(out, merged)
				placed = true
			}
			out = append(out, cur)
		default:
			// touching or overlapping: widen the merged interval
			if cur.Start.Before(merged.Start) {
				merged.Start = cur.Start
			}
			if cur.End.After(merged.End) {
				merged.End = cur.End
			}
		}
	}
	if !placed {
		out = append(out, merged)
	}
	ci.intervals = out
}
