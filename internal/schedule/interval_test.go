package schedule

import (
	"sync"
	"testing"
	"time"
)

var day = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func at(hour, min int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute)
}

func TestReserveRejectsOverlapAndReportsBlockingWindow(t *testing.T) {
	idx := NewIndex()

	// [10:00, 11:30) occupied: a 10:00-11:00 booking plus 20 minute buffer,
	// rounded up for clarity
	if _, ok := idx.Reserve("ch-1", at(10, 0), at(11, 20)); !ok {
		t.Fatal("first reservation should succeed")
	}

	blocking, ok := idx.Reserve("ch-1", at(11, 10), at(11, 30))
	if ok {
		t.Fatal("overlapping reservation should be rejected")
	}
	if !blocking.Start.Equal(at(10, 0)) || !blocking.End.Equal(at(11, 20)) {
		t.Fatalf("blocking window = [%v, %v), want [10:00, 11:20)", blocking.Start, blocking.End)
	}

	// starting exactly at the occupied end is fine: intervals are half-open
	if _, ok := idx.Reserve("ch-1", at(11, 20), at(12, 0)); !ok {
		t.Fatal("adjacent reservation should succeed")
	}
}

func TestReserveIndependentChargers(t *testing.T) {
	idx := NewIndex()
	if _, ok := idx.Reserve("ch-1", at(10, 0), at(11, 0)); !ok {
		t.Fatal("reserve ch-1 failed")
	}
	if _, ok := idx.Reserve("ch-2", at(10, 0), at(11, 0)); !ok {
		t.Fatal("same window on a different charger should succeed")
	}
}

func TestInsertCoalescesTouchingIntervals(t *testing.T) {
	idx := NewIndex()
	idx.Occupy("ch-1", at(9, 0), at(10, 0))
	idx.Occupy("ch-1", at(10, 0), at(11, 0))
	idx.Occupy("ch-1", at(10, 30), at(11, 30))

	got := idx.Snapshot("ch-1")
	if len(got) != 1 {
		t.Fatalf("snapshot has %d intervals, want 1 coalesced", len(got))
	}
	if !got[0].Start.Equal(at(9, 0)) || !got[0].End.Equal(at(11, 30)) {
		t.Fatalf("coalesced = [%v, %v), want [09:00, 11:30)", got[0].Start, got[0].End)
	}
}

func TestReleaseSplitsEnclosingInterval(t *testing.T) {
	idx := NewIndex()
	idx.Occupy("ch-1", at(9, 0), at(12, 0))
	idx.Release("ch-1", at(10, 0), at(11, 0))

	got := idx.Snapshot("ch-1")
	if len(got) != 2 {
		t.Fatalf("snapshot has %d intervals, want 2 after split", len(got))
	}
	if !got[0].End.Equal(at(10, 0)) || !got[1].Start.Equal(at(11, 0)) {
		t.Fatalf("split = %v, want [09:00,10:00) and [11:00,12:00)", got)
	}
	if !idx.IsFree("ch-1", at(10, 0), at(11, 0)) {
		t.Fatal("released window should be free")
	}
}

func TestNextAvailableSkipsOccupiedWindow(t *testing.T) {
	idx := NewIndex()
	// booking [09:00, 10:00) blocks through 10:20 with the buffer
	idx.Occupy("ch-1", at(9, 0), at(10, 20))

	window, found := idx.NextAvailable("ch-1", at(9, 0), 30*time.Minute, 24*time.Hour)
	if !found {
		t.Fatal("expected a window")
	}
	if !window.Start.Equal(at(10, 20)) {
		t.Fatalf("window starts at %v, want 10:20", window.Start)
	}
	if window.Duration() != 30*time.Minute {
		t.Fatalf("window duration = %v, want 30m", window.Duration())
	}
}

func TestNextAvailableUsesGapBetweenIntervals(t *testing.T) {
	idx := NewIndex()
	idx.Occupy("ch-1", at(9, 0), at(10, 0))
	idx.Occupy("ch-1", at(11, 0), at(12, 0))

	// one hour gap fits 45 minutes
	window, found := idx.NextAvailable("ch-1", at(9, 30), 45*time.Minute, 24*time.Hour)
	if !found {
		t.Fatal("expected a window")
	}
	if !window.Start.Equal(at(10, 0)) {
		t.Fatalf("window starts at %v, want 10:00", window.Start)
	}

	// 90 minutes does not fit the gap, lands after the second interval
	window, found = idx.NextAvailable("ch-1", at(9, 30), 90*time.Minute, 24*time.Hour)
	if !found {
		t.Fatal("expected a window")
	}
	if !window.Start.Equal(at(12, 0)) {
		t.Fatalf("window starts at %v, want 12:00", window.Start)
	}
}

func TestNextAvailableHorizonExceeded(t *testing.T) {
	idx := NewIndex()
	idx.Occupy("ch-1", at(9, 0), at(18, 0))

	if _, found := idx.NextAvailable("ch-1", at(9, 0), time.Hour, 4*time.Hour); found {
		t.Fatal("window beyond horizon should not be returned")
	}
}

func TestLoadReplacesOccupancy(t *testing.T) {
	idx := NewIndex()
	idx.Occupy("ch-1", at(9, 0), at(10, 0))
	idx.Load("ch-1", []Interval{
		{Start: at(14, 0), End: at(15, 0)},
		{Start: at(12, 0), End: at(13, 0)},
	})

	if !idx.IsFree("ch-1", at(9, 0), at(10, 0)) {
		t.Fatal("pre-load occupancy should be gone")
	}
	got := idx.Snapshot("ch-1")
	if len(got) != 2 {
		t.Fatalf("snapshot has %d intervals, want 2", len(got))
	}
	if !got[0].Start.Equal(at(12, 0)) {
		t.Fatalf("intervals not sorted: first starts at %v", got[0].Start)
	}
}

func TestConcurrentReserveSingleWinner(t *testing.T) {
	idx := NewIndex()

	const attempts = 32
	var wg sync.WaitGroup
	wins := make(chan int, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, ok := idx.Reserve("ch-1", at(10, 0), at(11, 0)); ok {
				wins <- n
			}
		}(i)
	}
	wg.Wait()
	close(wins)

	var winners int
	for range wins {
		winners++
	}
	if winners != 1 {
		t.Fatalf("%d concurrent reservations won the same window, want exactly 1", winners)
	}
}
