package camera

import (
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/depthcam/internal/monitoring"
	"github.com/banshee-data/depthcam/internal/timeutil"
)

// maxIntervals bounds the frame interval history kept for charts.
const maxIntervals = 512

// Stats tracks frame delivery of a pipeline with thread-safe operations.
// Frame sets lost in the SDK queue show up as gaps in the frame counter and
// are counted as dropped.
type Stats struct {
	mu         sync.Mutex
	clock      timeutil.Clock
	frames     int64
	timeouts   int64
	errors     int64
	dropped    int64
	lastNumber uint64
	lastTS     float64
	intervals  []float64
	lastReset  time.Time
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Frames        int64
	Timeouts      int64
	Errors        int64
	Dropped       int64
	LastTimestamp float64
	// Intervals between consecutive frame sets in milliseconds, oldest
	// first.
	Intervals []float64
	Duration  time.Duration
}

// NewStats creates a Stats measuring durations with clock.
func NewStats(clock timeutil.Clock) *Stats {
	return &Stats{clock: clock, lastReset: clock.Now()}
}

// AddFrameSet records a delivered frame set.
func (s *Stats) AddFrameSet(timestamp float64, number uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frames > 0 {
		if number > s.lastNumber+1 {
			s.dropped += int64(number - s.lastNumber - 1)
		}
		s.intervals = append(s.intervals, timestamp-s.lastTS)
		if len(s.intervals) > maxIntervals {
			s.intervals = s.intervals[len(s.intervals)-maxIntervals:]
		}
	}
	s.frames++
	s.lastNumber = number
	s.lastTS = timestamp
}

// AddTimeout records a wait that timed out.
func (s *Stats) AddTimeout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeouts++
}

// AddError records a failed wait.
func (s *Stats) AddError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors++
}

func (s *Stats) snapshotLocked() StatsSnapshot {
	return StatsSnapshot{
		Frames:        s.frames,
		Timeouts:      s.timeouts,
		Errors:        s.errors,
		Dropped:       s.dropped,
		LastTimestamp: s.lastTS,
		Intervals:     append([]float64(nil), s.intervals...),
		Duration:      s.clock.Since(s.lastReset),
	}
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// GetAndReset returns the current counters and resets them.
func (s *Stats) GetAndReset() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshotLocked()
	s.frames, s.timeouts, s.errors, s.dropped = 0, 0, 0, 0
	s.lastNumber, s.lastTS = 0, 0
	s.intervals = nil
	s.lastReset = s.clock.Now()
	return snap
}

// Rate returns delivered frame sets per second.
func (s StatsSnapshot) Rate() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Frames) / s.Duration.Seconds()
}

// LogStats logs and resets the counters, returning what it logged.
// Nothing is logged for an idle interval.
func (s *Stats) LogStats(name string) StatsSnapshot {
	snap := s.GetAndReset()
	if snap.Frames == 0 && snap.Timeouts == 0 && snap.Errors == 0 {
		return snap
	}
	msg := fmt.Sprintf("%s stats (/sec): %.1f frame sets", name, snap.Rate())
	if snap.Dropped > 0 {
		msg += fmt.Sprintf(", %d dropped", snap.Dropped)
	}
	if snap.Timeouts > 0 {
		msg += fmt.Sprintf(", %d timeouts", snap.Timeouts)
	}
	if snap.Errors > 0 {
		msg += fmt.Sprintf(", %d errors", snap.Errors)
	}
	monitoring.Logf("%s", msg)
	return snap
}
