package task

import (
	"fmt"
	"sync"
	"time"
)

// Statistics tracks mining results. It is written by the frame loop and read
// by the tray, so every method locks.
type Statistics struct {
	mu sync.RWMutex

	startTime     time.Time
	yields        int
	timeouts      int
	lost          int
	lastYield     time.Time
	totalMineTime time.Duration

	now func() time.Time
}

// StatsSnapshot is a consistent copy of the statistics.
type StatsSnapshot struct {
	Yields         int
	Timeouts       int
	Lost           int
	YieldsPerHour  float64
	AvgMineTime    time.Duration
	SinceLastYield time.Duration
	Uptime         time.Duration
}

// String formats the snapshot for the tray status line.
func (s StatsSnapshot) String() string {
	return fmt.Sprintf("Ores: %d (%.1f/h) | Timeouts: %d | Up: %s",
		s.Yields, s.YieldsPerHour, s.Timeouts, FormatDuration(s.Uptime))
}

// NewStatistics creates statistics starting now.
func NewStatistics() *Statistics {
	return &Statistics{
		startTime: time.Now(),
		now:       time.Now,
	}
}

// AddYield records a successfully mined rock that took mineTime from target
// selection to depletion.
func (s *Statistics) AddYield(mineTime time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.yields++
	s.lastYield = s.now()
	s.totalMineTime += mineTime
}

// AddTimeout records a target given up after the grace timer expired.
func (s *Statistics) AddTimeout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeouts++
}

// AddLost records a target that disappeared before it was clicked.
func (s *Statistics) AddLost() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lost++
}

// Reset clears every counter and restarts the uptime clock.
func (s *Statistics) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.startTime = s.now()
	s.yields, s.timeouts, s.lost = 0, 0, 0
	s.lastYield = time.Time{}
	s.totalMineTime = 0
}

// Snapshot returns the current statistics.
func (s *Statistics) Snapshot() StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	snap := StatsSnapshot{
		Yields:   s.yields,
		Timeouts: s.timeouts,
		Lost:     s.lost,
		Uptime:   now.Sub(s.startTime),
	}
	if hours := snap.Uptime.Hours(); hours > 0 {
		snap.YieldsPerHour = float64(s.yields) / hours
	}
	if s.yields > 0 {
		snap.AvgMineTime = s.totalMineTime / time.Duration(s.yields)
		snap.SinceLastYield = now.Sub(s.lastYield)
	}
	return snap
}

// FormatDuration formats a duration as "1h 2m 3s", dropping leading zero units.
func FormatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
