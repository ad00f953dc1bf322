// Package main - utils.go
//
// This file provides small helpers shared by the application glue.
//
// Components:
//   - Timer: measures and logs how long a block took
//   - SafeGo: launches goroutines with panic recovery
//   - RateLimiter: lets an action through at most once per interval
//
// Performance Monitoring:
// Timer objects measure the main loop iteration (target: one frame interval)
// and are logged at DEBUG level.
//
// SafeGo Usage:
// All long-running goroutines use SafeGo to prevent panics from crashing
// the entire application. Panics are logged and the goroutine terminates
// while the rest of the bot continues operating.
package main

import (
	"runtime/debug"
	"sync"
	"time"
)

// Timer provides performance timing functionality
type Timer struct {
	name      string
	startTime time.Time
}

// NewTimer creates and starts a new timer with given name
func NewTimer(name string) *Timer {
	return &Timer{
		name:      name,
		startTime: time.Now(),
	}
}

// Elapsed returns the elapsed time since timer creation
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.startTime)
}

// Log logs the elapsed time with the timer name
func (t *Timer) Log() {
	LogDebug("Timer [%s]: %v", t.name, t.Elapsed())
}

// SafeGo runs fn in a goroutine, logging instead of crashing on panic.
func SafeGo(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				LogError("Panic recovered in goroutine: %v\n%s", r, debug.Stack())
			}
		}()
		fn()
	}()
}

// RateLimiter limits execution rate
type RateLimiter struct {
	lastExec time.Time
	interval time.Duration
	mu       sync.Mutex
}

// NewRateLimiter creates a new rate limiter with specified interval
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{
		interval: interval,
	}
}

// Allow reports whether the interval has passed since the last allowed call.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastExec) >= rl.interval {
		rl.lastExec = now
		return true
	}
	return false
}
