// Package main - debug.go
//
// This file implements centralized logging and the debug overlay worker.
//
// Major Components:
//
// 1. Logging System:
//    - zerolog logger writing JSON lines to Debug.log and a console writer to stderr
//    - Four log levels: DEBUG, INFO, WARN, ERROR
//    - File is truncated (cleared) on each startup
//    - Global logger instance accessible via convenience functions
//    - Logger() hands the same zerolog.Logger to the internal packages
//
// 2. Debug Overlay:
//    - The main loop sends a copy of each frame to a buffered channel
//    - A worker draws every task's overlay onto it (tracked boxes, paths, state)
//      plus the recent browser actions, and writes the result to the
//      configured overlay PNG
//    - Frames are dropped when the worker is busy so the loop never blocks
//
// Log Levels:
//   - DEBUG: Detailed operation info (per-frame detections, coordinates, timing)
//   - INFO: Important events (startup, task changes, yields)
//   - WARN: Non-critical issues (capture skipped, movement file missing)
//   - ERROR: Serious problems (file access errors, input injection failures)
package main

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"orebot/internal/task"
	"orebot/internal/vision"
)

var (
	logMu   sync.RWMutex
	logFile *os.File
	logger  = zerolog.Nop()
)

// InitLogger initializes the global logger to write to path (Debug.log by
// default). The log file is truncated (cleared) on each startup.
func InitLogger(path string) error {
	if path == "" {
		path = "Debug.log"
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	logMu.Lock()
	defer logMu.Unlock()
	logFile = file
	logger = zerolog.New(io.MultiWriter(file, console)).
		With().
		Timestamp().
		Logger().
		Level(zerolog.DebugLevel)
	return nil
}

// SetLogLevel changes the minimum level. Unknown names keep the current level.
func SetLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		LogWarn("Unknown log level %q, keeping current level", level)
		return
	}
	logMu.Lock()
	logger = logger.Level(lvl)
	logMu.Unlock()
}

// Logger returns the global logger for injection into components.
func Logger() zerolog.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return logger
}

// CloseLogger closes the log file
func CloseLogger() {
	logMu.Lock()
	defer logMu.Unlock()
	if logFile != nil {
		logFile.Sync()
		logFile.Close()
		logFile = nil
	}
	logger = zerolog.Nop()
}

// LogDebug logs a debug message
func LogDebug(format string, v ...interface{}) {
	l := Logger()
	l.Debug().Msgf(format, v...)
}

// LogInfo logs an info message
func LogInfo(format string, v ...interface{}) {
	l := Logger()
	l.Info().Msgf(format, v...)
}

// LogWarn logs a warning message
func LogWarn(format string, v ...interface{}) {
	l := Logger()
	l.Warn().Msgf(format, v...)
}

// LogError logs an error message
func LogError(format string, v ...interface{}) {
	l := Logger()
	l.Error().Msgf(format, v...)
}

// DebugOverlayRequest carries one frame to the overlay worker.
type DebugOverlayRequest struct {
	Frame  *image.RGBA
	Status string
}

// debugOverlayWorker renders overlays off the main loop.
//
// The registry's Draw methods only read task state that the main loop has
// already finished writing for the frame, and tasks are drawn under the
// bot's frame lock.
func (b *Bot) debugOverlayWorker() {
	LogInfo("Debug overlay worker started")
	defer LogInfo("Debug overlay worker stopped")

	for req := range b.debugOverlayChan {
		if req == nil || req.Frame == nil {
			continue
		}

		b.frameMu.Lock()
		b.registry.Draw(req.Frame)
		b.frameMu.Unlock()
		drawStatusLine(req.Frame, req.Status)
		if b.browser != nil {
			drawActionLog(req.Frame, b.browser.GetRecentLogs())
		}

		if err := savePNG(b.config.Log.OverlayFile, req.Frame); err != nil {
			LogDebug("Failed to write debug overlay: %v", err)
		}
	}
}

// sendDebugOverlay queues a frame for the overlay worker, dropping it when
// the worker is still busy with the previous one.
func (b *Bot) sendDebugOverlay(frame *image.RGBA, status string) {
	if b.debugOverlayChan == nil || frame == nil {
		return
	}
	select {
	case b.debugOverlayChan <- &DebugOverlayRequest{Frame: frame, Status: status}:
		LogDebug("Debug overlay request sent to worker")
	default:
		LogDebug("Debug overlay worker is busy, skipping this frame")
	}
}

// drawActionLog lists recent browser actions under the status line.
func drawActionLog(img *image.RGBA, logs []ActionLog) {
	col := color.RGBA{R: 255, G: 220, B: 120, A: 255}
	for i, l := range logs {
		text := fmt.Sprintf("%s %s", l.Timestamp.Format("15:04:05"), l.Message)
		vision.DrawLabel(img, image.Pt(4, 22+i*16), text, col)
	}
}

// statusLine summarizes the bot for the tray and the overlay.
func statusLine(state task.MiningState, snap task.StatsSnapshot) string {
	return fmt.Sprintf("%s | %s", state, snap)
}
