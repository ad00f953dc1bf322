// Package main - main.go
//
// This file implements the main bot controller and application entry point.
// It orchestrates capture, detection, tracking, the task registry and the UI.
//
// Bot Architecture:
//   Bot (controller)
//   ├─ Config (config.yaml settings)
//   ├─ MouseInput (robotgo desktop input, or chromedp browser input)
//   ├─ capture.Service (background frame grabber, double buffered)
//   ├─ mousedb.Database (recorded movements, index, query engine)
//   ├─ mousedb.Watcher (reloads the movement file on external edits)
//   ├─ mousedb.Recorder (turns the user's own mouse use into movements)
//   ├─ tracking.Tracker (persistent identities for detections)
//   ├─ task.Registry (FindTab → Inventory → Mining, run once per frame)
//   └─ TrayApp (system tray UI)
//
// Main Loop Flow:
//   1. Wait for the next frame interval
//   2. Take the latest captured frame (skip when no new frame arrived)
//   3. Publish it as the main frame resource
//   4. Run every task with the elapsed seconds since the last iteration
//   5. Feed the recorder when recording
//   6. Update tray status and queue the debug overlay
//
// Concurrency Model:
//   - Main goroutine: System tray UI (blocking)
//   - Main loop goroutine: capture → tasks → recorder (the frame loop)
//   - Capture goroutine: grabs frames into the double buffer
//   - Watcher goroutine: reloads movements on file changes
//   - Overlay goroutine: draws task overlays to a PNG
//   - Tray handlers: request changes through atomics polled by the frame loop
//
// Shutdown Sequence (signal, tray quit, or normal exit):
//   1. Stop the main loop, which cancels mining and releases held buttons
//   2. Stop capture and the watcher
//   3. Save movements, config and browser cookies
//   4. Close the browser and the logger
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"orebot/internal/capture"
	"orebot/internal/mousedb"
	"orebot/internal/task"
	"orebot/internal/tracking"
	"orebot/internal/vision"
)

// Recording requests from the tray, applied by the frame loop.
const (
	recordNone int32 = iota
	recordStart
	recordStop
)

// Bot is the main bot controller that orchestrates all components.
type Bot struct {
	config     *Config
	configPath string

	stats     *task.Statistics
	browser   *Browser
	input     MouseInput
	releaser  interface{ ReleaseAll() }
	capture   *capture.Service
	db        *mousedb.Database
	recorder  *mousedb.Recorder
	button    mousedb.Button
	tracker   *tracking.Tracker
	resources *task.Resources
	registry  *task.Registry
	mining    *task.MiningTask
	tray      *TrayApp

	ctx      context.Context
	cancel   context.CancelFunc
	stopChan chan bool
	loopDone chan struct{}
	stopOnce sync.Once

	// frameMu serializes the frame loop and overlay drawing.
	frameMu       sync.Mutex
	recordRequest atomic.Int32
	recording     atomic.Bool
	dirty         atomic.Bool

	debugOverlayChan chan *DebugOverlayRequest
	overlayLimiter   *RateLimiter
}

// NewBot creates and initializes a new bot instance with all components.
//
// Initialization Sequence:
//   1. Load config.yaml (defaults when missing)
//   2. Load the movement database
//   3. Create input and capture for the configured backend
//   4. Create tracker, detectors and tasks, and load the registry
//   5. Create the recorder and the tray
func NewBot(configPath string) (*Bot, error) {
	LogInfo("Initializing bot components...")

	cfg, err := LoadConfig(configPath)
	if err != nil {
		LogError("Failed to load config: %v, using defaults", err)
	}
	SetLogLevel(cfg.Log.Level)
	log := Logger()

	seed := cfg.Movements.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	db := mousedb.NewDatabase(cfg.Movements.File, rand.New(rand.NewSource(seed)), log)
	if err := db.Load(); err != nil {
		LogError("Failed to load movements: %v", err)
	}
	LogInfo("Movement database ready: %d movements", db.Len())

	bot := &Bot{
		config:           cfg,
		configPath:       configPath,
		stats:            task.NewStatistics(),
		db:               db,
		resources:        task.NewResources(),
		stopChan:         make(chan bool, 1),
		loopDone:         make(chan struct{}),
		overlayLimiter:   NewRateLimiter(time.Second),
		debugOverlayChan: make(chan *DebugOverlayRequest, 1),
	}
	bot.ctx, bot.cancel = context.WithCancel(context.Background())

	var grabber capture.Grabber
	switch cfg.Input.Backend {
	case BackendBrowser:
		bot.browser = NewBrowser(cfg.Input)
		action := NewAction(bot.browser)
		bot.input, bot.releaser, grabber = action, action, bot.browser
		LogInfo("Using browser backend")
	case BackendNative:
		native := NewNativeInput()
		bot.input, bot.releaser = native, native
		grabber = NewScreenGrabber(cfg.Capture.Region.Rect())
		LogInfo("Using native backend")
	default:
		return nil, fmt.Errorf("unknown input backend %q", cfg.Input.Backend)
	}
	bot.capture = capture.NewService(grabber, cfg.FrameInterval(), log)

	bot.tracker = tracking.NewTracker(cfg.TrackerConfig(), log)

	if err := bot.buildTasks(); err != nil {
		return nil, err
	}

	miningCfg, _ := cfg.MiningTaskConfig()
	bot.button = miningCfg.Button
	bot.recorder = mousedb.NewRecorder(mousedb.RecorderConfig{
		SamePosThreshold: cfg.Movements.SamePosThreshold,
		Button:           miningCfg.Button,
	}, rand.New(rand.NewSource(seed+1)), log)

	LogInfo("Creating system tray UI...")
	bot.tray = NewTrayApp(bot)
	LogInfo("Bot components initialized successfully")
	return bot, nil
}

// buildTasks registers the tasks in dependency order and loads them.
func (b *Bot) buildTasks() error {
	log := Logger()
	cfg := b.config

	visionCfg, err := cfg.VisionConfig()
	if err != nil {
		return err
	}
	oreDetector := vision.NewColorDetector(visionCfg, log)

	b.registry = task.NewRegistry(log, task.MainFrame)

	if cfg.Tabs.Enabled {
		tabCfg, err := cfg.FindTabConfig()
		if err != nil {
			return err
		}
		tabVision, err := cfg.TabVisionConfig()
		if err != nil {
			return err
		}
		findTab := task.NewFindTabTask(tabCfg, vision.NewColorDetector(tabVision, log), b.resources, log)
		if err := b.registry.Add(findTab); err != nil {
			return err
		}
		if cfg.Tabs.Inventory && tabCfg.Tracking == task.TabInventory {
			if err := b.registry.Add(task.NewInventoryTask(oreDetector, b.resources, log)); err != nil {
				return err
			}
		}
	}

	miningCfg, err := cfg.MiningTaskConfig()
	if err != nil {
		return err
	}
	b.mining = task.NewMiningTask(miningCfg, task.MiningDeps{
		Input:     b.input,
		Detector:  oreDetector,
		Paths:     b.db,
		Mapper:    b.capture,
		Tracker:   b.tracker,
		Resources: b.resources,
		Stats:     b.stats,
	}, log)
	b.mining.SetPaused(!cfg.Mining.Enabled)
	if err := b.registry.Add(b.mining); err != nil {
		return err
	}

	return b.registry.Load()
}

// StartMainLoop starts capture, the movement watcher, the overlay worker and
// the main loop.
//
// With the browser backend, capture starts once navigation has finished so
// the first frames are of the game and not a blank page.
func (b *Bot) StartMainLoop() {
	if b.browser != nil {
		LogInfo("Starting browser asynchronously...")
		SafeGo(func() {
			if err := b.browser.Start(); err != nil {
				LogError("Failed to start browser: %v", err)
				return
			}
			LogInfo("Browser is now ready")
			b.capture.Start(b.ctx)
		})
	} else {
		b.capture.Start(b.ctx)
	}

	if b.config.Movements.Watch {
		watcher, err := mousedb.NewWatcher(b.db, Logger())
		if err != nil {
			LogWarn("Movement file watching disabled: %v", err)
		} else {
			SafeGo(func() {
				if err := watcher.Run(b.ctx); err != nil {
					LogError("Movement watcher stopped: %v", err)
				}
			})
		}
	}

	if b.config.Log.OverlayFile != "" {
		LogInfo("Starting async debug overlay worker...")
		SafeGo(b.debugOverlayWorker)
	}

	LogInfo("Starting main loop")
	SafeGo(b.mainLoop)
}

// mainLoop runs iterations at the configured rate until stopped.
func (b *Bot) mainLoop() {
	LogInfo("Main loop started")
	defer close(b.loopDone)
	defer b.shutdownFrameLoop()

	lastRun := time.Now()
	lastFrame := b.capture.Frames()

	for {
		select {
		case <-b.stopChan:
			LogInfo("Stop signal received")
			return
		default:
		}

		interval := b.config.FrameInterval()
		if wait := interval - time.Since(lastRun); wait > 0 {
			time.Sleep(wait)
			continue
		}

		frames := b.capture.Frames()
		if frames == lastFrame {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		lastFrame = frames

		now := time.Now()
		dt := now.Sub(lastRun).Seconds()
		lastRun = now
		b.runIteration(dt)
	}
}

// runIteration executes one frame: publish the frame, run the tasks, feed
// the recorder and report status.
func (b *Bot) runIteration(dt float64) {
	timer := NewTimer("main_loop")
	defer timer.Log()

	frame, err := b.capture.LatestFrame()
	if err != nil {
		LogDebug("No frame available: %v", err)
		return
	}

	b.frameMu.Lock()
	b.resources.Set(task.MainFrame, frame)
	b.registry.Run(dt)
	b.handleRecording(dt)
	b.frameMu.Unlock()

	status := b.statusText()
	if b.tray != nil {
		b.tray.UpdateStatus(status)
	}

	if b.config.Log.OverlayFile != "" && b.overlayLimiter.Allow() {
		if overlay, err := b.capture.LatestFrame(); err == nil {
			b.sendDebugOverlay(overlay, status)
		}
	}
}

// handleRecording applies tray requests and feeds the recorder. Finished
// movements go straight into the database so they are usable immediately.
func (b *Bot) handleRecording(dt float64) {
	switch b.recordRequest.Swap(recordNone) {
	case recordStart:
		b.mining.SetPaused(true)
		b.recorder.Start()
	case recordStop:
		b.recorder.Stop()
	}
	b.recording.Store(b.recorder.Recording())
	if !b.recorder.Recording() {
		return
	}

	samples, err := b.input.Poll(b.ctx, b.button)
	if errors.Is(err, errRecordingUnsupported) {
		LogWarn("Recording stopped: %v", err)
		b.recorder.Stop()
		b.recording.Store(false)
		return
	}
	if err != nil {
		LogDebug("Mouse poll failed: %v", err)
		return
	}

	for i, s := range samples {
		sdt := 0.0
		if i == 0 {
			sdt = dt
		}
		b.recorder.Sample(s, sdt)
	}

	if b.recorder.Pending() > 0 {
		if added := b.db.Append(b.recorder.Take()...); added > 0 {
			b.dirty.Store(true)
			LogInfo("Recorded %d movements (%d total)", added, b.db.Len())
		}
	}
}

// shutdownFrameLoop runs on the frame loop goroutine as it exits, so the
// mining task can release a held button from the goroutine that owns it.
func (b *Bot) shutdownFrameLoop() {
	b.frameMu.Lock()
	defer b.frameMu.Unlock()

	b.mining.Cancel()
	b.releaser.ReleaseAll()
	if b.recorder.Recording() {
		b.recorder.Stop()
	}
	LogInfo("Main loop stopped")
}

func (b *Bot) statusText() string {
	if b.recording.Load() {
		return fmt.Sprintf("Recording | %d movements", b.db.Len())
	}
	if b.mining.Paused() {
		return fmt.Sprintf("Paused | %s", b.stats.Snapshot())
	}
	return statusLine(b.mining.State(), b.stats.Snapshot())
}

// SetMining resumes or pauses mining.
func (b *Bot) SetMining(enabled bool) {
	LogInfo("Mining enabled: %v", enabled)
	b.mining.SetPaused(!enabled)
	b.config.mu.Lock()
	b.config.Mining.Enabled = enabled
	b.config.mu.Unlock()
}

// SetOre switches the mined ore by name.
func (b *Bot) SetOre(name string) error {
	ore, err := task.ParseOre(name)
	if err != nil {
		return err
	}
	if err := b.config.SetOre(name); err != nil {
		return err
	}
	b.mining.SetOre(ore)
	LogInfo("Mining ore set to %s", ore)
	return nil
}

// Ore returns the name of the mined ore.
func (b *Bot) Ore() string {
	return b.config.OreName()
}

// MiningEnabled reports whether mining is running.
func (b *Bot) MiningEnabled() bool {
	return !b.mining.Paused()
}

// SetRecording starts or stops recording. Recording pauses mining.
func (b *Bot) SetRecording(on bool) {
	if on {
		b.recording.Store(true)
		b.recordRequest.Store(recordStart)
	} else {
		b.recording.Store(false)
		b.recordRequest.Store(recordStop)
	}
	LogInfo("Recording requested: %v", on)
}

// Recording reports whether recording is on.
func (b *Bot) Recording() bool {
	return b.recording.Load()
}

// ReloadMovements re-reads the movement file.
func (b *Bot) ReloadMovements() error {
	if err := b.db.Reload(); err != nil {
		return err
	}
	b.dirty.Store(false)
	LogInfo("Movements reloaded: %d", b.db.Len())
	return nil
}

// SaveMovements writes recorded movements to the movement file.
func (b *Bot) SaveMovements() error {
	if err := b.db.Save(); err != nil {
		return err
	}
	b.dirty.Store(false)
	LogInfo("Movements saved: %d", b.db.Len())
	return nil
}

// SetFPS changes the capture and main loop rate.
func (b *Bot) SetFPS(fps int) {
	b.config.SetFPS(fps)
	b.capture.SetInterval(b.config.FrameInterval())
}

// ResetStats clears the mining statistics.
func (b *Bot) ResetStats() {
	b.stats.Reset()
}

// StopBehavior stops the main loop and waits for it to release any held
// button. Safe to call more than once.
func (b *Bot) StopBehavior() {
	b.stopOnce.Do(func() {
		LogInfo("Stopping behavior")
		b.mining.RequestCancel()
		b.stopChan <- true

		select {
		case <-b.loopDone:
			// Nothing sends overlays once the loop is gone.
			close(b.debugOverlayChan)
		case <-time.After(2 * time.Second):
			LogWarn("Main loop did not stop in time")
		}

		b.capture.Stop()
		b.cancel()
	})
}

// SaveState persists movements, config and browser cookies.
func (b *Bot) SaveState() {
	LogInfo("Saving bot state...")

	if b.dirty.Load() {
		if err := b.SaveMovements(); err != nil {
			LogError("Failed to save movements: %v", err)
		}
	}

	if err := SaveConfig(b.configPath, b.config); errors.Is(err, ErrConfigNotSaved) {
		LogWarn("Config changes not saved: %v", err)
	} else if err != nil {
		LogError("Failed to save config: %v", err)
	}

	if b.browser != nil {
		if err := b.browser.SaveCookies(); err != nil {
			LogWarn("Failed to save cookies: %v", err)
		}
	}
	LogInfo("Bot state saved")
}

// Shutdown stops everything and saves state.
func (b *Bot) Shutdown() {
	b.StopBehavior()
	b.SaveState()
	if b.browser != nil {
		b.browser.Close()
	}
}

// Run starts the bot with signal handling and the system tray.
//
// Signal Handling:
// SIGINT (Ctrl+C) and SIGTERM run the same shutdown as the tray's Quit item.
func (b *Bot) Run() {
	LogInfo("Setting up signal handlers...")
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		LogInfo("Signal received: %v, shutting down gracefully...", sig)
		b.Shutdown()
		LogInfo("Closing logger...")
		CloseLogger()
		os.Exit(0)
	}()

	LogInfo("Starting system tray (main loop starts when tray is ready)...")
	b.tray.Run()
	LogInfo("System tray exited")
	b.Shutdown()
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC: %v\n", r)
			LogError("PANIC in main: %v", r)
			CloseLogger()
			os.Exit(2)
		}
	}()

	configPath := flag.String("config", DefaultConfigPath, "path to config.yaml")
	train := flag.Bool("train", false, "run detection on train.png and write result.png")
	flag.Parse()

	if err := InitLogger("Debug.log"); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		LogInfo("=== Ore Bot Shutdown ===")
		CloseLogger()
	}()

	LogInfo("=== Ore Bot Started ===")

	if *train {
		LogInfo("Training mode requested")
		if err := TrainingMode(*configPath); err != nil {
			LogError("Training mode failed: %v", err)
			CloseLogger()
			os.Exit(1)
		}
		return
	}

	LogInfo("Creating bot instance...")
	bot, err := NewBot(*configPath)
	if err != nil {
		LogError("Failed to create bot: %v", err)
		CloseLogger()
		os.Exit(1)
	}
	bot.Run()
	LogInfo("Bot Run() returned normally")
}
