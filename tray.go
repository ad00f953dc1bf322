// Package main - tray.go
//
// This file implements the system tray UI.
// Uses getlantern/systray library for cross-platform tray menu support.
//
// Menu Structure:
//   Ore Bot
//   ├─ Status: state | ores | ores/h | uptime (read-only, updated every frame)
//   ├─ Mining (checkbox: pause/resume the mining task)
//   ├─ Ore
//   │  ├─ Adamant
//   │  ├─ ... (one checkbox per mineable ore)
//   │  └─ Tin
//   ├─ Record Movements (checkbox: record the user's own mouse use)
//   ├─ Movements
//   │  ├─ Reload (re-read the movement file)
//   │  └─ Save (write recorded movements)
//   ├─ Capture Frequency
//   │  ├─ Continuous
//   │  ├─ 10 FPS
//   │  ├─ 20 FPS (default)
//   │  └─ 30 FPS
//   ├─ Reset Statistics
//   └─ Quit (graceful shutdown)
//
// Concurrency Model:
// Each menu item gets its own handler goroutine. Handlers only call Bot
// methods that are safe from any goroutine; the frame loop picks the
// changes up on its next iteration.
//
// Auto-Save:
// Setting changes are written to config.yaml immediately.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/getlantern/systray"

	"orebot/internal/task"
)

var captureRates = []int{0, 10, 20, 30}

// TrayApp manages the system tray application and user interface.
type TrayApp struct {
	bot *Bot

	statusItem    *systray.MenuItem
	miningItem    *systray.MenuItem
	recordItem    *systray.MenuItem
	reloadItem    *systray.MenuItem
	saveItem      *systray.MenuItem
	resetItem     *systray.MenuItem
	captureItems  []*systray.MenuItem
	oreItems      []*systray.MenuItem
	ores          []task.Ore
	statusLimiter *RateLimiter
}

// NewTrayApp creates a new tray application
func NewTrayApp(bot *Bot) *TrayApp {
	return &TrayApp{
		bot:           bot,
		statusLimiter: NewRateLimiter(500 * time.Millisecond),
		ores:          task.MineableOres(),
	}
}

// Run starts the tray application. It blocks until Quit.
func (t *TrayApp) Run() {
	LogInfo("Starting system tray application")
	systray.Run(t.onReady, func() {
		LogInfo("System tray onExit callback triggered")
	})
	LogInfo("System tray Run() returned")
}

// onReady is called when the tray is ready
func (t *TrayApp) onReady() {
	systray.SetTitle("Ore Bot")
	systray.SetTooltip("Ore mining bot")

	t.statusItem = systray.AddMenuItem("Status: Starting...", "Current bot status")
	t.statusItem.Disable()

	systray.AddSeparator()

	t.miningItem = systray.AddMenuItemCheckbox("Mining", "Pause or resume mining", t.bot.MiningEnabled())
	oreMenu := systray.AddMenuItem("Ore", "Ore to mine")
	currentOre := t.bot.Ore()
	for _, ore := range t.ores {
		name := ore.String()
		t.oreItems = append(t.oreItems, oreMenu.AddSubMenuItemCheckbox(name, "Mine "+name, name == currentOre))
	}

	t.recordItem = systray.AddMenuItemCheckbox("Record Movements", "Record your own mouse movements", false)

	movements := systray.AddMenuItem("Movements", "Recorded movement file")
	t.reloadItem = movements.AddSubMenuItem("Reload", "Re-read the movement file")
	t.saveItem = movements.AddSubMenuItem("Save", "Write recorded movements")

	captureMenu := systray.AddMenuItem("Capture Frequency", "Frames captured per second")
	current := t.bot.config.Capture.FPS
	for _, fps := range captureRates {
		label := fmt.Sprintf("%d FPS", fps)
		if fps == 0 {
			label = "Continuous"
		}
		t.captureItems = append(t.captureItems, captureMenu.AddSubMenuItemCheckbox(label, label, fps == current))
	}

	systray.AddSeparator()
	t.resetItem = systray.AddMenuItem("Reset Statistics", "Clear mining statistics")
	quitItem := systray.AddMenuItem("Quit", "Quit the bot")

	go t.handleEvents(quitItem)

	LogInfo("Tray ready, starting main loop")
	t.bot.StartMainLoop()
}

// handleEvents handles tray menu events
func (t *TrayApp) handleEvents(quitItem *systray.MenuItem) {
	for i, fps := range captureRates {
		go t.handleCaptureFreqClick(fps, t.captureItems[i])
	}
	for i, ore := range t.ores {
		go t.handleOreClick(ore, t.oreItems[i])
	}

	for {
		select {
		case <-t.miningItem.ClickedCh:
			t.onMiningClicked()
		case <-t.recordItem.ClickedCh:
			t.onRecordClicked()
		case <-t.reloadItem.ClickedCh:
			if err := t.bot.ReloadMovements(); err != nil {
				LogError("Failed to reload movements: %v", err)
			}
		case <-t.saveItem.ClickedCh:
			if err := t.bot.SaveMovements(); err != nil {
				LogError("Failed to save movements: %v", err)
			}
		case <-t.resetItem.ClickedCh:
			LogInfo("Statistics reset by user")
			t.bot.ResetStats()
		case <-quitItem.ClickedCh:
			LogInfo("Quit requested by user")
			t.bot.Shutdown()
			LogInfo("Closing logger...")
			CloseLogger()
			systray.Quit()
			os.Exit(0)
		}
	}
}

// onMiningClicked toggles mining and saves the setting.
func (t *TrayApp) onMiningClicked() {
	enabled := !t.bot.MiningEnabled()
	t.bot.SetMining(enabled)
	if enabled {
		t.miningItem.Check()
	} else {
		t.miningItem.Uncheck()
	}
	t.saveConfig()
}

// onRecordClicked toggles recording. Starting a recording pauses mining.
func (t *TrayApp) onRecordClicked() {
	on := !t.bot.Recording()
	t.bot.SetRecording(on)
	if on {
		t.recordItem.Check()
		t.miningItem.Uncheck()
	} else {
		t.recordItem.Uncheck()
	}
}

// handleCaptureFreqClick handles capture frequency selection
func (t *TrayApp) handleCaptureFreqClick(fps int, item *systray.MenuItem) {
	for range item.ClickedCh {
		LogInfo("Capture frequency changed to %d FPS", fps)
		t.bot.SetFPS(fps)
		for i, other := range t.captureItems {
			if captureRates[i] == fps {
				other.Check()
			} else {
				other.Uncheck()
			}
		}
		t.saveConfig()
	}
}

// handleOreClick switches the mined ore
func (t *TrayApp) handleOreClick(ore task.Ore, item *systray.MenuItem) {
	for range item.ClickedCh {
		if err := t.bot.SetOre(ore.String()); err != nil {
			LogError("Failed to set ore: %v", err)
			continue
		}
		for i, other := range t.oreItems {
			if t.ores[i] == ore {
				other.Check()
			} else {
				other.Uncheck()
			}
		}
		t.saveConfig()
	}
}

func (t *TrayApp) saveConfig() {
	if err := SaveConfig(t.bot.configPath, t.bot.config); errors.Is(err, ErrConfigNotSaved) {
		LogWarn("Config changes not saved: %v", err)
	} else if err != nil {
		LogError("Failed to save config: %v", err)
	}
}

// UpdateStatus updates the status line. Calls are throttled because the
// frame loop reports every iteration.
func (t *TrayApp) UpdateStatus(status string) {
	if t.statusItem == nil || !t.statusLimiter.Allow() {
		return
	}
	t.statusItem.SetTitle(fmt.Sprintf("Status: %s", status))
	if t.bot.Recording() {
		t.recordItem.Check()
	} else {
		t.recordItem.Uncheck()
	}
}
