// Package main - data.go
//
// This file defines the bot configuration and its persistence.
//
// Configuration is stored in config.yaml next to the binary and is loaded once
// at startup. Settings changed from the tray are written back immediately.
//
// Sections:
//   - input: where mouse events go (native desktop via robotgo, or the browser canvas)
//   - capture: frame rate and desktop region to capture
//   - movements: recorded movement file, external edit watching, random seed
//   - tracking: tracker TTL and similarity thresholds
//   - mining: ore class, click radius, duration windows, grace timer
//   - tabs: which UI tab to track and crop
//   - detector: colour classes and clustering for the built-in detector
//   - log: level, log file, debug overlay output
//
// Missing file: defaults are used and written on the first save.
// Unreadable or unparsable file: defaults are used for this run and the file
// is left as it is.
// Zero values in a partial file are replaced by defaults, so a config.yaml
// only needs the keys that differ.
package main

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"orebot/internal/mousedb"
	"orebot/internal/task"
	"orebot/internal/tracking"
	"orebot/internal/vision"
)

// DefaultConfigPath is the config file used when --config is not given.
const DefaultConfigPath = "config.yaml"

// ErrConfigNotSaved is returned by SaveConfig for a config that stands in
// for a file that failed to load.
var ErrConfigNotSaved = errors.New("config file failed to load, not overwriting it")

// Input backends
const (
	BackendNative  = "native"
	BackendBrowser = "browser"
)

// Config holds all bot settings.
//
// Thread Safety:
// The tray goroutines and the main loop share one Config. Fields changed at
// runtime (mining ore, recording, capture fps) are accessed under mu.
type Config struct {
	Input     InputConfig     `yaml:"input"`
	Capture   CaptureConfig   `yaml:"capture"`
	Movements MovementsConfig `yaml:"movements"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Mining    MiningConfig    `yaml:"mining"`
	Tabs      TabsConfig      `yaml:"tabs"`
	Detector  DetectorConfig  `yaml:"detector"`
	Log       LogConfig       `yaml:"log"`

	mu sync.RWMutex
	// loadErr is set when the file on disk could not be used. SaveConfig
	// refuses to replace it while set.
	loadErr error
}

// InputConfig selects the input and capture backend.
type InputConfig struct {
	Backend string `yaml:"backend"`

	// URL is opened by the browser backend.
	URL      string `yaml:"url"`
	Headless bool   `yaml:"headless"`

	// CookieFile keeps the browser session between runs.
	CookieFile string `yaml:"cookie_file"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
}

// CaptureConfig controls frame capture.
type CaptureConfig struct {
	// FPS limits capture and the main loop. Zero captures continuously.
	FPS    int          `yaml:"fps"`
	Region RegionConfig `yaml:"region"`
}

// RegionConfig is a desktop rectangle. An empty region captures the whole
// primary screen.
type RegionConfig struct {
	X      int `yaml:"x"`
	Y      int `yaml:"y"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Rect returns the region as a rectangle.
func (r RegionConfig) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// MovementsConfig points at the recorded movement file.
type MovementsConfig struct {
	File  string `yaml:"file"`
	Watch bool   `yaml:"watch"`
	// Seed fixes the query randomness. Zero seeds from the clock.
	Seed int64 `yaml:"seed"`
	// SamePosThreshold caps the dwell recorded while the cursor rests.
	SamePosThreshold float64 `yaml:"same_pos_threshold"`
}

// TrackingConfig tunes the tracker.
type TrackingConfig struct {
	TTL            float64 `yaml:"ttl"`
	MatchThreshold float64 `yaml:"match_threshold"`
	DedupThreshold float64 `yaml:"dedup_threshold"`
}

// WindowConfig is a duration window in seconds.
type WindowConfig struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// MiningConfig tunes the mining task.
type MiningConfig struct {
	Enabled        bool         `yaml:"enabled"`
	Ore            string       `yaml:"ore"`
	RadiusFactor   float64      `yaml:"radius_factor"`
	ApproachWindow WindowConfig `yaml:"approach_window"`
	ReleaseRadius  float64      `yaml:"release_radius"`
	ReleaseWindow  WindowConfig `yaml:"release_window"`
	WanderRadius   float64      `yaml:"wander_radius"`
	DwellWindow    WindowConfig `yaml:"dwell_window"`
	WanderWindow   WindowConfig `yaml:"wander_window"`
	GraceTimeout   float64      `yaml:"grace_timeout"`
	AvoidTimeout   float64      `yaml:"avoid_timeout"`
	Button         string       `yaml:"button"`
}

// TabsConfig tunes tab tracking.
type TabsConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Tracking       string  `yaml:"tracking"`
	DedupThreshold float64 `yaml:"dedup_threshold"`
	OverrideClass  bool    `yaml:"override_class"`
	Inventory      bool    `yaml:"inventory"`
	// Classes are the highlight colours of the tab icons, by tab name.
	Classes []ClassSetting `yaml:"classes"`
}

// DetectorConfig tunes the colour detector.
type DetectorConfig struct {
	Tolerance int            `yaml:"tolerance"`
	ClusterX  int            `yaml:"cluster_x"`
	ClusterY  int            `yaml:"cluster_y"`
	MinPixels int            `yaml:"min_pixels"`
	MinSize   int            `yaml:"min_size"`
	Workers   int            `yaml:"workers"`
	Classes   []ClassSetting `yaml:"classes"`
}

// ClassSetting overrides one detector class colour.
type ClassSetting struct {
	Name      string `yaml:"name"`
	R         uint8  `yaml:"r"`
	G         uint8  `yaml:"g"`
	B         uint8  `yaml:"b"`
	Tolerance int    `yaml:"tolerance"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `yaml:"level"`
	// OverlayFile receives the debug overlay. Empty disables the overlay.
	OverlayFile string `yaml:"overlay_file"`
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	mining := task.DefaultMiningConfig()
	trackCfg := tracking.DefaultConfig()
	tabs := task.DefaultFindTabConfig()
	det := vision.DefaultConfig(nil)

	return &Config{
		Input: InputConfig{
			Backend:    BackendNative,
			URL:        "https://universe.flyff.com/play",
			CookieFile: "cookies.json",
			Width:      800,
			Height:     600,
		},
		Capture: CaptureConfig{
			FPS: 20,
		},
		Movements: MovementsConfig{
			File:             "movements.json",
			Watch:            true,
			SamePosThreshold: mousedb.DefaultRecorderConfig().SamePosThreshold,
		},
		Tracking: TrackingConfig{
			TTL:            trackCfg.TTL,
			MatchThreshold: trackCfg.MatchThreshold,
			DedupThreshold: trackCfg.DedupThreshold,
		},
		Mining: MiningConfig{
			Enabled:        true,
			Ore:            mining.Ore.String(),
			RadiusFactor:   mining.RadiusFactor,
			ApproachWindow: windowConfig(mining.ApproachWindow),
			ReleaseRadius:  mining.ReleaseRadius,
			ReleaseWindow:  windowConfig(mining.ReleaseWindow),
			WanderRadius:   mining.WanderRadius,
			DwellWindow:    windowConfig(mining.DwellWindow),
			WanderWindow:   windowConfig(mining.WanderWindow),
			GraceTimeout:   mining.GraceTimeout,
			AvoidTimeout:   5,
			Button:         mining.Button.String(),
		},
		Tabs: TabsConfig{
			Tracking:       tabs.Tracking.String(),
			DedupThreshold: tabs.DedupThreshold,
		},
		Detector: DetectorConfig{
			Tolerance: 12,
			ClusterX:  det.ClusterX,
			ClusterY:  det.ClusterY,
			MinPixels: det.MinPixels,
			MinSize:   det.MinSize,
		},
		Log: LogConfig{
			Level: "debug",
		},
	}
}

// LoadConfig reads the config file at path. Environment variables in the
// file are expanded. A missing file yields defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		LogInfo("No config file found at %s, using defaults", path)
		return cfg, nil
	}
	if err != nil {
		cfg.loadErr = fmt.Errorf("read config: %w", err)
		return cfg, cfg.loadErr
	}

	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), cfg); err != nil {
		cfg = NewConfig()
		cfg.loadErr = fmt.Errorf("parse config %s: %w", path, err)
		return cfg, cfg.loadErr
	}
	cfg.applyDefaults()

	LogInfo("Config loaded from %s", path)
	return cfg, nil
}

// SaveConfig writes cfg to path. It returns ErrConfigNotSaved without
// touching the file when cfg replaced a config file that failed to load.
func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	if cfg.loadErr != nil {
		err := fmt.Errorf("%w: %v", ErrConfigNotSaved, cfg.loadErr)
		cfg.mu.RUnlock()
		return err
	}
	out, err := yaml.Marshal(cfg)
	cfg.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	LogInfo("Config saved to %s", path)
	return nil
}

// applyDefaults replaces zero values left by a partial file.
func (c *Config) applyDefaults() {
	d := NewConfig()

	if c.Input.Backend == "" {
		c.Input.Backend = d.Input.Backend
	}
	if c.Input.URL == "" {
		c.Input.URL = d.Input.URL
	}
	if c.Input.Width <= 0 || c.Input.Height <= 0 {
		c.Input.Width, c.Input.Height = d.Input.Width, d.Input.Height
	}
	if c.Capture.FPS < 0 {
		c.Capture.FPS = 0
	}
	if c.Movements.File == "" {
		c.Movements.File = d.Movements.File
	}
	if c.Movements.SamePosThreshold <= 0 {
		c.Movements.SamePosThreshold = d.Movements.SamePosThreshold
	}
	if c.Tracking.TTL <= 0 {
		c.Tracking.TTL = d.Tracking.TTL
	}
	if c.Tracking.MatchThreshold <= 0 {
		c.Tracking.MatchThreshold = d.Tracking.MatchThreshold
	}
	if c.Tracking.DedupThreshold <= 0 {
		c.Tracking.DedupThreshold = d.Tracking.DedupThreshold
	}

	m, dm := &c.Mining, d.Mining
	if m.Ore == "" {
		m.Ore = dm.Ore
	}
	if m.RadiusFactor <= 0 {
		m.RadiusFactor = dm.RadiusFactor
	}
	if m.ApproachWindow.Max <= 0 {
		m.ApproachWindow = dm.ApproachWindow
	}
	if m.ReleaseRadius <= 0 {
		m.ReleaseRadius = dm.ReleaseRadius
	}
	if m.ReleaseWindow.Max <= 0 {
		m.ReleaseWindow = dm.ReleaseWindow
	}
	if m.WanderRadius <= 0 {
		m.WanderRadius = dm.WanderRadius
	}
	if m.DwellWindow.Max <= 0 {
		m.DwellWindow = dm.DwellWindow
	}
	if m.WanderWindow.Max <= 0 {
		m.WanderWindow = dm.WanderWindow
	}
	if m.GraceTimeout <= 0 {
		m.GraceTimeout = dm.GraceTimeout
	}
	if m.Button == "" {
		m.Button = dm.Button
	}

	if c.Tabs.Tracking == "" {
		c.Tabs.Tracking = d.Tabs.Tracking
	}
	if c.Tabs.DedupThreshold <= 0 {
		c.Tabs.DedupThreshold = d.Tabs.DedupThreshold
	}

	det, dd := &c.Detector, d.Detector
	if det.Tolerance <= 0 {
		det.Tolerance = dd.Tolerance
	}
	if det.ClusterX <= 0 {
		det.ClusterX = dd.ClusterX
	}
	if det.ClusterY <= 0 {
		det.ClusterY = dd.ClusterY
	}
	if det.MinPixels <= 0 {
		det.MinPixels = dd.MinPixels
	}
	if det.MinSize <= 0 {
		det.MinSize = dd.MinSize
	}

	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
}

// FrameInterval returns the capture interval, zero for continuous capture.
func (c *Config) FrameInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Capture.FPS <= 0 {
		return 0
	}
	return time.Second / time.Duration(c.Capture.FPS)
}

// SetFPS changes the capture rate.
func (c *Config) SetFPS(fps int) {
	c.mu.Lock()
	c.Capture.FPS = fps
	c.mu.Unlock()
}

// SetOre changes the mined ore by name.
func (c *Config) SetOre(name string) error {
	if _, err := task.ParseOre(name); err != nil {
		return err
	}
	c.mu.Lock()
	c.Mining.Ore = name
	c.mu.Unlock()
	return nil
}

// OreName returns the configured ore name.
func (c *Config) OreName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Mining.Ore
}

// MiningTaskConfig converts the mining section.
func (c *Config) MiningTaskConfig() (task.MiningConfig, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	m := c.Mining
	ore, err := task.ParseOre(m.Ore)
	if err != nil {
		return task.MiningConfig{}, err
	}
	var button mousedb.Button
	if err := button.UnmarshalText([]byte(m.Button)); err != nil {
		return task.MiningConfig{}, fmt.Errorf("mining button: %w", err)
	}

	return task.MiningConfig{
		Ore:            ore,
		RadiusFactor:   m.RadiusFactor,
		ApproachWindow: m.ApproachWindow.Window(),
		ReleaseRadius:  m.ReleaseRadius,
		ReleaseWindow:  m.ReleaseWindow.Window(),
		WanderRadius:   m.WanderRadius,
		DwellWindow:    m.DwellWindow.Window(),
		WanderWindow:   m.WanderWindow.Window(),
		GraceTimeout:   m.GraceTimeout,
		AvoidTimeout:   m.AvoidTimeout,
		Button:         button,
	}, nil
}

// TrackerConfig converts the tracking section.
func (c *Config) TrackerConfig() tracking.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return tracking.Config{
		TTL:            c.Tracking.TTL,
		MatchThreshold: c.Tracking.MatchThreshold,
		DedupThreshold: c.Tracking.DedupThreshold,
	}
}

// FindTabConfig converts the tabs section.
func (c *Config) FindTabConfig() (task.FindTabConfig, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tab, err := task.ParseTab(c.Tabs.Tracking)
	if err != nil {
		return task.FindTabConfig{}, err
	}
	cfg := task.DefaultFindTabConfig()
	cfg.Tracking = tab
	cfg.DedupThreshold = c.Tabs.DedupThreshold
	cfg.OverrideClass = c.Tabs.OverrideClass
	return cfg, nil
}

// TabVisionConfig builds detector settings for the tab classes.
func (c *Config) TabVisionConfig() (vision.Config, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d := c.Detector
	classes := make([]vision.ClassColor, 0, len(c.Tabs.Classes))
	for _, cs := range c.Tabs.Classes {
		tab, err := task.ParseTab(cs.Name)
		if err != nil {
			return vision.Config{}, fmt.Errorf("tab class: %w", err)
		}
		tol := cs.Tolerance
		if tol <= 0 {
			tol = d.Tolerance
		}
		classes = append(classes, vision.ClassColor{
			ClassID:   int(tab),
			Name:      tab.String(),
			Color:     color.RGBA{R: cs.R, G: cs.G, B: cs.B, A: 255},
			Tolerance: uint8(tol),
		})
	}

	cfg := vision.DefaultConfig(classes)
	cfg.ClusterX = d.ClusterX
	cfg.ClusterY = d.ClusterY
	cfg.MinPixels = d.MinPixels
	cfg.MinSize = d.MinSize
	cfg.Workers = d.Workers
	return cfg, nil
}

// VisionConfig converts the detector section. Ore classes come first with
// their built-in colours; classes listed in the file override them by name.
func (c *Config) VisionConfig() (vision.Config, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d := c.Detector
	classes := task.OreClasses(uint8(d.Tolerance))
	for _, cs := range d.Classes {
		ore, err := task.ParseOre(cs.Name)
		if err != nil {
			return vision.Config{}, fmt.Errorf("detector class: %w", err)
		}
		tol := cs.Tolerance
		if tol <= 0 {
			tol = d.Tolerance
		}
		classes[ore].Color = color.RGBA{R: cs.R, G: cs.G, B: cs.B, A: 255}
		classes[ore].Tolerance = uint8(tol)
	}

	cfg := vision.DefaultConfig(classes)
	cfg.ClusterX = d.ClusterX
	cfg.ClusterY = d.ClusterY
	cfg.MinPixels = d.MinPixels
	cfg.MinSize = d.MinSize
	cfg.Workers = d.Workers
	return cfg, nil
}

// Window converts to a query window.
func (w WindowConfig) Window() mousedb.Window {
	return mousedb.Window{Min: w.Min, Max: w.Max}
}

func windowConfig(w mousedb.Window) WindowConfig {
	return WindowConfig{Min: w.Min, Max: w.Max}
}
