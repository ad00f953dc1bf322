// Package main - browser.go
//
// This file implements the Browser controller that manages chromedp for the
// browser backend. It provides screen capture, cookie persistence and the
// page-side hook that records the user's own mouse movements.
//
// Key Responsibilities:
//   - Chromedp browser lifecycle management (start, navigate, close)
//   - Screenshot capture with timeout protection (5s), as a capture.Grabber
//   - Cookie persistence (save/load for session continuation)
//   - Mouse event hook for recording (installed after navigation)
//   - Action logging for the debug overlay
//
// Browser Architecture:
// The Browser uses nested contexts for proper resource management:
//   - allocCtx: Allocator context for browser process management
//   - ctx: Browser context for page operations
// Both contexts have cancel functions for graceful cleanup.
//
// Timeout Strategy:
//   - Navigation: 60 seconds (slow network tolerance)
//   - Screenshot: 5 seconds (prevent hanging)
//   - Hook install and poll: 2 seconds (quick validation)
//
// Coordinates:
// The browser backend uses viewport CSS pixels as its "desktop" coordinates,
// so the capture region is the viewport rectangle at the origin.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"orebot/internal/mousedb"
)

var errBrowserNotReady = errors.New("browser context is invalid")

// ActionLog represents a recorded action for debug overlay display.
type ActionLog struct {
	Message   string
	Timestamp time.Time
}

// CookieData is a browser cookie as persisted to the cookie file.
type CookieData struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// Browser manages the chromedp browser instance.
//
// Lifecycle:
//   1. NewBrowser(): Create instance with empty action log
//   2. Start(): Initialize chromedp contexts, restore cookies, navigate, hook events
//   3. Grab(): Take screenshots repeatedly (from the capture service)
//   4. Close(): Clean up contexts and browser process
//
// Concurrency:
// ctx is written once by Start under mu and read by every other method.
// Context operations are protected by chromedp's internal synchronization.
type Browser struct {
	cfg InputConfig

	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc

	actionLogs []ActionLog
	logMutex   sync.RWMutex
}

// NewBrowser creates a new browser instance
func NewBrowser(cfg InputConfig) *Browser {
	return &Browser{
		cfg:        cfg,
		actionLogs: make([]ActionLog, 0, 10),
	}
}

// LogAction logs an action for debug display (keeps last 10)
func (b *Browser) LogAction(message string) {
	b.logMutex.Lock()
	defer b.logMutex.Unlock()

	b.actionLogs = append(b.actionLogs, ActionLog{
		Message:   message,
		Timestamp: time.Now(),
	})
	if len(b.actionLogs) > 10 {
		b.actionLogs = b.actionLogs[len(b.actionLogs)-10:]
	}
}

// GetRecentLogs gets recent action logs (last 5)
func (b *Browser) GetRecentLogs() []ActionLog {
	b.logMutex.RLock()
	defer b.logMutex.RUnlock()

	count := min(5, len(b.actionLogs))
	result := make([]ActionLog, count)
	copy(result, b.actionLogs[len(b.actionLogs)-count:])
	return result
}

// pageContext returns the page context, or an error before Start or after Close.
func (b *Browser) pageContext() (context.Context, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.ctx == nil || b.ctx.Err() != nil {
		return nil, errBrowserNotReady
	}
	return b.ctx, nil
}

// Start launches the browser and navigates to the configured URL.
//
// Algorithm:
//   1. Create exec allocator context (visible window unless headless,
//      automation flags disabled, configured window size)
//   2. Create browser context with a logger bridging to Debug.log
//   3. Restore saved cookies before navigation
//   4. Navigate with a 60s timeout
//   5. Install the mouse event hook used for recording
func (b *Browser) Start() error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.cfg.Headless),
		chromedp.Flag("disable-gpu", false),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(b.cfg.Width, b.cfg.Height),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	LogInfo("Browser allocator context created")

	ctx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...interface{}) {
		LogDebug(format, args...)
	}))
	LogInfo("Browser context created")

	b.mu.Lock()
	b.ctx, b.cancel, b.allocCancel = ctx, cancel, allocCancel
	b.mu.Unlock()

	cookies, err := loadCookies(b.cfg.CookieFile)
	if err != nil {
		LogWarn("Failed to load cookies: %v", err)
	}
	if len(cookies) > 0 {
		LogInfo("Setting %d cookies before navigation", len(cookies))
		if err := b.SetCookies(cookies); err != nil {
			LogWarn("Failed to set cookies before navigation: %v", err)
		}
	}

	LogInfo("Navigating to %s", b.cfg.URL)
	navCtx, navCancel := context.WithTimeout(ctx, 60*time.Second)
	defer navCancel()

	if err := chromedp.Run(navCtx, chromedp.Navigate(b.cfg.URL)); err != nil {
		LogError("Navigation error: %v", err)
		return fmt.Errorf("navigate %s: %w", b.cfg.URL, err)
	}
	LogInfo("Navigation completed successfully")

	if err := b.installHook(); err != nil {
		LogWarn("Failed to install mouse hook, recording disabled: %v", err)
	}
	return nil
}

// Region returns the viewport rectangle.
func (b *Browser) Region() image.Rectangle {
	return image.Rect(0, 0, b.cfg.Width, b.cfg.Height)
}

// Grab takes a screenshot of the current page.
//
// Typical capture time: 10-50ms depending on viewport size and content.
// Timeout set to 5 seconds to handle edge cases without blocking indefinitely.
func (b *Browser) Grab(ctx context.Context) (*image.RGBA, error) {
	pageCtx, err := b.pageContext()
	if err != nil {
		return nil, err
	}

	captureCtx, cancel := context.WithTimeout(pageCtx, 5*time.Second)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var buf []byte
	if err := chromedp.Run(captureCtx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("screenshot: %w", err)
	}

	img, err := png.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	return toRGBA(img), nil
}

// hookScript records real mouse events on the page. Edges queue up until the
// next poll; the cursor position is the latest one seen.
const hookScript = `(() => {
	if (window.__orebot) return true;
	const s = {x: 0, y: 0, edges: []};
	window.__orebot = s;
	const on = (type, kind) => document.addEventListener(type, e => {
		s.x = e.clientX; s.y = e.clientY;
		if (kind) s.edges.push({kind: kind, button: e.button, x: e.clientX, y: e.clientY});
	}, true);
	on('mousemove', 0);
	on('mousedown', 1);
	on('mouseup', 2);
	return true;
})()`

const pollScript = `(() => {
	const s = window.__orebot;
	if (!s) return {missing: true};
	const out = {x: s.x, y: s.y, edges: s.edges};
	s.edges = [];
	return out;
})()`

type hookEdge struct {
	Kind   int `json:"kind"`
	Button int `json:"button"`
	X      int `json:"x"`
	Y      int `json:"y"`
}

type hookState struct {
	Missing bool       `json:"missing"`
	X       int        `json:"x"`
	Y       int        `json:"y"`
	Edges   []hookEdge `json:"edges"`
}

func (b *Browser) installHook() error {
	ctx, err := b.pageContext()
	if err != nil {
		return err
	}
	hookCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var ok bool
	if err := chromedp.Run(hookCtx, chromedp.Evaluate(hookScript, &ok)); err != nil {
		return err
	}
	LogInfo("Mouse hook installed")
	return nil
}

// PollMouse drains the events the hook saw since the last poll, keeping
// only edges of button. Every edge becomes one sample, followed by the
// latest cursor position when the cursor moved on after the last edge.
func (b *Browser) PollMouse(ctx context.Context, button mousedb.Button) ([]mousedb.Sample, error) {
	pageCtx, err := b.pageContext()
	if err != nil {
		return nil, err
	}
	pollCtx, cancel := context.WithTimeout(pageCtx, 2*time.Second)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var st hookState
	if err := chromedp.Run(pollCtx, chromedp.Evaluate(pollScript, &st)); err != nil {
		return nil, fmt.Errorf("poll mouse hook: %w", err)
	}
	if st.Missing {
		// Page reloaded; the hook is gone.
		return nil, b.installHook()
	}

	pos := image.Pt(st.X, st.Y)
	var samples []mousedb.Sample
	for _, e := range st.Edges {
		if domButton(e.Button) != button {
			continue
		}
		s := mousedb.Sample{Pos: image.Pt(e.X, e.Y), EdgePos: image.Pt(e.X, e.Y)}
		switch e.Kind {
		case 1:
			s.Edge = mousedb.EdgePress
		case 2:
			s.Edge = mousedb.EdgeRelease
		}
		samples = append(samples, s)
	}
	if len(samples) == 0 || samples[len(samples)-1].Pos != pos {
		samples = append(samples, mousedb.Sample{Pos: pos})
	}
	return samples, nil
}

// domButton maps MouseEvent.button to a Button.
func domButton(b int) mousedb.Button {
	switch b {
	case 1:
		return mousedb.ButtonMiddle
	case 2:
		return mousedb.ButtonRight
	default:
		return mousedb.ButtonLeft
	}
}

// GetCookies retrieves all cookies from the browser
func (b *Browser) GetCookies() ([]CookieData, error) {
	ctx, err := b.pageContext()
	if err != nil {
		return nil, err
	}

	var cookies []*network.Cookie
	err = chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}

	out := make([]CookieData, len(cookies))
	for i, c := range cookies {
		out[i] = CookieData{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		}
	}
	LogInfo("Retrieved %d cookies from browser", len(out))
	return out, nil
}

// SetCookies sets cookies in the browser
func (b *Browser) SetCookies(cookies []CookieData) error {
	if len(cookies) == 0 {
		return nil
	}
	ctx, err := b.pageContext()
	if err != nil {
		return err
	}

	err = chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			for _, c := range cookies {
				params := network.SetCookie(c.Name, c.Value).
					WithDomain(c.Domain).
					WithPath(c.Path).
					WithHTTPOnly(c.HTTPOnly).
					WithSecure(c.Secure)

				if c.Expires > 0 {
					expires := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
					params = params.WithExpires(&expires)
				}
				if c.SameSite != "" {
					params = params.WithSameSite(network.CookieSameSite(c.SameSite))
				}

				if err := params.Do(ctx); err != nil {
					LogWarn("Failed to set cookie %s: %v", c.Name, err)
				}
			}
			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("set cookies: %w", err)
	}

	LogInfo("Set %d cookies in browser", len(cookies))
	return nil
}

// SaveCookies writes the current session cookies to the cookie file.
func (b *Browser) SaveCookies() error {
	cookies, err := b.GetCookies()
	if err != nil {
		return err
	}
	return saveCookies(b.cfg.CookieFile, cookies)
}

// Close closes the browser
func (b *Browser) Close() {
	LogInfo("Closing browser...")
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		LogDebug("Cancelling browser context")
		b.cancel()
	}
	if b.allocCancel != nil {
		LogDebug("Cancelling allocator context")
		b.allocCancel()
	}
	LogInfo("Browser closed successfully")
}

func loadCookies(path string) ([]CookieData, error) {
	if path == "" {
		return nil, nil
	}
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var cookies []CookieData
	if err := json.NewDecoder(file).Decode(&cookies); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return cookies, nil
}

func saveCookies(path string, cookies []CookieData) error {
	if path == "" {
		return nil
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cookies); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	LogInfo("Saved %d cookies to %s", len(cookies), path)
	return nil
}
