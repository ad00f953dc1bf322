package capture

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Grabber takes one screenshot of the capture region.
type Grabber interface {
	Grab(ctx context.Context) (*image.RGBA, error)
	// Region is the desktop rectangle Grab captures.
	Region() image.Rectangle
}

// Service runs a Grabber on its own goroutine and keeps the latest frame in
// a FrameBuffer. The frame loop reads copies with LatestFrame.
type Service struct {
	grabber  Grabber
	interval atomic.Int64
	timeout  time.Duration
	log      zerolog.Logger

	buf       FrameBuffer
	capturing atomic.Bool
	frames    atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a stopped capture service grabbing every interval.
// A zero interval grabs as fast as the grabber allows.
func NewService(grabber Grabber, interval time.Duration, log zerolog.Logger) *Service {
	s := &Service{
		grabber: grabber,
		timeout: 5 * time.Second,
		log:     log.With().Str("component", "capture").Logger(),
	}
	s.interval.Store(int64(interval))
	return s
}

// SetInterval changes the grab interval. It takes effect after the next grab.
func (s *Service) SetInterval(interval time.Duration) {
	s.interval.Store(int64(interval))
}

// Interval returns the grab interval.
func (s *Service) Interval() time.Duration {
	return time.Duration(s.interval.Load())
}

// Start launches the capture goroutine. Calling Start on a running service
// does nothing.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capturing.Load() {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.capturing.Store(true)

	go s.loop(ctx, s.done)
	s.log.Info().Dur("interval", s.Interval()).Stringer("region", s.grabber.Region()).Msg("capture started")
}

// Stop ends the capture goroutine and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.log.Info().Uint64("frames", s.frames.Load()).Msg("capture stopped")
}

// IsCapturing reports whether the capture goroutine is running.
func (s *Service) IsCapturing() bool {
	return s.capturing.Load()
}

// Frames returns how many frames have been captured.
func (s *Service) Frames() uint64 {
	return s.frames.Load()
}

// LatestFrame returns a copy of the most recent frame.
func (s *Service) LatestFrame() (*image.RGBA, error) {
	return s.buf.Latest()
}

// SystemToFrame maps a desktop point into the latest frame.
func (s *Service) SystemToFrame(p image.Point) image.Point {
	return s.mapper().SystemToFrame(p, s.buf.Bounds())
}

// FrameToSystem maps a frame point onto the desktop.
func (s *Service) FrameToSystem(p image.Point) image.Point {
	return s.mapper().FrameToSystem(p, s.buf.Bounds())
}

func (s *Service) mapper() Mapper {
	return Mapper{Region: s.grabber.Region()}
}

func (s *Service) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer s.capturing.Store(false)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("capture goroutine panicked")
		}
	}()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		start := time.Now()
		if err := s.grabOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.Debug().Err(err).Msg("grab failed")
		}

		wait := s.Interval() - time.Since(start)
		if wait <= 0 {
			select {
			case <-ctx.Done():
				return
			default:
			}
			continue
		}
		timer.Reset(wait)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}

func (s *Service) grabOnce(ctx context.Context) error {
	grabCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	img, err := s.grabber.Grab(grabCtx)
	if err != nil {
		return fmt.Errorf("grab: %w", err)
	}
	if img == nil {
		return nil
	}
	s.buf.Publish(img)
	s.frames.Add(1)
	return nil
}
