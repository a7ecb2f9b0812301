package capture

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// frameInterval is the period of the frame timer: 2 Hz. The encoder's
// -framerate flag must agree with this.
const frameInterval = 500 * time.Millisecond

// encodeFPS is the playback rate matching frameInterval.
const encodeFPS = 2

// FrameRecorder writes numbered PNG frames of the rendered meeting into
// the session's frames directory on a fixed timer. A failed screenshot
// skips the tick without retrying; the dense index is only advanced on
// success.
type FrameRecorder struct {
	session  *Session
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewFrameRecorder creates a recorder for the session.
func NewFrameRecorder(s *Session) *FrameRecorder {
	return &FrameRecorder{
		session:  s,
		interval: frameInterval,
		logger:   slog.Default().With("component", "frames", "session", s.SessionID),
	}
}

// Start begins the periodic capture. A running recorder is left alone; a
// session in recording state holds exactly one frame timer.
func (f *FrameRecorder) Start(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.done = make(chan struct{})
	go f.run(runCtx, f.done)
}

// Stop halts the timer and waits for the in-flight tick to finish.
func (f *FrameRecorder) Stop() {
	f.mu.Lock()
	cancel := f.cancel
	done := f.done
	f.cancel = nil
	f.done = nil
	f.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (f *FrameRecorder) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.captureOne(ctx)
		}
	}
}

func (f *FrameRecorder) captureOne(ctx context.Context) {
	idx, path := f.session.nextFramePath()
	if err := f.session.driver.Screenshot(ctx, path); err != nil {
		// A missed frame is skippable; the session carries on.
		f.logger.Debug("Frame capture failed", "frame", idx, "error", err)
		return
	}
	f.session.commitFrame(idx)
}
