package capture

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// captionInterval is the caption poll period: 0.5 Hz.
const captionInterval = 2 * time.Second

// captionConfidence is attached to scraped segments. The conferencing UI
// gives no per-utterance score, so a fixed high value stands in.
const captionConfidence = 0.95

// captionCandidate is one {speaker, text} pair returned by the page-side
// caption script.
type captionCandidate struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// CaptionScraper periodically evaluates the platform's caption script in
// the live page and appends new segments to the session transcript. It is
// an append-only projection: duplicates are rejected only against the
// immediately previous segment, because repeated text interleaved with
// other speech is legitimate.
type CaptionScraper struct {
	session  *Session
	interval time.Duration
	logger   *slog.Logger
	notify   func(CaptionSegment)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCaptionScraper creates a scraper for the session. notify, when non
// nil, is invoked for each appended segment.
func NewCaptionScraper(s *Session, notify func(CaptionSegment)) *CaptionScraper {
	return &CaptionScraper{
		session:  s,
		interval: captionInterval,
		notify:   notify,
		logger:   slog.Default().With("component", "captions", "session", s.SessionID),
	}
}

// Start begins polling. Safe to call on a running scraper.
func (c *CaptionScraper) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(runCtx, c.done)
}

// Stop halts polling and waits for the in-flight tick.
func (c *CaptionScraper) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *CaptionScraper) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.scrapeOne(ctx)
		}
	}
}

func (c *CaptionScraper) scrapeOne(ctx context.Context) {
	var candidates []captionCandidate
	if err := c.session.driver.Evaluate(ctx, c.session.adapter.CaptionScript(), &candidates); err != nil {
		// Transient: mid-navigation or a re-rendering caption pane.
		c.logger.Debug("Caption probe failed", "error", err)
		return
	}

	now := time.Since(c.session.StartedAt).Milliseconds()
	for _, cand := range candidates {
		if !c.session.appendCaption(cand.Speaker, cand.Text, now, captionConfidence) {
			continue
		}
		if c.notify != nil {
			segments := c.session.Transcript()
			c.notify(segments[len(segments)-1])
		}
	}
}
