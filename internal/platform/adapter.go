package platform

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/meetscribe/meetscribe/internal/browser"
)

// JoinResultKind classifies the terminal outcome of a join attempt.
type JoinResultKind string

const (
	JoinSucceeded JoinResultKind = "join_succeeded"
	JoinTimedOut  JoinResultKind = "join_timed_out"
	JoinRejected  JoinResultKind = "join_rejected"
)

// JoinStatus is the structured status an adapter reports while joining.
type JoinStatus string

const (
	StatusWaitingInLobby JoinStatus = "waiting_in_lobby"
	StatusInMeeting      JoinStatus = "in_meeting"
	StatusJoinFailed     JoinStatus = "join_failed"
)

// JoinOutcome is the structured result of a join attempt. Adapters return
// outcomes, never errors, across the engine boundary.
type JoinOutcome struct {
	Kind   JoinResultKind
	Status JoinStatus
	Detail string
}

// Adapter is a per-provider join-and-caption strategy.
type Adapter interface {
	Platform() Platform

	// MeetingURL rewrites a user-supplied meeting URL into the form the
	// web client actually joins from. Most platforms return it unchanged.
	MeetingURL(raw string) string

	// Join navigates to url and drives the prejoin flow until the meeting
	// admits the bot, the lobby times out, or the page reaches a terminal
	// rejection state. Captions are enabled on success.
	Join(ctx context.Context, drv browser.Driver, url, botName string) JoinOutcome

	// EnableCaptions turns on the platform's live caption rendering.
	EnableCaptions(ctx context.Context, drv browser.Driver) error

	// CaptionScript returns the page expression the caption scraper
	// evaluates each tick. It yields a list of {speaker, text} candidates.
	CaptionScript() string
}

// ForPlatform returns the adapter for a detected platform.
func ForPlatform(p Platform) (Adapter, bool) {
	switch p {
	case PlatformGoogleMeet:
		return NewGoogleMeet(), true
	case PlatformZoom:
		return NewZoom(), true
	case PlatformTeams:
		return NewTeams(), true
	case PlatformWebex:
		return NewWebex(), true
	default:
		return nil, false
	}
}

// joinConfig holds the timing knobs for the shared join flow. Production
// adapters use defaultJoinConfig; tests shorten the poll schedule.
type joinConfig struct {
	NavigateTimeout time.Duration
	PollInterval    time.Duration
	PollTimeout     time.Duration
	SettleDelay     time.Duration
	ClickSettle     time.Duration

	// DebugDir, when set, receives step-by-step screenshots of the join
	// flow. The engine never reads them back.
	DebugDir string
}

func defaultJoinConfig() joinConfig {
	return joinConfig{
		NavigateTimeout: 60 * time.Second,
		PollInterval:    time.Second,
		PollTimeout:     120 * time.Second,
		SettleDelay:     2 * time.Second,
		ClickSettle:     500 * time.Millisecond,
	}
}

// joiner carries the join machinery shared by all adapters.
type joiner struct {
	cfg       joinConfig
	platform  Platform
	logger    *slog.Logger
	debugStep int
}

func newJoiner(p Platform) joiner {
	return joiner{
		cfg:      defaultJoinConfig(),
		platform: p,
		logger:   slog.Default().With("component", "platform", "platform", string(p)),
	}
}

// SetDebugDir enables step-by-step join screenshots under dir.
func (j *joiner) SetDebugDir(dir string) {
	j.cfg.DebugDir = dir
}

// dismissDialogs clicks through the consent and onboarding dialogs that
// sit in front of the prejoin screen. Every click is best effort.
func (j *joiner) dismissDialogs(ctx context.Context, drv browser.Driver, extra ...string) {
	phrases := append([]string{"got it", "accept cookies", "accept all", "i agree", "dismiss"}, extra...)
	for _, p := range phrases {
		if clicked, _ := drv.ClickText(ctx, p); clicked {
			j.logger.Debug("Dismissed dialog", "phrase", p)
			j.sleep(ctx, j.cfg.ClickSettle)
		}
	}
}

// enterName locates the display-name input by aria/placeholder heuristics
// and types botName through the keyboard path.
func (j *joiner) enterName(ctx context.Context, drv browser.Driver, botName string, selectors ...string) bool {
	selectors = append(selectors,
		`input[aria-label*="name" i]`,
		`input[placeholder*="name" i]`,
		`input[type="text"]`,
	)
	for _, sel := range selectors {
		if err := drv.TypeText(ctx, sel, botName); err == nil {
			j.logger.Debug("Entered bot name", "selector", sel)
			return true
		}
	}
	j.logger.Warn("No name input found")
	return false
}

// disableAV clicks any microphone/camera toggle that is currently on.
// The probe matches on aria-labels; toggles already off are left alone.
func (j *joiner) disableAV(ctx context.Context, drv browser.Driver) {
	js := `(() => {
		let clicked = 0;
		const buttons = document.querySelectorAll('button, [role="button"]');
		for (const btn of buttons) {
			const label = ((btn.getAttribute('aria-label') || '') + ' ' + (btn.getAttribute('data-tooltip') || '')).toLowerCase();
			if (!label) continue;
			const isMic = label.includes('microphone') || label.includes(' mic');
			const isCam = label.includes('camera') || label.includes('video');
			if (!isMic && !isCam) continue;
			const pressed = btn.getAttribute('aria-pressed');
			const checked = btn.getAttribute('aria-checked');
			const off = label.includes('turn on') || label.includes('unmute') || pressed === 'false' || checked === 'false';
			if (off) continue;
			btn.click();
			clicked++;
		}
		return clicked;
	})()`

	var clicked int
	if err := drv.Evaluate(ctx, js, &clicked); err != nil {
		j.logger.Debug("AV toggle probe failed", "error", err)
		return
	}
	if clicked > 0 {
		j.logger.Debug("Disabled AV toggles", "count", clicked)
	}
}

var joinButtonPhrases = []string{"join now", "ask to join", "join meeting", "continue without"}

// submitJoin clicks the join button by visible text. When no element-level
// click lands (some platforms render the button on a non-button element
// that swallows synthetic clicks), it falls back to a raw mouse click at
// the button's bounding-box center.
func (j *joiner) submitJoin(ctx context.Context, drv browser.Driver) bool {
	if clicked, _ := drv.ClickText(ctx, joinButtonPhrases...); clicked {
		return true
	}

	js := fmt.Sprintf(`(() => {
		const phrases = %s;
		const candidates = document.querySelectorAll('button, [role="button"], div, span');
		for (const el of candidates) {
			const text = (el.textContent || '').trim().toLowerCase();
			if (!text || text.length > 40) continue;
			if (!phrases.some(p => text.includes(p))) continue;
			const rect = el.getBoundingClientRect();
			if (rect.width === 0 || rect.height === 0) continue;
			return {x: rect.x + rect.width / 2, y: rect.y + rect.height / 2};
		}
		return null;
	})()`, jsPhraseArray(joinButtonPhrases))

	var box *struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if err := drv.Evaluate(ctx, js, &box); err != nil || box == nil {
		return false
	}
	if err := drv.ClickAt(ctx, box.X, box.Y); err != nil {
		j.logger.Debug("Coordinate click failed", "error", err)
		return false
	}
	return true
}

// pollAdmission polls the admission probe at the configured interval until
// the page reports in_meeting, a terminal rejection, or the poll window is
// exhausted. A persisting prejoin state re-issues submitJoin.
func (j *joiner) pollAdmission(ctx context.Context, drv browser.Driver) JoinOutcome {
	deadline := time.Now().Add(j.cfg.PollTimeout)
	ticker := time.NewTicker(j.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return JoinOutcome{Kind: JoinTimedOut, Status: StatusJoinFailed, Detail: "join canceled"}
		case <-ticker.C:
		}

		state := probeAdmission(ctx, drv)
		switch state {
		case admissionInMeeting:
			return JoinOutcome{Kind: JoinSucceeded, Status: StatusInMeeting}
		case admissionRejected:
			return JoinOutcome{Kind: JoinRejected, Status: StatusJoinFailed, Detail: "meeting requires a passcode or denied entry"}
		case admissionPrejoin:
			// The join click did not land; try again.
			j.submitJoin(ctx, drv)
		case admissionWaiting:
			j.logger.Debug("Waiting for admission")
		}

		if time.Now().After(deadline) {
			return JoinOutcome{Kind: JoinTimedOut, Status: StatusWaitingInLobby, Detail: "admission poll exhausted"}
		}
	}
}

// debugShot writes an optional diagnostic screenshot of the current join
// step. Disabled unless DebugDir is configured.
func (j *joiner) debugShot(ctx context.Context, drv browser.Driver, label string) {
	if j.cfg.DebugDir == "" {
		return
	}
	j.debugStep++
	path := filepath.Join(j.cfg.DebugDir, fmt.Sprintf("%s_step%d_%s.png", j.platform, j.debugStep, label))
	if err := drv.Screenshot(ctx, path); err != nil {
		j.logger.Debug("Debug screenshot failed", "label", label, "error", err)
	}
}

// sleep waits without outliving the caller's context.
func (j *joiner) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func jsPhraseArray(phrases []string) string {
	out := "["
	for i, p := range phrases {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf("%q", p)
	}
	return out + "]"
}
