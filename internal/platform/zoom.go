package platform

import (
	"context"
	"regexp"

	"github.com/meetscribe/meetscribe/internal/browser"
)

// Zoom joins zoom.us meetings through the web client. Native meeting links
// point at the desktop-app launcher, so the URL is rewritten first.
type Zoom struct {
	joiner
}

// NewZoom returns the Zoom adapter.
func NewZoom() *Zoom {
	return &Zoom{joiner: newJoiner(PlatformZoom)}
}

func (a *Zoom) Platform() Platform { return PlatformZoom }

var zoomJoinPath = regexp.MustCompile(`/j/(\d+)`)

// MeetingURL rewrites /j/<id> launcher links to the /wc/<id>/join web
// client path, preserving any passcode query string.
func (a *Zoom) MeetingURL(raw string) string {
	return zoomJoinPath.ReplaceAllString(raw, "/wc/$1/join")
}

// Join drives the Zoom web-client prejoin flow. Once admitted, Zoom shows
// a "Join Audio" dialog which must be answered with computer audio so the
// meeting output reaches the host sound device.
func (a *Zoom) Join(ctx context.Context, drv browser.Driver, url, botName string) JoinOutcome {
	return a.run(ctx, drv, url, botName, a.EnableCaptions, joinHooks{
		afterAdmission: func(ctx context.Context, drv browser.Driver) {
			if clicked, _ := drv.ClickText(ctx, "join audio by computer", "computer audio", "join with computer audio"); clicked {
				a.logger.Debug("Answered join-audio dialog")
			}
		},
	})
}

// EnableCaptions clicks the CC control and, when Zoom responds with a
// submenu, the "Show Subtitle" entry. Falls back to the More menu.
func (a *Zoom) EnableCaptions(ctx context.Context, drv browser.Driver) error {
	js := `(() => {
		for (const btn of document.querySelectorAll('button, [role="button"]')) {
			const label = ((btn.getAttribute('aria-label') || '') + ' ' + (btn.textContent || '')).toLowerCase();
			if (label.includes('closed caption') || label.includes('live transcript') || label.trim() === 'cc') {
				btn.click();
				return true;
			}
		}
		return false;
	})()`

	var clicked bool
	if err := drv.Evaluate(ctx, js, &clicked); err != nil {
		return err
	}
	if !clicked {
		// CC may be folded into the overflow menu on narrow layouts.
		if opened, _ := drv.ClickText(ctx, "more"); opened {
			a.sleep(ctx, a.cfg.ClickSettle)
			clicked, _ = drv.ClickText(ctx, "captions", "live transcript")
		}
	}
	if clicked {
		a.sleep(ctx, a.cfg.ClickSettle)
		// A submenu may ask whether to show the subtitle overlay.
		_, _ = drv.ClickText(ctx, "show subtitle", "show captions")
	}
	return nil
}

// CaptionScript scrapes the Zoom live-transcript list.
func (a *Zoom) CaptionScript() string {
	return `(() => {
		const out = [];
		const seen = new Set();
		const push = (speaker, text) => {
			text = (text || '').trim();
			if (text.length < 3) return;
			const low = text.toLowerCase();
			if (low.includes('mute') || low.includes('camera')) return;
			if (seen.has(text)) return;
			seen.add(text);
			out.push({speaker: (speaker || '').replace(/:$/, '').trim(), text});
		};

		for (const item of document.querySelectorAll('[class*="lt-subtitle" i] li, [class*="live-transcription" i] li')) {
			const name = item.querySelector('[class*="name" i], [class*="user" i]');
			const body = item.querySelector('[class*="text" i], p, span');
			if (body) push(name ? name.textContent : '', body.textContent);
		}
		for (const sub of document.querySelectorAll('[class*="subtitle-item" i], [aria-live="polite"]')) {
			push('', sub.textContent);
		}
		return out;
	})()`
}
