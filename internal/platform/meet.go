package platform

import (
	"context"

	"github.com/meetscribe/meetscribe/internal/browser"
)

// GoogleMeet joins meet.google.com meetings as an anonymous guest.
type GoogleMeet struct {
	joiner
}

// NewGoogleMeet returns the Google Meet adapter.
func NewGoogleMeet() *GoogleMeet {
	return &GoogleMeet{joiner: newJoiner(PlatformGoogleMeet)}
}

func (a *GoogleMeet) Platform() Platform { return PlatformGoogleMeet }

// MeetingURL returns the URL unchanged; Meet links join directly.
func (a *GoogleMeet) MeetingURL(raw string) string { return raw }

// Join drives the Meet prejoin flow.
func (a *GoogleMeet) Join(ctx context.Context, drv browser.Driver, url, botName string) JoinOutcome {
	return a.run(ctx, drv, url, botName, a.EnableCaptions, joinHooks{})
}

// EnableCaptions clicks the captions control, falling back to the "c"
// keyboard shortcut when no labelled button is found.
func (a *GoogleMeet) EnableCaptions(ctx context.Context, drv browser.Driver) error {
	js := `(() => {
		for (const btn of document.querySelectorAll('button, [role="button"]')) {
			const label = (btn.getAttribute('aria-label') || '').toLowerCase();
			if (label.includes('caption') || label.includes('subtitle') || label === 'cc') {
				if (btn.getAttribute('aria-pressed') === 'true') return 'already_on';
				btn.click();
				return 'clicked';
			}
		}
		return 'not_found';
	})()`

	var result string
	if err := drv.Evaluate(ctx, js, &result); err != nil {
		return err
	}
	if result == "not_found" {
		// Meet binds captions to the plain "c" shortcut.
		return drv.Keyboard(ctx, "c", browser.ModNone)
	}
	return nil
}

// CaptionScript scrapes Meet's caption region. Speaker names render in a
// sibling node above each utterance; the aria-live region is the fallback.
func (a *GoogleMeet) CaptionScript() string {
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
			out.push({speaker: (speaker || '').trim(), text});
		};

		for (const region of document.querySelectorAll('div[class*="caption" i], div[jsname="dsyhDe"]')) {
			for (const row of region.children) {
				const name = row.querySelector('[class*="name" i], [class*="speaker" i]');
				const body = row.querySelector('span, div[jsname]');
				if (body) push(name ? name.textContent : '', body.textContent);
			}
		}
		for (const live of document.querySelectorAll('[aria-live="polite"], [aria-live="assertive"]')) {
			push('', live.textContent);
		}
		return out;
	})()`
}
