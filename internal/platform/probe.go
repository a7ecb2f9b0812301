package platform

import (
	"context"

	"github.com/meetscribe/meetscribe/internal/browser"
)

// admissionState is the classification the admission probe returns.
type admissionState string

const (
	admissionWaiting   admissionState = "waiting"
	admissionInMeeting admissionState = "in_meeting"
	admissionPrejoin   admissionState = "prejoin"
	admissionRejected  admissionState = "rejected"
	admissionUnknown   admissionState = "unknown"
)

// admissionProbeJS classifies the page into one of the admission states.
// The strategies are deliberately redundant: these are third-party SPAs
// whose markup changes, so text heuristics and control probes are tried
// together and missing elements must never throw.
const admissionProbeJS = `(() => {
	const body = (document.body && document.body.innerText || '').toLowerCase();

	const waitingPhrases = ['asking to join', 'waiting for', 'someone will let you in',
		'waiting room', 'please wait', 'lobby'];
	const waiting = waitingPhrases.some(p => body.includes(p));

	const rejectedPhrases = ['passcode required', 'meeting passcode', 'enter meeting passcode',
		'you have been removed', 'denied your request'];
	const rejected = rejectedPhrases.some(p => body.includes(p));

	let hasLeave = false;
	for (const el of document.querySelectorAll('button, [role="button"]')) {
		const label = ((el.getAttribute('aria-label') || '') + ' ' + (el.textContent || '')).toLowerCase();
		if (label.includes('leave') || label.includes('end call') || label.includes('hang up')) {
			hasLeave = true;
			break;
		}
	}
	const hasPanel = !!document.querySelector(
		'[aria-label*="participant" i], [aria-label*="chat" i], [data-tid="chat-pane-list"]');

	let hasNameInput = false;
	for (const el of document.querySelectorAll('input[aria-label*="name" i], input[placeholder*="name" i]')) {
		const rect = el.getBoundingClientRect();
		if (rect.width > 0 && rect.height > 0) { hasNameInput = true; break; }
	}

	if (rejected) return 'rejected';
	if (waiting) return 'waiting';
	if ((hasLeave || hasPanel) && !hasNameInput) return 'in_meeting';
	if (hasNameInput) return 'prejoin';
	return 'unknown';
})()`

// probeAdmission evaluates the admission probe. Evaluation failures (mid
// navigation, detached frame) degrade to unknown rather than aborting the
// poll.
func probeAdmission(ctx context.Context, drv browser.Driver) admissionState {
	var state string
	if err := drv.Evaluate(ctx, admissionProbeJS, &state); err != nil {
		return admissionUnknown
	}
	switch admissionState(state) {
	case admissionWaiting, admissionInMeeting, admissionPrejoin, admissionRejected:
		return admissionState(state)
	default:
		return admissionUnknown
	}
}
