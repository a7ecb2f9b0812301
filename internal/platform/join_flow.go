package platform

import (
	"context"

	"github.com/meetscribe/meetscribe/internal/browser"
)

// joinHooks are the per-platform insertions into the shared join flow.
// Any hook may be nil.
type joinHooks struct {
	// afterNavigate runs right after the prejoin page loads, before the
	// generic dialog sweep (e.g. Teams' "Continue on this browser").
	afterNavigate func(ctx context.Context, drv browser.Driver)

	// beforeSubmit runs after name entry and AV-off, before the join
	// button is clicked (e.g. Webex's email field).
	beforeSubmit func(ctx context.Context, drv browser.Driver)

	// afterAdmission runs once the meeting admits the bot, before
	// captions are enabled (e.g. Zoom's "Join Audio" dialog).
	afterAdmission func(ctx context.Context, drv browser.Driver)
}

// run executes the shared join state machine:
// navigate -> dismiss_dialogs -> enter_name -> disable_av -> submit_join
// -> poll for admission, with platform hooks in between.
func (j *joiner) run(ctx context.Context, drv browser.Driver, url, botName string, enableCaptions func(context.Context, browser.Driver) error, hooks joinHooks) JoinOutcome {
	if err := drv.Open(ctx, url, j.cfg.NavigateTimeout); err != nil {
		j.logger.Warn("Navigation failed", "url", url, "error", err)
		return JoinOutcome{Kind: JoinTimedOut, Status: StatusJoinFailed, Detail: "navigation failed: " + err.Error()}
	}
	j.sleep(ctx, j.cfg.SettleDelay)
	j.debugShot(ctx, drv, "loaded")

	if hooks.afterNavigate != nil {
		hooks.afterNavigate(ctx, drv)
	}
	j.dismissDialogs(ctx, drv)

	j.enterName(ctx, drv, botName)
	j.disableAV(ctx, drv)
	j.debugShot(ctx, drv, "prejoin")

	if hooks.beforeSubmit != nil {
		hooks.beforeSubmit(ctx, drv)
	}

	if !j.submitJoin(ctx, drv) {
		j.logger.Warn("No join button found on prejoin page")
	}
	j.debugShot(ctx, drv, "submitted")

	outcome := j.pollAdmission(ctx, drv)
	if outcome.Kind != JoinSucceeded {
		j.debugShot(ctx, drv, "failed")
		return outcome
	}

	if hooks.afterAdmission != nil {
		hooks.afterAdmission(ctx, drv)
	}
	if enableCaptions != nil {
		if err := enableCaptions(ctx, drv); err != nil {
			// Captions are best effort; the recording still has audio.
			j.logger.Warn("Failed to enable captions", "error", err)
		}
	}
	j.debugShot(ctx, drv, "in_meeting")

	return outcome
}
