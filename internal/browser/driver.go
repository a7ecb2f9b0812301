// Package browser provides the automation capability the capture engine
// drives a meeting UI through. The production implementation runs on
// chromedp; tests substitute scripted fakes.
package browser

import (
	"context"
	"time"
)

// Permission names a browser permission that can be pre-granted for an origin.
type Permission string

const (
	PermissionMicrophone    Permission = "microphone"
	PermissionCamera        Permission = "camera"
	PermissionNotifications Permission = "notifications"
)

// Modifier is a keyboard modifier for shortcut dispatch.
type Modifier int

const (
	ModNone  Modifier = 0
	ModCtrl  Modifier = 1 << 0
	ModShift Modifier = 1 << 1
	ModAlt   Modifier = 1 << 2
	ModMeta  Modifier = 1 << 3
)

// Driver is the capability set over a single automated browser instance.
// One driver serves exactly one capture session.
//
// Click-style operations report whether anything was clicked and return a
// nil error on no-match; a non-nil error means the page itself could not be
// scripted (mid-navigation, closed target). Screenshot failures are
// reported but callers are expected to treat them as skippable.
type Driver interface {
	// Open navigates to url and waits for the document body, bounded by
	// timeout.
	Open(ctx context.Context, url string, timeout time.Duration) error

	// Evaluate runs js in the page and unmarshals the JSON-serializable
	// result into out. Pass nil out to discard the result.
	Evaluate(ctx context.Context, js string, out any) error

	// Click clicks the first element matching the CSS selector.
	Click(ctx context.Context, selector string) (bool, error)

	// ClickText clicks the first clickable element whose visible text
	// contains any of the given phrases (case-insensitive).
	ClickText(ctx context.Context, phrases ...string) (bool, error)

	// ClickAt issues a raw mouse click at page coordinates.
	ClickAt(ctx context.Context, x, y float64) error

	// TypeText focuses the element matching selector, clears it, and types
	// text key by key with a per-key delay. Required for UIs that rebuild
	// their state from input events.
	TypeText(ctx context.Context, selector, text string) error

	// Keyboard sends a single key with optional modifiers.
	Keyboard(ctx context.Context, key string, mods Modifier) error

	// Screenshot writes a PNG of the current viewport to path.
	Screenshot(ctx context.Context, path string) error

	// GrantPermissions pre-grants permissions for an origin. Must be called
	// before Open for meeting pages.
	GrantPermissions(ctx context.Context, origin string, perms ...Permission) error

	// Close tears the browser down. Idempotent, best effort.
	Close() error
}

// typeKeyDelay is the minimum inter-key delay for TypeText. Below ~40ms
// some conferencing frontends drop input events while re-rendering.
const typeKeyDelay = 40 * time.Millisecond
