package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

// Options configures a Chrome instance.
type Options struct {
	ExecPath  string // empty means chromedp's default lookup
	Headless  bool
	Width     int
	Height    int
	UserAgent string
}

// DefaultOptions returns the capture defaults: headless at 1920x1080 with
// fake media devices so getUserMedia prompts never block a join.
func DefaultOptions() Options {
	return Options{
		Headless: true,
		Width:    1920,
		Height:   1080,
	}
}

// ChromeDriver implements Driver on a dedicated Chrome instance via
// chromedp. Each driver owns its own allocator; Close releases the browser
// process.
type ChromeDriver struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	closeOnce   sync.Once
	logger      *slog.Logger
}

// NewChrome launches a Chrome instance and returns a driver bound to it.
func NewChrome(parent context.Context, opts Options) (*ChromeDriver, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 1920, 1080
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
		chromedp.Flag("use-fake-ui-for-media-stream", true),
		chromedp.Flag("use-fake-device-for-media-stream", true),
		chromedp.WindowSize(opts.Width, opts.Height),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, allocOpts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	// Force the browser process to start now so launch failures surface
	// here instead of on the first navigation.
	if err := chromedp.Run(ctx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &ChromeDriver{
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
		logger:      slog.Default().With("component", "browser"),
	}, nil
}

// Open navigates to url and waits for the body to be ready.
func (d *ChromeDriver) Open(ctx context.Context, url string, timeout time.Duration) error {
	tctx, tcancel := d.opCtx(ctx, timeout)
	defer tcancel()

	err := chromedp.Run(tctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// Evaluate runs js in the page and unmarshals the result into out.
func (d *ChromeDriver) Evaluate(ctx context.Context, js string, out any) error {
	tctx, tcancel := d.opCtx(ctx, 10*time.Second)
	defer tcancel()

	if out == nil {
		var discard any
		out = &discard
	}
	if err := chromedp.Run(tctx, chromedp.Evaluate(js, out)); err != nil {
		return fmt.Errorf("page evaluation failed: %w", err)
	}
	return nil
}

// Click clicks the first element matching the CSS selector. No match is
// reported as (false, nil), never as an error.
func (d *ChromeDriver) Click(ctx context.Context, selector string) (bool, error) {
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return false;
		el.click();
		return true;
	})()`, selector)

	var clicked bool
	if err := d.Evaluate(ctx, js, &clicked); err != nil {
		return false, err
	}
	return clicked, nil
}

// ClickText clicks the first visible button-like element whose text
// contains any of the phrases, case-insensitively.
func (d *ChromeDriver) ClickText(ctx context.Context, phrases ...string) (bool, error) {
	if len(phrases) == 0 {
		return false, nil
	}
	lowered := make([]string, len(phrases))
	for i, p := range phrases {
		lowered[i] = strings.ToLower(p)
	}
	js := fmt.Sprintf(`(() => {
		const phrases = %s;
		const candidates = document.querySelectorAll('button, [role="button"], a, span, div');
		for (const el of candidates) {
			const text = (el.textContent || '').trim().toLowerCase();
			if (!text || text.length > 80) continue;
			const rect = el.getBoundingClientRect();
			if (rect.width === 0 || rect.height === 0) continue;
			if (phrases.some(p => text.includes(p))) {
				el.click();
				return true;
			}
		}
		return false;
	})()`, jsStringArray(lowered))

	var clicked bool
	if err := d.Evaluate(ctx, js, &clicked); err != nil {
		return false, err
	}
	return clicked, nil
}

// ClickAt issues a raw mouse click at page coordinates. Needed when a
// control swallows synthetic element clicks.
func (d *ChromeDriver) ClickAt(ctx context.Context, x, y float64) error {
	tctx, tcancel := d.opCtx(ctx, 5*time.Second)
	defer tcancel()

	if err := chromedp.Run(tctx, chromedp.MouseClickXY(x, y)); err != nil {
		return fmt.Errorf("coordinate click at (%.0f,%.0f) failed: %w", x, y, err)
	}
	return nil
}

// TypeText focuses selector, clears any existing value via select-all +
// delete, and types text one key at a time. Direct value assignment is
// deliberately not used: React-style frontends rebuild their state from
// input events and silently ignore assigned values.
func (d *ChromeDriver) TypeText(ctx context.Context, selector, text string) error {
	focus := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return false;
		el.focus();
		if (el.select) el.select();
		return true;
	})()`, selector)

	var focused bool
	if err := d.Evaluate(ctx, focus, &focused); err != nil {
		return err
	}
	if !focused {
		return fmt.Errorf("no element matches %q", selector)
	}

	tctx, tcancel := d.opCtx(ctx, 30*time.Second)
	defer tcancel()

	if err := chromedp.Run(tctx,
		chromedp.KeyEvent("a", chromedp.KeyModifiers(input.ModifierCtrl)),
		chromedp.KeyEvent(kb.Delete),
	); err != nil {
		return fmt.Errorf("failed to clear input: %w", err)
	}

	for _, r := range text {
		if err := chromedp.Run(tctx, chromedp.KeyEvent(string(r))); err != nil {
			return fmt.Errorf("failed to type into %q: %w", selector, err)
		}
		time.Sleep(typeKeyDelay)
	}
	return nil
}

// Keyboard sends a single key with optional modifiers.
func (d *ChromeDriver) Keyboard(ctx context.Context, key string, mods Modifier) error {
	tctx, tcancel := d.opCtx(ctx, 5*time.Second)
	defer tcancel()

	var cdpMods input.Modifier
	if mods&ModCtrl != 0 {
		cdpMods |= input.ModifierCtrl
	}
	if mods&ModShift != 0 {
		cdpMods |= input.ModifierShift
	}
	if mods&ModAlt != 0 {
		cdpMods |= input.ModifierAlt
	}
	if mods&ModMeta != 0 {
		cdpMods |= input.ModifierCommand
	}

	if err := chromedp.Run(tctx, chromedp.KeyEvent(key, chromedp.KeyModifiers(cdpMods))); err != nil {
		return fmt.Errorf("key dispatch %q failed: %w", key, err)
	}
	return nil
}

// Screenshot writes a PNG of the current viewport to path.
func (d *ChromeDriver) Screenshot(ctx context.Context, path string) error {
	tctx, tcancel := d.opCtx(ctx, 10*time.Second)
	defer tcancel()

	var buf []byte
	if err := chromedp.Run(tctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return fmt.Errorf("screenshot capture failed: %w", err)
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("screenshot write failed: %w", err)
	}
	return nil
}

// GrantPermissions pre-grants media permissions for origin so the meeting
// page never shows a permission prompt the bot cannot answer.
func (d *ChromeDriver) GrantPermissions(ctx context.Context, origin string, perms ...Permission) error {
	tctx, tcancel := d.opCtx(ctx, 5*time.Second)
	defer tcancel()

	types := make([]cdpbrowser.PermissionType, 0, len(perms))
	for _, p := range perms {
		switch p {
		case PermissionMicrophone:
			types = append(types, cdpbrowser.PermissionTypeAudioCapture)
		case PermissionCamera:
			types = append(types, cdpbrowser.PermissionTypeVideoCapture)
		case PermissionNotifications:
			types = append(types, cdpbrowser.PermissionTypeNotifications)
		}
	}
	if len(types) == 0 {
		return nil
	}

	action := cdpbrowser.GrantPermissions(types).WithOrigin(origin)
	if err := chromedp.Run(tctx, action); err != nil {
		return fmt.Errorf("permission grant for %s failed: %w", origin, err)
	}
	return nil
}

// Close tears the browser down. Safe to call more than once.
func (d *ChromeDriver) Close() error {
	d.closeOnce.Do(func() {
		d.cancel()
		d.allocCancel()
		d.logger.Debug("Browser closed")
	})
	return nil
}

// opCtx derives a per-operation context from the browser context, honoring
// the caller's cancellation.
func (d *ChromeDriver) opCtx(caller context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(d.ctx, timeout)
	if caller == nil {
		return ctx, cancel
	}
	stop := context.AfterFunc(caller, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// jsStringArray renders a Go string slice as a JS array literal.
func jsStringArray(items []string) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, s := range items {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%q", s)
	}
	b.WriteByte(']')
	return b.String()
}
