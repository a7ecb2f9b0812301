package capture

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/meetscribe/meetscribe/internal/browser"
	"github.com/meetscribe/meetscribe/internal/platform"
)

// fakeFFmpeg writes a stand-in ffmpeg script into a temp dir. Encoding
// invocations create their output file; capture invocations write a small
// file and then block on stdin like the real binary does.
func fakeFFmpeg(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	script := `#!/bin/sh
for last; do :; done
case "$*" in
  *pulse*|*avfoundation*)
    echo "fake-audio" > "$last"
    cat > /dev/null
    ;;
  *)
    echo "fake-video" > "$last"
    ;;
esac
`
	path := filepath.Join(dir, "ffmpeg")
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("failed to write fake ffmpeg: %v", err)
	}
	return path
}

// fakeDriver is a scripted browser.Driver. Screenshots write real files so
// frame-density and encoding behavior can be checked on disk.
type fakeDriver struct {
	mu             sync.Mutex
	captionBatches [][]captionCandidate
	captionCalls   int
	screenshotErr  error
	screenshots    []string
	closed         bool
}

const fakeCaptionScript = "__captions__"

func (d *fakeDriver) Open(ctx context.Context, url string, timeout time.Duration) error { return nil }

func (d *fakeDriver) Evaluate(ctx context.Context, js string, out any) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if js == fakeCaptionScript {
		var batch []captionCandidate
		if d.captionCalls < len(d.captionBatches) {
			batch = d.captionBatches[d.captionCalls]
		}
		d.captionCalls++
		data, _ := json.Marshal(batch)
		return json.Unmarshal(data, out)
	}
	return nil
}

func (d *fakeDriver) Click(ctx context.Context, selector string) (bool, error) { return true, nil }

func (d *fakeDriver) ClickText(ctx context.Context, phrases ...string) (bool, error) {
	return true, nil
}

func (d *fakeDriver) ClickAt(ctx context.Context, x, y float64) error { return nil }

func (d *fakeDriver) TypeText(ctx context.Context, selector, text string) error { return nil }

func (d *fakeDriver) Keyboard(ctx context.Context, key string, mods browser.Modifier) error {
	return nil
}

func (d *fakeDriver) Screenshot(ctx context.Context, path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.screenshotErr != nil {
		return d.screenshotErr
	}
	if err := os.WriteFile(path, []byte("png"), 0644); err != nil {
		return err
	}
	d.screenshots = append(d.screenshots, path)
	return nil
}

func (d *fakeDriver) GrantPermissions(ctx context.Context, origin string, perms ...browser.Permission) error {
	return nil
}

func (d *fakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDriver) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// stubAdapter returns a canned join outcome without touching the page.
type stubAdapter struct {
	platform platform.Platform
	outcome  platform.JoinOutcome
	joinURLs []string
	botNames []string
	mu       sync.Mutex
}

func (a *stubAdapter) Platform() platform.Platform  { return a.platform }
func (a *stubAdapter) MeetingURL(raw string) string { return raw }
func (a *stubAdapter) CaptionScript() string        { return fakeCaptionScript }

func (a *stubAdapter) Join(ctx context.Context, drv browser.Driver, url, botName string) platform.JoinOutcome {
	a.mu.Lock()
	a.joinURLs = append(a.joinURLs, url)
	a.botNames = append(a.botNames, botName)
	a.mu.Unlock()
	return a.outcome
}

func (a *stubAdapter) EnableCaptions(ctx context.Context, drv browser.Driver) error { return nil }

// newTestEngine builds an engine with fast timers, a fake ffmpeg, and a
// stubbed adapter lookup.
func newTestEngine(t *testing.T, drv *fakeDriver, outcome platform.JoinOutcome) (*Engine, string) {
	t.Helper()
	root := t.TempDir()

	eng, err := New(Config{
		RecordingsRoot:  root,
		BotName:         "Test Bot",
		FFmpegPath:      fakeFFmpeg(t),
		FrameInterval:   20 * time.Millisecond,
		CaptionInterval: 25 * time.Millisecond,
	}, func(ctx context.Context) (browser.Driver, error) {
		return drv, nil
	}, nil)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(eng.Shutdown)

	eng.adapterFor = func(p platform.Platform) (platform.Adapter, bool) {
		if !p.Valid() {
			return nil, false
		}
		return &stubAdapter{platform: p, outcome: outcome}, true
	}
	return eng, root
}

func admitted() platform.JoinOutcome {
	return platform.JoinOutcome{Kind: platform.JoinSucceeded, Status: platform.StatusInMeeting}
}

// persistedMeetings reads the meeting ids present in active_sessions.json.
func persistedMeetings(t *testing.T, root string) map[string]PersistedSession {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, "active_sessions.json"))
	if os.IsNotExist(err) {
		return map[string]PersistedSession{}
	}
	if err != nil {
		t.Fatalf("failed to read persistence file: %v", err)
	}
	out := map[string]PersistedSession{}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("corrupt persistence file: %v", err)
	}
	return out
}
