package archive

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/meetscribe/meetscribe/internal/platform"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleRecord(sessionID, meetingID string, ended time.Time) *Record {
	return &Record{
		SessionID:       sessionID,
		MeetingID:       meetingID,
		Platform:        platform.PlatformGoogleMeet,
		VideoPath:       "/recordings/" + sessionID + "_video.mp4",
		AudioPath:       "/recordings/" + sessionID + "_audio.mp3",
		DurationSeconds: 125.5,
		FrameCount:      251,
		SegmentCount:    12,
		Transcript:      "[00:00:01] Alice: hello",
		EndedAt:         ended,
	}
}

func TestInsertAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ended := time.Date(2026, 8, 26, 10, 30, 0, 0, time.UTC)
	if err := store.Insert(ctx, sampleRecord("session-a", "meeting-1", ended)); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.Get(ctx, "session-a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.MeetingID != "meeting-1" || got.Platform != platform.PlatformGoogleMeet {
		t.Errorf("record = %+v", got)
	}
	if got.DurationSeconds != 125.5 || got.FrameCount != 251 {
		t.Errorf("numeric fields = %f/%d", got.DurationSeconds, got.FrameCount)
	}
	if got.Transcript != "[00:00:01] Alice: hello" {
		t.Errorf("transcript = %q", got.Transcript)
	}
	if !got.EndedAt.Equal(ended) {
		t.Errorf("ended_at = %v, want %v", got.EndedAt, ended)
	}
	if got.Recovered {
		t.Error("recovered flag set on a normal capture")
	}
}

func TestGetNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get error = %v, want ErrNotFound", err)
	}
}

func TestListOrdersByEndedAtDesc(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 26, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"session-a", "session-b", "session-c"} {
		rec := sampleRecord(id, "meeting-1", base.Add(time.Duration(i)*time.Hour))
		if err := store.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert %s failed: %v", id, err)
		}
	}

	records, err := store.List(ctx, "", 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	want := []string{"session-c", "session-b", "session-a"}
	for i, rec := range records {
		if rec.SessionID != want[i] {
			t.Errorf("record %d = %s, want %s", i, rec.SessionID, want[i])
		}
	}
}

func TestListFiltersByMeeting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	_ = store.Insert(ctx, sampleRecord("session-a", "meeting-1", now))
	_ = store.Insert(ctx, sampleRecord("session-b", "meeting-2", now))

	records, err := store.List(ctx, "meeting-2", 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 1 || records[0].SessionID != "session-b" {
		t.Errorf("filtered list = %+v", records)
	}
}

func TestListLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for _, id := range []string{"session-a", "session-b", "session-c"} {
		_ = store.Insert(ctx, sampleRecord(id, "meeting-1", now))
	}

	records, err := store.List(ctx, "", 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records, want 2", len(records))
	}
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Insert(ctx, sampleRecord("session-a", "meeting-1", time.Now().UTC())); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Delete(ctx, "session-a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, "session-a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after delete error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "session-a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete error = %v, want ErrNotFound", err)
	}
}

func TestRecoveredFlagRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := sampleRecord("session-a", "meeting-1", time.Now().UTC())
	rec.Recovered = true
	if err := store.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.Get(ctx, "session-a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.Recovered {
		t.Error("recovered flag lost in round trip")
	}
}

func TestHealth(t *testing.T) {
	store := newTestStore(t)
	if err := store.Health(context.Background()); err != nil {
		t.Errorf("Health on open store failed: %v", err)
	}
}
