package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/meetscribe/meetscribe/internal/archive"
)

// stubArchiveService returns canned records for handler tests
type stubArchiveService struct {
	records []archive.Record
	record  *archive.Record
	err     error

	lastMeetingID string
	lastSessionID string
	lastLimit     int
}

func (s *stubArchiveService) List(_ context.Context, meetingID string, limit int) ([]archive.Record, error) {
	s.lastMeetingID = meetingID
	s.lastLimit = limit
	return s.records, s.err
}

func (s *stubArchiveService) Get(_ context.Context, sessionID string) (*archive.Record, error) {
	s.lastSessionID = sessionID
	return s.record, s.err
}

func (s *stubArchiveService) Delete(_ context.Context, sessionID string) error {
	s.lastSessionID = sessionID
	return s.err
}

func archiveRequest(t *testing.T, svc ArchiveService, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	handler := NewArchiveHandler(svc)
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)
	return rec
}

func TestArchiveHandler_List(t *testing.T) {
	svc := &stubArchiveService{
		records: []archive.Record{
			{SessionID: "sess-2", MeetingID: "meeting-1", EndedAt: time.Now()},
			{SessionID: "sess-1", MeetingID: "meeting-1", EndedAt: time.Now().Add(-time.Hour)},
		},
	}

	rec := archiveRequest(t, svc, "GET", "/")

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if svc.lastLimit != 100 {
		t.Errorf("Expected default limit 100, got %d", svc.lastLimit)
	}
	resp := decodeResponse(t, rec)
	if resp.Meta == nil || resp.Meta.Total != 2 {
		t.Errorf("Expected total 2, got %+v", resp.Meta)
	}
}

func TestArchiveHandler_ListMeetingFilter(t *testing.T) {
	svc := &stubArchiveService{}

	rec := archiveRequest(t, svc, "GET", "/?meeting_id=meeting-1&limit=25")

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if svc.lastMeetingID != "meeting-1" {
		t.Errorf("Expected meeting filter meeting-1, got %q", svc.lastMeetingID)
	}
	if svc.lastLimit != 25 {
		t.Errorf("Expected limit 25, got %d", svc.lastLimit)
	}
}

func TestArchiveHandler_ListLimitBounds(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"zero falls back", "?limit=0", 100},
		{"negative falls back", "?limit=-5", 100},
		{"too large falls back", "?limit=9999", 100},
		{"garbage falls back", "?limit=abc", 100},
		{"max allowed", "?limit=500", 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubArchiveService{}
			rec := archiveRequest(t, svc, "GET", "/"+tt.query)
			if rec.Code != http.StatusOK {
				t.Fatalf("Expected status 200, got %d", rec.Code)
			}
			if svc.lastLimit != tt.want {
				t.Errorf("Expected limit %d, got %d", tt.want, svc.lastLimit)
			}
		})
	}
}

func TestArchiveHandler_Get(t *testing.T) {
	svc := &stubArchiveService{
		record: &archive.Record{
			SessionID:       "sess-1",
			MeetingID:       "meeting-1",
			DurationSeconds: 30,
			Transcript:      "[00:00:01] Alice: hello",
		},
	}

	rec := archiveRequest(t, svc, "GET", "/sess-1")

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if svc.lastSessionID != "sess-1" {
		t.Errorf("Expected session ID sess-1, got %s", svc.lastSessionID)
	}
	resp := decodeResponse(t, rec)
	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatal("Data should be a map")
	}
	if data["session_id"] != "sess-1" {
		t.Errorf("Expected session_id sess-1, got %v", data["session_id"])
	}
}

func TestArchiveHandler_GetNotFound(t *testing.T) {
	svc := &stubArchiveService{err: archive.ErrNotFound}

	rec := archiveRequest(t, svc, "GET", "/missing")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}

func TestArchiveHandler_Delete(t *testing.T) {
	svc := &stubArchiveService{}

	rec := archiveRequest(t, svc, "DELETE", "/sess-1")
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", rec.Code)
	}
	if svc.lastSessionID != "sess-1" {
		t.Errorf("Expected session ID sess-1, got %s", svc.lastSessionID)
	}
}

func TestArchiveHandler_DeleteNotFound(t *testing.T) {
	svc := &stubArchiveService{err: archive.ErrNotFound}

	rec := archiveRequest(t, svc, "DELETE", "/missing")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}
