package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/meetscribe/meetscribe/internal/capture"
	"github.com/meetscribe/meetscribe/internal/platform"
)

// stubCaptureService returns canned results for handler tests
type stubCaptureService struct {
	joinResult  capture.JoinResult
	joinErr     error
	leaveResult capture.LeaveResult
	leaveErr    error
	status      capture.StatusReport
	sessions    []capture.StatusReport
	screenshot  string
	recording   bool
	err         error

	lastMeetingID  string
	lastMeetingURL string
	lastBotName    string
}

func (s *stubCaptureService) Join(_ context.Context, meetingID, meetingURL, botName string) (capture.JoinResult, error) {
	s.lastMeetingID = meetingID
	s.lastMeetingURL = meetingURL
	s.lastBotName = botName
	return s.joinResult, s.joinErr
}

func (s *stubCaptureService) Leave(_ context.Context, meetingID string) (capture.LeaveResult, error) {
	s.lastMeetingID = meetingID
	return s.leaveResult, s.leaveErr
}

func (s *stubCaptureService) Status(meetingID string) capture.StatusReport {
	s.lastMeetingID = meetingID
	return s.status
}

func (s *stubCaptureService) Sessions() []capture.StatusReport {
	return s.sessions
}

func (s *stubCaptureService) Screenshot(_ context.Context, meetingID string) (string, error) {
	s.lastMeetingID = meetingID
	return s.screenshot, s.err
}

func (s *stubCaptureService) ToggleRecording(_ context.Context, meetingID string) (bool, error) {
	s.lastMeetingID = meetingID
	return s.recording, s.err
}

func captureRequest(t *testing.T, svc CaptureService, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	handler := NewCaptureHandler(svc)

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, req)
	return rec
}

func TestCaptureHandler_JoinSuccess(t *testing.T) {
	svc := &stubCaptureService{
		joinResult: capture.JoinResult{
			Success:          true,
			SessionID:        "sess-1",
			Platform:         platform.PlatformGoogleMeet,
			RecordingStarted: true,
		},
	}

	rec := captureRequest(t, svc, "POST", "/meeting-1/join",
		`{"meeting_url":"https://meet.google.com/abc-defg-hij"}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastMeetingID != "meeting-1" {
		t.Errorf("Expected meeting ID meeting-1, got %s", svc.lastMeetingID)
	}
	if svc.lastMeetingURL != "https://meet.google.com/abc-defg-hij" {
		t.Errorf("Unexpected meeting URL %s", svc.lastMeetingURL)
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

func TestCaptureHandler_JoinForwardsBotName(t *testing.T) {
	svc := &stubCaptureService{joinResult: capture.JoinResult{Success: true}}

	rec := captureRequest(t, svc, "POST", "/meeting-1/join",
		`{"meeting_url":"https://meet.google.com/abc-defg-hij","bot_name":"Minutes Taker"}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastBotName != "Minutes Taker" {
		t.Errorf("Expected bot name to reach the service, got %q", svc.lastBotName)
	}
}

func TestCaptureHandler_JoinMissingURL(t *testing.T) {
	svc := &stubCaptureService{}

	rec := captureRequest(t, svc, "POST", "/meeting-1/join", `{}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Error == nil || resp.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("Expected VALIDATION_ERROR, got %+v", resp.Error)
	}
	if svc.lastMeetingURL != "" {
		t.Error("Service should not be called on validation failure")
	}
}

func TestCaptureHandler_JoinInvalidJSON(t *testing.T) {
	rec := captureRequest(t, &stubCaptureService{}, "POST", "/meeting-1/join", `{broken`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestCaptureHandler_JoinBadMeetingID(t *testing.T) {
	rec := captureRequest(t, &stubCaptureService{}, "POST", "/bad%20id/join",
		`{"meeting_url":"https://meet.google.com/abc-defg-hij"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rec.Code)
	}
}

func TestCaptureHandler_JoinErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"already active", capture.ErrAlreadyActive, http.StatusConflict, "CONFLICT"},
		{"unknown platform", capture.ErrUnknownPlatform, http.StatusBadRequest, "BAD_REQUEST"},
		{"rejected", capture.ErrJoinRejected, http.StatusBadGateway, "JOIN_REJECTED"},
		{"timed out", capture.ErrJoinTimeout, http.StatusGatewayTimeout, "JOIN_TIMED_OUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubCaptureService{joinErr: tt.err}
			rec := captureRequest(t, svc, "POST", "/meeting-1/join",
				`{"meeting_url":"https://meet.google.com/abc-defg-hij"}`)

			if rec.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, rec.Code)
			}
			resp := decodeResponse(t, rec)
			if resp.Error == nil || resp.Error.Code != tt.code {
				t.Errorf("Expected code %s, got %+v", tt.code, resp.Error)
			}
		})
	}
}

func TestCaptureHandler_LeaveSuccess(t *testing.T) {
	svc := &stubCaptureService{
		leaveResult: capture.LeaveResult{
			Success:         true,
			DurationSeconds: 12.5,
			Transcript:      "[00:00:01] Alice: hello",
			VideoPath:       "/recordings/meeting-1/sess-1/recording.mp4",
			FrameCount:      25,
		},
	}

	rec := captureRequest(t, svc, "POST", "/meeting-1/leave", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatal("Data should be a map")
	}
	if data["duration_seconds"] != 12.5 {
		t.Errorf("Expected duration 12.5, got %v", data["duration_seconds"])
	}
}

func TestCaptureHandler_LeaveNotActive(t *testing.T) {
	svc := &stubCaptureService{leaveErr: capture.ErrNotActive}

	rec := captureRequest(t, svc, "POST", "/meeting-1/leave", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}

func TestCaptureHandler_LeaveNoFrames(t *testing.T) {
	svc := &stubCaptureService{leaveErr: capture.ErrNoFrames}

	rec := captureRequest(t, svc, "POST", "/meeting-1/leave", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", rec.Code)
	}
}

func TestCaptureHandler_GetStatus(t *testing.T) {
	svc := &stubCaptureService{
		status: capture.StatusReport{
			Status:      "active",
			MeetingID:   "meeting-1",
			SessionID:   "sess-1",
			Platform:    platform.PlatformZoom,
			IsRecording: true,
			FrameCount:  42,
		},
	}

	rec := captureRequest(t, svc, "GET", "/meeting-1", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatal("Data should be a map")
	}
	if data["status"] != "active" {
		t.Errorf("Expected status active, got %v", data["status"])
	}
	if data["frame_count"] != float64(42) {
		t.Errorf("Expected frame_count 42, got %v", data["frame_count"])
	}
}

func TestCaptureHandler_ListSessions(t *testing.T) {
	svc := &stubCaptureService{
		sessions: []capture.StatusReport{
			{Status: "active", MeetingID: "meeting-1"},
			{Status: "active", MeetingID: "meeting-2"},
		},
	}

	rec := captureRequest(t, svc, "GET", "/", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Meta == nil || resp.Meta.Total != 2 {
		t.Errorf("Expected total 2, got %+v", resp.Meta)
	}
}

func TestCaptureHandler_Toggle(t *testing.T) {
	svc := &stubCaptureService{recording: false}

	rec := captureRequest(t, svc, "POST", "/meeting-1/toggle", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatal("Data should be a map")
	}
	if data["recording"] != false {
		t.Errorf("Expected recording false, got %v", data["recording"])
	}
}

func TestCaptureHandler_ToggleNotActive(t *testing.T) {
	svc := &stubCaptureService{err: capture.ErrNotActive}

	rec := captureRequest(t, svc, "POST", "/meeting-1/toggle", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", rec.Code)
	}
}

func TestCaptureHandler_Screenshot(t *testing.T) {
	svc := &stubCaptureService{screenshot: "/recordings/meeting-1/sess-1/screenshots/screenshot_001.png"}

	rec := captureRequest(t, svc, "POST", "/meeting-1/screenshot", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatal("Data should be a map")
	}
	if data["path"] != svc.screenshot {
		t.Errorf("Expected path %s, got %v", svc.screenshot, data["path"])
	}
}
