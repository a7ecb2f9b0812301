// Package api provides HTTP API handlers and WebSocket support
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/meetscribe/meetscribe/internal/capture"
)

// CaptureService defines the capture operations the API exposes
type CaptureService interface {
	Join(ctx context.Context, meetingID, meetingURL, botName string) (capture.JoinResult, error)
	Leave(ctx context.Context, meetingID string) (capture.LeaveResult, error)
	Status(meetingID string) capture.StatusReport
	Sessions() []capture.StatusReport
	Screenshot(ctx context.Context, meetingID string) (string, error)
	ToggleRecording(ctx context.Context, meetingID string) (bool, error)
}

// JoinRequest is the body of a join call
type JoinRequest struct {
	MeetingURL string `json:"meeting_url"`
	BotName    string `json:"bot_name,omitempty"`
}

// CaptureHandler handles capture session endpoints
type CaptureHandler struct {
	service CaptureService
}

// NewCaptureHandler creates a new capture handler
func NewCaptureHandler(service CaptureService) *CaptureHandler {
	return &CaptureHandler{service: service}
}

// Routes returns the capture routes
func (h *CaptureHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListSessions)
	r.Get("/{meetingID}", h.GetStatus)
	r.Post("/{meetingID}/join", h.Join)
	r.Post("/{meetingID}/leave", h.Leave)
	r.Post("/{meetingID}/toggle", h.ToggleRecording)
	r.Post("/{meetingID}/screenshot", h.Screenshot)

	return r
}

// ListSessions lists every live session
func (h *CaptureHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.service.Sessions()
	List(w, sessions, len(sessions), len(sessions))
}

// GetStatus returns the status snapshot for a meeting
func (h *CaptureHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	meetingID := chi.URLParam(r, "meetingID")
	if err := ValidateMeetingID(meetingID); err != nil {
		BadRequest(w, err.Error())
		return
	}

	OK(w, h.service.Status(meetingID))
}

// Join starts a capture session for a meeting
func (h *CaptureHandler) Join(w http.ResponseWriter, r *http.Request) {
	meetingID := chi.URLParam(r, "meetingID")
	if err := ValidateMeetingID(meetingID); err != nil {
		BadRequest(w, err.Error())
		return
	}

	var req JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body")
		return
	}
	if errs := NewJoinValidator().Validate(req); errs.HasErrors() {
		ValidationErrorResponse(w, errs)
		return
	}

	result, err := h.service.Join(r.Context(), meetingID, req.MeetingURL, req.BotName)
	if err != nil {
		switch {
		case errors.Is(err, capture.ErrAlreadyActive):
			Conflict(w, "a capture session is already active for this meeting")
		case errors.Is(err, capture.ErrUnknownPlatform):
			BadRequest(w, "meeting URL does not match a supported platform")
		case errors.Is(err, capture.ErrJoinRejected):
			Error(w, http.StatusBadGateway, "JOIN_REJECTED", "the meeting rejected the join attempt")
		case errors.Is(err, capture.ErrJoinTimeout):
			Error(w, http.StatusGatewayTimeout, "JOIN_TIMED_OUT", "timed out waiting to be admitted")
		default:
			InternalError(w, err.Error())
		}
		return
	}

	Created(w, result)
}

// Leave ends a capture session and returns its artifacts
func (h *CaptureHandler) Leave(w http.ResponseWriter, r *http.Request) {
	meetingID := chi.URLParam(r, "meetingID")
	if err := ValidateMeetingID(meetingID); err != nil {
		BadRequest(w, err.Error())
		return
	}

	result, err := h.service.Leave(r.Context(), meetingID)
	if err != nil {
		switch {
		case errors.Is(err, capture.ErrNotActive):
			NotFound(w, "no active capture session for this meeting")
		case errors.Is(err, capture.ErrNoFrames):
			Conflict(w, "no frames on disk for this session")
		default:
			InternalError(w, err.Error())
		}
		return
	}

	OK(w, result)
}

// ToggleRecording pauses or resumes the recording pipeline
func (h *CaptureHandler) ToggleRecording(w http.ResponseWriter, r *http.Request) {
	meetingID := chi.URLParam(r, "meetingID")
	if err := ValidateMeetingID(meetingID); err != nil {
		BadRequest(w, err.Error())
		return
	}

	recording, err := h.service.ToggleRecording(r.Context(), meetingID)
	if err != nil {
		if errors.Is(err, capture.ErrNotActive) {
			NotFound(w, "no active capture session for this meeting")
			return
		}
		InternalError(w, err.Error())
		return
	}

	OK(w, map[string]bool{"recording": recording})
}

// Screenshot captures the current meeting page
func (h *CaptureHandler) Screenshot(w http.ResponseWriter, r *http.Request) {
	meetingID := chi.URLParam(r, "meetingID")
	if err := ValidateMeetingID(meetingID); err != nil {
		BadRequest(w, err.Error())
		return
	}

	path, err := h.service.Screenshot(r.Context(), meetingID)
	if err != nil {
		if errors.Is(err, capture.ErrNotActive) {
			NotFound(w, "no active capture session for this meeting")
			return
		}
		InternalError(w, err.Error())
		return
	}

	OK(w, map[string]string{"path": path})
}
