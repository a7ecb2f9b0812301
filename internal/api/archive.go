package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meetscribe/meetscribe/internal/archive"
)

// ArchiveService defines the archived-capture operations the API exposes
type ArchiveService interface {
	List(ctx context.Context, meetingID string, limit int) ([]archive.Record, error)
	Get(ctx context.Context, sessionID string) (*archive.Record, error)
	Delete(ctx context.Context, sessionID string) error
}

// ArchiveHandler handles archived capture endpoints
type ArchiveHandler struct {
	service ArchiveService
}

// NewArchiveHandler creates a new archive handler
func NewArchiveHandler(service ArchiveService) *ArchiveHandler {
	return &ArchiveHandler{service: service}
}

// Routes returns the archive routes
func (h *ArchiveHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListCaptures)
	r.Get("/{sessionID}", h.GetCapture)
	r.Delete("/{sessionID}", h.DeleteCapture)

	return r
}

// ListCaptures lists archived captures, newest first
func (h *ArchiveHandler) ListCaptures(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}
	meetingID := r.URL.Query().Get("meeting_id")

	records, err := h.service.List(r.Context(), meetingID, limit)
	if err != nil {
		InternalError(w, err.Error())
		return
	}

	List(w, records, len(records), limit)
}

// GetCapture returns one archived capture
func (h *ArchiveHandler) GetCapture(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	record, err := h.service.Get(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			NotFound(w, "archived capture not found")
			return
		}
		InternalError(w, err.Error())
		return
	}

	OK(w, record)
}

// DeleteCapture removes an archived capture record
func (h *ArchiveHandler) DeleteCapture(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.service.Delete(r.Context(), sessionID); err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			NotFound(w, "archived capture not found")
			return
		}
		InternalError(w, err.Error())
		return
	}

	NoContent(w)
}
