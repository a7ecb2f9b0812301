package capture

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/meetscribe/meetscribe/internal/platform"
)

// PersistedSession is the minimal on-disk record that lets a restarted
// process discover an orphaned session and drive it to completion. Hot-path
// state is deliberately not persisted: the filesystem proves what frames
// exist, and captions are volatile across crashes.
type PersistedSession struct {
	MeetingID  string            `json:"meeting_id"`
	SessionID  string            `json:"session_id"`
	Platform   platform.Platform `json:"platform"`
	FramesDir  string            `json:"frames_dir"`
	StartedAt  time.Time         `json:"started_at"`
	FrameCount int               `json:"frame_count"`
}

// Registry is the process-wide table of live sessions keyed by meeting id,
// plus the file-backed persistence map beneath it. All mutation happens
// under one mutex; the persistence file is rewritten whole by whoever holds
// it, so there is a single writer by construction.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	path     string // active_sessions.json
	logger   *slog.Logger
}

// NewRegistry creates a registry persisting to dir/active_sessions.json.
func NewRegistry(dir string) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		path:     filepath.Join(dir, "active_sessions.json"),
		logger:   slog.Default().With("component", "registry"),
	}
}

// InsertUnique registers the session and persists its record. It fails
// with ErrAlreadyActive when a live session exists for the meeting id.
func (r *Registry) InsertUnique(s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.MeetingID]; exists {
		return ErrAlreadyActive
	}
	r.sessions[s.MeetingID] = s

	if err := r.persistLocked(s.MeetingID, &PersistedSession{
		MeetingID:  s.MeetingID,
		SessionID:  s.SessionID,
		Platform:   s.Platform,
		FramesDir:  s.FramesDir,
		StartedAt:  s.StartedAt,
		FrameCount: 0,
	}); err != nil {
		// The in-memory session stays authoritative; losing the record
		// only costs recoverability after a crash.
		r.logger.Warn("Failed to persist session record", "meeting_id", s.MeetingID, "error", err)
	}
	return nil
}

// Get returns the live session for a meeting id.
func (r *Registry) Get(meetingID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[meetingID]
	return s, ok
}

// Remove drops the session and clears its persisted record. This is the
// last observable effect of a session's lifecycle.
func (r *Registry) Remove(meetingID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, meetingID)
	if err := r.persistLocked(meetingID, nil); err != nil {
		r.logger.Warn("Failed to clear session record", "meeting_id", meetingID, "error", err)
	}
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Snapshot returns status reports for all live sessions. Iteration is not
// exposed; callers get copies.
func (r *Registry) Snapshot() []StatusReport {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	reports := make([]StatusReport, 0, len(sessions))
	for _, s := range sessions {
		reports = append(reports, s.statusSnapshot())
	}
	return reports
}

// Orphan looks up a persisted record with no live session, the post-crash
// leftover RecoverOrphan consumes.
func (r *Registry) Orphan(meetingID string) (*PersistedSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, live := r.sessions[meetingID]; live {
		return nil, false
	}
	records, err := r.readFileLocked()
	if err != nil {
		r.logger.Warn("Failed to read persistence file", "error", err)
		return nil, false
	}
	rec, ok := records[meetingID]
	if !ok {
		return nil, false
	}
	return &rec, true
}

// ClearPersisted removes a persisted record without touching live state.
func (r *Registry) ClearPersisted(meetingID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.persistLocked(meetingID, nil); err != nil {
		r.logger.Warn("Failed to clear persisted record", "meeting_id", meetingID, "error", err)
	}
}

// persistLocked rewrites the whole persistence file with rec added (or the
// meeting id removed when rec is nil). Caller holds r.mu.
func (r *Registry) persistLocked(meetingID string, rec *PersistedSession) error {
	records, err := r.readFileLocked()
	if err != nil {
		return err
	}
	if rec == nil {
		if _, ok := records[meetingID]; !ok {
			return nil
		}
		delete(records, meetingID)
	} else {
		records[meetingID] = *rec
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session records: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("failed to create recordings directory: %w", err)
	}

	// Atomic write, same discipline as config saves.
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write session records: %w", err)
	}
	return os.Rename(tmp, r.path)
}

func (r *Registry) readFileLocked() (map[string]PersistedSession, error) {
	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return make(map[string]PersistedSession), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session records: %w", err)
	}

	records := make(map[string]PersistedSession)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("corrupt session records file: %w", err)
		}
	}
	return records, nil
}
