package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/meetscribe/meetscribe/internal/capture"
	"github.com/meetscribe/meetscribe/internal/platform"
)

// Subjects carrying capture events.
const (
	SubjectSessionJoining   = "capture.session.joining"
	SubjectSessionJoined    = "capture.session.joined"
	SubjectSessionRecording = "capture.session.recording"
	SubjectSessionPaused    = "capture.session.paused"
	SubjectSessionResumed   = "capture.session.resumed"
	SubjectSessionEnding    = "capture.session.ending"
	SubjectSessionEnded     = "capture.session.ended"
	SubjectSessionFailed    = "capture.session.failed"
	SubjectCaptionSegment   = "capture.caption.segment"

	// SubjectSessionAll matches every session lifecycle subject.
	SubjectSessionAll = "capture.session.*"
)

// SessionEvent is published on every session state change.
type SessionEvent struct {
	MeetingID string            `json:"meeting_id"`
	SessionID string            `json:"session_id"`
	Platform  platform.Platform `json:"platform"`
	State     string            `json:"state"`
	Timestamp time.Time         `json:"timestamp"`
}

// CaptionEvent is published for each transcript segment as it is captured.
type CaptionEvent struct {
	MeetingID string                 `json:"meeting_id"`
	SessionID string                 `json:"session_id"`
	Segment   capture.CaptionSegment `json:"segment"`
	Timestamp time.Time              `json:"timestamp"`
}

// Notifier publishes capture engine events onto the bus. Publishing is
// best effort: a failed publish is logged and dropped, never surfaced to
// the capture path.
type Notifier struct {
	bus    *Bus
	logger *slog.Logger

	// prior session states, for distinguishing resume from first start
	mu   sync.Mutex
	last map[string]capture.SessionState
}

// NewNotifier creates a notifier publishing to bus.
func NewNotifier(bus *Bus) *Notifier {
	return &Notifier{
		bus:    bus,
		logger: slog.Default().With("component", "notifier"),
		last:   make(map[string]capture.SessionState),
	}
}

// SessionState implements capture.Notifier.
func (n *Notifier) SessionState(meetingID, sessionID string, p platform.Platform, state capture.SessionState) {
	n.mu.Lock()
	prev := n.last[meetingID]
	if state == capture.StateEnded || state == capture.StateErrored {
		delete(n.last, meetingID)
	} else {
		n.last[meetingID] = state
	}
	n.mu.Unlock()

	subject := subjectFor(state, prev)
	event := SessionEvent{
		MeetingID: meetingID,
		SessionID: sessionID,
		Platform:  p,
		State:     string(state),
		Timestamp: time.Now().UTC(),
	}
	if err := n.bus.Publish(subject, event); err != nil {
		n.logger.Warn("Failed to publish session event", "subject", subject, "error", err)
	}
}

// Caption implements capture.Notifier.
func (n *Notifier) Caption(meetingID, sessionID string, seg capture.CaptionSegment) {
	event := CaptionEvent{
		MeetingID: meetingID,
		SessionID: sessionID,
		Segment:   seg,
		Timestamp: time.Now().UTC(),
	}
	if err := n.bus.Publish(SubjectCaptionSegment, event); err != nil {
		n.logger.Warn("Failed to publish caption event", "error", err)
	}
}

// subjectFor maps a state change onto its subject. A recording state
// reached from paused is a resume, not a fresh start.
func subjectFor(state, prev capture.SessionState) string {
	switch state {
	case capture.StateJoining:
		return SubjectSessionJoining
	case capture.StateInMeeting:
		return SubjectSessionJoined
	case capture.StateRecording:
		if prev == capture.StatePaused {
			return SubjectSessionResumed
		}
		return SubjectSessionRecording
	case capture.StatePaused:
		return SubjectSessionPaused
	case capture.StateEnding:
		return SubjectSessionEnding
	case capture.StateEnded:
		return SubjectSessionEnded
	default:
		return SubjectSessionFailed
	}
}
