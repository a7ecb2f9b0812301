// Package capture implements the meeting capture engine: session lifecycle,
// the concurrent recording pipeline (frame timer, audio subprocess, caption
// scraper), FFmpeg encoding, and crash recovery for persisted sessions.
package capture

import (
	"errors"
	"fmt"

	"github.com/meetscribe/meetscribe/internal/platform"
)

// SessionState is the single-session state machine.
type SessionState string

const (
	StateJoining   SessionState = "joining"
	StateInMeeting SessionState = "in_meeting"
	StateRecording SessionState = "recording"
	StatePaused    SessionState = "paused"
	StateEnding    SessionState = "ending"
	StateEnded     SessionState = "ended"
	StateErrored   SessionState = "errored"
)

// Typed failures surfaced across the engine boundary.
var (
	ErrAlreadyActive    = errors.New("a capture session is already active for this meeting")
	ErrNotActive        = errors.New("no active capture session for this meeting")
	ErrJoinTimeout      = errors.New("timed out waiting to be admitted to the meeting")
	ErrJoinRejected     = errors.New("the meeting rejected the join attempt")
	ErrUnknownPlatform  = errors.New("meeting URL does not match a supported platform")
	ErrEncoder          = errors.New("video encoding failed")
	ErrAudioUnavailable = errors.New("audio capture device unavailable")
	ErrFFmpegMissing    = errors.New("ffmpeg binary not found")
	ErrNoFrames         = errors.New("no frames on disk for this session")
)

// CaptionSegment is one utterance captured from the meeting UI's rendered
// captions. Timestamps are milliseconds since session start.
type CaptionSegment struct {
	Speaker     string  `json:"speaker"`
	Text        string  `json:"text"`
	TimestampMS int64   `json:"timestamp_ms"`
	Confidence  float64 `json:"confidence"`
}

// JoinResult is the outcome of Engine.Join.
type JoinResult struct {
	Success          bool              `json:"success"`
	SessionID        string            `json:"session_id,omitempty"`
	Platform         platform.Platform `json:"platform,omitempty"`
	RecordingStarted bool              `json:"recording_started"`
	Error            string            `json:"error,omitempty"`
}

// LeaveResult is the outcome of Engine.Leave or Engine.RecoverOrphan.
type LeaveResult struct {
	Success            bool             `json:"success"`
	DurationSeconds    float64          `json:"duration_seconds"`
	Transcript         string           `json:"transcript"`
	TranscriptSegments []CaptionSegment `json:"transcript_segments"`
	VideoPath          string           `json:"video_path,omitempty"`
	Screenshots        []string         `json:"screenshots,omitempty"`
	FrameCount         int              `json:"frame_count"`
	Error              string           `json:"error,omitempty"`
}

// StatusReport is a snapshot of a live session, or {status: "not_active"}.
type StatusReport struct {
	Status          string             `json:"status"`
	MeetingID       string             `json:"meeting_id,omitempty"`
	SessionID       string             `json:"session_id,omitempty"`
	Platform        platform.Platform  `json:"platform,omitempty"`
	IsRecording     bool               `json:"is_recording"`
	DurationSeconds float64            `json:"duration_seconds,omitempty"`
	FrameCount      int                `json:"frame_count"`
	Captions        []FormattedCaption `json:"captions,omitempty"`
}

// FormattedCaption is a transcript segment with its timestamp rendered for
// display.
type FormattedCaption struct {
	Timestamp string `json:"timestamp"`
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
}

// FormatTimestamp renders milliseconds since session start as HH:MM:SS.
// Hours are uncapped so meetings past 24h still render.
func FormatTimestamp(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
