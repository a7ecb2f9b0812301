package capture

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/meetscribe/meetscribe/internal/browser"
	"github.com/meetscribe/meetscribe/internal/platform"
)

// Session is one live capture of one meeting, from join through artifact
// emission. It owns its browser handle, FFmpeg children, and timers; no
// other object holds a live reference to them. All mutable fields are
// guarded by mu; readers copy out under the lock.
type Session struct {
	MeetingID string
	SessionID string
	Platform  platform.Platform
	StartedAt time.Time

	FramesDir string
	VideoPath string
	AudioPath string

	driver  browser.Driver
	adapter platform.Adapter

	mu          sync.Mutex
	state       SessionState
	frameCount  int
	transcript  []CaptionSegment
	screenshots []string
	isRecording bool

	frames   *FrameRecorder
	audio    *AudioRecorder
	captions *CaptionScraper
}

func newSession(meetingID, sessionID string, p platform.Platform, adapter platform.Adapter, drv browser.Driver, root string) *Session {
	return &Session{
		MeetingID: meetingID,
		SessionID: sessionID,
		Platform:  p,
		StartedAt: time.Now().UTC(),
		FramesDir: filepath.Join(root, sessionID+"_frames"),
		VideoPath: filepath.Join(root, sessionID+"_video.mp4"),
		AudioPath: filepath.Join(root, sessionID+"_audio.mp3"),
		driver:    drv,
		adapter:   adapter,
		state:     StateJoining,
	}
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// transition moves the session to next only when it is currently in one of
// from; it reports whether the move happened.
func (s *Session) transition(next SessionState, from ...SessionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range from {
		if s.state == f {
			s.state = next
			return true
		}
	}
	return false
}

// FrameCount returns the number of successfully captured frames.
func (s *Session) FrameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameCount
}

// nextFramePath reserves the next dense frame index and returns its path.
// The index is committed only by commitFrame, so a failed screenshot does
// not leave a hole in the numbering.
func (s *Session) nextFramePath() (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.frameCount + 1
	return idx, filepath.Join(s.FramesDir, fmt.Sprintf("frame_%06d.png", idx))
}

func (s *Session) commitFrame(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx == s.frameCount+1 {
		s.frameCount = idx
	}
}

// Recording reports whether the frame/audio pipeline is currently on.
func (s *Session) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRecording
}

func (s *Session) setRecording(on bool) {
	s.mu.Lock()
	s.isRecording = on
	s.mu.Unlock()
}

// appendCaption appends a segment unless its text matches the previously
// appended segment's text. Non-adjacent repeats are legitimate speech and
// are kept. Timestamps are clamped to be monotonically nondecreasing.
func (s *Session) appendCaption(speaker, text string, timestampMS int64, confidence float64) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	if speaker == "" {
		speaker = "Speaker"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.transcript); n > 0 {
		if s.transcript[n-1].Text == text {
			return false
		}
		if last := s.transcript[n-1].TimestampMS; timestampMS < last {
			timestampMS = last
		}
	}
	s.transcript = append(s.transcript, CaptionSegment{
		Speaker:     speaker,
		Text:        text,
		TimestampMS: timestampMS,
		Confidence:  confidence,
	})
	return true
}

// Transcript returns a copy of the captured segments.
func (s *Session) Transcript() []CaptionSegment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CaptionSegment, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// addScreenshot records an ad-hoc screenshot path.
func (s *Session) addScreenshot(path string) {
	s.mu.Lock()
	s.screenshots = append(s.screenshots, path)
	s.mu.Unlock()
}

// Screenshots returns a copy of the ad-hoc screenshot paths.
func (s *Session) Screenshots() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.screenshots))
	copy(out, s.screenshots)
	return out
}

// transcriptFallback is emitted when a session ends without captions.
const transcriptFallback = "No captions were captured during this meeting."

// recoveredTranscript is emitted for sessions reconstituted after a restart.
const recoveredTranscript = "Session recovered after server restart. No live transcript available."

// renderTranscript formats segments ascending by timestamp as
// "[HH:MM:SS] speaker: text" lines, or the fallback when empty.
func renderTranscript(segments []CaptionSegment) string {
	if len(segments) == 0 {
		return transcriptFallback
	}
	sorted := make([]CaptionSegment, len(segments))
	copy(sorted, segments)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].TimestampMS < sorted[j].TimestampMS
	})

	var b strings.Builder
	for i, seg := range sorted {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "[%s] %s: %s", FormatTimestamp(seg.TimestampMS), seg.Speaker, seg.Text)
	}
	return b.String()
}

// statusSnapshot copies the observable fields out under the lock.
func (s *Session) statusSnapshot() StatusReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := StatusReport{
		Status:          string(s.state),
		MeetingID:       s.MeetingID,
		SessionID:       s.SessionID,
		Platform:        s.Platform,
		IsRecording:     s.isRecording,
		DurationSeconds: time.Since(s.StartedAt).Seconds(),
		FrameCount:      s.frameCount,
	}

	// Last 20 segments, oldest first.
	start := len(s.transcript) - 20
	if start < 0 {
		start = 0
	}
	for _, seg := range s.transcript[start:] {
		report.Captions = append(report.Captions, FormattedCaption{
			Timestamp: FormatTimestamp(seg.TimestampMS),
			Speaker:   seg.Speaker,
			Text:      seg.Text,
		})
	}
	return report
}
