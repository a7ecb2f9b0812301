package capture

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meetscribe/meetscribe/internal/browser"
	"github.com/meetscribe/meetscribe/internal/platform"
)

// DriverFactory launches a fresh browser for a session.
type DriverFactory func(ctx context.Context) (browser.Driver, error)

// Notifier receives session lifecycle and caption events. Implementations
// must not block; the engine treats every call as fire-and-forget.
type Notifier interface {
	SessionState(meetingID, sessionID string, p platform.Platform, state SessionState)
	Caption(meetingID, sessionID string, seg CaptionSegment)
}

// Config holds the engine's runtime settings.
type Config struct {
	// RecordingsRoot is the directory all artifacts live under.
	RecordingsRoot string

	// BotName is the display name used when joining meetings.
	BotName string

	// AudioDevice is the OS-specific host audio source identifier.
	AudioDevice string

	// FFmpegPath is the ffmpeg binary; defaults to "ffmpeg" on PATH.
	FFmpegPath string

	// DebugJoin enables step-by-step screenshots under
	// RecordingsRoot/debug during join flows.
	DebugJoin bool

	// FrameInterval and CaptionInterval override the capture timers.
	// Zero selects the defaults (500ms and 2s respectively).
	FrameInterval   time.Duration
	CaptionInterval time.Duration
}

// Engine is the public capture façade. All operations are synchronous:
// a call returns only when its side effects and result are ready.
type Engine struct {
	cfg       Config
	registry  *Registry
	encoder   *Encoder
	newDriver DriverFactory
	notifier  Notifier
	logger    *slog.Logger

	// adapterFor resolves the join strategy for a platform; it defaults
	// to platform.ForPlatform and exists as a seam for tests.
	adapterFor func(platform.Platform) (platform.Adapter, bool)

	// baseCtx scopes every session's timers and subprocesses so Shutdown
	// can cancel them without depending on request contexts.
	baseCtx context.Context
	cancel  context.CancelFunc
}

// New creates an engine. The recordings root must be creatable/writable;
// a missing FFmpeg binary is only logged here because it blocks encoding,
// not joining or capture.
func New(cfg Config, newDriver DriverFactory, notifier Notifier) (*Engine, error) {
	if cfg.RecordingsRoot == "" {
		cfg.RecordingsRoot = "recordings"
	}
	if cfg.BotName == "" {
		cfg.BotName = "MeetScribe Notetaker"
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = frameInterval
	}
	if cfg.CaptionInterval <= 0 {
		cfg.CaptionInterval = captionInterval
	}

	if err := os.MkdirAll(cfg.RecordingsRoot, 0755); err != nil {
		return nil, fmt.Errorf("recordings root not writable: %w", err)
	}

	logger := slog.Default().With("component", "engine")
	if _, err := exec.LookPath(cfg.FFmpegPath); err != nil {
		logger.Warn("FFmpeg not found; sessions will capture but not encode", "path", cfg.FFmpegPath)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:        cfg,
		registry:   NewRegistry(cfg.RecordingsRoot),
		encoder:    NewEncoder(cfg.FFmpegPath),
		newDriver:  newDriver,
		notifier:   notifier,
		logger:     logger,
		adapterFor: platform.ForPlatform,
		baseCtx:    ctx,
		cancel:     cancel,
	}, nil
}

// Registry exposes the session registry for status listings.
func (e *Engine) Registry() *Registry { return e.registry }

// Join creates a session for the meeting, drives the platform join flow,
// and on success starts the recording pipeline.
// An empty botName selects the configured default display name.
func (e *Engine) Join(ctx context.Context, meetingID, meetingURL, botName string) (JoinResult, error) {
	if _, exists := e.registry.Get(meetingID); exists {
		return JoinResult{Success: false, Error: "already_active"}, ErrAlreadyActive
	}
	if botName == "" {
		botName = e.cfg.BotName
	}

	p := platform.Detect(meetingURL)
	adapter, ok := e.adapterFor(p)
	if !ok {
		return JoinResult{Success: false, Error: "unknown_platform"}, ErrUnknownPlatform
	}

	if e.cfg.DebugJoin {
		debugDir := filepath.Join(e.cfg.RecordingsRoot, "debug")
		if err := os.MkdirAll(debugDir, 0755); err == nil {
			if d, ok := adapter.(interface{ SetDebugDir(string) }); ok {
				d.SetDebugDir(debugDir)
			}
		}
	}

	sessionID := uuid.New().String()
	log := e.logger.With("meeting_id", meetingID, "session_id", sessionID, "platform", p.String())
	log.Info("Joining meeting", "url", platform.SanitizeURL(meetingURL))

	// The browser must outlive the join call: it belongs to the session,
	// not to the caller. ctx still bounds the join flow itself below.
	drv, err := e.newDriver(e.baseCtx)
	if err != nil {
		return JoinResult{Success: false, Error: "browser_launch_failed"}, fmt.Errorf("failed to launch browser: %w", err)
	}

	session := newSession(meetingID, sessionID, p, adapter, drv, e.cfg.RecordingsRoot)
	if err := os.MkdirAll(session.FramesDir, 0755); err != nil {
		_ = drv.Close()
		return JoinResult{Success: false, Error: "frames_dir_failed"}, fmt.Errorf("failed to create frames dir: %w", err)
	}

	if err := e.registry.InsertUnique(session); err != nil {
		_ = drv.Close()
		return JoinResult{Success: false, Error: "already_active"}, err
	}
	e.notifyState(session, StateJoining)

	joinURL := adapter.MeetingURL(meetingURL)
	if origin := originOf(joinURL); origin != "" {
		if err := drv.GrantPermissions(ctx, origin,
			browser.PermissionMicrophone, browser.PermissionCamera, browser.PermissionNotifications); err != nil {
			log.Warn("Permission grant failed", "error", err)
		}
	}

	outcome := adapter.Join(ctx, drv, joinURL, botName)
	if outcome.Kind != platform.JoinSucceeded {
		log.Warn("Join failed", "kind", string(outcome.Kind), "detail", outcome.Detail)
		_ = drv.Close()
		session.setState(StateErrored)
		e.registry.Remove(meetingID)
		e.notifyState(session, StateErrored)

		switch outcome.Kind {
		case platform.JoinRejected:
			return JoinResult{Success: false, Platform: p, Error: "JoinRejected"}, ErrJoinRejected
		default:
			return JoinResult{Success: false, Platform: p, Error: "JoinTimedOut"}, ErrJoinTimeout
		}
	}

	session.transition(StateInMeeting, StateJoining)
	e.notifyState(session, StateInMeeting)
	log.Info("Admitted to meeting")

	e.startPipeline(session)
	session.transition(StateRecording, StateInMeeting)
	session.setRecording(true)
	e.notifyState(session, StateRecording)

	return JoinResult{
		Success:          true,
		SessionID:        sessionID,
		Platform:         p,
		RecordingStarted: true,
	}, nil
}

// startPipeline starts the frame recorder, audio recorder, and caption
// scraper — in that order. Audio failures are non-terminal.
func (e *Engine) startPipeline(s *Session) {
	s.mu.Lock()
	if s.frames == nil {
		s.frames = NewFrameRecorder(s)
		s.frames.interval = e.cfg.FrameInterval
	}
	if s.audio == nil {
		s.audio = NewAudioRecorder(e.cfg.FFmpegPath, e.cfg.AudioDevice, s.AudioPath, s.SessionID)
	}
	if s.captions == nil {
		s.captions = NewCaptionScraper(s, func(seg CaptionSegment) {
			if e.notifier != nil {
				e.notifier.Caption(s.MeetingID, s.SessionID, seg)
			}
		})
		s.captions.interval = e.cfg.CaptionInterval
	}
	frames, audio, captions := s.frames, s.audio, s.captions
	s.mu.Unlock()

	frames.Start(e.baseCtx)
	if err := audio.Start(e.baseCtx); err != nil {
		e.logger.Warn("Audio capture unavailable; continuing caption-only",
			"session_id", s.SessionID, "error", err)
	}
	captions.Start(e.baseCtx)
}

// Leave finalizes the session: stops the pipeline, encodes the artifact,
// and clears registry and persistence. With no live session it falls back
// to orphan recovery.
func (e *Engine) Leave(ctx context.Context, meetingID string) (LeaveResult, error) {
	session, ok := e.registry.Get(meetingID)
	if !ok {
		if orphan, found := e.registry.Orphan(meetingID); found {
			return e.RecoverOrphan(ctx, orphan)
		}
		return LeaveResult{Success: false, Error: "not_active"}, ErrNotActive
	}

	// Only one caller may finalize; a concurrent Leave that lost the race
	// sees the session already ending and is turned away.
	if !session.transition(StateEnding, StateJoining, StateInMeeting, StateRecording, StatePaused) {
		return LeaveResult{Success: false, Error: "not_active"}, ErrNotActive
	}

	log := e.logger.With("meeting_id", meetingID, "session_id", session.SessionID)
	log.Info("Leaving meeting")
	e.notifyState(session, StateEnding)

	// Stop order: captions first so no append races the final render,
	// then one last frame, then the recorders, then the browser.
	session.mu.Lock()
	frames, audio, captions := session.frames, session.audio, session.captions
	session.mu.Unlock()

	if captions != nil {
		captions.Stop()
	}

	finalShot := filepath.Join(e.cfg.RecordingsRoot,
		fmt.Sprintf("%s_screenshot_%d.png", session.SessionID, time.Now().UnixMilli()))
	if err := session.driver.Screenshot(ctx, finalShot); err == nil {
		session.addScreenshot(finalShot)
	}

	if frames != nil {
		frames.Stop()
	}
	if audio != nil {
		audio.Stop()
	}
	_ = session.driver.Close()

	segments := session.Transcript()
	transcript := renderTranscript(segments)

	audioPath := ""
	if audio != nil {
		audioPath = e.consolidateAudio(ctx, audio, session.AudioPath, log)
	}

	videoPath := ""
	frameCount := session.FrameCount()
	if frameCount >= 1 {
		if err := e.encoder.Encode(ctx, session.FramesDir, audioPath, session.VideoPath, encodeFPS); err != nil {
			// Non-terminal: frames stay on disk for RecoverOrphan.
			log.Error("Encoding failed; frames preserved", "error", err)
		} else {
			videoPath = session.VideoPath
		}
	}

	duration := time.Since(session.StartedAt).Seconds()
	session.setState(StateEnded)
	e.registry.Remove(meetingID)
	e.notifyState(session, StateEnded)
	log.Info("Session finalized", "duration_seconds", duration, "frames", frameCount, "segments", len(segments))

	return LeaveResult{
		Success:            true,
		DurationSeconds:    duration,
		Transcript:         transcript,
		TranscriptSegments: segments,
		VideoPath:          videoPath,
		Screenshots:        session.Screenshots(),
		FrameCount:         frameCount,
	}, nil
}

// consolidateAudio resolves the audio track to mux. Pause/resume leaves
// one file per capture run; multi-segment captures are concatenated back
// into the session's audio path so nothing recorded before a pause is
// lost.
func (e *Engine) consolidateAudio(ctx context.Context, audio *AudioRecorder, outPath string, log *slog.Logger) string {
	segs := audio.Segments()
	switch len(segs) {
	case 0:
		return ""
	case 1:
		return segs[0]
	}

	ext := filepath.Ext(outPath)
	merged := strings.TrimSuffix(outPath, ext) + "_merged" + ext
	if err := e.encoder.ConcatAudio(ctx, segs, merged); err != nil {
		log.Warn("Audio segment merge failed; muxing first segment only", "error", err)
		return segs[0]
	}
	if err := os.Rename(merged, outPath); err != nil {
		log.Warn("Audio merge rename failed; muxing first segment only", "error", err)
		return segs[0]
	}
	for _, seg := range segs[1:] {
		_ = os.Remove(seg)
	}
	return outPath
}

// Status snapshots a live session or reports not_active.
func (e *Engine) Status(meetingID string) StatusReport {
	session, ok := e.registry.Get(meetingID)
	if !ok {
		return StatusReport{Status: "not_active"}
	}
	return session.statusSnapshot()
}

// Sessions returns status snapshots for every live session.
func (e *Engine) Sessions() []StatusReport {
	return e.registry.Snapshot()
}

// Screenshot captures the current page into an ad-hoc screenshot file and
// returns its path.
func (e *Engine) Screenshot(ctx context.Context, meetingID string) (string, error) {
	session, ok := e.registry.Get(meetingID)
	if !ok {
		return "", ErrNotActive
	}

	path := filepath.Join(e.cfg.RecordingsRoot,
		fmt.Sprintf("%s_screenshot_%d.png", session.SessionID, time.Now().UnixMilli()))
	if err := session.driver.Screenshot(ctx, path); err != nil {
		return "", fmt.Errorf("screenshot failed: %w", err)
	}
	session.addScreenshot(path)
	return path, nil
}

// ToggleRecording pauses or resumes the frame and audio recorders. The
// caption scraper is deliberately unaffected. Returns the new recording
// state.
func (e *Engine) ToggleRecording(ctx context.Context, meetingID string) (bool, error) {
	session, ok := e.registry.Get(meetingID)
	if !ok {
		return false, ErrNotActive
	}

	session.mu.Lock()
	frames, audio := session.frames, session.audio
	recording := session.isRecording
	session.mu.Unlock()

	if recording {
		if frames != nil {
			frames.Stop()
		}
		if audio != nil {
			audio.Stop()
		}
		session.transition(StatePaused, StateRecording)
		session.setRecording(false)
		e.notifyState(session, StatePaused)
		return false, nil
	}

	if frames != nil {
		frames.Start(e.baseCtx)
	}
	if audio != nil {
		if err := audio.Start(e.baseCtx); err != nil {
			e.logger.Warn("Audio restart failed; continuing without audio",
				"session_id", session.SessionID, "error", err)
		}
	}
	session.transition(StateRecording, StatePaused)
	session.setRecording(true)
	e.notifyState(session, StateRecording)
	return true, nil
}

// RecoverOrphan reconstitutes a crashed session from its persisted record
// and on-disk frames, with no live browser involved.
func (e *Engine) RecoverOrphan(ctx context.Context, rec *PersistedSession) (LeaveResult, error) {
	log := e.logger.With("meeting_id", rec.MeetingID, "session_id", rec.SessionID)
	log.Info("Recovering orphaned session", "frames_dir", rec.FramesDir)

	frameCount, err := countFrames(rec.FramesDir)
	if err != nil {
		return LeaveResult{Success: false, Error: "frames_dir_unreadable"}, fmt.Errorf("failed to read frames dir: %w", err)
	}
	if frameCount == 0 {
		return LeaveResult{Success: false, Error: "no_frames"}, ErrNoFrames
	}

	videoPath := filepath.Join(e.cfg.RecordingsRoot, rec.SessionID+"_video.mp4")
	if err := e.encoder.Encode(ctx, rec.FramesDir, "", videoPath, encodeFPS); err != nil {
		return LeaveResult{Success: false, Error: "encode_failed"}, err
	}

	e.registry.ClearPersisted(rec.MeetingID)
	log.Info("Orphan recovered", "frames", frameCount, "video", videoPath)

	return LeaveResult{
		Success:         true,
		DurationSeconds: float64(frameCount) / float64(encodeFPS),
		Transcript:      recoveredTranscript,
		VideoPath:       videoPath,
		FrameCount:      frameCount,
	}, nil
}

// Shutdown cancels every session's timers and subprocesses and closes the
// remaining browsers. Sessions are left on disk for recovery.
func (e *Engine) Shutdown() {
	e.cancel()
	for _, report := range e.registry.Snapshot() {
		if session, ok := e.registry.Get(report.MeetingID); ok {
			session.mu.Lock()
			frames, audio, captions := session.frames, session.audio, session.captions
			session.mu.Unlock()
			if captions != nil {
				captions.Stop()
			}
			if frames != nil {
				frames.Stop()
			}
			if audio != nil {
				audio.Stop()
			}
			_ = session.driver.Close()
		}
	}
	e.logger.Info("Capture engine stopped")
}

func (e *Engine) notifyState(s *Session, state SessionState) {
	if e.notifier == nil {
		return
	}
	e.notifier.SessionState(s.MeetingID, s.SessionID, s.Platform, state)
}

// countFrames counts the dense frame_NNNNNN.png files in dir.
func countFrames(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "frame_") && strings.HasSuffix(name, ".png") {
			count++
		}
	}
	return count, nil
}

// originOf extracts scheme://host from a URL for permission grants.
func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
