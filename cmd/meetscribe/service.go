package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/meetscribe/meetscribe/internal/archive"
	"github.com/meetscribe/meetscribe/internal/capture"
	"github.com/meetscribe/meetscribe/internal/platform"
)

// captureService wraps the engine so every capture that ends cleanly,
// including recovered orphans, lands in the archive.
type captureService struct {
	engine *capture.Engine
	store  *archive.Store
}

func (s *captureService) Join(ctx context.Context, meetingID, meetingURL, botName string) (capture.JoinResult, error) {
	return s.engine.Join(ctx, meetingID, meetingURL, botName)
}

func (s *captureService) Leave(ctx context.Context, meetingID string) (capture.LeaveResult, error) {
	sessionID, plat, audioPath, recovered := s.describe(meetingID)

	result, err := s.engine.Leave(ctx, meetingID)
	if err != nil || !result.Success {
		return result, err
	}

	record := &archive.Record{
		SessionID:       sessionID,
		MeetingID:       meetingID,
		Platform:        plat,
		VideoPath:       result.VideoPath,
		AudioPath:       audioPath,
		DurationSeconds: result.DurationSeconds,
		FrameCount:      result.FrameCount,
		SegmentCount:    len(result.TranscriptSegments),
		Transcript:      result.Transcript,
		Recovered:       recovered,
		EndedAt:         time.Now().UTC(),
	}
	if err := s.store.Insert(ctx, record); err != nil {
		slog.Warn("Failed to archive capture",
			"meeting_id", meetingID, "session_id", sessionID, "error", err)
	}

	return result, nil
}

// describe resolves session identity before Leave tears it down. A meeting
// with no live session may still have a persisted record from a previous
// run, which Leave will recover.
func (s *captureService) describe(meetingID string) (sessionID string, p platform.Platform, audioPath string, recovered bool) {
	if sess, ok := s.engine.Registry().Get(meetingID); ok {
		return sess.SessionID, sess.Platform, sess.AudioPath, false
	}
	if rec, ok := s.engine.Registry().Orphan(meetingID); ok {
		return rec.SessionID, rec.Platform, "", true
	}
	return "", platform.PlatformUnknown, "", false
}

func (s *captureService) Status(meetingID string) capture.StatusReport {
	return s.engine.Status(meetingID)
}

func (s *captureService) Sessions() []capture.StatusReport {
	return s.engine.Sessions()
}

func (s *captureService) Screenshot(ctx context.Context, meetingID string) (string, error) {
	return s.engine.Screenshot(ctx, meetingID)
}

func (s *captureService) ToggleRecording(ctx context.Context, meetingID string) (bool, error) {
	return s.engine.ToggleRecording(ctx, meetingID)
}
