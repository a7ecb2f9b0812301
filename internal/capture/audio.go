package capture

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// AudioRecorder owns a long-lived FFmpeg child capturing host audio to
// MP3. Output is mono 16 kHz at 64 kbps, tuned for downstream
// speech-to-text rather than fidelity. A missing audio device never fails
// the session; capture proceeds caption-only.
type AudioRecorder struct {
	ffmpegPath string
	device     string
	outPath    string
	logger     *slog.Logger

	mu       sync.Mutex
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	segments []string
}

// NewAudioRecorder creates a recorder writing to outPath. device is the
// OS-specific source identifier (an avfoundation index on macOS; ignored
// on Linux where the default pulse source is used).
func NewAudioRecorder(ffmpegPath, device, outPath, sessionID string) *AudioRecorder {
	return &AudioRecorder{
		ffmpegPath: ffmpegPath,
		device:     device,
		outPath:    outPath,
		logger:     slog.Default().With("component", "audio", "session", sessionID),
	}
}

// Start launches the FFmpeg child. Errors are returned for logging but
// callers treat them as non-terminal (ErrAudioUnavailable semantics).
func (a *AudioRecorder) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cmd != nil {
		return nil
	}

	target := a.nextSegmentPath()
	args := a.buildArgs(target)
	cmd := exec.CommandContext(ctx, a.ffmpegPath, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create ffmpeg stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrAudioUnavailable, err)
	}

	a.cmd = cmd
	a.stdin = stdin
	a.segments = append(a.segments, target)
	a.logger.Info("Audio capture started", "pid", cmd.Process.Pid, "output", target)

	// Reap the child if it dies early (absent device, pulse not running).
	go func() {
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			a.logger.Warn("Audio capture exited early", "error", err)
		}
		a.mu.Lock()
		if a.cmd == cmd {
			a.cmd = nil
			a.stdin = nil
		}
		a.mu.Unlock()
	}()

	return nil
}

// Stop quits FFmpeg gracefully: `q` on stdin first, a terminate signal
// after a 500ms grace, then up to 1s for the MP3 trailer to be finalized.
func (a *AudioRecorder) Stop() {
	a.mu.Lock()
	cmd := a.cmd
	stdin := a.stdin
	a.cmd = nil
	a.stdin = nil
	a.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return
	}

	if stdin != nil {
		_, _ = io.WriteString(stdin, "q")
		_ = stdin.Close()
	}

	exited := make(chan struct{})
	go func() {
		_, _ = cmd.Process.Wait()
		close(exited)
	}()

	select {
	case <-exited:
	case <-time.After(500 * time.Millisecond):
		_ = cmd.Process.Signal(terminateSignal())
		select {
		case <-exited:
		case <-time.After(time.Second):
			_ = cmd.Process.Kill()
		}
	}
	a.logger.Info("Audio capture stopped")
}

// Running reports whether the FFmpeg child is alive.
func (a *AudioRecorder) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cmd != nil
}

// Segments lists the files written so far, in capture order.
func (a *AudioRecorder) Segments() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.segments...)
}

// nextSegmentPath picks the output file for the next capture run. The
// first run writes outPath directly; each resume gets its own part file
// so it cannot clobber audio already on disk. Caller holds the lock.
func (a *AudioRecorder) nextSegmentPath() string {
	if len(a.segments) == 0 {
		return a.outPath
	}
	ext := filepath.Ext(a.outPath)
	base := strings.TrimSuffix(a.outPath, ext)
	return fmt.Sprintf("%s_part%d%s", base, len(a.segments)+1, ext)
}

// buildArgs assembles the OS-dependent FFmpeg capture invocation.
func (a *AudioRecorder) buildArgs(outPath string) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}

	switch runtime.GOOS {
	case "darwin":
		device := a.device
		if device == "" {
			device = "0"
		}
		args = append(args, "-f", "avfoundation", "-i", ":"+device)
	default:
		args = append(args, "-f", "pulse", "-i", "default")
	}

	args = append(args,
		"-acodec", "libmp3lame",
		"-ac", "1",
		"-ar", "16000",
		"-b:a", "64k",
		"-y", outPath,
	)
	return args
}
