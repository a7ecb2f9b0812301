package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

// encodeTimeout caps a single encoding run. On expiry the FFmpeg child is
// killed and the frames stay on disk for later recovery.
const encodeTimeout = 300 * time.Second

// minAudioBytes is the smallest MP3 worth muxing; anything under this is a
// header-only file from a capture that produced no samples.
const minAudioBytes = 5 * 1024

// Encoder joins a session's numbered PNG frames, plus optional audio, into
// a single MP4 with a short-lived FFmpeg invocation.
type Encoder struct {
	ffmpegPath string
	logger     *slog.Logger
}

// NewEncoder creates an encoder using the given FFmpeg binary.
func NewEncoder(ffmpegPath string) *Encoder {
	return &Encoder{
		ffmpegPath: ffmpegPath,
		logger:     slog.Default().With("component", "encoder"),
	}
}

// Encode produces videoPath from the dense frame_%06d.png sequence in
// framesDir at fps. audioPath is muxed in when the file exists and is big
// enough to contain real samples; pass "" to force video-only.
func (e *Encoder) Encode(ctx context.Context, framesDir, audioPath, videoPath string, fps int) error {
	withAudio := false
	if audioPath != "" {
		if info, err := os.Stat(audioPath); err == nil && info.Size() > minAudioBytes {
			withAudio = true
		}
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-framerate", strconv.Itoa(fps),
		"-i", filepath.Join(framesDir, "frame_%06d.png"),
	}
	if withAudio {
		args = append(args, "-i", audioPath)
	}
	args = append(args,
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
	)
	if withAudio {
		args = append(args, "-c:a", "aac", "-b:a", "128k")
	}
	args = append(args,
		"-crf", "23",
		"-preset", "fast",
	)
	if withAudio {
		args = append(args, "-shortest")
	}
	args = append(args, "-y", videoPath)

	e.logger.Info("Encoding session video", "frames_dir", framesDir, "audio", withAudio, "output", videoPath)

	runCtx, cancel := context.WithTimeout(ctx, encodeTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: encoding exceeded %s", ErrEncoder, encodeTimeout)
		}
		return fmt.Errorf("%w: %v: %s", ErrEncoder, err, truncate(string(output), 400))
	}

	e.logger.Info("Encoding complete", "output", videoPath)
	return nil
}

// ConcatAudio joins sequential capture segments into outPath using the
// concat demuxer. Segments are stream-copied, not re-encoded, so outPath
// must not appear among the inputs.
func (e *Encoder) ConcatAudio(ctx context.Context, segments []string, outPath string) error {
	if len(segments) == 0 {
		return fmt.Errorf("%w: no audio segments to concatenate", ErrEncoder)
	}

	listFile, err := os.CreateTemp(filepath.Dir(outPath), "audio_concat_*.txt")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncoder, err)
	}
	defer os.Remove(listFile.Name())

	for _, seg := range segments {
		abs, err := filepath.Abs(seg)
		if err != nil {
			listFile.Close()
			return fmt.Errorf("%w: %v", ErrEncoder, err)
		}
		fmt.Fprintf(listFile, "file '%s'\n", abs)
	}
	if err := listFile.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrEncoder, err)
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "concat", "-safe", "0",
		"-i", listFile.Name(),
		"-c", "copy",
		"-y", outPath,
	}

	runCtx, cancel := context.WithTimeout(ctx, encodeTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %v: %s", ErrEncoder, err, truncate(string(output), 400))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
