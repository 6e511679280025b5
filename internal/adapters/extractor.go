package adapters

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/reelscript/reelscript/internal/breaker"
	"github.com/reelscript/reelscript/internal/model"
)

// MaxFrames caps frame extraction regardless of duration.
const MaxFrames = 20

// FrameRate returns the duration-adaptive sampling rate in frames per
// second.
func FrameRate(durationSec float64) float64 {
	switch {
	case durationSec < 15:
		return 1.0 / 3.0
	case durationSec < 30:
		return 0.5
	default:
		return 0.4
	}
}

// Extractor probes and slices local video files with ffmpeg/ffprobe.
type Extractor struct {
	ffmpegPath  string
	ffprobePath string
	brk         *breaker.Breaker
	timeout     time.Duration
	log         zerolog.Logger
}

func NewExtractor(ffmpegPath, ffprobePath string, brk *breaker.Breaker, timeout time.Duration, log zerolog.Logger) *Extractor {
	return &Extractor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		brk:         brk,
		timeout:     timeout,
		log:         log,
	}
}

// ProbeDuration returns the container duration in seconds.
func (e *Extractor) ProbeDuration(ctx context.Context, videoPath string) (float64, error) {
	var duration float64
	err := e.brk.Execute(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		cmd := exec.CommandContext(callCtx, e.ffprobePath,
			"-v", "error",
			"-show_entries", "format=duration",
			"-of", "default=noprint_wrappers=1:nokey=1",
			videoPath,
		)
		out, err := cmd.Output()
		if err != nil {
			return &model.UpstreamError{Service: CircuitAnalysis, Permanent: false,
				Cause: fmt.Errorf("ffprobe failed: %w", err)}
		}
		duration, err = strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
		if err != nil {
			return &model.UpstreamError{Service: CircuitAnalysis, Permanent: true,
				Cause: fmt.Errorf("unparseable duration %q: %w", strings.TrimSpace(string(out)), err)}
		}
		return nil
	})
	return duration, err
}

// ExtractFrames samples JPEG frames into outDir at the adaptive rate for
// the given duration and returns the frame paths in order.
func (e *Extractor) ExtractFrames(ctx context.Context, videoPath, outDir string, durationSec float64) ([]string, error) {
	var frames []string
	err := e.brk.Execute(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return err
		}
		cmd := exec.CommandContext(callCtx, e.ffmpegPath,
			"-i", videoPath,
			"-vf", fmt.Sprintf("fps=%.4f,scale=480:-2", FrameRate(durationSec)),
			"-frames:v", strconv.Itoa(MaxFrames),
			"-q:v", "5",
			filepath.Join(outDir, "frame_%03d.jpg"),
		)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			if callCtx.Err() == context.DeadlineExceeded {
				return &model.TimeoutError{Stage: "extract"}
			}
			return &model.UpstreamError{Service: CircuitAnalysis, Permanent: false,
				Cause: fmt.Errorf("frame extraction failed: %w (stderr: %s)", err, truncate(stderr.String(), 300))}
		}

		matches, err := filepath.Glob(filepath.Join(outDir, "frame_*.jpg"))
		if err != nil {
			return err
		}
		sort.Strings(matches)
		frames = matches
		return nil
	})
	return frames, err
}

// ExtractAudio writes a 16 kHz mono WAV next to the video and returns its
// path.
func (e *Extractor) ExtractAudio(ctx context.Context, videoPath, outDir string) (string, error) {
	audioPath := filepath.Join(outDir, "audio.wav")
	err := e.brk.Execute(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		cmd := exec.CommandContext(callCtx, e.ffmpegPath,
			"-i", videoPath,
			"-vn",
			"-ac", "1",
			"-ar", "16000",
			"-y",
			audioPath,
		)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			if callCtx.Err() == context.DeadlineExceeded {
				return &model.TimeoutError{Stage: "extract"}
			}
			return &model.UpstreamError{Service: CircuitAnalysis, Permanent: false,
				Cause: fmt.Errorf("audio extraction failed: %w (stderr: %s)", err, truncate(stderr.String(), 300))}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return audioPath, nil
}
