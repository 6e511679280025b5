// Package adapters holds the stateless external adapters. They are the only
// code allowed to perform network or subprocess I/O, each call is wrapped by
// a named circuit and a timeout.
package adapters

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/reelscript/reelscript/internal/breaker"
	"github.com/reelscript/reelscript/internal/model"
)

// CircuitDownload etc. name the per-adapter circuits.
const (
	CircuitDownload   = "download"
	CircuitAnalysis   = "analysis"
	CircuitGeneration = "generation"
	CircuitUpload     = "upload"
	CircuitMessaging  = "messaging"
)

var unsafeNameRe = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// SanitizeName strips everything outside [A-Za-z0-9_-] from a filesystem
// name derived from request data.
func SanitizeName(s string) string {
	return unsafeNameRe.ReplaceAllString(s, "")
}

// Downloader fetches a reel via the yt-dlp CLI.
type Downloader struct {
	binPath     string
	cookiesPath string
	maxSeconds  int
	maxBytes    int64
	brk         *breaker.Breaker
	timeout     time.Duration
	log         zerolog.Logger
}

func NewDownloader(binPath, cookiesPath string, maxSeconds int, maxBytes int64, brk *breaker.Breaker, timeout time.Duration, log zerolog.Logger) *Downloader {
	return &Downloader{
		binPath:     binPath,
		cookiesPath: cookiesPath,
		maxSeconds:  maxSeconds,
		maxBytes:    maxBytes,
		brk:         brk,
		timeout:     timeout,
		log:         log,
	}
}

// Download fetches url into destDir and returns the video path. name is
// sanitized before touching the filesystem.
func (d *Downloader) Download(ctx context.Context, url, destDir, name string) (string, error) {
	outPath := filepath.Join(destDir, SanitizeName(name)+".mp4")
	err := d.brk.Execute(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()

		args := []string{
			"--output", outPath,
			"--format", "worst[ext=mp4]",
			"--max-filesize", fmt.Sprintf("%dM", d.maxBytes>>20),
			"--match-filter", fmt.Sprintf("duration <= %d", d.maxSeconds),
			"--no-playlist",
		}
		if d.cookiesPath != "" {
			args = append(args, "--cookies", d.cookiesPath)
		}
		args = append(args, url)

		cmd := exec.CommandContext(callCtx, d.binPath, args...)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			if callCtx.Err() == context.DeadlineExceeded {
				return &model.TimeoutError{Stage: "download"}
			}
			return classifyDownloadError(stderr.String(), err)
		}
		if _, err := os.Stat(outPath); err != nil {
			// a failed match-filter exits zero but writes nothing
			return &model.UpstreamError{
				Service:   CircuitDownload,
				Permanent: true,
				Cause:     fmt.Errorf("no output produced, filters likely rejected the video"),
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return outPath, nil
}

// classifyDownloadError normalizes well-known yt-dlp stderr strings into
// typed errors.
func classifyDownloadError(stderr string, cause error) error {
	s := strings.ToLower(stderr)
	switch {
	case strings.Contains(s, "login required") || strings.Contains(s, "login_required") ||
		strings.Contains(s, "sign in") || strings.Contains(s, "authentication"):
		return &model.UpstreamError{Service: CircuitDownload, Permanent: true,
			Cause: fmt.Errorf("login required: %w", cause)}
	case strings.Contains(s, "not available") || strings.Contains(s, "unavailable") ||
		strings.Contains(s, "private") || strings.Contains(s, "removed"):
		return &model.UpstreamError{Service: CircuitDownload, Permanent: true,
			Cause: fmt.Errorf("content not available: %w", cause)}
	case strings.Contains(s, "rate-limit") || strings.Contains(s, "rate limit") ||
		strings.Contains(s, "429") || strings.Contains(s, "too many requests"):
		return &model.UpstreamError{Service: CircuitDownload, Permanent: false,
			Cause: fmt.Errorf("rate limited: %w", cause)}
	case strings.Contains(s, "max-filesize") || strings.Contains(s, "file is larger"):
		return &model.UpstreamError{Service: CircuitDownload, Permanent: true,
			Cause: fmt.Errorf("video exceeds size limit: %w", cause)}
	default:
		return &model.UpstreamError{Service: CircuitDownload, Permanent: false,
			Cause: fmt.Errorf("download failed: %w (stderr: %s)", cause, truncate(stderr, 300))}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
