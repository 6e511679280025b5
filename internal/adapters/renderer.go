package adapters

import (
	"context"
	"fmt"
	"html"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// svgCardTmpl is the pre-rendered text card used when no video frame
// survived extraction. The hook text is HTML-escaped before interpolation.
const svgCardTmpl = `<svg xmlns="http://www.w3.org/2000/svg" width="600" height="600" viewBox="0 0 600 600">
  <rect width="600" height="600" fill="#101014"/>
  <text x="50%%" y="44%%" fill="#ffffff" font-family="sans-serif" font-size="34" font-weight="bold" text-anchor="middle">%s</text>
  <text x="50%%" y="58%%" fill="#9a9aa2" font-family="sans-serif" font-size="20" text-anchor="middle">Your speaking script is ready</text>
</svg>
`

// CardRenderer produces the share-card image for a finished script: the
// first readable extracted frame, or a generated SVG text card carrying the
// hook line when no frame is available.
type CardRenderer struct {
	log zerolog.Logger
}

func NewCardRenderer(log zerolog.Logger) *CardRenderer {
	return &CardRenderer{log: log}
}

// Render returns the local path and content type of the card image. A
// generated text card is written into dir, which the caller owns and
// removes together with the rest of the job's working files.
func (r *CardRenderer) Render(ctx context.Context, dir, hook string, framePaths []string) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	for _, p := range framePaths {
		if info, err := os.Stat(p); err == nil && info.Size() > 0 {
			return p, "image/jpeg", nil
		}
	}

	title := strings.TrimSpace(hook)
	if title == "" {
		title = "New script"
	}
	if runes := []rune(title); len(runes) > 60 {
		title = string(runes[:57]) + "..."
	}

	f, err := os.CreateTemp(dir, "card-*.svg")
	if err != nil {
		return "", "", fmt.Errorf("create card file: %w", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := fmt.Fprintf(f, svgCardTmpl, html.EscapeString(title)); err != nil {
		_ = os.Remove(f.Name())
		return "", "", fmt.Errorf("write card file: %w", err)
	}
	return f.Name(), "image/svg+xml", nil
}
