// Package intent classifies free-text utterances into flow commands.
// Parsing is deterministic and pure: the same input always yields the same
// Result, and the pattern list ordering below is contractual.
package intent

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Type is the primary classification of an utterance.
type Type string

const (
	TypeGenerate Type = "generate"
	TypeCopy     Type = "copy"
	TypeRedo     Type = "redo"
	TypePositive Type = "positive_feedback"
	TypeNegative Type = "negative_feedback"
	TypeIdea     Type = "idea"
	TypeUnknown  Type = "unknown"
)

// Intensity controls how elaborate the generated script should be.
type Intensity string

const (
	IntensityLite   Intensity = "lite"
	IntensityMedium Intensity = "medium"
	IntensityDeep   Intensity = "deep"
)

// Result is the parsed form of an utterance. Modifiers (tone, intensity,
// hook-only) are orthogonal to the type and may co-occur with any of them.
type Result struct {
	Type             Type
	IsInstantFlow    bool
	IsCopyFlow       bool
	IsRedo           bool
	FeedbackPolarity string // "positive" or "negative" for feedback types
	DetectedTone     string
	Intensity        Intensity
	IsHookOnly       bool
	CleanedMessage   string
	Confidence       float64
	MatchedPattern   string
}

type pattern struct {
	name string
	re   *regexp.Regexp
}

// Trigger lists. First match wins within a class; class priority is
// copy > generate > redo > positive > negative.
var (
	copyPatterns = []pattern{
		{"copy_this", regexp.MustCompile(`(?i)\bcopy\s+(this|that|it)\b`)},
		{"copy_verbatim", regexp.MustCompile(`(?i)\b(word\s+for\s+word|verbatim|transcribe)\b`)},
		{"copy_bare", regexp.MustCompile(`(?i)^\s*copy\b`)},
	}

	generatePatterns = []pattern{
		{"generate", regexp.MustCompile(`(?i)\b(generate|regen(?:erate)?\s+from\s+scratch)\b`)},
		{"instant", regexp.MustCompile(`(?i)\binstant\b`)},
		{"go_ahead", regexp.MustCompile(`(?i)\b(go\s+ahead|just\s+make\s+it|create\s+(it|one))\b`)},
		{"surprise", regexp.MustCompile(`(?i)\b(surprise\s+me|you\s+(choose|pick|decide))\b`)},
	}

	redoPatterns = []pattern{
		{"redo", regexp.MustCompile(`(?i)\b(redo|re-do|regenerate)\b`)},
		{"another", regexp.MustCompile(`(?i)\b(another\s+(one|version)|one\s+more|try\s+again|new\s+version)\b`)},
		{"again_bare", regexp.MustCompile(`(?i)^\s*again\b`)},
	}

	positivePatterns = []pattern{
		{"praise", regexp.MustCompile(`(?i)\b(love\s+(it|this)|perfect|amazing|awesome|great\s+job|nailed\s+it|so\s+good)\b`)},
		{"emoji_positive", regexp.MustCompile(`[\x{1F525}\x{2764}\x{1F60D}\x{1F44D}\x{1F4AF}]`)},
	}

	negativePatterns = []pattern{
		{"dislike", regexp.MustCompile(`(?i)\b(don'?t\s+like|not\s+(good|great|it)|hate\s+(it|this)|too\s+generic|try\s+harder)\b`)},
		{"emoji_negative", regexp.MustCompile(`[\x{1F44E}\x{1F612}]`)},
	}
)

// Modifier lists.
var (
	tonePatterns = []pattern{
		{"funny", regexp.MustCompile(`(?i)\b(funny|humorous|playful)\b`)},
		{"casual", regexp.MustCompile(`(?i)\b(casual|chill|laid[-\s]?back)\b`)},
		{"serious", regexp.MustCompile(`(?i)\bserious\b`)},
		{"professional", regexp.MustCompile(`(?i)\b(professional|formal)\b`)},
		{"energetic", regexp.MustCompile(`(?i)\b(energetic|hype|high[-\s]?energy)\b`)},
		{"dramatic", regexp.MustCompile(`(?i)\bdramatic\b`)},
		{"inspirational", regexp.MustCompile(`(?i)\b(inspirational|motivational)\b`)},
	}

	intensityLiteRe = regexp.MustCompile(`(?i)\b(lite\s+version|keep\s+it\s+(light|lite|simple)|quick\s+version)\b`)
	intensityDeepRe = regexp.MustCompile(`(?i)\b(deep\s+dive|in[-\s]?depth|detailed\s+version|go\s+deep)\b`)

	hookOnlyRe = regexp.MustCompile(`(?i)\b(hook\s+only|just\s+the\s+hook|only\s+the\s+hook)\b`)

	urlRe        = regexp.MustCompile(`https?://[^\s]+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Parse classifies an utterance. It never errors; unclassifiable input comes
// back as TypeUnknown.
func Parse(message string) Result {
	res := Result{Intensity: IntensityMedium}
	working := message

	// Modifiers first so their tokens never count toward trigger matching
	// or "substantial content".
	for _, p := range tonePatterns {
		if p.re.MatchString(working) {
			res.DetectedTone = p.name
			working = p.re.ReplaceAllString(working, " ")
			break
		}
	}
	if intensityLiteRe.MatchString(working) {
		res.Intensity = IntensityLite
		working = intensityLiteRe.ReplaceAllString(working, " ")
	} else if intensityDeepRe.MatchString(working) {
		res.Intensity = IntensityDeep
		working = intensityDeepRe.ReplaceAllString(working, " ")
	}
	if hookOnlyRe.MatchString(working) {
		res.IsHookOnly = true
		working = hookOnlyRe.ReplaceAllString(working, " ")
	}

	classes := []struct {
		typ      Type
		patterns []pattern
		conf     float64
	}{
		{TypeCopy, copyPatterns, 0.95},
		{TypeGenerate, generatePatterns, 0.9},
		{TypeRedo, redoPatterns, 0.9},
		{TypePositive, positivePatterns, 0.8},
		{TypeNegative, negativePatterns, 0.8},
	}
	for _, c := range classes {
		for _, p := range c.patterns {
			if p.re.MatchString(working) {
				res.Type = c.typ
				res.Confidence = c.conf
				res.MatchedPattern = p.name
				working = p.re.ReplaceAllString(working, " ")
				res.CleanedMessage = clean(working)
				applyFlags(&res)
				return res
			}
		}
	}

	res.CleanedMessage = clean(working)
	if utf8.RuneCountInString(res.CleanedMessage) > 3 {
		res.Type = TypeIdea
		res.Confidence = 0.6
	} else {
		res.Type = TypeUnknown
		res.Confidence = 0.1
	}
	return res
}

// ParseWithURL extracts an embedded URL and parses the remainder, so
// "<url> generate" and a bare "generate" with the URL supplied separately
// classify identically.
func ParseWithURL(message string) (Result, string) {
	url := urlRe.FindString(message)
	rest := message
	if url != "" {
		rest = urlRe.ReplaceAllString(message, " ")
	}
	return Parse(rest), url
}

func applyFlags(res *Result) {
	switch res.Type {
	case TypeCopy:
		res.IsCopyFlow = true
		res.IsInstantFlow = true
	case TypeGenerate:
		res.IsInstantFlow = true
	case TypeRedo:
		res.IsRedo = true
	case TypePositive:
		res.FeedbackPolarity = "positive"
	case TypeNegative:
		res.FeedbackPolarity = "negative"
	}
}

func clean(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
