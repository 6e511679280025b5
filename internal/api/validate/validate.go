// Package validate holds the ingress payload rules. All checks are pure.
package validate

import (
	"fmt"
	"net/url"
	"regexp"

	"github.com/reelscript/reelscript/internal/model"
)

const (
	MinIdeaLen     = 4
	MaxIdeaLen     = 500
	MaxFeedbackLen = 1000
	MaxLanguageLen = 50
)

var (
	subscriberRe  = regexp.MustCompile(`^[0-9]{1,20}$`)
	reelPathRe    = regexp.MustCompile(`^/reels?/[A-Za-z0-9_-]+/?$`)
	structuralRe  = regexp.MustCompile("[<>{}`]")
	placeholderRe = regexp.MustCompile(`^\{\{.*\}\}$`)
	languageRe    = regexp.MustCompile(`^[A-Za-z]+$`)

	// the supported host set for reel URLs
	allowedHosts = map[string]bool{
		"www.instagram.com": true,
		"instagram.com":     true,
		"m.instagram.com":   true,
		"instagr.am":        true,
	}

	allowedTones = map[string]bool{
		"professional": true,
		"funny":        true,
		"provocative":  true,
		"educational":  true,
		"casual":       true,
	}
)

// CoercePlaceholder maps an unresolved vendor placeholder ("{{...}}") to
// the empty string; applied to every field before validation.
func CoercePlaceholder(s string) string {
	if placeholderRe.MatchString(s) {
		return ""
	}
	return s
}

// SubscriberID checks the numeric vendor id format.
func SubscriberID(s string) error {
	if !subscriberRe.MatchString(s) {
		return fmt.Errorf("%w: subscriber_id must be numeric", model.ErrValidation)
	}
	return nil
}

// ReelURL checks scheme, host set, and the reel path shape.
func ReelURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: reel_url is not a valid URL", model.ErrValidation)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("%w: reel_url must use https", model.ErrValidation)
	}
	if !allowedHosts[u.Host] {
		return fmt.Errorf("%w: unsupported host %q", model.ErrValidation, u.Host)
	}
	if !reelPathRe.MatchString(u.Path) {
		return fmt.Errorf("%w: reel_url path must look like /reel/<id>", model.ErrValidation)
	}
	return nil
}

// UserIdea bounds the intent text and rejects structural injection
// characters.
func UserIdea(s string) error {
	if len(s) < MinIdeaLen {
		return fmt.Errorf("%w: user_idea must be at least %d characters", model.ErrValidation, MinIdeaLen)
	}
	if len(s) > MaxIdeaLen {
		return fmt.Errorf("%w: user_idea must be at most %d characters", model.ErrValidation, MaxIdeaLen)
	}
	if structuralRe.MatchString(s) {
		return fmt.Errorf("%w: user_idea contains unsupported characters", model.ErrValidation)
	}
	return nil
}

// ToneHint checks the optional tone enum.
func ToneHint(s string) error {
	if s == "" {
		return nil
	}
	if !allowedTones[s] {
		return fmt.Errorf("%w: unsupported tone_hint %q", model.ErrValidation, s)
	}
	return nil
}

// LanguageHint checks the optional letters-only language name.
func LanguageHint(s string) error {
	if s == "" {
		return nil
	}
	if len(s) > MaxLanguageLen || !languageRe.MatchString(s) {
		return fmt.Errorf("%w: language_hint must be letters only, at most %d characters", model.ErrValidation, MaxLanguageLen)
	}
	return nil
}

// Mode checks the optional generation mode enum.
func Mode(s string) error {
	if s == "" || s == model.ModeFull || s == model.ModeHookOnly {
		return nil
	}
	return fmt.Errorf("%w: unsupported mode %q", model.ErrValidation, s)
}

// Rating checks the optional 1..5 overall rating.
func Rating(r int) error {
	if r < 1 || r > 5 {
		return fmt.Errorf("%w: overall_rating must be between 1 and 5", model.ErrValidation)
	}
	return nil
}

// FeedbackText bounds the free-text feedback.
func FeedbackText(s string) error {
	if len(s) > MaxFeedbackLen {
		return fmt.Errorf("%w: feedback_text must be at most %d characters", model.ErrValidation, MaxFeedbackLen)
	}
	return nil
}
