// Package scriptfmt is the pure text layer for speaking scripts: the
// canonical [HOOK]/[BODY]/[CTA] layout, the copy-mode allocation rule, and
// the fallback skeleton. No I/O.
package scriptfmt

import (
	"fmt"
	"regexp"
	"strings"
)

// Sections is a script split into its canonical parts.
type Sections struct {
	Hook string
	Body string
	CTA  string
}

var (
	sectionRe  = regexp.MustCompile(`(?i)\[(HOOK|BODY|CTA)\]`)
	sentenceRe = regexp.MustCompile(`[^.!?\n]+[.!?]*`)
)

// Parse splits a script on its section markers. Text before the first
// marker, or a script with no markers at all, lands in Body.
func Parse(script string) Sections {
	var s Sections
	locs := sectionRe.FindAllStringSubmatchIndex(script, -1)
	if len(locs) == 0 {
		s.Body = strings.TrimSpace(script)
		return s
	}
	if lead := strings.TrimSpace(script[:locs[0][0]]); lead != "" {
		s.Body = lead
	}
	for i, loc := range locs {
		name := strings.ToUpper(script[loc[2]:loc[3]])
		end := len(script)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		content := strings.TrimSpace(script[loc[1]:end])
		switch name {
		case "HOOK":
			s.Hook = content
		case "BODY":
			s.Body = content
		case "CTA":
			s.CTA = content
		}
	}
	return s
}

// Render reassembles sections into the canonical layout.
func Render(s Sections) string {
	var b strings.Builder
	b.WriteString("[HOOK]\n")
	b.WriteString(s.Hook)
	b.WriteString("\n\n[BODY]\n")
	b.WriteString(s.Body)
	b.WriteString("\n\n[CTA]\n")
	b.WriteString(s.CTA)
	return b.String()
}

// SplitSentences breaks text into trimmed sentences.
func SplitSentences(text string) []string {
	var out []string
	for _, m := range sentenceRe.FindAllString(text, -1) {
		if t := strings.TrimSpace(m); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// FormatCopy lays out a transcript in the canonical sections using the
// deterministic allocation rule: with 3 sentences or fewer the first is the
// hook and the last the CTA; otherwise the first 20% open, the last 20%
// close, and the middle is the body.
func FormatCopy(transcript string, sceneSummaries, visualCues []string) string {
	sentences := SplitSentences(transcript)
	if len(sentences) == 0 {
		sentences = sceneSummaries
	}
	var s Sections
	switch n := len(sentences); {
	case n == 0:
		// nothing usable, fall back to cues alone
	case n == 1:
		s.Hook = sentences[0]
	case n <= 3:
		s.Hook = sentences[0]
		s.CTA = sentences[n-1]
		s.Body = strings.Join(sentences[1:n-1], " ")
	default:
		head := n / 5
		if head == 0 {
			head = 1
		}
		s.Hook = strings.Join(sentences[:head], " ")
		s.CTA = strings.Join(sentences[n-head:], " ")
		s.Body = strings.Join(sentences[head:n-head], " ")
	}
	if len(visualCues) > 0 {
		note := "(On screen: " + strings.Join(visualCues, ", ") + ")"
		if s.Body == "" {
			s.Body = note
		} else {
			s.Body += "\n" + note
		}
	}
	return Render(s)
}

// Fallback is the deterministic script skeleton delivered when every
// attempt failed. It embeds the creator's idea so the conversation never
// dead-ends.
func Fallback(idea string) string {
	idea = strings.TrimSpace(idea)
	if idea == "" {
		idea = "your next video"
	}
	return Render(Sections{
		Hook: fmt.Sprintf("Stop scrolling. Here's the one thing you need to know about %s.", idea),
		Body: fmt.Sprintf("We couldn't analyze your reference video this time, so here's a starting skeleton. "+
			"Open with the problem your audience has around %s, share the single most surprising thing you know about it, "+
			"then back it up with one concrete example from your own experience.", idea),
		CTA: "Follow for the full breakdown, and drop a comment with the part you want next.",
	})
}

// Summary extracts a short steering summary from a script: the first hook
// line plus the first body line, truncated.
func Summary(script string, maxLen int) string {
	s := Parse(script)
	parts := []string{}
	if line := firstLine(s.Hook); line != "" {
		parts = append(parts, line)
	}
	if line := firstLine(s.Body); line != "" {
		parts = append(parts, line)
	}
	out := strings.Join(parts, " / ")
	if maxLen > 0 && len(out) > maxLen {
		out = out[:maxLen]
	}
	return out
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			return t
		}
	}
	return ""
}
