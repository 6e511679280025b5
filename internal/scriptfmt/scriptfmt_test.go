package scriptfmt

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	script := "[HOOK]\nStop scrolling.\n\n[BODY]\nThree tips.\nAnd a fourth.\n\n[CTA]\nFollow me."
	s := Parse(script)
	assert.Equal(t, "Stop scrolling.", s.Hook)
	assert.Equal(t, "Three tips.\nAnd a fourth.", s.Body)
	assert.Equal(t, "Follow me.", s.CTA)
	assert.Equal(t, s, Parse(Render(s)))
}

func TestParseNoMarkers(t *testing.T) {
	s := Parse("just some text without sections")
	assert.Empty(t, s.Hook)
	assert.Equal(t, "just some text without sections", s.Body)
	assert.Empty(t, s.CTA)
}

func TestParseCaseInsensitiveMarkers(t *testing.T) {
	s := Parse("[hook]\nA\n[body]\nB\n[cta]\nC")
	assert.Equal(t, "A", s.Hook)
	assert.Equal(t, "B", s.Body)
	assert.Equal(t, "C", s.CTA)
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("First one. Second one! Third?")
	require.Len(t, got, 3)
	assert.Equal(t, "First one.", got[0])
	assert.Equal(t, "Second one!", got[1])
	assert.Equal(t, "Third?", got[2])
}

func TestFormatCopyThreeSentences(t *testing.T) {
	out := FormatCopy("Watch this. Here is the middle. Follow now.", nil, nil)
	s := Parse(out)
	assert.Equal(t, "Watch this.", s.Hook)
	assert.Equal(t, "Here is the middle.", s.Body)
	assert.Equal(t, "Follow now.", s.CTA)
}

func TestFormatCopyTwentyPercentSplit(t *testing.T) {
	var parts []string
	for i := 1; i <= 10; i++ {
		parts = append(parts, fmt.Sprintf("Sentence %d.", i))
	}
	out := FormatCopy(strings.Join(parts, " "), nil, nil)
	s := Parse(out)
	assert.Equal(t, "Sentence 1. Sentence 2.", s.Hook)
	assert.Equal(t, "Sentence 9. Sentence 10.", s.CTA)
	assert.Contains(t, s.Body, "Sentence 3.")
	assert.Contains(t, s.Body, "Sentence 8.")
	assert.NotContains(t, s.Body, "Sentence 2.")
}

func TestFormatCopyFallsBackToScenes(t *testing.T) {
	out := FormatCopy("", []string{"Opening shot of a kitchen.", "Cooking montage.", "Plated dish."}, []string{"text overlay"})
	s := Parse(out)
	assert.Equal(t, "Opening shot of a kitchen.", s.Hook)
	assert.Contains(t, s.Body, "Cooking montage.")
	assert.Contains(t, s.Body, "On screen: text overlay")
	assert.Equal(t, "Plated dish.", s.CTA)
}

func TestFallbackEmbedsIdea(t *testing.T) {
	out := Fallback("meal prep for beginners")
	assert.Contains(t, out, "meal prep for beginners")
	assert.Contains(t, out, "[HOOK]")
	assert.Contains(t, out, "[CTA]")
	// deterministic
	assert.Equal(t, out, Fallback("meal prep for beginners"))
}

func TestSummaryTruncates(t *testing.T) {
	script := Render(Sections{Hook: "A very long hook line here", Body: "Body line", CTA: "x"})
	got := Summary(script, 12)
	assert.Len(t, got, 12)
	assert.True(t, strings.HasPrefix("A very long hook line here / Body line", got))
}
