package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCopyBeatsGenerate(t *testing.T) {
	// copy triggers outrank generate triggers even when both are present
	res := Parse("copy this, or maybe generate something")
	assert.Equal(t, TypeCopy, res.Type)
	assert.True(t, res.IsCopyFlow)
	assert.True(t, res.IsInstantFlow)
}

func TestParseGenerate(t *testing.T) {
	for _, msg := range []string{"generate", "just make it", "instant", "surprise me", "you pick"} {
		res := Parse(msg)
		assert.Equal(t, TypeGenerate, res.Type, "input %q", msg)
		assert.True(t, res.IsInstantFlow, "input %q", msg)
		assert.False(t, res.IsCopyFlow, "input %q", msg)
	}
}

func TestParseRedo(t *testing.T) {
	for _, msg := range []string{"redo", "one more", "try again", "again", "another version", "regenerate"} {
		res := Parse(msg)
		assert.Equal(t, TypeRedo, res.Type, "input %q", msg)
		assert.True(t, res.IsRedo, "input %q", msg)
	}
}

func TestParseFeedback(t *testing.T) {
	res := Parse("love it!")
	require.Equal(t, TypePositive, res.Type)
	assert.Equal(t, "positive", res.FeedbackPolarity)

	res = Parse("🔥")
	require.Equal(t, TypePositive, res.Type)
	assert.Equal(t, "emoji_positive", res.MatchedPattern)

	res = Parse("don't like it, too generic")
	require.Equal(t, TypeNegative, res.Type)
	assert.Equal(t, "negative", res.FeedbackPolarity)
}

func TestParseIdeaVsUnknown(t *testing.T) {
	res := Parse("morning routine for busy parents")
	require.Equal(t, TypeIdea, res.Type)
	assert.Equal(t, "morning routine for busy parents", res.CleanedMessage)

	// cleaned length of 3 runes or fewer is not substantial content
	for _, msg := range []string{"ok", "yes", "", "   ", "abc"} {
		res := Parse(msg)
		assert.Equal(t, TypeUnknown, res.Type, "input %q", msg)
	}
	res = Parse("abcd")
	assert.Equal(t, TypeIdea, res.Type)
}

func TestParseModifiers(t *testing.T) {
	res := Parse("generate, make it funny, go deep, hook only")
	assert.Equal(t, TypeGenerate, res.Type)
	assert.Equal(t, "funny", res.DetectedTone)
	assert.Equal(t, IntensityDeep, res.Intensity)
	assert.True(t, res.IsHookOnly)

	res = Parse("keep it light please")
	assert.Equal(t, IntensityLite, res.Intensity)

	// modifiers co-occur with ideas too
	res = Parse("casual coffee shop vlog")
	assert.Equal(t, TypeIdea, res.Type)
	assert.Equal(t, "casual", res.DetectedTone)
	assert.Equal(t, "coffee shop vlog", res.CleanedMessage)
}

func TestParseCleanedMessageDropsTriggers(t *testing.T) {
	res := Parse("generate a script about meal prep")
	assert.Equal(t, TypeGenerate, res.Type)
	assert.Equal(t, "a script about meal prep", res.CleanedMessage)
	assert.NotContains(t, res.CleanedMessage, "generate")
}

func TestParseIdeaReparseStable(t *testing.T) {
	// an idea's cleaned message reparses to the same idea
	first := Parse("three smoothie recipes under five minutes")
	require.Equal(t, TypeIdea, first.Type)
	second := Parse(first.CleanedMessage)
	assert.Equal(t, TypeIdea, second.Type)
	assert.Equal(t, first.CleanedMessage, second.CleanedMessage)
}

func TestParseDeterministic(t *testing.T) {
	msg := "copy this word for word 🔥"
	a := Parse(msg)
	b := Parse(msg)
	assert.Equal(t, a, b)
	assert.Equal(t, "copy_this", a.MatchedPattern)
}

func TestParseWithURL(t *testing.T) {
	res, url := ParseWithURL("https://www.instagram.com/reel/ABC123/ generate")
	assert.Equal(t, "https://www.instagram.com/reel/ABC123/", url)
	assert.Equal(t, TypeGenerate, res.Type)

	// equivalent to a bare trigger with the URL supplied separately
	bare := Parse("generate")
	assert.Equal(t, bare.Type, res.Type)
	assert.Equal(t, bare.IsInstantFlow, res.IsInstantFlow)

	res, url = ParseWithURL("no links here, just an idea about home workouts")
	assert.Empty(t, url)
	assert.Equal(t, TypeIdea, res.Type)
}
