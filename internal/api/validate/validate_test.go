package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscriberID(t *testing.T) {
	assert.NoError(t, SubscriberID("12345"))
	assert.NoError(t, SubscriberID("99999999999999999999"))
	assert.Error(t, SubscriberID("abc123"))
	assert.Error(t, SubscriberID(""))
	assert.Error(t, SubscriberID("12 34"))
}

func TestReelURLHosts(t *testing.T) {
	assert.NoError(t, ReelURL("https://www.instagram.com/reel/AbC123"))
	assert.NoError(t, ReelURL("https://instagram.com/reels/AbC123/"))
	assert.NoError(t, ReelURL("https://m.instagram.com/reel/x_y-Z"))

	// a non-supported host is rejected even with a matching path
	assert.Error(t, ReelURL("https://evil.example.com/reel/AbC123"))
	assert.Error(t, ReelURL("http://www.instagram.com/reel/AbC123"))
	assert.Error(t, ReelURL("https://www.instagram.com/p/AbC123"))
	assert.Error(t, ReelURL("not a url at all ://"))
}

func TestUserIdeaBoundaries(t *testing.T) {
	assert.Error(t, UserIdea(strings.Repeat("a", 3)))
	assert.NoError(t, UserIdea(strings.Repeat("a", 4)))
	assert.NoError(t, UserIdea(strings.Repeat("a", 500)))
	assert.Error(t, UserIdea(strings.Repeat("a", 501)))
}

func TestUserIdeaStructuralChars(t *testing.T) {
	for _, bad := range []string{"make it <b>bold</b>", "idea {x}", "tick ` injection", "a > b idea"} {
		assert.Error(t, UserIdea(bad), "input %q", bad)
	}
	assert.NoError(t, UserIdea("plain idea about cooking"))
}

func TestCoercePlaceholder(t *testing.T) {
	assert.Equal(t, "", CoercePlaceholder("{{user_idea}}"))
	assert.Equal(t, "", CoercePlaceholder("{{ last_input }}"))
	assert.Equal(t, "real idea", CoercePlaceholder("real idea"))
	assert.Equal(t, "a {{x}} b", CoercePlaceholder("a {{x}} b"))
}

func TestOptionalEnums(t *testing.T) {
	assert.NoError(t, ToneHint(""))
	assert.NoError(t, ToneHint("funny"))
	assert.Error(t, ToneHint("sarcastic"))

	assert.NoError(t, Mode(""))
	assert.NoError(t, Mode("full"))
	assert.NoError(t, Mode("hook_only"))
	assert.Error(t, Mode("carousel"))

	assert.NoError(t, LanguageHint("Spanish"))
	assert.Error(t, LanguageHint("es-419"))
	assert.Error(t, LanguageHint(strings.Repeat("a", 51)))
}
