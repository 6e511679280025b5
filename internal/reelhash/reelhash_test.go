package reelhash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalStripsQueryAndSlash(t *testing.T) {
	got := Canonical("https://www.instagram.com/reel/AbC/?utm_source=share&igsh=1")
	assert.Equal(t, "https://www.instagram.com/reel/AbC", got)
}

func TestCanonicalNormalizesPluralSegment(t *testing.T) {
	got := Canonical("https://www.instagram.com/reels/AbC123/")
	assert.Equal(t, "https://www.instagram.com/reel/AbC123", got)
}

func TestCanonicalIdempotent(t *testing.T) {
	cases := []string{
		"https://www.instagram.com/reel/AbC/?utm=1",
		"https://www.instagram.com/reels/xyz",
		"https://instagram.com/reel/a_b-c",
	}
	for _, raw := range cases {
		once := Canonical(raw)
		assert.Equal(t, once, Canonical(once), raw)
	}
}

func TestCanonicalUnparseableReturnsInput(t *testing.T) {
	assert.Equal(t, "not a url", Canonical("not a url"))
	assert.Equal(t, "://bad", Canonical("://bad"))
}

func TestRequestHashStable(t *testing.T) {
	a := RequestHash("12345", "https://www.instagram.com/reel/AbC", "Make it about coding", 0, "full")
	b := RequestHash("12345", "https://www.instagram.com/reel/AbC", "  make it ABOUT coding ", 0, "full")
	assert.Equal(t, a, b, "idea normalization must be case-insensitive and trimmed")
	require.Len(t, a, 64)
}

func TestRequestHashTupleSensitivity(t *testing.T) {
	base := RequestHash("12345", "https://x/reel/a", "idea", 0, "full")
	assert.NotEqual(t, base, RequestHash("12346", "https://x/reel/a", "idea", 0, "full"))
	assert.NotEqual(t, base, RequestHash("12345", "https://x/reel/b", "idea", 0, "full"))
	assert.NotEqual(t, base, RequestHash("12345", "https://x/reel/a", "other", 0, "full"))
	assert.NotEqual(t, base, RequestHash("12345", "https://x/reel/a", "idea", 1, "full"))
	assert.NotEqual(t, base, RequestHash("12345", "https://x/reel/a", "idea", 0, "hook_only"))
}

func TestReelHashDiffersFromRequestHash(t *testing.T) {
	u := "https://www.instagram.com/reel/AbC"
	assert.NotEqual(t, ReelHash(u), RequestHash("1", u, "", 0, "full"))
}
