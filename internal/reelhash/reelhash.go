// Package reelhash computes the canonical URL form and the two cache keys
// used by the script pipeline. All functions are pure.
package reelhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// keyVersion prefixes the tier-2 tuple so later tuple extensions cannot
// collide with keys minted by this scheme.
const keyVersion = "rq2"

// Canonical returns the stable representation of a reel URL: query
// parameters stripped, trailing slash removed, plural path segment
// normalized. Unparseable input is returned unchanged.
func Canonical(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return raw
	}
	u.RawQuery = ""
	u.Fragment = ""
	path := strings.ReplaceAll(u.Path, "/reels/", "/reel/")
	path = strings.TrimSuffix(path, "/")
	u.Path = path
	return u.String()
}

// ReelHash is the tier-1 cache key: SHA-256 over the canonical URL.
func ReelHash(canonicalURL string) string {
	sum := sha256.Sum256([]byte(canonicalURL))
	return hex.EncodeToString(sum[:])
}

// RequestHash is the tier-2 cache key over the full request tuple. The idea
// is lowercased and trimmed so cosmetic differences share a cache line.
func RequestHash(subscriberID, canonicalURL, idea string, variation int, mode string) string {
	normIdea := strings.ToLower(strings.TrimSpace(idea))
	tuple := fmt.Sprintf("%s:%s|%s|%s|%d|%s", keyVersion, subscriberID, canonicalURL, normIdea, variation, mode)
	sum := sha256.Sum256([]byte(tuple))
	return hex.EncodeToString(sum[:])
}

// NormalizeIdea exposes the idea normalization used inside RequestHash so
// the variation counter keys agree with the cache keys.
func NormalizeIdea(idea string) string {
	return strings.ToLower(strings.TrimSpace(idea))
}
