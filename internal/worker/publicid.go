package worker

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"regexp"

	"github.com/reelscript/reelscript/internal/store"
)

var publicIDRe = regexp.MustCompile(`^[A-Za-z0-9_-]{6,12}$`)

// ValidPublicID reports whether s is a well-formed public script id.
func ValidPublicID(s string) bool { return publicIDRe.MatchString(s) }

const mintAttempts = 5

// MintPublicID draws 48 random bits and encodes them URL-safe, retrying on
// the unlikely collision.
func MintPublicID(ctx context.Context, scripts store.Scripts) (string, error) {
	for i := 0; i < mintAttempts; i++ {
		var buf [6]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return "", err
		}
		id := base64.RawURLEncoding.EncodeToString(buf[:])
		exists, err := scripts.PublicIDExists(ctx, id)
		if err != nil {
			return "", err
		}
		if !exists {
			return id, nil
		}
	}
	return "", fmt.Errorf("public id space exhausted after %d attempts", mintAttempts)
}
