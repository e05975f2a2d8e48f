package common

import (
	"crypto/rand"
	"encoding/base64"
)

// RandomURLString returns size random bytes encoded as unpadded base64url.
// Used for OAuth state values and PKCE verifiers.
func RandomURLString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
