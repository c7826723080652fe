package identity

import (
	"crypto/rand"
	"encoding/base64"
)

const secretBytes = 32

// GenerateSecret returns a URL-safe client secret from crypto/rand.
func GenerateSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
