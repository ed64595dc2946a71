package bundle

import (
	"crypto/sha256"
	"encoding/base64"
)

// Fingerprint identifies a token in logs and dumps without revealing it.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(hash[:])[:16]
}

// Fingerprint returns the fingerprint of the access token.
func (b *TokenBundle) Fingerprint() string {
	return Fingerprint(b.AccessToken)
}
