package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
)

const opaqueTokenBytes = 32

// newOpaqueToken returns a random URL-safe token and the digest under which
// it is stored. The raw value never reaches the database.
func newOpaqueToken() (string, string, error) {
	raw := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	token := base64.RawURLEncoding.EncodeToString(raw)
	return token, digestToken(token), nil
}

func digestToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
