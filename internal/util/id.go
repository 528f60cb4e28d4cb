package util

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewID returns a random UUID, used for documents and users.
func NewID() string {
	return uuid.NewString()
}

// NewToken returns 32 random bytes hex-encoded, optionally prefixed.
func NewToken(prefix string) string {
	bytes := make([]byte, 32)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}
