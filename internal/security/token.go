package security

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"

	"github.com/google/uuid"
)

// TokenGenerator produces opaque reset token values.
type TokenGenerator interface {
	Generate() (string, error)
}

// ResetTokenGenerator concatenates a random 128-bit identifier with 32
// bytes from crypto/rand, so every value carries at least 256 bits of
// entropy and collisions are negligible without any history check.
type ResetTokenGenerator struct{}

func NewResetTokenGenerator() *ResetTokenGenerator {
	return &ResetTokenGenerator{}
}

func (g *ResetTokenGenerator) Generate() (string, error) {
	id := uuid.New()

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return hex.EncodeToString(id[:]) + base64.RawURLEncoding.EncodeToString(buf), nil
}
