package security

import "golang.org/x/crypto/bcrypt"

// PasswordHasher is the one-way password transform used at registration
// and reset time.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) bool
}

// BcryptHasher hashes with bcrypt; the per-call salt is embedded in the
// produced hash and the cost factor keeps brute force expensive.
type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify reports whether password reproduces hash. Malformed or
// foreign-scheme hashes verify as false, never as an error.
func (h *BcryptHasher) Verify(password string, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
