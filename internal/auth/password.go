// Package auth provides password hashing for member credentials. Hashing is
// isolated behind a small interface so services can be tested with a cheap
// fake and so the cost parameter stays a deployment concern.
package auth

import "golang.org/x/crypto/bcrypt"

// PasswordHasher hashes and verifies member passwords.
type PasswordHasher interface {
	// Hash returns a one-way hash of the plaintext password.
	Hash(password string) (string, error)
	// Compare reports whether the plaintext password matches the stored hash.
	Compare(hash, password string) bool
}

// BcryptHasher implements PasswordHasher with golang.org/x/crypto/bcrypt.
type BcryptHasher struct {
	// Cost is the bcrypt work factor. Values below bcrypt.MinCost fall back
	// to bcrypt.DefaultCost.
	Cost int
}

// NewBcryptHasher returns a BcryptHasher with the given cost.
func NewBcryptHasher(cost int) *BcryptHasher {
	return &BcryptHasher{Cost: cost}
}

// Hash generates a bcrypt hash of password.
func (h *BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare checks password against a stored bcrypt hash.
func (h *BcryptHasher) Compare(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
