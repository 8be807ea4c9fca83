package apitest

import (
	"crypto/sha256"

	"golang.org/x/crypto/bcrypt"
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	// Generate Hash from password
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks
	Compare(hashedPassword string, password string) error
}

// Bcrypt password hasher
// Will be used as default one if user not provide it's own
// Password is pre-hashed with sha256 so bcrypt 72 bytes limit never truncates it
type BcryptHasher struct {
	// bcrypt.DefaultCost if zero
	Cost int
}

func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	sum := sha256.Sum256([]byte(password))
	hash, err := bcrypt.GenerateFromPassword(sum[:], cost)
	return string(hash), err
}

func (h BcryptHasher) Compare(hashedPassword string, password string) error {
	sum := sha256.Sum256([]byte(password))
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), sum[:])
}
