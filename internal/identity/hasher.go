// ABOUTME: Password hashing for account credentials using bcrypt
// ABOUTME: Raw credentials only pass through here and are never stored or logged

package identity

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/2389/tower-gateway/internal/fault"
)

// dummyHash is compared against when no account matches, so a login for an
// unknown email costs the same as one for a known email.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Hasher turns raw credentials into stored hashes and checks them.
type Hasher interface {
	Hash(raw string) (string, error)
	// Compare returns nil when raw matches hash.
	Compare(hash, raw string) error
}

// BcryptHasher implements Hasher with golang.org/x/crypto/bcrypt.
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher returns a hasher using cost, or bcrypt.DefaultCost when cost is 0.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{Cost: cost}
}

// Hash hashes raw with the configured cost.
func (h *BcryptHasher) Hash(raw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), h.Cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", fault.Wrap(fault.Validation, "password is too long", err)
	}
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// Compare checks raw against hash.
func (h *BcryptHasher) Compare(hash, raw string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrInvalidCredentials
	}
	return err
}
