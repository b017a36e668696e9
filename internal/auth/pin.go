package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidPIN is returned by Verify when the PIN does not match.
var ErrInvalidPIN = errors.New("auth: invalid pin")

// defaultCost is the bcrypt work factor used outside tests.
const defaultCost = 12

// PINHasher hashes and checks account PINs with bcrypt.
type PINHasher struct {
	cost int
}

func NewPINHasher() *PINHasher {
	return &PINHasher{cost: defaultCost}
}

// NewPINHasherForTest takes an explicit cost; pass bcrypt.MinCost (4) to
// keep tests fast. Never use a low cost in production.
func NewPINHasherForTest(cost int) *PINHasher {
	return &PINHasher{cost: cost}
}

// Hash returns the bcrypt hash of pin. bcrypt ignores input past 72 bytes,
// so longer values are rejected rather than silently truncated.
func (h *PINHasher) Hash(pin string) (string, error) {
	if pin == "" {
		return "", errors.New("auth: pin must not be empty")
	}
	if len(pin) > 72 {
		return "", errors.New("auth: pin must be 72 bytes or fewer")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(pin), h.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing pin: %w", err)
	}
	return string(hashed), nil
}

// Verify returns nil when pin matches hash and ErrInvalidPIN when it does
// not. Any other error means the stored hash is unusable.
func (h *PINHasher) Verify(hash, pin string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidPIN
		}
		return fmt.Errorf("auth: comparing pin hash: %w", err)
	}
	return nil
}
