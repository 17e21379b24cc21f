// Package password hashes and verifies portal passwords with scrypt.
//
// Stored hashes look like "scrypt$<saltHex>$<derivedHex>". Records written
// before hashing was introduced hold the plaintext password and contain no
// delimiter; Verify still accepts those so pre-migration accounts can log in
// and pick up a real hash on their next password reset.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const (
	algorithm = "scrypt"
	delimiter = "$"
	saltLen   = 16
	keyLen    = 64
)

// Hasher derives keys with fixed scrypt cost parameters.
type Hasher struct {
	n, r, p int
}

// NewHasher returns a Hasher using N=16384, r=8, p=1.
func NewHasher() *Hasher {
	return &Hasher{n: 16384, r: 8, p: 1}
}

// NewHasherWithCost is for tests that cannot afford the default work factor.
// Hashes produced with a different cost do not verify under NewHasher.
func NewHasherWithCost(n, r, p int) *Hasher {
	return &Hasher{n: n, r: r, p: p}
}

// Hash returns a freshly salted scrypt hash of password.
func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	saltHex := hex.EncodeToString(salt)

	derived, err := h.derive(password, saltHex)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{algorithm, saltHex, hex.EncodeToString(derived)}, delimiter), nil
}

// Verify reports whether password matches stored.
func (h *Hasher) Verify(stored, password string) bool {
	if IsLegacy(stored) {
		return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1
	}

	parts := strings.Split(stored, delimiter)
	if len(parts) != 3 || parts[0] != algorithm || parts[1] == "" || parts[2] == "" {
		return false
	}
	want, err := hex.DecodeString(parts[2])
	if err != nil {
		return false
	}

	got, err := h.derive(password, parts[1])
	if err != nil {
		return false
	}
	// ConstantTimeCompare returns 0 for slices of different length.
	return subtle.ConstantTimeCompare(got, want) == 1
}

// IsLegacy reports whether stored is a pre-migration plaintext record.
func IsLegacy(stored string) bool {
	return !strings.Contains(stored, delimiter)
}

// derive uses the hex salt string itself as the scrypt salt, which is how
// existing records were produced.
func (h *Hasher) derive(password, saltHex string) ([]byte, error) {
	key, err := scrypt.Key([]byte(password), []byte(saltHex), h.n, h.r, h.p, keyLen)
	if err != nil {
		return nil, fmt.Errorf("scrypt: %w", err)
	}
	return key, nil
}
