package password

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used when none is configured.
const DefaultCost = 10

var ErrEmptySecret = errors.New("password: empty secret")

// Hasher defines the minimal hashing interface the auth service depends on.
type Hasher interface {
	Hash(secret string) (hash string, algo string, err error)
	Verify(secret, hash string) bool
}

// Codec is the bcrypt implementation of Hasher.
type Codec struct{ Cost int }

func NewCodec(cost int) Codec {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return Codec{Cost: cost}
}

func (c Codec) Hash(secret string) (string, string, error) {
	if secret == "" {
		return "", "", ErrEmptySecret
	}
	cost := c.Cost
	if cost == 0 {
		cost = DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", "", err
	}
	return string(h), fmt.Sprintf("bcrypt:%d", cost), nil
}

// Verify never fails loudly: a malformed hash is just a mismatch.
func (c Codec) Verify(secret, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// GenerateRandomSecret returns 32 random bytes, hex encoded.
func GenerateRandomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
