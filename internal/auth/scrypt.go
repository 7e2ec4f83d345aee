// Package auth hashes and verifies account passwords.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"

	"github.com/dkeye/roomcast/internal/core"
)

const (
	SaltSize = 16
	KeySize  = 64
	// EncodedSize is the length of a stored hash: base64 of salt followed by key.
	EncodedSize = (SaltSize + KeySize + 2) / 3 * 4
)

// Scrypt implements core.Authenticator. The zero value uses N=32768, r=8, p=1.
type Scrypt struct {
	N, R, P int
	rand    io.Reader
}

var _ core.Authenticator = (*Scrypt)(nil)

func NewScrypt() *Scrypt {
	return &Scrypt{N: 1 << 15, R: 8, P: 1}
}

func (s *Scrypt) params() (n, r, p int) {
	n, r, p = s.N, s.R, s.P
	if n == 0 {
		n = 1 << 15
	}
	if r == 0 {
		r = 8
	}
	if p == 0 {
		p = 1
	}
	return n, r, p
}

func (s *Scrypt) derive(raw string, salt []byte) ([]byte, error) {
	n, r, p := s.params()
	return scrypt.Key([]byte(raw), salt, n, r, p, KeySize)
}

// Hash returns base64(salt || key) for a fresh random salt.
func (s *Scrypt) Hash(raw string) (string, error) {
	src := s.rand
	if src == nil {
		src = rand.Reader
	}
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(src, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key, err := s.derive(raw, salt)
	if err != nil {
		return "", fmt.Errorf("derive key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(append(salt, key...)), nil
}

// Verify reports whether raw matches encoded. Malformed input never matches.
func (s *Scrypt) Verify(raw, encoded string) bool {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(data) != SaltSize+KeySize {
		return false
	}
	key, err := s.derive(raw, data[:SaltSize])
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(key, data[SaltSize:]) == 1
}
