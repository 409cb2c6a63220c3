// Package secret produces the random values the application depends on:
// the process-wide session signing key, CSRF tokens and generated passwords.
package secret

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// SigningKeySize is the length in bytes of the session signing key.
const SigningKeySize = 32

// Reader is the entropy source. Tests may swap it.
var Reader io.Reader = rand.Reader

// Bytes returns n bytes read from Reader.
func Bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(Reader, b); err != nil {
		return nil, fmt.Errorf("read %d random bytes: %w", n, err)
	}
	return b, nil
}

// Hex returns n random bytes, hex encoded (2n characters).
func Hex(n int) (string, error) {
	b, err := Bytes(n)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// NewSigningKey generates the key that signs session cookies. It is made
// once at process start, held in memory only, and rotated by restarting.
func NewSigningKey() ([]byte, error) {
	return Bytes(SigningKeySize)
}
