// Package crypto provides the cryptographic primitives for the guestlink
// channel: X25519 ephemeral key agreement, HKDF session key derivation,
// HMAC-SHA256 token proofs, and ChaCha20-Poly1305 authenticated encryption.
//
// All random number generation uses crypto/rand, sourcing entropy from the
// operating system CSPRNG.
package crypto

import (
	"crypto/rand"
	"io"

	glerrors "github.com/mkorchagin/guestlink/internal/errors"
)

// SecureRandom fills b with cryptographically secure random bytes.
// An error here indicates a failing system CSPRNG and should be treated as
// a critical failure.
func SecureRandom(b []byte) error {
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return glerrors.NewCryptoError("SecureRandom", err)
	}
	return nil
}

// SecureRandomBytes returns n cryptographically secure random bytes.
func SecureRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if err := SecureRandom(b); err != nil {
		return nil, err
	}
	return b, nil
}

// MustSecureRandomBytes returns n cryptographically secure random bytes,
// panicking if the system CSPRNG fails.
func MustSecureRandomBytes(n int) []byte {
	b := make([]byte, n)
	if err := SecureRandom(b); err != nil {
		panic("crypto: failed to read from CSPRNG: " + err.Error())
	}
	return b
}

// Reader is an io.Reader yielding cryptographically secure random bytes.
var Reader = rand.Reader
