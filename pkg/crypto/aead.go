// aead.go implements the per-direction authenticated encryption engine.
//
// Each direction of a session owns one AEAD keyed by its directional
// session key. The nonce derives from a strictly incrementing 64-bit
// counter, never from randomness, so nonce reuse under one key is
// structurally impossible. The counter is serialized big-endian as the
// first 8 bytes of the envelope and doubles as additional authenticated
// data, binding the ciphertext to its position in the stream:
//
//	envelope = counter (8B BE) || ChaCha20-Poly1305(key, nonce(counter), plaintext, aad=counter)
//
// The receive side accepts a counter only if it is strictly greater than
// the highest counter previously accepted on that direction. Over an
// ordered, reliable byte stream any non-monotonic counter is a replay or a
// desynchronized peer; both are unrecoverable, so the failure is fatal.
package crypto

import (
	"crypto/cipher"
	"encoding/binary"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/mkorchagin/guestlink/internal/constants"
	glerrors "github.com/mkorchagin/guestlink/internal/errors"
)

// SealCipher encrypts outbound traffic for one direction.
type SealCipher struct {
	aead cipher.AEAD

	mu      sync.Mutex
	counter uint64
}

// OpenCipher decrypts inbound traffic for one direction and enforces the
// replay-protection invariant.
type OpenCipher struct {
	aead cipher.AEAD

	mu sync.Mutex
	// highest counter accepted so far; the zero value together with the
	// accepted flag admits the very first message at counter 0
	highest  uint64
	accepted bool
}

// NewSealCipher creates the outbound cipher for one direction.
// The counter starts at 0 at session establishment.
func NewSealCipher(key []byte) (*SealCipher, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	return &SealCipher{aead: aead}, nil
}

// NewOpenCipher creates the inbound cipher for one direction.
func NewOpenCipher(key []byte) (*OpenCipher, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	return &OpenCipher{aead: aead}, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != constants.SessionKeySize {
		return nil, glerrors.ErrInvalidKeySize
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, glerrors.NewCryptoError("NewAEAD", err)
	}
	return aead, nil
}

// Seal encrypts plaintext into an envelope and returns it together with
// the counter used. The counter increments by exactly one per call.
func (c *SealCipher) Seal(plaintext []byte) ([]byte, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.counter == ^uint64(0) {
		return nil, 0, glerrors.ErrNonceExhausted
	}
	seq := c.counter
	c.counter++

	var nonce [constants.AEADNonceSize]byte
	binary.BigEndian.PutUint64(nonce[4:], seq)

	envelope := make([]byte, constants.CounterSize, constants.CounterSize+len(plaintext)+constants.AEADTagSize)
	binary.BigEndian.PutUint64(envelope, seq)

	envelope = c.aead.Seal(envelope, nonce[:], plaintext, envelope[:constants.CounterSize])
	return envelope, seq, nil
}

// Counter returns the number of messages sealed so far.
func (c *SealCipher) Counter() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counter
}

// Open authenticates and decrypts an envelope, returning the plaintext and
// the message counter. It fails with ErrReplayDetected for any counter not
// strictly greater than the highest previously accepted, and with
// ErrAuthenticationFailed for a tag mismatch. The highest-accepted state
// only advances on successful decryption, so a forged counter cannot
// poison the window.
func (c *OpenCipher) Open(envelope []byte) ([]byte, uint64, error) {
	if len(envelope) < constants.MinEnvelopeSize {
		return nil, 0, glerrors.ErrCiphertextTooShort
	}

	seq := binary.BigEndian.Uint64(envelope[:constants.CounterSize])

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accepted && seq <= c.highest {
		return nil, 0, glerrors.ErrReplayDetected
	}

	var nonce [constants.AEADNonceSize]byte
	binary.BigEndian.PutUint64(nonce[4:], seq)

	plaintext, err := c.aead.Open(nil, nonce[:], envelope[constants.CounterSize:], envelope[:constants.CounterSize])
	if err != nil {
		return nil, 0, glerrors.ErrAuthenticationFailed
	}

	c.highest = seq
	c.accepted = true
	return plaintext, seq, nil
}

// Highest returns the highest accepted counter and whether any message has
// been accepted yet.
func (c *OpenCipher) Highest() (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.highest, c.accepted
}
