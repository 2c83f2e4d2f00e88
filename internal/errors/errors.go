// Package errors defines the error taxonomy for the guestlink channel.
// Fatal errors tear down the session and transport; recoverable errors are
// reported to the peer or the caller and never close the connection.
// Messages deliberately avoid leaking key material or token contents.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for framing
var (
	// ErrBadMagic indicates the frame header magic did not match
	ErrBadMagic = errors.New("frame: bad magic")

	// ErrBadVersion indicates an unsupported frame protocol version
	ErrBadVersion = errors.New("frame: unsupported version")

	// ErrFrameTooLarge indicates the header length exceeds the configured maximum
	ErrFrameTooLarge = errors.New("frame: length exceeds maximum")

	// ErrShortFrame indicates a truncated header or payload
	ErrShortFrame = errors.New("frame: truncated")
)

// Sentinel errors for the handshake
var (
	// ErrHandshakeFailed indicates the key exchange failed
	ErrHandshakeFailed = errors.New("handshake: failed")

	// ErrBadAuthProof indicates the AuthToken proof did not verify
	ErrBadAuthProof = errors.New("handshake: auth proof mismatch")

	// ErrBadKeyMaterial indicates malformed peer key material
	ErrBadKeyMaterial = errors.New("handshake: malformed key material")

	// ErrHandshakeTimeout indicates the peer did not complete in time
	ErrHandshakeTimeout = errors.New("handshake: timed out")

	// ErrBadConfirm indicates the key-confirmation MAC did not verify
	ErrBadConfirm = errors.New("handshake: key confirmation mismatch")
)

// Sentinel errors for encryption
var (
	// ErrAuthenticationFailed indicates AEAD authentication failed
	ErrAuthenticationFailed = errors.New("aead: authentication failed")

	// ErrReplayDetected indicates a non-monotonic message counter
	ErrReplayDetected = errors.New("aead: replay detected")

	// ErrCiphertextTooShort indicates the envelope is too short to be valid
	ErrCiphertextTooShort = errors.New("aead: ciphertext too short")

	// ErrNonceExhausted indicates the 64-bit counter space ran out
	ErrNonceExhausted = errors.New("aead: nonce space exhausted")

	// ErrInvalidKeySize indicates a key of the wrong length
	ErrInvalidKeySize = errors.New("crypto: invalid key size")
)

// Sentinel errors for dispatch
var (
	// ErrRateLimited indicates the peer exceeded the inbound message budget;
	// recoverable, reported back as an error response
	ErrRateLimited = errors.New("channel: rate limited")

	// ErrUnknownCommand indicates no handler is registered for the command;
	// recoverable, reported back as an error response
	ErrUnknownCommand = errors.New("channel: unknown command")

	// ErrTimeout indicates a pending request exceeded its deadline;
	// retry policy belongs to the caller
	ErrTimeout = errors.New("channel: request timed out")

	// ErrChannelClosed indicates the transport was closed; all in-flight
	// requests resolve with this error
	ErrChannelClosed = errors.New("channel: closed")

	// ErrInvalidState indicates an operation in the wrong session state
	ErrInvalidState = errors.New("channel: invalid state")

	// ErrInvalidEnvelope indicates a malformed command or response envelope
	ErrInvalidEnvelope = errors.New("protocol: invalid envelope")

	// ErrEnvelopeTooLarge indicates an envelope field exceeds its bound
	ErrEnvelopeTooLarge = errors.New("protocol: envelope too large")
)

// CryptoError wraps a cryptographic error with the failing operation.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}

// NewCryptoError creates a new CryptoError.
func NewCryptoError(op string, err error) *CryptoError {
	return &CryptoError{Op: op, Err: err}
}

// ProtocolError wraps a protocol error with the phase it occurred in
// (e.g. "handshake", "dispatch").
type ProtocolError struct {
	Phase string
	Err   error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol %s: %v", e.Phase, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// NewProtocolError creates a new ProtocolError.
func NewProtocolError(phase string, err error) *ProtocolError {
	return &ProtocolError{Phase: phase, Err: err}
}

// IsFatal reports whether err must tear down the session and transport.
// FramingError, HandshakeFailure and AuthenticationFailure variants are
// fatal; rate limiting, unknown commands and timeouts are not.
func IsFatal(err error) bool {
	switch {
	case errors.Is(err, ErrBadMagic),
		errors.Is(err, ErrBadVersion),
		errors.Is(err, ErrFrameTooLarge),
		errors.Is(err, ErrShortFrame),
		errors.Is(err, ErrHandshakeFailed),
		errors.Is(err, ErrBadAuthProof),
		errors.Is(err, ErrBadKeyMaterial),
		errors.Is(err, ErrHandshakeTimeout),
		errors.Is(err, ErrBadConfirm),
		errors.Is(err, ErrAuthenticationFailed),
		errors.Is(err, ErrReplayDetected),
		errors.Is(err, ErrCiphertextTooShort),
		errors.Is(err, ErrNonceExhausted):
		return true
	}
	return false
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
