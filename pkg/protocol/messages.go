// Package protocol defines the message types carried inside frames and
// their binary encoding.
//
// Handshake messages travel as plaintext frame payloads; command and
// response envelopes travel inside the session AEAD once the channel is
// established. Every message starts with a 1-byte type tag; the frame
// layer already delimits message boundaries, so no inner length header is
// needed.
package protocol

import (
	"github.com/mkorchagin/guestlink/internal/constants"
	glerrors "github.com/mkorchagin/guestlink/internal/errors"
)

// MessageType tags every protocol message.
type MessageType uint8

const (
	// Handshake messages
	MessageTypeHello        MessageType = 0x01
	MessageTypeAuthResponse MessageType = 0x02
	MessageTypeKeyExchange  MessageType = 0x03
	MessageTypeConfirm      MessageType = 0x04

	// Post-handshake envelopes
	MessageTypeRequest  MessageType = 0x10
	MessageTypeResponse MessageType = 0x11
	MessageTypeClose    MessageType = 0x1F
)

// String returns a human-readable name for the message type.
func (t MessageType) String() string {
	switch t {
	case MessageTypeHello:
		return "Hello"
	case MessageTypeAuthResponse:
		return "AuthResponse"
	case MessageTypeKeyExchange:
		return "KeyExchange"
	case MessageTypeConfirm:
		return "Confirm"
	case MessageTypeRequest:
		return "Request"
	case MessageTypeResponse:
		return "Response"
	case MessageTypeClose:
		return "Close"
	default:
		return "Unknown"
	}
}

// Status codes for response envelopes.
type Status uint8

const (
	// StatusOK marks a successful handler result
	StatusOK Status = 0

	// StatusError marks a handler-reported failure; the payload carries
	// the error text
	StatusError Status = 1

	// StatusRateLimited tells the sender its message was dropped by the
	// receiver's rate limiter
	StatusRateLimited Status = 2

	// StatusUnknownCommand tells the sender no handler is registered for
	// the requested command
	StatusUnknownCommand Status = 3
)

// Hello opens the key exchange. The challenge is fresh randomness the
// responder must bind into its token proof.
type Hello struct {
	Challenge []byte
}

// Validate checks field sizes.
func (m *Hello) Validate() error {
	if len(m.Challenge) != constants.ChallengeSize {
		return glerrors.ErrInvalidEnvelope
	}
	return nil
}

// AuthResponse proves possession of the AuthToken and carries the
// responder's ephemeral public key.
type AuthResponse struct {
	Proof     []byte
	PublicKey []byte
}

// Validate checks field sizes.
func (m *AuthResponse) Validate() error {
	if len(m.Proof) != constants.AuthProofSize {
		return glerrors.ErrInvalidEnvelope
	}
	if len(m.PublicKey) != constants.X25519KeySize {
		return glerrors.ErrInvalidEnvelope
	}
	return nil
}

// KeyExchange carries the initiator's ephemeral public key.
type KeyExchange struct {
	PublicKey []byte
}

// Validate checks field sizes.
func (m *KeyExchange) Validate() error {
	if len(m.PublicKey) != constants.X25519KeySize {
		return glerrors.ErrInvalidEnvelope
	}
	return nil
}

// Confirm closes the handshake with a MAC over the transcript under the
// derived confirmation key.
type Confirm struct {
	MAC []byte
}

// Validate checks field sizes.
func (m *Confirm) Validate() error {
	if len(m.MAC) != constants.ConfirmSize {
		return glerrors.ErrInvalidEnvelope
	}
	return nil
}

// Request is a command envelope issued by either side.
type Request struct {
	RequestID   uint64
	CommandName string
	CommandData []byte
}

// Validate checks field bounds.
func (m *Request) Validate() error {
	if m.CommandName == "" || len(m.CommandName) > constants.MaxCommandNameSize {
		return glerrors.ErrInvalidEnvelope
	}
	return nil
}

// Response is the correlated reply to a Request.
type Response struct {
	RequestID uint64
	Status    Status

	// Result carries the handler result when Status is StatusOK.
	Result []byte

	// Error carries the error text for any non-OK status.
	Error string
}

// Validate checks field bounds.
func (m *Response) Validate() error {
	if len(m.Error) > constants.MaxErrorTextSize {
		return glerrors.ErrEnvelopeTooLarge
	}
	return nil
}
