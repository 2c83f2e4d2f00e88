// Package constants defines protocol constants and security limits for the
// guestlink host/guest messaging channel.
package constants

// Protocol identification
const (
	// FrameMagic marks the start of every frame header
	FrameMagic uint16 = 0x474C // "GL"

	// ProtocolVersion is the current wire protocol version
	ProtocolVersion uint8 = 0x01

	// ProtocolName is used for domain separation in key derivation
	ProtocolName = "guestlink-v1"
)

// Frame header layout
const (
	// FrameHeaderSize is the fixed size of the frame header in bytes:
	// magic (2) + version (1) + flags (1) + length (4, big-endian)
	FrameHeaderSize = 8

	// DefaultMaxFrameSize bounds the payload length field to prevent
	// unbounded allocation from a hostile or desynchronized peer
	DefaultMaxFrameSize = 16 << 20 // 16 MiB
)

// Frame flag bits
const (
	// FlagEncrypted marks a payload carried under the session AEAD
	FlagEncrypted uint8 = 1 << 0

	// FlagReserved is reserved and must be zero
	FlagReserved uint8 = 1 << 1

	// FlagResponse distinguishes response envelopes from requests
	FlagResponse uint8 = 1 << 2
)

// X25519 parameters (RFC 7748)
const (
	// X25519KeySize is the size of X25519 public and private keys in bytes
	X25519KeySize = 32

	// X25519SharedSecretSize is the size of the X25519 shared secret in bytes
	X25519SharedSecretSize = 32
)

// Symmetric encryption parameters (ChaCha20-Poly1305)
const (
	// SessionKeySize is the size of each directional session key in bytes
	SessionKeySize = 32

	// AEADNonceSize is the size of the AEAD nonce in bytes (96 bits)
	AEADNonceSize = 12

	// AEADTagSize is the size of the Poly1305 authentication tag in bytes
	AEADTagSize = 16

	// CounterSize is the size of the serialized message counter prefix
	CounterSize = 8

	// MinEnvelopeSize is the smallest valid encrypted envelope:
	// counter prefix plus authentication tag
	MinEnvelopeSize = CounterSize + AEADTagSize
)

// Handshake parameters
const (
	// ChallengeSize is the size of the Hello random challenge in bytes
	ChallengeSize = 32

	// AuthProofSize is the size of the HMAC-SHA256 token proof in bytes
	AuthProofSize = 32

	// ConfirmSize is the size of the key-confirmation MAC in bytes
	ConfirmSize = 32

	// MinAuthTokenSize is the minimum accepted AuthToken length. Tokens are
	// provisioned out of band; short tokens are rejected outright.
	MinAuthTokenSize = 16
)

// Key derivation labels. Distinct labels keep the directional traffic keys
// and the confirmation key independent of each other.
const (
	LabelHostToGuest = "guestlink-v1 host->guest"
	LabelGuestToHost = "guestlink-v1 guest->host"
	LabelConfirm     = "guestlink-v1 confirm"
)

// Envelope limits
const (
	// MaxCommandNameSize bounds the command name in an envelope
	MaxCommandNameSize = 255

	// MaxErrorTextSize bounds the error string in a response envelope
	MaxErrorTextSize = 1024
)

// Default timeouts and rate limits; all overridable through config.
const (
	// DefaultHandshakeTimeoutSeconds bounds the whole key exchange
	DefaultHandshakeTimeoutSeconds = 10

	// DefaultCommandTimeoutSeconds bounds a single pending request
	DefaultCommandTimeoutSeconds = 30

	// DefaultRateLimitMaxRequests is the number of inbound messages
	// accepted per rate-limit window
	DefaultRateLimitMaxRequests = 128

	// DefaultRateLimitWindowSeconds is the trailing rate-limit window
	DefaultRateLimitWindowSeconds = 1
)
