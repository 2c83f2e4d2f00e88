// Package guestlink provides a secure messaging channel between a host-side
// controller and an isolated guest-side agent over a single ordered byte
// stream (typically a virtio-serial character device).
//
// The engine authenticates the peer with a pre-provisioned shared token,
// negotiates ephemeral X25519 session keys with directional separation, and
// carries length-delimited, AEAD-encrypted command envelopes with replay
// protection and per-connection rate limiting.
//
// # Quick Start
//
// The host drives the handshake and issues commands:
//
//	import "github.com/mkorchagin/guestlink/pkg/channel"
//
//	// Host side
//	engine, err := channel.NewEngine(channel.RoleHost, transport, token, cfg)
//	if err != nil { ... }
//	if err := engine.Handshake(ctx); err != nil { ... }
//	go engine.Serve(ctx)
//	result, err := engine.Call(ctx, "ping", nil)
//
//	// Guest side
//	engine, err := channel.NewEngine(channel.RoleGuest, transport, token, cfg)
//	if err != nil { ... }
//	engine.RegisterHandler("set-resolution", handleResolution)
//	if err := engine.Handshake(ctx); err != nil { ... }
//	engine.Serve(ctx)
//
// # Package Structure
//
//   - pkg/channel: session dispatcher, handshake state machine, rate limiter
//   - pkg/crypto: X25519 ECDH, HKDF key schedule, ChaCha20-Poly1305 AEAD,
//     AuthToken proof (HMAC-SHA256)
//   - pkg/frame: length-delimited wire framing
//   - pkg/protocol: command/response envelope encoding
//   - internal/constants: protocol constants and limits
//   - internal/errors: error taxonomy (fatal vs recoverable)
//   - internal/config: TOML configuration surface
//
// # Security Properties
//
//   - Mutual channel binding: the handshake proves possession of the
//     out-of-band AuthToken before any key material is trusted
//   - Forward secrecy: ephemeral X25519 keys per connection
//   - Directional key separation: independent keys for host->guest and
//     guest->host traffic, preventing reflection attacks
//   - Replay protection: strictly monotonic 64-bit message counters
//   - Authenticated encryption: ChaCha20-Poly1305 with the counter as AAD
//
// Transport framing below the byte stream, concrete command handlers, and any
// user-facing presentation are out of scope; they are injected by the caller.
package guestlink
