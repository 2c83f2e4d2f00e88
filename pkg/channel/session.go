// Package channel implements the guestlink session dispatcher: the
// per-connection state machine that drives the key exchange, then carries
// authenticated command/response envelopes with replay protection and rate
// limiting over a single ordered byte stream.
package channel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	glerrors "github.com/mkorchagin/guestlink/internal/errors"
	"github.com/mkorchagin/guestlink/pkg/crypto"
)

// SessionState tracks the connection lifecycle through the key exchange.
type SessionState int32

const (
	// SessionStateIdle is a fresh session before the handshake starts
	SessionStateIdle SessionState = iota

	// SessionStateAwaitingHello waits for the initiator's challenge
	SessionStateAwaitingHello

	// SessionStateAwaitingPeerKey waits for the peer's ephemeral key
	SessionStateAwaitingPeerKey

	// SessionStateAwaitingConfirmation waits for key confirmation
	SessionStateAwaitingConfirmation

	// SessionStateEstablished means traffic keys are live
	SessionStateEstablished

	// SessionStateFailed is terminal; the connection must be closed
	SessionStateFailed

	// SessionStateClosed means the transport is gone and keys are wiped
	SessionStateClosed
)

// String returns a human-readable name for the session state.
func (s SessionState) String() string {
	switch s {
	case SessionStateIdle:
		return "Idle"
	case SessionStateAwaitingHello:
		return "AwaitingHello"
	case SessionStateAwaitingPeerKey:
		return "AwaitingPeerKey"
	case SessionStateAwaitingConfirmation:
		return "AwaitingConfirmation"
	case SessionStateEstablished:
		return "Established"
	case SessionStateFailed:
		return "Failed"
	case SessionStateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Role indicates which end of the channel this engine is.
type Role int

const (
	// RoleHost is the controller side; it initiates the handshake.
	RoleHost Role = iota

	// RoleGuest is the agent side inside the virtual machine.
	RoleGuest
)

// String returns the role name.
func (r Role) String() string {
	if r == RoleHost {
		return "host"
	}
	return "guest"
}

// Session owns the cryptographic and sequencing state of one connection.
// It is exclusively owned by one Engine; key material is never shared
// across connections.
type Session struct {
	role  Role
	state atomic.Int32

	// Ephemeral key pair for the handshake; wiped once keys are derived.
	localKeyPair *crypto.KeyPair

	// Peer's ephemeral public key, recorded during the handshake.
	peerPublicKey []byte

	// Directional traffic ciphers. seal encrypts what this side sends,
	// open decrypts what it receives; open also enforces the strict
	// counter monotonicity that provides replay protection.
	seal *crypto.SealCipher
	open *crypto.OpenCipher

	createdAt     time.Time
	establishedAt time.Time

	observer Observer

	// Statistics
	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64
	messagesSent  atomic.Uint64
	messagesRecv  atomic.Uint64

	mu sync.Mutex
}

// NewSession creates a session with a fresh ephemeral key pair.
func NewSession(role Role) (*Session, error) {
	keyPair, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}

	s := &Session{
		role:         role,
		localKeyPair: keyPair,
		observer:     NopObserver{},
		createdAt:    time.Now(),
	}
	s.state.Store(int32(SessionStateIdle))
	return s, nil
}

// Role returns which end of the channel this session belongs to.
func (s *Session) Role() Role {
	return s.role
}

// State returns the current session state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) setState(state SessionState) {
	s.state.Store(int32(state))
}

// SetObserver installs an observer for lifecycle and crypto events.
// Must be called before the handshake starts.
func (s *Session) SetObserver(observer Observer) {
	if observer == nil {
		observer = NopObserver{}
	}
	s.observer = observer
}

// initializeKeys installs the derived directional traffic keys. The host
// sends under the host->guest key and receives under guest->host; the
// guest is the mirror image. Called by the handshake once both sides hold
// the shared secret; both counters start at zero here.
func (s *Session) initializeKeys(keys *crypto.SessionKeys) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() == SessionStateClosed || s.State() == SessionStateFailed {
		return glerrors.ErrInvalidState
	}

	var sendKey, recvKey []byte
	if s.role == RoleHost {
		sendKey = keys.HostToGuest
		recvKey = keys.GuestToHost
	} else {
		sendKey = keys.GuestToHost
		recvKey = keys.HostToGuest
	}

	var err error
	if s.seal, err = crypto.NewSealCipher(sendKey); err != nil {
		return err
	}
	if s.open, err = crypto.NewOpenCipher(recvKey); err != nil {
		return err
	}

	// The handshake retains the confirm key; the ephemeral private key is
	// no longer needed.
	s.localKeyPair.Zeroize()

	s.establishedAt = time.Now()
	return nil
}

// sealCipher returns the outbound cipher, or nil once the session is
// closed. The cipher fields are written by Close under s.mu, so readers
// must take the lock rather than rely on the state check alone.
func (s *Session) sealCipher() *crypto.SealCipher {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seal
}

func (s *Session) openCipher() *crypto.OpenCipher {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Encrypt seals plaintext into an envelope for the outbound direction.
func (s *Session) Encrypt(plaintext []byte) ([]byte, uint64, error) {
	seal := s.sealCipher()
	if s.State() != SessionStateEstablished || seal == nil {
		return nil, 0, glerrors.ErrInvalidState
	}

	_, done := s.observer.OnEncrypt(context.Background(), len(plaintext))

	envelope, seq, err := seal.Seal(plaintext)
	if err != nil {
		s.observer.OnProtocolError(err)
		done(err)
		return nil, 0, err
	}
	done(nil)

	s.bytesSent.Add(uint64(len(plaintext)))
	s.messagesSent.Add(1)
	return envelope, seq, nil
}

// Decrypt opens an inbound envelope. Replay (a counter not strictly above
// the highest accepted) and tag mismatches are both fatal; the caller must
// tear the connection down.
func (s *Session) Decrypt(envelope []byte) ([]byte, uint64, error) {
	open := s.openCipher()
	if s.State() != SessionStateEstablished || open == nil {
		return nil, 0, glerrors.ErrInvalidState
	}

	_, done := s.observer.OnDecrypt(context.Background(), len(envelope))

	plaintext, seq, err := open.Open(envelope)
	if err != nil {
		switch {
		case glerrors.Is(err, glerrors.ErrReplayDetected):
			s.observer.OnReplayDetected()
		case glerrors.Is(err, glerrors.ErrAuthenticationFailed):
			s.observer.OnAuthFailure()
		}
		done(err)
		return nil, 0, err
	}
	done(nil)

	s.bytesReceived.Add(uint64(len(plaintext)))
	s.messagesRecv.Add(1)
	return plaintext, seq, nil
}

// HighestAcceptedCounter returns the highest inbound counter accepted so
// far and whether any message has been accepted.
func (s *Session) HighestAcceptedCounter() (uint64, bool) {
	open := s.openCipher()
	if open == nil {
		return 0, false
	}
	return open.Highest()
}

// Close wipes key material and marks the session closed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() == SessionStateClosed {
		return
	}
	s.setState(SessionStateClosed)

	if s.localKeyPair != nil {
		s.localKeyPair.Zeroize()
	}
	s.seal = nil
	s.open = nil

	s.observer.OnClosed()
}

// Stats reports per-session traffic counters.
type Stats struct {
	BytesSent        uint64
	BytesReceived    uint64
	MessagesSent     uint64
	MessagesReceived uint64
	Uptime           time.Duration
	State            SessionState
}

// Stats returns current session statistics.
func (s *Session) Stats() Stats {
	return Stats{
		BytesSent:        s.bytesSent.Load(),
		BytesReceived:    s.bytesReceived.Load(),
		MessagesSent:     s.messagesSent.Load(),
		MessagesReceived: s.messagesRecv.Load(),
		Uptime:           time.Since(s.createdAt),
		State:            s.State(),
	}
}

// EstablishedAt returns when traffic keys went live.
func (s *Session) EstablishedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.establishedAt
}
