// handshake.go implements the key exchange state machine.
//
// Handshake Protocol:
//
//	Host (initiator)                       Guest (responder)
//	    |                                      |
//	    | -------- Hello --------------------> |
//	    |   - 32-byte random challenge         |
//	    |                                      |
//	    | <------- AuthResponse -------------- |
//	    |   - HMAC(AuthToken, challenge)       |
//	    |   - ephemeral X25519 public key      |
//	    |                                      |
//	    |   [host verifies proof,              |
//	    |    derives shared secret]            |
//	    |                                      |
//	    | -------- KeyExchange --------------> |
//	    |   - ephemeral X25519 public key      |
//	    |                                      |
//	    |   [guest derives shared secret]      |
//	    |                                      |
//	    | <------- Confirm ------------------- |
//	    |   - HMAC(confirm key, transcript)    |
//	    |                                      |
//	    |    === Channel Established ===       |
//
// Both sides expand the X25519 shared secret with HKDF-SHA256 under
// distinct direction labels, salted with the transcript hash, yielding
// independent host->guest and guest->host traffic keys. Any proof
// mismatch, malformed key material, or timeout aborts to Failed and the
// connection is closed; no application command is dispatched before
// Established.
package channel

import (
	"github.com/mkorchagin/guestlink/internal/constants"
	glerrors "github.com/mkorchagin/guestlink/internal/errors"
	"github.com/mkorchagin/guestlink/pkg/crypto"
	"github.com/mkorchagin/guestlink/pkg/protocol"
)

// Handshake drives the key exchange for one session. Step methods must be
// called in protocol order for the session's role; any violation or
// failed verification moves the session to Failed permanently.
type Handshake struct {
	session   *Session
	codec     *protocol.Codec
	authToken []byte

	challenge     []byte
	proof         []byte
	transcript    []byte
	derivedKeys   *crypto.SessionKeys
	peerPublicKey []byte
}

// NewHandshake creates the handshake state machine for a session. The
// AuthToken is the long-lived shared secret provisioned out of band; the
// engine never generates or persists it.
func NewHandshake(session *Session, authToken []byte) (*Handshake, error) {
	if len(authToken) < constants.MinAuthTokenSize {
		return nil, glerrors.NewProtocolError("handshake", glerrors.ErrBadKeyMaterial)
	}
	h := &Handshake{
		session:   session,
		codec:     protocol.NewCodec(),
		authToken: authToken,
	}
	if session.role == RoleGuest {
		session.setState(SessionStateAwaitingHello)
	}
	return h, nil
}

func (h *Handshake) fail(err error) error {
	h.session.setState(SessionStateFailed)
	h.zeroize()
	return glerrors.NewProtocolError("handshake", err)
}

func (h *Handshake) zeroize() {
	if h.derivedKeys != nil {
		h.derivedKeys.Zeroize()
		h.derivedKeys = nil
	}
}

// --- Initiator (host) steps ---

// CreateHello generates the opening challenge message.
func (h *Handshake) CreateHello() ([]byte, error) {
	if h.session.role != RoleHost || h.session.State() != SessionStateIdle {
		return nil, glerrors.ErrInvalidState
	}

	challenge, err := crypto.SecureRandomBytes(constants.ChallengeSize)
	if err != nil {
		return nil, h.fail(err)
	}
	h.challenge = challenge

	data, err := h.codec.EncodeHello(&protocol.Hello{Challenge: challenge})
	if err != nil {
		return nil, h.fail(err)
	}

	h.session.setState(SessionStateAwaitingPeerKey)
	return data, nil
}

// ProcessAuthResponse verifies the guest's token proof and derives the
// session keys from its ephemeral public key. The proof check is constant
// time; a mismatch is fatal and indistinguishable from malformed key
// material to an outside observer.
func (h *Handshake) ProcessAuthResponse(data []byte) error {
	if h.session.role != RoleHost || h.session.State() != SessionStateAwaitingPeerKey {
		return glerrors.ErrInvalidState
	}

	msg, err := h.codec.DecodeAuthResponse(data)
	if err != nil {
		return h.fail(glerrors.ErrBadKeyMaterial)
	}

	if !crypto.VerifyAuthProof(h.authToken, h.challenge, msg.Proof) {
		return h.fail(glerrors.ErrBadAuthProof)
	}
	h.proof = msg.Proof
	h.peerPublicKey = msg.PublicKey
	h.session.peerPublicKey = msg.PublicKey

	if err := h.deriveKeys(); err != nil {
		return h.fail(err)
	}

	h.session.setState(SessionStateAwaitingConfirmation)
	return nil
}

// CreateKeyExchange generates the host's ephemeral public key message.
func (h *Handshake) CreateKeyExchange() ([]byte, error) {
	if h.session.role != RoleHost || h.session.State() != SessionStateAwaitingConfirmation {
		return nil, glerrors.ErrInvalidState
	}
	return h.codec.EncodeKeyExchange(&protocol.KeyExchange{
		PublicKey: h.localPublicKey(),
	})
}

// ProcessConfirm verifies the guest's key confirmation and establishes the
// session.
func (h *Handshake) ProcessConfirm(data []byte) error {
	if h.session.role != RoleHost || h.session.State() != SessionStateAwaitingConfirmation {
		return glerrors.ErrInvalidState
	}

	msg, err := h.codec.DecodeConfirm(data)
	if err != nil {
		return h.fail(glerrors.ErrBadConfirm)
	}

	if !crypto.VerifyConfirm(h.derivedKeys.Confirm, h.transcript, msg.MAC) {
		return h.fail(glerrors.ErrBadConfirm)
	}

	h.finish()
	return nil
}

// --- Responder (guest) steps ---

// ProcessHello records the initiator's challenge.
func (h *Handshake) ProcessHello(data []byte) error {
	if h.session.role != RoleGuest || h.session.State() != SessionStateAwaitingHello {
		return glerrors.ErrInvalidState
	}

	msg, err := h.codec.DecodeHello(data)
	if err != nil {
		return h.fail(glerrors.ErrBadKeyMaterial)
	}
	h.challenge = msg.Challenge
	return nil
}

// CreateAuthResponse proves possession of the AuthToken and offers the
// guest's ephemeral public key.
func (h *Handshake) CreateAuthResponse() ([]byte, error) {
	if h.session.role != RoleGuest || h.session.State() != SessionStateAwaitingHello || h.challenge == nil {
		return nil, glerrors.ErrInvalidState
	}

	h.proof = crypto.ComputeAuthProof(h.authToken, h.challenge)

	data, err := h.codec.EncodeAuthResponse(&protocol.AuthResponse{
		Proof:     h.proof,
		PublicKey: h.localPublicKey(),
	})
	if err != nil {
		return nil, h.fail(err)
	}

	h.session.setState(SessionStateAwaitingPeerKey)
	return data, nil
}

// ProcessKeyExchange derives the session keys from the host's ephemeral
// public key.
func (h *Handshake) ProcessKeyExchange(data []byte) error {
	if h.session.role != RoleGuest || h.session.State() != SessionStateAwaitingPeerKey {
		return glerrors.ErrInvalidState
	}

	msg, err := h.codec.DecodeKeyExchange(data)
	if err != nil {
		return h.fail(glerrors.ErrBadKeyMaterial)
	}
	h.peerPublicKey = msg.PublicKey
	h.session.peerPublicKey = msg.PublicKey

	if err := h.deriveKeys(); err != nil {
		return h.fail(err)
	}

	h.session.setState(SessionStateAwaitingConfirmation)
	return nil
}

// CreateConfirm generates the key confirmation and establishes the
// session on the guest side.
func (h *Handshake) CreateConfirm() ([]byte, error) {
	if h.session.role != RoleGuest || h.session.State() != SessionStateAwaitingConfirmation {
		return nil, glerrors.ErrInvalidState
	}

	mac := crypto.ComputeConfirm(h.derivedKeys.Confirm, h.transcript)
	data, err := h.codec.EncodeConfirm(&protocol.Confirm{MAC: mac})
	if err != nil {
		return nil, h.fail(err)
	}

	h.finish()
	return data, nil
}

// --- Shared internals ---

// localPublicKey returns this side's ephemeral public key bytes.
func (h *Handshake) localPublicKey() []byte {
	return h.session.localKeyPair.PublicKeyBytes()
}

// deriveKeys computes the shared secret, the transcript hash, and the
// directional session keys, and installs the traffic ciphers.
// The transcript order is fixed as (challenge, proof, responder public
// key, initiator public key) on both sides.
func (h *Handshake) deriveKeys() error {
	sharedSecret, err := h.session.localKeyPair.SharedSecret(h.peerPublicKey)
	if err != nil {
		return err
	}
	defer crypto.Zeroize(sharedSecret)

	var responderPub, initiatorPub []byte
	if h.session.role == RoleHost {
		responderPub = h.peerPublicKey
		initiatorPub = h.localPublicKey()
	} else {
		responderPub = h.localPublicKey()
		initiatorPub = h.peerPublicKey
	}
	h.transcript = crypto.TranscriptHash(h.challenge, h.proof, responderPub, initiatorPub)

	keys, err := crypto.DeriveSessionKeys(sharedSecret, h.transcript)
	if err != nil {
		return err
	}
	h.derivedKeys = keys

	if err := h.session.initializeKeys(keys); err != nil {
		keys.Zeroize()
		return err
	}

	// Traffic keys now live inside the ciphers; only the confirm key is
	// still needed.
	crypto.ZeroizeMultiple(keys.HostToGuest, keys.GuestToHost)
	return nil
}

// finish marks the session established and wipes remaining key material.
func (h *Handshake) finish() {
	h.session.setState(SessionStateEstablished)
	h.session.observer.OnEstablished()
	h.zeroize()
}
