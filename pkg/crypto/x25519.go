// x25519.go implements ephemeral X25519 Diffie-Hellman key agreement.
//
// X25519 (RFC 7748) performs ECDH over Curve25519 with x-coordinate-only
// Montgomery ladder arithmetic, giving constant-time execution. Each
// connection generates a fresh ephemeral key pair, so compromise of one
// session's keys never exposes another session (forward secrecy).
package crypto

import (
	"github.com/cloudflare/circl/dh/x25519"

	"github.com/mkorchagin/guestlink/internal/constants"
	glerrors "github.com/mkorchagin/guestlink/internal/errors"
)

// KeyPair is an ephemeral X25519 key pair. The private key lives only for
// the duration of one handshake and is wiped afterwards.
type KeyPair struct {
	public  x25519.Key
	private x25519.Key
}

// GenerateKeyPair generates a fresh ephemeral X25519 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	kp := &KeyPair{}
	if err := SecureRandom(kp.private[:]); err != nil {
		return nil, err
	}
	x25519.KeyGen(&kp.public, &kp.private)
	return kp, nil
}

// PublicKeyBytes returns the 32-byte public key for transmission.
func (kp *KeyPair) PublicKeyBytes() []byte {
	out := make([]byte, constants.X25519KeySize)
	copy(out, kp.public[:])
	return out
}

// SharedSecret computes the X25519 shared secret with the peer's public
// key. It rejects malformed key material and low-order points (which would
// yield an all-zero secret).
func (kp *KeyPair) SharedSecret(peerPublic []byte) ([]byte, error) {
	if len(peerPublic) != constants.X25519KeySize {
		return nil, glerrors.ErrBadKeyMaterial
	}

	var peer, shared x25519.Key
	copy(peer[:], peerPublic)

	if !x25519.Shared(&shared, &kp.private, &peer) {
		return nil, glerrors.ErrBadKeyMaterial
	}

	out := make([]byte, constants.X25519SharedSecretSize)
	copy(out, shared[:])
	Zeroize(shared[:])
	return out, nil
}

// Zeroize wipes the private key.
func (kp *KeyPair) Zeroize() {
	Zeroize(kp.private[:])
}
