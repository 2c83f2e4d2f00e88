// kdf.go implements the session key schedule using HKDF-SHA256 (RFC 5869).
//
// The X25519 shared secret expands into three independent keys under
// distinct context labels:
//
//	host->guest traffic key = HKDF(secret, salt=transcript, info=LabelHostToGuest)
//	guest->host traffic key = HKDF(secret, salt=transcript, info=LabelGuestToHost)
//	confirmation key        = HKDF(secret, salt=transcript, info=LabelConfirm)
//
// Directional separation means a ciphertext captured in one direction can
// never authenticate in the other, closing the reflection-replay class of
// attacks. Salting with the transcript hash binds the keys to everything
// both sides actually exchanged during the handshake.
package crypto

import (
	"crypto/sha256"
	"encoding/binary"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/mkorchagin/guestlink/internal/constants"
	glerrors "github.com/mkorchagin/guestlink/internal/errors"
)

// SessionKeys holds the derived directional keys for one connection.
type SessionKeys struct {
	// HostToGuest encrypts traffic sent by the host, decrypted by the guest.
	HostToGuest []byte

	// GuestToHost encrypts traffic sent by the guest, decrypted by the host.
	GuestToHost []byte

	// Confirm authenticates the key-confirmation message.
	Confirm []byte
}

// Zeroize wipes all derived key material.
func (k *SessionKeys) Zeroize() {
	ZeroizeMultiple(k.HostToGuest, k.GuestToHost, k.Confirm)
	k.HostToGuest = nil
	k.GuestToHost = nil
	k.Confirm = nil
}

// DeriveSessionKeys expands the X25519 shared secret into the directional
// traffic keys and the confirmation key.
func DeriveSessionKeys(sharedSecret, transcriptHash []byte) (*SessionKeys, error) {
	if len(sharedSecret) != constants.X25519SharedSecretSize {
		return nil, glerrors.ErrInvalidKeySize
	}

	keys := &SessionKeys{}
	var err error
	if keys.HostToGuest, err = expand(sharedSecret, transcriptHash, constants.LabelHostToGuest); err != nil {
		return nil, err
	}
	if keys.GuestToHost, err = expand(sharedSecret, transcriptHash, constants.LabelGuestToHost); err != nil {
		return nil, err
	}
	if keys.Confirm, err = expand(sharedSecret, transcriptHash, constants.LabelConfirm); err != nil {
		return nil, err
	}
	return keys, nil
}

func expand(secret, salt []byte, label string) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, salt, []byte(label))
	key := make([]byte, constants.SessionKeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, glerrors.NewCryptoError("DeriveSessionKeys", err)
	}
	return key, nil
}

// TranscriptHash hashes the ordered handshake components with 4-byte
// length prefixes, so no concatenation of components is ambiguous.
func TranscriptHash(components ...[]byte) []byte {
	h := sha256.New()
	lenBuf := make([]byte, 4)

	binary.BigEndian.PutUint32(lenBuf, uint32(len(components)))
	h.Write(lenBuf)

	for _, component := range components {
		binary.BigEndian.PutUint32(lenBuf, uint32(len(component)))
		h.Write(lenBuf)
		h.Write(component)
	}

	return h.Sum(nil)
}
