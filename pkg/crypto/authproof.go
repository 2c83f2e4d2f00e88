// authproof.go binds the handshake to the out-of-band AuthToken.
//
// The responder proves possession of the token by returning
// HMAC-SHA256(AuthToken, challenge) for a random challenge chosen by the
// initiator. Verification is constant time. The same construction, keyed
// by the derived confirmation key over the handshake transcript, closes
// the key exchange.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
)

// ComputeAuthProof returns HMAC-SHA256(token, challenge).
func ComputeAuthProof(token, challenge []byte) []byte {
	mac := hmac.New(sha256.New, token)
	mac.Write(challenge)
	return mac.Sum(nil)
}

// VerifyAuthProof checks a token proof in constant time.
func VerifyAuthProof(token, challenge, proof []byte) bool {
	expected := ComputeAuthProof(token, challenge)
	return hmac.Equal(expected, proof)
}

// ComputeConfirm returns the key-confirmation MAC over the handshake
// transcript hash under the derived confirmation key.
func ComputeConfirm(confirmKey, transcriptHash []byte) []byte {
	mac := hmac.New(sha256.New, confirmKey)
	mac.Write(transcriptHash)
	return mac.Sum(nil)
}

// VerifyConfirm checks a key-confirmation MAC in constant time.
func VerifyConfirm(confirmKey, transcriptHash, confirm []byte) bool {
	expected := ComputeConfirm(confirmKey, transcriptHash)
	return hmac.Equal(expected, confirm)
}
