package channel

import (
	"bytes"
	"testing"

	glerrors "github.com/mkorchagin/guestlink/internal/errors"
)

var testToken = []byte("correct-horse-battery-staple-token")

// runHandshake drives both state machines to completion, returning the
// established sessions. Fails the test on any step error.
func runHandshake(t *testing.T, hostToken, guestToken []byte) (*Session, *Session) {
	t.Helper()

	hostSess, err := NewSession(RoleHost)
	if err != nil {
		t.Fatal(err)
	}
	guestSess, err := NewSession(RoleGuest)
	if err != nil {
		t.Fatal(err)
	}

	host, err := NewHandshake(hostSess, hostToken)
	if err != nil {
		t.Fatal(err)
	}
	guest, err := NewHandshake(guestSess, guestToken)
	if err != nil {
		t.Fatal(err)
	}

	hello, err := host.CreateHello()
	if err != nil {
		t.Fatalf("CreateHello: %v", err)
	}
	if err := guest.ProcessHello(hello); err != nil {
		t.Fatalf("ProcessHello: %v", err)
	}
	authResp, err := guest.CreateAuthResponse()
	if err != nil {
		t.Fatalf("CreateAuthResponse: %v", err)
	}
	if err := host.ProcessAuthResponse(authResp); err != nil {
		t.Fatalf("ProcessAuthResponse: %v", err)
	}
	keyEx, err := host.CreateKeyExchange()
	if err != nil {
		t.Fatalf("CreateKeyExchange: %v", err)
	}
	if err := guest.ProcessKeyExchange(keyEx); err != nil {
		t.Fatalf("ProcessKeyExchange: %v", err)
	}
	confirm, err := guest.CreateConfirm()
	if err != nil {
		t.Fatalf("CreateConfirm: %v", err)
	}
	if err := host.ProcessConfirm(confirm); err != nil {
		t.Fatalf("ProcessConfirm: %v", err)
	}

	return hostSess, guestSess
}

func TestHandshakeEstablishesBothSides(t *testing.T) {
	hostSess, guestSess := runHandshake(t, testToken, testToken)

	if hostSess.State() != SessionStateEstablished {
		t.Errorf("host state = %v, want Established", hostSess.State())
	}
	if guestSess.State() != SessionStateEstablished {
		t.Errorf("guest state = %v, want Established", guestSess.State())
	}
}

func TestHandshakeKeysConverge(t *testing.T) {
	hostSess, guestSess := runHandshake(t, testToken, testToken)

	// Host->guest direction: host seals, guest opens.
	plaintext := []byte("set-resolution 1920x1080")
	envelope, _, err := hostSess.Encrypt(plaintext)
	if err != nil {
		t.Fatal(err)
	}
	got, _, err := guestSess.Decrypt(envelope)
	if err != nil {
		t.Fatalf("guest decrypt: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Error("host->guest round trip mismatch")
	}

	// Guest->host direction uses an independent key.
	reply := []byte("ok")
	envelope, _, err = guestSess.Encrypt(reply)
	if err != nil {
		t.Fatal(err)
	}
	got, _, err = hostSess.Decrypt(envelope)
	if err != nil {
		t.Fatalf("host decrypt: %v", err)
	}
	if !bytes.Equal(got, reply) {
		t.Error("guest->host round trip mismatch")
	}
}

func TestHandshakeWrongTokenFailsAtProof(t *testing.T) {
	hostSess, _ := NewSession(RoleHost)
	guestSess, _ := NewSession(RoleGuest)
	host, _ := NewHandshake(hostSess, testToken)
	guest, _ := NewHandshake(guestSess, []byte("wrong-token-of-sufficient-length"))

	hello, err := host.CreateHello()
	if err != nil {
		t.Fatal(err)
	}
	if err := guest.ProcessHello(hello); err != nil {
		t.Fatal(err)
	}
	authResp, err := guest.CreateAuthResponse()
	if err != nil {
		t.Fatal(err)
	}

	err = host.ProcessAuthResponse(authResp)
	if !glerrors.Is(err, glerrors.ErrBadAuthProof) {
		t.Errorf("err = %v, want ErrBadAuthProof", err)
	}
	if hostSess.State() != SessionStateFailed {
		t.Errorf("host state = %v, want Failed", hostSess.State())
	}
}

func TestHandshakeTamperedConfirmFails(t *testing.T) {
	hostSess, _ := NewSession(RoleHost)
	guestSess, _ := NewSession(RoleGuest)
	host, _ := NewHandshake(hostSess, testToken)
	guest, _ := NewHandshake(guestSess, testToken)

	hello, _ := host.CreateHello()
	if err := guest.ProcessHello(hello); err != nil {
		t.Fatal(err)
	}
	authResp, _ := guest.CreateAuthResponse()
	if err := host.ProcessAuthResponse(authResp); err != nil {
		t.Fatal(err)
	}
	keyEx, _ := host.CreateKeyExchange()
	if err := guest.ProcessKeyExchange(keyEx); err != nil {
		t.Fatal(err)
	}
	confirm, err := guest.CreateConfirm()
	if err != nil {
		t.Fatal(err)
	}

	confirm[len(confirm)-1] ^= 0x01
	err = host.ProcessConfirm(confirm)
	if !glerrors.Is(err, glerrors.ErrBadConfirm) {
		t.Errorf("err = %v, want ErrBadConfirm", err)
	}
	if hostSess.State() != SessionStateFailed {
		t.Errorf("host state = %v, want Failed", hostSess.State())
	}
}

func TestHandshakeMalformedMessagesFail(t *testing.T) {
	hostSess, _ := NewSession(RoleHost)
	host, _ := NewHandshake(hostSess, testToken)
	if _, err := host.CreateHello(); err != nil {
		t.Fatal(err)
	}
	if err := host.ProcessAuthResponse([]byte{0xFF, 0x01}); !glerrors.Is(err, glerrors.ErrBadKeyMaterial) {
		t.Errorf("host: err = %v, want ErrBadKeyMaterial", err)
	}

	guestSess, _ := NewSession(RoleGuest)
	guest, _ := NewHandshake(guestSess, testToken)
	if err := guest.ProcessHello([]byte{0x01, 0x02}); !glerrors.Is(err, glerrors.ErrBadKeyMaterial) {
		t.Errorf("guest: err = %v, want ErrBadKeyMaterial", err)
	}
}

func TestHandshakeRejectsOutOfOrderSteps(t *testing.T) {
	hostSess, _ := NewSession(RoleHost)
	host, _ := NewHandshake(hostSess, testToken)

	// Host cannot run guest steps, and cannot skip ahead.
	if _, err := host.CreateAuthResponse(); !glerrors.Is(err, glerrors.ErrInvalidState) {
		t.Errorf("CreateAuthResponse as host: err = %v", err)
	}
	if _, err := host.CreateKeyExchange(); !glerrors.Is(err, glerrors.ErrInvalidState) {
		t.Errorf("CreateKeyExchange before auth: err = %v", err)
	}

	guestSess, _ := NewSession(RoleGuest)
	guest, _ := NewHandshake(guestSess, testToken)
	if _, err := guest.CreateConfirm(); !glerrors.Is(err, glerrors.ErrInvalidState) {
		t.Errorf("CreateConfirm before key exchange: err = %v", err)
	}
}

func TestHandshakeRejectsShortToken(t *testing.T) {
	sess, _ := NewSession(RoleHost)
	if _, err := NewHandshake(sess, []byte("tiny")); !glerrors.Is(err, glerrors.ErrBadKeyMaterial) {
		t.Errorf("err = %v, want ErrBadKeyMaterial", err)
	}
}

func TestHandshakeSessionsDeriveFreshKeys(t *testing.T) {
	hostA, _ := runHandshake(t, testToken, testToken)
	hostB, _ := runHandshake(t, testToken, testToken)

	// Fresh ephemeral keys per session mean identical plaintext never
	// produces identical ciphertext across sessions.
	msg := []byte("probe")
	envA, _, err := hostA.Encrypt(msg)
	if err != nil {
		t.Fatal(err)
	}
	envB, _, err := hostB.Encrypt(msg)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(envA, envB) {
		t.Error("two sessions produced identical ciphertext for the same plaintext")
	}
}
