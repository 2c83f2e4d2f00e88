package channel

import (
	"sync"
	"testing"

	glerrors "github.com/mkorchagin/guestlink/internal/errors"
)

func TestSessionLifecycle(t *testing.T) {
	sess, err := NewSession(RoleHost)
	if err != nil {
		t.Fatal(err)
	}
	if sess.State() != SessionStateIdle {
		t.Errorf("initial state = %v, want Idle", sess.State())
	}
	if sess.Role() != RoleHost {
		t.Errorf("role = %v, want host", sess.Role())
	}

	sess.Close()
	if sess.State() != SessionStateClosed {
		t.Errorf("state after Close = %v, want Closed", sess.State())
	}

	// Close is idempotent.
	sess.Close()
}

func TestSessionRejectsTrafficBeforeEstablished(t *testing.T) {
	sess, err := NewSession(RoleGuest)
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := sess.Encrypt([]byte("too early")); !glerrors.Is(err, glerrors.ErrInvalidState) {
		t.Errorf("Encrypt: err = %v, want ErrInvalidState", err)
	}
	if _, _, err := sess.Decrypt([]byte("too early")); !glerrors.Is(err, glerrors.ErrInvalidState) {
		t.Errorf("Decrypt: err = %v, want ErrInvalidState", err)
	}
	if _, ok := sess.HighestAcceptedCounter(); ok {
		t.Error("no counter should be accepted before establishment")
	}
}

func TestSessionReplayTearsDown(t *testing.T) {
	hostSess, guestSess := runHandshake(t, testToken, testToken)

	envelope, _, err := hostSess.Encrypt([]byte("once"))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := guestSess.Decrypt(envelope); err != nil {
		t.Fatal(err)
	}
	if _, _, err := guestSess.Decrypt(envelope); !glerrors.Is(err, glerrors.ErrReplayDetected) {
		t.Errorf("err = %v, want ErrReplayDetected", err)
	}
}

func TestSessionDirectionIsolation(t *testing.T) {
	hostSess, _ := runHandshake(t, testToken, testToken)

	// A message sealed for host->guest must not open under the host's own
	// receive cipher, which holds the guest->host key.
	envelope, _, err := hostSess.Encrypt([]byte("loopback"))
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := hostSess.Decrypt(envelope); !glerrors.Is(err, glerrors.ErrAuthenticationFailed) {
		t.Errorf("err = %v, want ErrAuthenticationFailed", err)
	}
}

func TestSessionStatsAndCounters(t *testing.T) {
	hostSess, guestSess := runHandshake(t, testToken, testToken)

	for i := 0; i < 3; i++ {
		envelope, seq, err := hostSess.Encrypt([]byte("tick"))
		if err != nil {
			t.Fatal(err)
		}
		if seq != uint64(i) {
			t.Errorf("send counter = %d, want %d", seq, i)
		}
		if _, _, err := guestSess.Decrypt(envelope); err != nil {
			t.Fatal(err)
		}
	}

	highest, ok := guestSess.HighestAcceptedCounter()
	if !ok || highest != 2 {
		t.Errorf("highest accepted = %d ok = %v, want 2 true", highest, ok)
	}

	stats := hostSess.Stats()
	if stats.MessagesSent != 3 || stats.BytesSent != 12 {
		t.Errorf("host stats = %+v", stats)
	}
	stats = guestSess.Stats()
	if stats.MessagesReceived != 3 || stats.BytesReceived != 12 {
		t.Errorf("guest stats = %+v", stats)
	}
	if guestSess.EstablishedAt().IsZero() {
		t.Error("establishedAt not recorded")
	}
}

// TestSessionCloseDuringTraffic races Close against in-flight Encrypt and
// Decrypt calls. Run with -race; traffic must either succeed or fail with
// ErrInvalidState, never panic.
func TestSessionCloseDuringTraffic(t *testing.T) {
	for i := 0; i < 200; i++ {
		hostSess, guestSess := runHandshake(t, testToken, testToken)

		envelope, _, err := hostSess.Encrypt([]byte("seed"))
		if err != nil {
			t.Fatal(err)
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 8; j++ {
				if _, _, err := hostSess.Encrypt([]byte("tick")); err != nil {
					if !glerrors.Is(err, glerrors.ErrInvalidState) {
						t.Errorf("Encrypt during close: %v", err)
					}
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			if _, _, err := guestSess.Decrypt(envelope); err != nil {
				if !glerrors.Is(err, glerrors.ErrInvalidState) {
					t.Errorf("Decrypt during close: %v", err)
				}
			}
		}()

		hostSess.Close()
		guestSess.Close()
		wg.Wait()
	}
}

func TestSessionCloseWipesCiphers(t *testing.T) {
	hostSess, _ := runHandshake(t, testToken, testToken)

	hostSess.Close()
	if _, _, err := hostSess.Encrypt([]byte("after close")); !glerrors.Is(err, glerrors.ErrInvalidState) {
		t.Errorf("err = %v, want ErrInvalidState", err)
	}
}

func TestSessionStateString(t *testing.T) {
	if SessionStateEstablished.String() != "Established" {
		t.Error("state name wrong")
	}
	if SessionState(99).String() != "Unknown" {
		t.Error("unknown state must stringify as Unknown")
	}
	if RoleGuest.String() != "guest" || RoleHost.String() != "host" {
		t.Error("role names wrong")
	}
}
