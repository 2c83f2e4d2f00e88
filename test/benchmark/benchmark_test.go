// Package benchmark provides performance benchmarks for the guestlink
// channel.
//
// Run benchmarks with:
//
//	go test -bench=. -benchmem ./test/benchmark/
package benchmark

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"

	"github.com/mkorchagin/guestlink/internal/config"
	"github.com/mkorchagin/guestlink/internal/constants"
	"github.com/mkorchagin/guestlink/pkg/channel"
	"github.com/mkorchagin/guestlink/pkg/crypto"
	"github.com/mkorchagin/guestlink/pkg/frame"
	"github.com/mkorchagin/guestlink/pkg/protocol"
)

var benchToken = []byte("benchmark-shared-token-0123456789")

// --- Cryptographic primitive benchmarks ---

func BenchmarkX25519KeyGen(b *testing.B) {
	for i := 0; i < b.N; i++ {
		kp, err := crypto.GenerateKeyPair()
		if err != nil {
			b.Fatal(err)
		}
		kp.Zeroize()
	}
}

func BenchmarkX25519SharedSecret(b *testing.B) {
	alice, _ := crypto.GenerateKeyPair()
	bob, _ := crypto.GenerateKeyPair()
	bobPub := bob.PublicKeyBytes()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := alice.SharedSecret(bobPub); err != nil {
			b.Fatal(err)
		}
	}
}

func benchmarkSeal(b *testing.B, size int) {
	key := bytes.Repeat([]byte{0x42}, constants.SessionKeySize)
	seal, err := crypto.NewSealCipher(key)
	if err != nil {
		b.Fatal(err)
	}
	plaintext := make([]byte, size)
	b.SetBytes(int64(size))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := seal.Seal(plaintext); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSeal64(b *testing.B)  { benchmarkSeal(b, 64) }
func BenchmarkSeal1K(b *testing.B)  { benchmarkSeal(b, 1024) }
func BenchmarkSeal64K(b *testing.B) { benchmarkSeal(b, 64*1024) }
func BenchmarkSeal1M(b *testing.B)  { benchmarkSeal(b, 1024*1024) }

func BenchmarkSealOpen1K(b *testing.B) {
	key := bytes.Repeat([]byte{0x42}, constants.SessionKeySize)
	seal, _ := crypto.NewSealCipher(key)
	open, _ := crypto.NewOpenCipher(key)
	plaintext := make([]byte, 1024)
	b.SetBytes(1024)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		envelope, _, err := seal.Seal(plaintext)
		if err != nil {
			b.Fatal(err)
		}
		if _, _, err := open.Open(envelope); err != nil {
			b.Fatal(err)
		}
	}
}

// --- Codec benchmarks ---

func BenchmarkFrameEncode(b *testing.B) {
	codec := frame.NewCodec(constants.DefaultMaxFrameSize)
	payload := make([]byte, 1024)
	b.SetBytes(1024)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := codec.Encode(payload, constants.FlagEncrypted); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFrameRoundTrip(b *testing.B) {
	codec := frame.NewCodec(constants.DefaultMaxFrameSize)
	encoded, _ := codec.Encode(make([]byte, 1024), constants.FlagEncrypted)
	b.SetBytes(1024)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := codec.ReadFrame(bytes.NewReader(encoded)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRequestEncode(b *testing.B) {
	codec := protocol.NewCodec()
	req := &protocol.Request{RequestID: 1, CommandName: "set-resolution", CommandData: make([]byte, 256)}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := codec.EncodeRequest(req); err != nil {
			b.Fatal(err)
		}
	}
}

// --- End-to-end benchmarks ---

// connectedPair returns an established host/guest pair with reader loops
// running and an echo handler on the guest.
func connectedPair(b *testing.B) (*channel.Engine, *channel.Engine) {
	b.Helper()

	cfg := config.Default()
	cfg.RateLimitMaxRequests = 0 // throughput, not policy

	hostConn, guestConn := net.Pipe()
	host, err := channel.NewEngine(channel.RoleHost, hostConn, benchToken, cfg)
	if err != nil {
		b.Fatal(err)
	}
	guest, err := channel.NewEngine(channel.RoleGuest, guestConn, benchToken, cfg)
	if err != nil {
		b.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := guest.Handshake(context.Background()); err != nil {
			b.Error(err)
		}
	}()
	if err := host.Handshake(context.Background()); err != nil {
		b.Fatal(err)
	}
	wg.Wait()

	guest.RegisterHandler("echo", func(ctx context.Context, command string, data []byte) ([]byte, error) {
		return data, nil
	})

	go host.Serve(context.Background())
	go guest.Serve(context.Background())

	b.Cleanup(func() {
		host.Close()
		guest.Close()
	})
	return host, guest
}

func BenchmarkHandshake(b *testing.B) {
	cfg := config.Default()
	for i := 0; i < b.N; i++ {
		hostConn, guestConn := net.Pipe()
		host, _ := channel.NewEngine(channel.RoleHost, hostConn, benchToken, cfg)
		guest, _ := channel.NewEngine(channel.RoleGuest, guestConn, benchToken, cfg)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = guest.Handshake(context.Background())
		}()
		if err := host.Handshake(context.Background()); err != nil {
			b.Fatal(err)
		}
		wg.Wait()
		host.Close()
		guest.Close()
	}
}

func BenchmarkCallRoundTrip(b *testing.B) {
	host, _ := connectedPair(b)
	payload := make([]byte, 1024)
	b.SetBytes(1024)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := host.Call(context.Background(), "echo", payload); err != nil {
			b.Fatal(err)
		}
	}
}
