// Package fuzz provides fuzz tests for security-critical parsing functions.
//
// Run fuzz tests with:
//
//	go test -fuzz=FuzzReadFrame -fuzztime=30s ./test/fuzz/
//	go test -fuzz=FuzzDecodeRequest -fuzztime=30s ./test/fuzz/
//	go test -fuzz=FuzzDecodeResponse -fuzztime=30s ./test/fuzz/
//	go test -fuzz=FuzzAEADOpen -fuzztime=30s ./test/fuzz/
package fuzz

import (
	"bytes"
	"testing"

	"github.com/mkorchagin/guestlink/internal/constants"
	"github.com/mkorchagin/guestlink/pkg/crypto"
	"github.com/mkorchagin/guestlink/pkg/frame"
	"github.com/mkorchagin/guestlink/pkg/protocol"
)

// FuzzReadFrame fuzzes the frame header parser. It processes untrusted
// bytes straight off the transport, so it must never panic and never
// allocate beyond the configured limit.
func FuzzReadFrame(f *testing.F) {
	codec := frame.NewCodec(1 << 16)

	valid, _ := codec.Encode([]byte("seed payload"), constants.FlagEncrypted)
	f.Add(valid)
	f.Add([]byte{})
	f.Add(make([]byte, constants.FrameHeaderSize-1))
	f.Add(bytes.Repeat([]byte{0xFF}, constants.FrameHeaderSize))

	f.Fuzz(func(t *testing.T, data []byte) {
		fr, err := codec.ReadFrame(bytes.NewReader(data))
		if err != nil {
			return
		}
		// An accepted frame must re-encode to the same bytes it was read
		// from.
		out, err := codec.Encode(fr.Payload, fr.Flags)
		if err != nil {
			t.Fatalf("accepted frame failed to re-encode: %v", err)
		}
		if !bytes.Equal(out, data[:len(out)]) {
			t.Error("re-encoded frame differs from input")
		}
	})
}

// FuzzDecodeRequest fuzzes the request envelope parser.
func FuzzDecodeRequest(f *testing.F) {
	codec := protocol.NewCodec()

	valid, _ := codec.EncodeRequest(&protocol.Request{RequestID: 7, CommandName: "ping"})
	f.Add(valid)
	f.Add([]byte{})
	f.Add([]byte{byte(protocol.MessageTypeRequest)})
	f.Add(bytes.Repeat([]byte{0x10}, 64))

	f.Fuzz(func(t *testing.T, data []byte) {
		req, err := codec.DecodeRequest(data)
		if err != nil {
			return
		}
		if req.CommandName == "" || len(req.CommandName) > constants.MaxCommandNameSize {
			t.Errorf("accepted request with invalid command name %q", req.CommandName)
		}
	})
}

// FuzzDecodeResponse fuzzes the response envelope parser.
func FuzzDecodeResponse(f *testing.F) {
	codec := protocol.NewCodec()

	valid, _ := codec.EncodeResponse(&protocol.Response{RequestID: 7, Status: protocol.StatusOK, Result: []byte("pong")})
	f.Add(valid)
	errResp, _ := codec.EncodeResponse(&protocol.Response{RequestID: 8, Status: protocol.StatusError, Error: "boom"})
	f.Add(errResp)
	f.Add([]byte{})
	f.Add(bytes.Repeat([]byte{0x11}, 32))

	f.Fuzz(func(t *testing.T, data []byte) {
		resp, err := codec.DecodeResponse(data)
		if err != nil {
			return
		}
		if len(resp.Error) > constants.MaxErrorTextSize {
			t.Error("accepted response with oversize error text")
		}
	})
}

// FuzzAEADOpen fuzzes envelope opening with hostile ciphertext. Opening
// must either fail cleanly or return the exact sealed plaintext; it must
// never panic or accept forged bytes.
func FuzzAEADOpen(f *testing.F) {
	key := bytes.Repeat([]byte{0x5A}, constants.SessionKeySize)
	seal, _ := crypto.NewSealCipher(key)
	genuine, _, _ := seal.Seal([]byte("seed plaintext"))

	f.Add(genuine)
	f.Add([]byte{})
	f.Add(make([]byte, constants.MinEnvelopeSize-1))
	f.Add(make([]byte, constants.MinEnvelopeSize))

	f.Fuzz(func(t *testing.T, data []byte) {
		open, err := crypto.NewOpenCipher(key)
		if err != nil {
			t.Fatal(err)
		}
		plaintext, _, err := open.Open(data)
		if err != nil {
			return
		}
		// The only envelope that can open under this key is the genuine
		// one.
		if !bytes.Equal(data, genuine) {
			t.Error("forged envelope opened")
		}
		if !bytes.Equal(plaintext, []byte("seed plaintext")) {
			t.Error("opened plaintext mismatch")
		}
	})
}
