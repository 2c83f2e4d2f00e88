// codec.go implements serialization of protocol messages.
//
// Encodings are fixed-layout binary, big-endian, with length prefixes only
// where a field is variable:
//
//	Hello:        type(1) || challenge(32)
//	AuthResponse: type(1) || proof(32) || public_key(32)
//	KeyExchange:  type(1) || public_key(32)
//	Confirm:      type(1) || mac(32)
//	Request:      type(1) || request_id(8) || name_len(1) || name || data
//	Response:     type(1) || request_id(8) || status(1) || body_len(4) || body
//	Close:        type(1)
//
// For responses the body is the handler result on StatusOK and the error
// text otherwise.
package protocol

import (
	"encoding/binary"

	"github.com/mkorchagin/guestlink/internal/constants"
	glerrors "github.com/mkorchagin/guestlink/internal/errors"
)

// Codec serializes and deserializes protocol messages. It is stateless.
type Codec struct{}

// NewCodec creates a protocol codec.
func NewCodec() *Codec {
	return &Codec{}
}

// PeekType returns the message type tag of an encoded message.
func (c *Codec) PeekType(data []byte) (MessageType, error) {
	if len(data) < 1 {
		return 0, glerrors.ErrInvalidEnvelope
	}
	return MessageType(data[0]), nil
}

// EncodeHello serializes a Hello message.
func (c *Codec) EncodeHello(m *Hello) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, 1+constants.ChallengeSize)
	buf[0] = byte(MessageTypeHello)
	copy(buf[1:], m.Challenge)
	return buf, nil
}

// DecodeHello deserializes a Hello message.
func (c *Codec) DecodeHello(data []byte) (*Hello, error) {
	if len(data) != 1+constants.ChallengeSize || MessageType(data[0]) != MessageTypeHello {
		return nil, glerrors.ErrInvalidEnvelope
	}
	m := &Hello{Challenge: make([]byte, constants.ChallengeSize)}
	copy(m.Challenge, data[1:])
	return m, nil
}

// EncodeAuthResponse serializes an AuthResponse message.
func (c *Codec) EncodeAuthResponse(m *AuthResponse) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, 1+constants.AuthProofSize+constants.X25519KeySize)
	buf[0] = byte(MessageTypeAuthResponse)
	copy(buf[1:], m.Proof)
	copy(buf[1+constants.AuthProofSize:], m.PublicKey)
	return buf, nil
}

// DecodeAuthResponse deserializes an AuthResponse message.
func (c *Codec) DecodeAuthResponse(data []byte) (*AuthResponse, error) {
	want := 1 + constants.AuthProofSize + constants.X25519KeySize
	if len(data) != want || MessageType(data[0]) != MessageTypeAuthResponse {
		return nil, glerrors.ErrInvalidEnvelope
	}
	m := &AuthResponse{
		Proof:     make([]byte, constants.AuthProofSize),
		PublicKey: make([]byte, constants.X25519KeySize),
	}
	copy(m.Proof, data[1:1+constants.AuthProofSize])
	copy(m.PublicKey, data[1+constants.AuthProofSize:])
	return m, nil
}

// EncodeKeyExchange serializes a KeyExchange message.
func (c *Codec) EncodeKeyExchange(m *KeyExchange) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, 1+constants.X25519KeySize)
	buf[0] = byte(MessageTypeKeyExchange)
	copy(buf[1:], m.PublicKey)
	return buf, nil
}

// DecodeKeyExchange deserializes a KeyExchange message.
func (c *Codec) DecodeKeyExchange(data []byte) (*KeyExchange, error) {
	if len(data) != 1+constants.X25519KeySize || MessageType(data[0]) != MessageTypeKeyExchange {
		return nil, glerrors.ErrInvalidEnvelope
	}
	m := &KeyExchange{PublicKey: make([]byte, constants.X25519KeySize)}
	copy(m.PublicKey, data[1:])
	return m, nil
}

// EncodeConfirm serializes a Confirm message.
func (c *Codec) EncodeConfirm(m *Confirm) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, 1+constants.ConfirmSize)
	buf[0] = byte(MessageTypeConfirm)
	copy(buf[1:], m.MAC)
	return buf, nil
}

// DecodeConfirm deserializes a Confirm message.
func (c *Codec) DecodeConfirm(data []byte) (*Confirm, error) {
	if len(data) != 1+constants.ConfirmSize || MessageType(data[0]) != MessageTypeConfirm {
		return nil, glerrors.ErrInvalidEnvelope
	}
	m := &Confirm{MAC: make([]byte, constants.ConfirmSize)}
	copy(m.MAC, data[1:])
	return m, nil
}

// EncodeRequest serializes a Request envelope.
func (c *Codec) EncodeRequest(m *Request) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	name := []byte(m.CommandName)
	buf := make([]byte, 1+8+1+len(name)+len(m.CommandData))
	buf[0] = byte(MessageTypeRequest)
	binary.BigEndian.PutUint64(buf[1:9], m.RequestID)
	buf[9] = byte(len(name))
	copy(buf[10:], name)
	copy(buf[10+len(name):], m.CommandData)
	return buf, nil
}

// DecodeRequest deserializes a Request envelope.
func (c *Codec) DecodeRequest(data []byte) (*Request, error) {
	if len(data) < 10 || MessageType(data[0]) != MessageTypeRequest {
		return nil, glerrors.ErrInvalidEnvelope
	}

	nameLen := int(data[9])
	if nameLen == 0 || len(data) < 10+nameLen {
		return nil, glerrors.ErrInvalidEnvelope
	}

	m := &Request{
		RequestID:   binary.BigEndian.Uint64(data[1:9]),
		CommandName: string(data[10 : 10+nameLen]),
	}
	if rest := data[10+nameLen:]; len(rest) > 0 {
		m.CommandData = make([]byte, len(rest))
		copy(m.CommandData, rest)
	}
	return m, nil
}

// EncodeResponse serializes a Response envelope.
func (c *Codec) EncodeResponse(m *Response) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	body := m.Result
	if m.Status != StatusOK {
		body = []byte(m.Error)
	}

	buf := make([]byte, 1+8+1+4+len(body))
	buf[0] = byte(MessageTypeResponse)
	binary.BigEndian.PutUint64(buf[1:9], m.RequestID)
	buf[9] = byte(m.Status)
	binary.BigEndian.PutUint32(buf[10:14], uint32(len(body)))
	copy(buf[14:], body)
	return buf, nil
}

// DecodeResponse deserializes a Response envelope.
func (c *Codec) DecodeResponse(data []byte) (*Response, error) {
	if len(data) < 14 || MessageType(data[0]) != MessageTypeResponse {
		return nil, glerrors.ErrInvalidEnvelope
	}

	bodyLen := binary.BigEndian.Uint32(data[10:14])
	if uint64(len(data)) != 14+uint64(bodyLen) {
		return nil, glerrors.ErrInvalidEnvelope
	}

	m := &Response{
		RequestID: binary.BigEndian.Uint64(data[1:9]),
		Status:    Status(data[9]),
	}

	body := data[14:]
	if m.Status == StatusOK {
		if len(body) > 0 {
			m.Result = make([]byte, len(body))
			copy(m.Result, body)
		}
	} else {
		if len(body) > constants.MaxErrorTextSize {
			return nil, glerrors.ErrEnvelopeTooLarge
		}
		m.Error = string(body)
	}
	return m, nil
}

// EncodeClose serializes a Close notification.
func (c *Codec) EncodeClose() []byte {
	return []byte{byte(MessageTypeClose)}
}
