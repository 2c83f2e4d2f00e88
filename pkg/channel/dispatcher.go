// dispatcher.go implements the Engine: the per-connection owner of the
// transport, session, handshake, rate limiter and request/response
// correlation.
//
// Concurrency model: one reader loop per connection processes inbound
// frames strictly sequentially, because counter verification depends on
// arrival order. Command handlers run on their own goroutines so a slow
// handler never blocks frame reading; each response carries its own
// request_id, so out-of-order completion is safe. Outbound sealing and
// writing happen under a single writer mutex: the transport is one ordered
// byte stream and the send counter must be observed on the wire in the
// order it was assigned.
package channel

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/mkorchagin/guestlink/internal/config"
	"github.com/mkorchagin/guestlink/internal/constants"
	glerrors "github.com/mkorchagin/guestlink/internal/errors"
	"github.com/mkorchagin/guestlink/pkg/frame"
	"github.com/mkorchagin/guestlink/pkg/logging"
	"github.com/mkorchagin/guestlink/pkg/protocol"
)

// Handler processes one inbound command. Handlers may be slow; the engine
// invokes them off the reader loop and bounds them with the configured
// command timeout through ctx. The returned bytes become the response
// result; a returned error is reported to the peer as an error response.
type Handler func(ctx context.Context, command string, data []byte) ([]byte, error)

// RemoteError carries a handler failure reported by the peer.
type RemoteError struct {
	Text string
}

func (e *RemoteError) Error() string {
	return "remote: " + e.Text
}

// Engine is the top-level state machine for one host<->guest connection.
// It owns its Session and configuration; nothing is shared across
// connections.
type Engine struct {
	role      Role
	transport io.ReadWriteCloser
	cfg       config.Config
	log       zerolog.Logger
	observer  Observer

	frames  *frame.Codec
	codec   *protocol.Codec
	session *Session
	limiter *SlidingWindowLimiter

	authToken []byte

	// writeMu serializes seal+write so counters appear on the wire in
	// assignment order.
	writeMu sync.Mutex

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	pendingMu sync.Mutex
	pending   map[uint64]*pendingRequest
	nextID    atomic.Uint64

	closeOnce sync.Once
	done      chan struct{}
}

// pendingRequest tracks one outstanding request on the issuing side.
type pendingRequest struct {
	id       uint64
	sentAt   time.Time
	deadline time.Time
	done     chan callResult
}

type callResult struct {
	data []byte
	err  error
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger injects a logger; the default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// WithObserver installs lifecycle and crypto hooks.
func WithObserver(observer Observer) Option {
	return func(e *Engine) {
		e.observer = observer
	}
}

// NewEngine creates the protocol engine for one connection. The transport
// is an ordered, reliable byte stream opened by the caller; the AuthToken
// is the out-of-band shared secret binding the handshake to this guest.
func NewEngine(role Role, transport io.ReadWriteCloser, authToken []byte, cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	session, err := NewSession(role)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		role:      role,
		transport: transport,
		cfg:       cfg,
		log:       logging.Nop(),
		observer:  NopObserver{},
		frames:    frame.NewCodec(cfg.MaxFrameSize),
		codec:     protocol.NewCodec(),
		session:   session,
		limiter:   NewSlidingWindowLimiter(cfg.RateLimitMaxRequests, cfg.RateLimitWindow),
		authToken: authToken,
		handlers:  make(map[string]Handler),
		pending:   make(map[uint64]*pendingRequest),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With().Str("role", role.String()).Logger()
	e.session.SetObserver(e.observer)

	// Built-in liveness probe; callers may override it.
	e.handlers["ping"] = func(ctx context.Context, command string, data []byte) ([]byte, error) {
		return []byte("pong"), nil
	}

	return e, nil
}

// Session exposes the engine's session for state and statistics.
func (e *Engine) Session() *Session {
	return e.session
}

// RegisterHandler installs the handler for a command name, replacing any
// previous one. Handlers registered after Serve starts take effect for
// subsequent requests.
func (e *Engine) RegisterHandler(command string, h Handler) {
	e.handlersMu.Lock()
	defer e.handlersMu.Unlock()
	e.handlers[command] = h
}

// Handshake drives the key exchange to Established or tears the
// connection down. It must complete before Serve or Call.
func (e *Engine) Handshake(ctx context.Context) error {
	hs, err := NewHandshake(e.session, e.authToken)
	if err != nil {
		e.teardown(err)
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.HandshakeTimeout)
	defer cancel()

	_, finish := e.observer.OnHandshakeStart(ctx)

	errc := make(chan error, 1)
	go func() {
		if e.role == RoleHost {
			errc <- e.runHostHandshake(hs)
		} else {
			errc <- e.runGuestHandshake(hs)
		}
	}()

	select {
	case err := <-errc:
		finish(err)
		if err != nil {
			e.log.Error().Err(err).Msg("handshake failed")
			e.teardown(err)
			return err
		}
		e.log.Info().Msg("channel established")
		return nil
	case <-ctx.Done():
		err := glerrors.NewProtocolError("handshake", glerrors.ErrHandshakeTimeout)
		finish(err)
		e.log.Error().Err(err).Msg("handshake timed out")
		// Closing the transport unblocks the step goroutine.
		e.teardown(err)
		<-errc
		return err
	}
}

func (e *Engine) runHostHandshake(hs *Handshake) error {
	hello, err := hs.CreateHello()
	if err != nil {
		return err
	}
	if err := e.writePlain(hello); err != nil {
		return err
	}

	authResp, err := e.readHandshakePayload()
	if err != nil {
		return err
	}
	if err := hs.ProcessAuthResponse(authResp); err != nil {
		return err
	}

	keyExchange, err := hs.CreateKeyExchange()
	if err != nil {
		return err
	}
	if err := e.writePlain(keyExchange); err != nil {
		return err
	}

	confirm, err := e.readHandshakePayload()
	if err != nil {
		return err
	}
	return hs.ProcessConfirm(confirm)
}

func (e *Engine) runGuestHandshake(hs *Handshake) error {
	hello, err := e.readHandshakePayload()
	if err != nil {
		return err
	}
	if err := hs.ProcessHello(hello); err != nil {
		return err
	}

	authResp, err := hs.CreateAuthResponse()
	if err != nil {
		return err
	}
	if err := e.writePlain(authResp); err != nil {
		return err
	}

	keyExchange, err := e.readHandshakePayload()
	if err != nil {
		return err
	}
	if err := hs.ProcessKeyExchange(keyExchange); err != nil {
		return err
	}

	confirm, err := hs.CreateConfirm()
	if err != nil {
		return err
	}
	return e.writePlain(confirm)
}

// readHandshakePayload reads one plaintext handshake frame.
func (e *Engine) readHandshakePayload() ([]byte, error) {
	f, err := e.frames.ReadFrame(e.transport)
	if err != nil {
		if err == io.EOF {
			return nil, glerrors.ErrChannelClosed
		}
		return nil, err
	}
	if f.IsEncrypted() {
		return nil, glerrors.NewProtocolError("handshake", glerrors.ErrInvalidState)
	}
	return f.Payload, nil
}

// Serve runs the reader loop until the connection fails or closes. It
// must be called exactly once, after a successful Handshake. Recoverable
// conditions (rate limiting, unknown commands, late responses) are
// handled in place; any framing or authentication failure tears the
// connection down and is returned.
func (e *Engine) Serve(ctx context.Context) error {
	if e.session.State() != SessionStateEstablished {
		return glerrors.ErrInvalidState
	}

	stop := context.AfterFunc(ctx, func() {
		e.teardown(ctx.Err())
	})
	defer stop()

	for {
		f, err := e.frames.ReadFrame(e.transport)
		if err != nil {
			if e.isClosed() || err == io.EOF {
				e.teardown(nil)
				return glerrors.ErrChannelClosed
			}
			e.observer.OnProtocolError(err)
			e.log.Error().Err(err).Msg("read failed, closing channel")
			e.teardown(err)
			return err
		}

		// Every post-handshake frame must be encrypted.
		if !f.IsEncrypted() {
			err := glerrors.NewProtocolError("dispatch", glerrors.ErrInvalidState)
			e.observer.OnProtocolError(err)
			e.teardown(err)
			return err
		}

		plaintext, _, err := e.session.Decrypt(f.Payload)
		if err != nil {
			e.log.Error().Err(err).Msg("decrypt failed, closing channel")
			e.teardown(err)
			return err
		}

		msgType, err := e.codec.PeekType(plaintext)
		if err != nil {
			e.observer.OnProtocolError(err)
			e.log.Warn().Err(err).Msg("dropping empty envelope")
			continue
		}

		// The response flag lives in the frame header, outside the AEAD.
		// The authenticated type tag is the source of truth; a frame whose
		// flag contradicts it is dropped, never dispatched.
		if f.IsResponse() != (msgType == protocol.MessageTypeResponse) {
			e.observer.OnProtocolError(glerrors.ErrInvalidEnvelope)
			e.log.Warn().
				Str("type", msgType.String()).
				Bool("response_flag", f.IsResponse()).
				Msg("dropping envelope with mismatched response flag")
			continue
		}

		switch msgType {
		case protocol.MessageTypeRequest:
			e.handleRequest(ctx, plaintext)
		case protocol.MessageTypeResponse:
			e.handleResponse(plaintext)
		case protocol.MessageTypeClose:
			e.log.Info().Msg("peer closed channel")
			e.teardown(nil)
			return glerrors.ErrChannelClosed
		default:
			// Authenticated but unrecognized; a newer peer may be
			// speaking. Not a tampering signal, so drop and log.
			e.observer.OnProtocolError(glerrors.ErrInvalidEnvelope)
			e.log.Warn().Str("type", msgType.String()).Msg("dropping unknown message type")
		}
	}
}

// handleRequest rate-limits, resolves and dispatches one inbound request.
func (e *Engine) handleRequest(ctx context.Context, plaintext []byte) {
	req, err := e.codec.DecodeRequest(plaintext)
	if err != nil {
		e.observer.OnProtocolError(err)
		e.log.Warn().Err(err).Msg("dropping malformed request envelope")
		return
	}

	if !e.limiter.TryAcquire() {
		e.observer.OnRateLimited()
		e.log.Warn().
			Uint64("request_id", req.RequestID).
			Str("command", req.CommandName).
			Msg("rate limited")
		e.respondError(req.RequestID, protocol.StatusRateLimited, "rate limited")
		return
	}

	e.handlersMu.RLock()
	handler, ok := e.handlers[req.CommandName]
	e.handlersMu.RUnlock()
	if !ok {
		e.log.Warn().
			Uint64("request_id", req.RequestID).
			Str("command", req.CommandName).
			Msg("unknown command")
		e.respondError(req.RequestID, protocol.StatusUnknownCommand,
			fmt.Sprintf("unknown command %q", req.CommandName))
		return
	}

	// Handlers run concurrently with continued frame reading.
	go func() {
		hctx, cancel := context.WithTimeout(ctx, e.cfg.CommandTimeout)
		defer cancel()

		result, err := handler(hctx, req.CommandName, req.CommandData)
		if err != nil {
			e.respondError(req.RequestID, protocol.StatusError, err.Error())
			return
		}
		e.respond(&protocol.Response{
			RequestID: req.RequestID,
			Status:    protocol.StatusOK,
			Result:    result,
		})
	}()
}

// handleResponse correlates one inbound response with its pending
// request. A response with no pending entry (already timed out, or
// unknown) is discarded and logged; this is not fatal.
func (e *Engine) handleResponse(plaintext []byte) {
	resp, err := e.codec.DecodeResponse(plaintext)
	if err != nil {
		e.observer.OnProtocolError(err)
		e.log.Warn().Err(err).Msg("dropping malformed response envelope")
		return
	}

	e.pendingMu.Lock()
	p, ok := e.pending[resp.RequestID]
	if ok {
		delete(e.pending, resp.RequestID)
	}
	e.pendingMu.Unlock()

	if !ok {
		e.log.Debug().
			Uint64("request_id", resp.RequestID).
			Msg("discarding response with no pending request")
		return
	}

	switch resp.Status {
	case protocol.StatusOK:
		p.done <- callResult{data: resp.Result}
	case protocol.StatusRateLimited:
		p.done <- callResult{err: glerrors.ErrRateLimited}
	case protocol.StatusUnknownCommand:
		p.done <- callResult{err: glerrors.ErrUnknownCommand}
	default:
		p.done <- callResult{err: &RemoteError{Text: resp.Error}}
	}
}

// Call issues a request and waits for the correlated response. It fails
// with ErrTimeout after the command timeout, with ErrChannelClosed if the
// connection tears down first, or with ctx's error if ctx ends. The
// engine never retries; retry policy belongs to the caller.
func (e *Engine) Call(ctx context.Context, command string, data []byte) ([]byte, error) {
	if e.session.State() != SessionStateEstablished {
		return nil, glerrors.ErrInvalidState
	}

	id := e.nextID.Add(1)
	payload, err := e.codec.EncodeRequest(&protocol.Request{
		RequestID:   id,
		CommandName: command,
		CommandData: data,
	})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	p := &pendingRequest{
		id:       id,
		sentAt:   now,
		deadline: now.Add(e.cfg.CommandTimeout),
		done:     make(chan callResult, 1),
	}

	e.pendingMu.Lock()
	if e.isClosed() {
		e.pendingMu.Unlock()
		return nil, glerrors.ErrChannelClosed
	}
	e.pending[id] = p
	e.pendingMu.Unlock()

	if err := e.sendEnvelope(payload, false); err != nil {
		e.removePending(id)
		return nil, err
	}

	timer := time.NewTimer(e.cfg.CommandTimeout)
	defer timer.Stop()

	select {
	case r := <-p.done:
		return r.data, r.err
	case <-timer.C:
		e.removePending(id)
		e.log.Warn().Uint64("request_id", id).Str("command", command).Msg("request timed out")
		return nil, glerrors.ErrTimeout
	case <-ctx.Done():
		e.removePending(id)
		return nil, ctx.Err()
	case <-e.done:
		return nil, glerrors.ErrChannelClosed
	}
}

// Close sends a best-effort close notification, tears down the session
// and closes the transport. All in-flight requests resolve with
// ErrChannelClosed.
func (e *Engine) Close() error {
	if !e.isClosed() && e.session.State() == SessionStateEstablished {
		_ = e.sendEnvelope(e.codec.EncodeClose(), false)
	}
	e.teardown(nil)
	return nil
}

// --- internals ---

func (e *Engine) respond(resp *protocol.Response) {
	payload, err := e.codec.EncodeResponse(resp)
	if err != nil {
		e.log.Warn().Err(err).Uint64("request_id", resp.RequestID).Msg("could not encode response")
		return
	}
	if err := e.sendEnvelope(payload, true); err != nil {
		e.log.Debug().Err(err).Uint64("request_id", resp.RequestID).Msg("could not send response")
	}
}

func (e *Engine) respondError(id uint64, status protocol.Status, text string) {
	e.respond(&protocol.Response{RequestID: id, Status: status, Error: text})
}

// sendEnvelope seals plaintext and writes the frame. Seal and write stay
// under one mutex so counter order matches wire order.
func (e *Engine) sendEnvelope(plaintext []byte, response bool) error {
	flags := constants.FlagEncrypted
	if response {
		flags |= constants.FlagResponse
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if e.isClosed() {
		return glerrors.ErrChannelClosed
	}

	envelope, _, err := e.session.Encrypt(plaintext)
	if err != nil {
		return err
	}
	return e.frames.WriteFrame(e.transport, envelope, flags)
}

// writePlain writes an unencrypted handshake frame.
func (e *Engine) writePlain(payload []byte) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	return e.frames.WriteFrame(e.transport, payload, 0)
}

func (e *Engine) removePending(id uint64) {
	e.pendingMu.Lock()
	delete(e.pending, id)
	e.pendingMu.Unlock()
}

func (e *Engine) isClosed() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// teardown closes the session and transport exactly once and fails every
// in-flight request with ErrChannelClosed.
func (e *Engine) teardown(cause error) {
	e.closeOnce.Do(func() {
		close(e.done)
		e.session.Close()
		_ = e.transport.Close()

		e.pendingMu.Lock()
		for id, p := range e.pending {
			delete(e.pending, id)
			p.done <- callResult{err: glerrors.ErrChannelClosed}
		}
		e.pendingMu.Unlock()

		if cause != nil {
			e.log.Info().Err(cause).Msg("channel torn down")
		} else {
			e.log.Info().Msg("channel closed")
		}
	})
}
