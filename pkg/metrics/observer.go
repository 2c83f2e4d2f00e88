package metrics

import (
	"context"
	"sync/atomic"
)

// ChannelObserver implements the channel engine's Observer interface,
// opening a span per handshake/encrypt/decrypt and counting security
// events. A nil tracer falls back to NoOpTracer.
type ChannelObserver struct {
	tracer Tracer

	handshakes     atomic.Uint64
	established    atomic.Uint64
	closed         atomic.Uint64
	replays        atomic.Uint64
	authFailures   atomic.Uint64
	rateLimited    atomic.Uint64
	protocolErrors atomic.Uint64
}

// NewChannelObserver creates an observer backed by tracer.
func NewChannelObserver(tracer Tracer) *ChannelObserver {
	if tracer == nil {
		tracer = NoOpTracer{}
	}
	return &ChannelObserver{tracer: tracer}
}

func (o *ChannelObserver) OnHandshakeStart(ctx context.Context) (context.Context, func(error)) {
	o.handshakes.Add(1)
	ctx, end := o.tracer.StartSpan(ctx, "channel.handshake", WithSpanKind(SpanKindInternal))
	return ctx, func(err error) { end(err) }
}

func (o *ChannelObserver) OnEstablished() {
	o.established.Add(1)
}

func (o *ChannelObserver) OnClosed() {
	o.closed.Add(1)
}

func (o *ChannelObserver) OnEncrypt(ctx context.Context, plaintextLen int) (context.Context, func(error)) {
	ctx, end := o.tracer.StartSpan(ctx, "channel.encrypt",
		WithAttributes(map[string]interface{}{"plaintext_bytes": plaintextLen}))
	return ctx, func(err error) { end(err) }
}

func (o *ChannelObserver) OnDecrypt(ctx context.Context, envelopeLen int) (context.Context, func(error)) {
	ctx, end := o.tracer.StartSpan(ctx, "channel.decrypt",
		WithAttributes(map[string]interface{}{"envelope_bytes": envelopeLen}))
	return ctx, func(err error) { end(err) }
}

func (o *ChannelObserver) OnReplayDetected() {
	o.replays.Add(1)
}

func (o *ChannelObserver) OnAuthFailure() {
	o.authFailures.Add(1)
}

func (o *ChannelObserver) OnRateLimited() {
	o.rateLimited.Add(1)
}

func (o *ChannelObserver) OnProtocolError(err error) {
	o.protocolErrors.Add(1)
}

// Counters is a snapshot of the observer's event counts.
type Counters struct {
	Handshakes     uint64
	Established    uint64
	Closed         uint64
	Replays        uint64
	AuthFailures   uint64
	RateLimited    uint64
	ProtocolErrors uint64
}

// Counters returns the current event counts.
func (o *ChannelObserver) Counters() Counters {
	return Counters{
		Handshakes:     o.handshakes.Load(),
		Established:    o.established.Load(),
		Closed:         o.closed.Load(),
		Replays:        o.replays.Load(),
		AuthFailures:   o.authFailures.Load(),
		RateLimited:    o.rateLimited.Load(),
		ProtocolErrors: o.protocolErrors.Load(),
	}
}
