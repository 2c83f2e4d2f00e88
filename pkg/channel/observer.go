package channel

import "context"

// Observer provides hooks for channel lifecycle, metrics, and tracing.
// Implementations should be lightweight; callbacks may run on hot paths.
type Observer interface {
	OnHandshakeStart(ctx context.Context) (context.Context, func(error))
	OnEstablished()
	OnClosed()
	OnEncrypt(ctx context.Context, plaintextLen int) (context.Context, func(error))
	OnDecrypt(ctx context.Context, envelopeLen int) (context.Context, func(error))
	OnReplayDetected()
	OnAuthFailure()
	OnRateLimited()
	OnProtocolError(err error)
}

// NopObserver is the default Observer; every hook is a no-op.
type NopObserver struct{}

func (NopObserver) OnHandshakeStart(ctx context.Context) (context.Context, func(error)) {
	return ctx, func(error) {}
}
func (NopObserver) OnEstablished() {}
func (NopObserver) OnClosed()      {}
func (NopObserver) OnEncrypt(ctx context.Context, plaintextLen int) (context.Context, func(error)) {
	return ctx, func(error) {}
}
func (NopObserver) OnDecrypt(ctx context.Context, envelopeLen int) (context.Context, func(error)) {
	return ctx, func(error) {}
}
func (NopObserver) OnReplayDetected()         {}
func (NopObserver) OnAuthFailure()            {}
func (NopObserver) OnRateLimited()            {}
func (NopObserver) OnProtocolError(err error) {}
