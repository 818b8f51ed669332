package grpcchannel

import (
	"context"
	"sync"

	bigbuff "github.com/joeycumines/go-bigbuff"
)

// asyncOperation is the common contract for any in-flight RPC:
// carries the received byte buffer, exposes terminal signals, and
// protects mutable state with a mutex. finished fires exactly once;
// error may fire zero or more times strictly before it.
type asyncOperation struct {
	mu       sync.Mutex
	data     []byte
	finished chan struct{}
	errs     bigbuff.Notifier
}

func newAsyncOperation() *asyncOperation {
	return &asyncOperation{finished: make(chan struct{})}
}

// Data returns the last received message bytes.
func (a *asyncOperation) Data() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.data
}

func (a *asyncOperation) setData(data []byte) {
	a.mu.Lock()
	a.data = data
	a.mu.Unlock()
}

// Finished returns a channel closed exactly once, after the operation
// reaches a terminal state.
func (a *asyncOperation) Finished() <-chan struct{} { return a.finished }

// SubscribeErrors registers target (a channel accepting *Status) to
// receive every error signal fired before Finished closes. The
// returned cancel func must be called, unless ctx is cancelled first.
func (a *asyncOperation) SubscribeErrors(ctx context.Context, target any) context.CancelFunc {
	return a.errs.SubscribeCancel(ctx, nil, target)
}

func (a *asyncOperation) emitError(ctx context.Context, status *Status) {
	a.errs.PublishContext(ctx, nil, status)
}

func (a *asyncOperation) emitFinished() {
	a.mu.Lock()
	select {
	case <-a.finished:
	default:
		close(a.finished)
	}
	a.mu.Unlock()
}
