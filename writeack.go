package grpcchannel

import (
	"context"
	"sync"

	"google.golang.org/grpc/codes"
)

// WriteStatus is the terminal state of a single write acknowledgement.
type WriteStatus int

const (
	// WriteInProcess is the initial state of a live write.
	WriteInProcess WriteStatus = iota
	// WriteOK means the write completed successfully.
	WriteOK
	// WriteFailed means the write failed, locally or on the peer.
	WriteFailed
	// WriteNotConnected means the write was issued with no stream
	// attached; it is a terminal initial state.
	WriteNotConnected
)

func (s WriteStatus) String() string {
	switch s {
	case WriteOK:
		return "OK"
	case WriteFailed:
		return "Failed"
	case WriteInProcess:
		return "InProcess"
	case WriteNotConnected:
		return "NotConnected"
	default:
		return "Unknown"
	}
}

// WriteAckReply is the per-write handle created at submission time by
// the writable operation and mutated exactly once, by the bidi call
// that owns the write, when the write tag completes.
type WriteAckReply struct {
	mu       sync.Mutex
	status   WriteStatus
	err      *Status
	finished chan struct{}
}

// newWriteAckReply creates a reply in the InProcess state, or in the
// terminal NotConnected state if connected is false — firing error
// then finished synchronously.
func newWriteAckReply(connected bool) *WriteAckReply {
	r := &WriteAckReply{status: WriteInProcess, finished: make(chan struct{})}
	if !connected {
		r.setStatus(WriteNotConnected)
		r.emitError(NewStatus(codes.Unavailable, "No channel(s) attached."))
		r.emitFinished()
	}
	return r
}

// Status returns the reply's current terminal or in-process state.
func (r *WriteAckReply) Status() WriteStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// OK reports whether the write completed successfully.
func (r *WriteAckReply) OK() bool { return r.Status() == WriteOK }

// Err returns the Status carried by a Failed or NotConnected reply, or
// nil if the write has not failed.
func (r *WriteAckReply) Err() *Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Done returns a channel closed once the reply reaches a terminal
// state, for callers that want to poll rather than block.
func (r *WriteAckReply) Done() <-chan struct{} { return r.finished }

// Wait blocks until the reply is terminal or ctx is done.
func (r *WriteAckReply) Wait(ctx context.Context) (WriteStatus, error) {
	select {
	case <-r.finished:
		return r.Status(), nil
	case <-ctx.Done():
		return r.Status(), ctx.Err()
	}
}

func (r *WriteAckReply) setStatus(status WriteStatus) {
	r.mu.Lock()
	r.status = status
	r.mu.Unlock()
}

func (r *WriteAckReply) emitError(status *Status) {
	r.mu.Lock()
	r.err = status
	r.mu.Unlock()
}

func (r *WriteAckReply) emitFinished() {
	select {
	case <-r.finished:
	default:
		close(r.finished)
	}
}
