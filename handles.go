package grpcchannel

import (
	"context"
	"sync"

	bigbuff "github.com/joeycumines/go-bigbuff"
	"google.golang.org/grpc/codes"
)

// CallReply is the user-facing handle for a unary call:
// Data/Finished/SubscribeErrors straight off asyncOperation, no
// retry or dedup concern since a unary call has no persistent
// identity beyond its own lifetime.
type CallReply struct {
	*asyncOperation
	call *unaryCall
}

// Status returns the call's terminal status.
func (r *CallReply) Status() *Status { return r.call.Status() }

// Abort cancels the in-flight call.
func (r *CallReply) Abort() { r.call.Cancel() }

// Stream is the persistent user-facing handle for a server-streaming
// call. Unlike CallReply it survives a Client-level retry: retry
// replaces current (the live *serverStreamCall) under mu, while
// dataReady/errs/finished remain the same objects a caller subscribed
// to before the retry happened.
type Stream struct {
	*asyncOperation
	dataReady bigbuff.Notifier

	mu      sync.Mutex
	current *serverStreamCall

	method      string
	requestData []byte
}

func newStream(method string, requestData []byte) *Stream {
	return &Stream{asyncOperation: newAsyncOperation(), method: method, requestData: requestData}
}

// dedupKey identifies streams that should be collapsed into one
// underlying call, keyed by method and serialized request.
func (s *Stream) dedupKey() string { return s.method + "\x00" + string(s.requestData) }

// Equal reports whether s and other would dedup to the same
// underlying stream.
func (s *Stream) Equal(other *Stream) bool {
	if other == nil {
		return false
	}
	return s.dedupKey() == other.dedupKey()
}

func (s *Stream) attach(call *serverStreamCall) {
	s.mu.Lock()
	s.current = call
	s.mu.Unlock()
}

func (s *Stream) liveCall() *serverStreamCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SubscribeData registers target (a channel accepting []byte) for
// every received message, for as long as this stream exists across
// any number of retries.
func (s *Stream) SubscribeData(ctx context.Context, target any) context.CancelFunc {
	return s.dataReady.SubscribeCancel(ctx, nil, target)
}

// Abort cancels the currently-live attempt, if any.
func (s *Stream) Abort() {
	if call := s.liveCall(); call != nil {
		call.Cancel()
	}
}

// Status returns the currently-live attempt's status, or an OK status
// if no attempt has ever been attached.
func (s *Stream) Status() *Status {
	if call := s.liveCall(); call != nil {
		return call.Status()
	}
	return OkStatus()
}

// BidiStream is the persistent user-facing handle for a bidirectional
// call: a Stream plus a writableOperation whose
// appendWrite/appendDone always target whichever *bidiCall is
// currently live, so a retry never invalidates an in-flight Write
// caller is holding a WriteAckReply for.
type BidiStream struct {
	*writableOperation
	dataReady bigbuff.Notifier

	mu      sync.Mutex
	current *bidiCall

	method string
}

func newBidiStream(method string, codec Codec) *BidiStream {
	b := &BidiStream{method: method}
	b.writableOperation = newWritableOperation(codec,
		func(ctx context.Context, data []byte) *WriteAckReply {
			call := b.liveCall()
			if call == nil {
				return newWriteAckReply(false)
			}
			ack := &WriteAckReply{status: WriteInProcess, finished: make(chan struct{})}
			call.enqueueWrite(data, ack)
			return ack
		},
		func(ctx context.Context) *WriteAckReply {
			call := b.liveCall()
			if call == nil {
				return newWriteAckReply(false)
			}
			ack := &WriteAckReply{status: WriteInProcess, finished: make(chan struct{})}
			call.enqueueDone(ack)
			return ack
		},
	)
	return b
}

// dedupKey identifies bidi streams that should be collapsed into one
// underlying call, keyed by method alone.
func (b *BidiStream) dedupKey() string { return b.method }

// Equal reports whether b and other would dedup to the same
// underlying stream.
func (b *BidiStream) Equal(other *BidiStream) bool {
	if other == nil {
		return false
	}
	return b.dedupKey() == other.dedupKey()
}

func (b *BidiStream) attach(call *bidiCall) {
	b.mu.Lock()
	b.current = call
	b.mu.Unlock()
}

func (b *BidiStream) liveCall() *bidiCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// SubscribeData registers target (a channel accepting []byte) for
// every received message, across any number of retries.
func (b *BidiStream) SubscribeData(ctx context.Context, target any) context.CancelFunc {
	return b.dataReady.SubscribeCancel(ctx, nil, target)
}

// Abort cancels the currently-live attempt, if any.
func (b *BidiStream) Abort() {
	if call := b.liveCall(); call != nil {
		call.Cancel()
	}
}

// Status returns the currently-live attempt's status, or an OK status
// if no attempt has ever been attached.
func (b *BidiStream) Status() *Status {
	if call := b.liveCall(); call != nil {
		return call.Status()
	}
	return OkStatus()
}

// forwardServerStreamData publishes a received message into a
// Stream's persistent Data/dataReady, without regard to which attempt
// it came from.
func forwardServerStreamData(ctx context.Context, s *Stream, data []byte) {
	s.setData(data)
	s.dataReady.PublishContext(ctx, nil, data)
}

// forwardBidiData is the bidi twin of forwardServerStreamData.
func forwardBidiData(ctx context.Context, b *BidiStream, data []byte) {
	b.setData(data)
	b.dataReady.PublishContext(ctx, nil, data)
}

// isTerminalStreamEnd classifies whether a finished attempt's status
// terminates the persistent handle (no retry) or is merely transient
// (error fires, retry is scheduled), shared by both stream kinds.
func isTerminalStreamEnd(st *Status) bool {
	switch st.Code() {
	case codes.OK, codes.Aborted, codes.Canceled:
		return true
	default:
		return false
	}
}
