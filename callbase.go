package grpcchannel

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// readerState tracks a per-call state machine's read-side progress:
// every call starts at readerFirstCall, moves to readerProcessing
// once the first read tag lands, and reaches readerEnded exactly
// once, on the terminal tag.
type readerState int32

const (
	readerFirstCall readerState = iota
	readerProcessing
	readerEnded
)

// callBase is the state shared by all three per-call state machines:
// a home actor, a reference count keeping the call alive while tags
// are outstanding, and the call's terminal Status. Concrete call
// types (unary, server-stream, bidi) embed it and add their own
// read/write shape on top.
type callBase struct {
	method string
	ctx    context.Context
	cancel context.CancelFunc
	cq     *completionQueue
	act    *actor

	mu    sync.Mutex
	state readerState

	refs     int32
	zeroOnce sync.Once
	onZero   func()

	status *Status
}

func newCallBase(parent context.Context, method string, cq *completionQueue) *callBase {
	ctx, cancel := context.WithCancel(parent)
	return &callBase{
		method: method,
		ctx:    ctx,
		cancel: cancel,
		cq:     cq,
		act:    newActor(),
		refs:   1,
		status: OkStatus(),
	}
}

// ref increments the tag/strong-reference count. start takes one
// reference covering the whole exchange (for streams, the read loop
// and all of its tags), each bidi write or WritesDone takes one more,
// and newCallBase seeds one for the strong handle the Channel hands
// back; release that seeded reference with a matching unref() once
// the call reaches its own terminal completion (see
// call_unary.go/call_serverstream.go/call_bidi.go).
func (c *callBase) ref() { atomic.AddInt32(&c.refs, 1) }

// unref decrements the reference count and tears the call down, at
// most once, when it reaches zero.
func (c *callBase) unref() {
	if atomic.AddInt32(&c.refs, -1) == 0 {
		c.zeroOnce.Do(func() {
			c.cancel()
			c.act.stop()
			if c.onZero != nil {
				c.onZero()
			}
		})
	}
}

// Method returns the fully-qualified RPC method this call targets.
func (c *callBase) Method() string { return c.method }

// Status returns the call's terminal (or current, pre-terminal)
// Status, safe for concurrent access.
func (c *callBase) Status() *Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status.Clone()
}

func (c *callBase) setStatus(s *Status) {
	c.mu.Lock()
	c.status.CopyFrom(s)
	c.mu.Unlock()
}

func (c *callBase) setState(s readerState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *callBase) getState() readerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Cancel requests cancellation of the in-flight RPC; the resulting
// terminal status observed by the read loop will carry
// codes.Canceled.
func (c *callBase) Cancel() { c.cancel() }

// statusFromError classifies a gRPC-surfaced error into a Status,
// collapsing io.EOF (grpc-go's "no more messages" sentinel) to OK.
func statusFromError(err error) *Status {
	if err == nil || errors.Is(err, io.EOF) {
		return OkStatus()
	}
	st, ok := status.FromError(err)
	if !ok {
		return NewStatus(codes.Unknown, err.Error())
	}
	return NewStatus(st.Code(), st.Message())
}

// statusFromStreamEnd classifies the error returned by the terminal
// RecvMsg on a stream, where grpc-go folds the final trailer status
// into that call's return value instead of delivering it as a
// separate completion event.
func statusFromStreamEnd(err error) *Status { return statusFromError(err) }
