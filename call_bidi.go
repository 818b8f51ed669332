package grpcchannel

import (
	"context"
	"sync"

	"google.golang.org/grpc"
)

// bidiWriteEntry is one FIFO-queued write or WritesDone marker, paired
// with the WriteAckReply it completes.
type bidiWriteEntry struct {
	data []byte
	done bool
	ack  *WriteAckReply
}

// bidiCall drives a bidirectional stream: independent read and write
// sides. Writes are strictly serialized — only one write (or
// WritesDone) tag is ever outstanding at a time — via a FIFO queue
// plus an inProcess flag, both only ever touched on the call's home
// actor.
type bidiCall struct {
	*callBase
	stream grpc.ClientStream

	mu        sync.Mutex
	queue     []bidiWriteEntry
	inProcess bool

	onData func(data []byte)
	onDone func(status *Status)
}

func newBidiCall(parent context.Context, method string, cq *completionQueue) *bidiCall {
	return &bidiCall{callBase: newCallBase(parent, method, cq)}
}

// start opens the stream and spawns the receive loop. Writes are
// submitted afterward via enqueueWrite/enqueueDone.
func (c *bidiCall) start(cc *grpc.ClientConn, onData func([]byte), onDone func(*Status)) error {
	stream, err := cc.NewStream(c.ctx, &grpc.StreamDesc{StreamName: c.method, ServerStreams: true, ClientStreams: true}, c.method, grpc.ForceCodecV2(rawFrameCodec{}))
	if err != nil {
		return err
	}
	c.stream = stream
	c.onData, c.onDone = onData, onDone
	c.ref()
	go c.recvLoop(stream)
	return nil
}

func (c *bidiCall) recvLoop(stream grpc.ClientStream) {
	for {
		resp := &Frame{}
		err := stream.RecvMsg(resp)
		if err != nil {
			c.cq.submit(tag{run: func(ok bool) {
				c.act.call(func() {
					c.setState(readerEnded)
					st := statusFromStreamEnd(err)
					c.setStatus(st)
					c.failPendingWrites(st)
					c.onDone(st)
					c.unref() // balances start's ref
					c.unref() // releases the seeded handle reference
				})
			}})
			return
		}
		data := resp.Data
		c.cq.submit(tag{ok: true, run: func(ok bool) {
			c.act.call(func() {
				if c.getState() == readerFirstCall {
					c.setState(readerProcessing)
				}
				c.onData(data)
			})
		}})
	}
}

// enqueueWrite appends a write to the FIFO and attempts to pump it.
func (c *bidiCall) enqueueWrite(data []byte, ack *WriteAckReply) {
	c.act.post(func() {
		c.mu.Lock()
		c.queue = append(c.queue, bidiWriteEntry{data: data, ack: ack})
		c.mu.Unlock()
		c.pump()
	})
}

// enqueueDone appends a WritesDone marker to the FIFO.
func (c *bidiCall) enqueueDone(ack *WriteAckReply) {
	c.act.post(func() {
		c.mu.Lock()
		c.queue = append(c.queue, bidiWriteEntry{done: true, ack: ack})
		c.mu.Unlock()
		c.pump()
	})
}

// pump runs on the home actor: if no write is currently in flight and
// the queue is non-empty, it submits the next entry's tag.
func (c *bidiCall) pump() {
	c.mu.Lock()
	if c.inProcess || len(c.queue) == 0 {
		c.mu.Unlock()
		return
	}
	entry := c.queue[0]
	c.queue = c.queue[1:]
	c.inProcess = true
	c.mu.Unlock()

	c.ref()
	go func() {
		var err error
		if entry.done {
			err = c.stream.CloseSend()
		} else {
			err = c.stream.SendMsg(&Frame{Data: entry.data})
		}
		c.cq.submit(tag{ok: err == nil, run: func(ok bool) {
			c.act.call(func() {
				c.mu.Lock()
				c.inProcess = false
				c.mu.Unlock()
				if err != nil {
					entry.ack.setStatus(WriteFailed)
					entry.ack.emitError(statusFromError(err))
				} else {
					entry.ack.setStatus(WriteOK)
				}
				entry.ack.emitFinished()
				c.unref()
				c.pump()
			})
		}})
	}()
}

// failPendingWrites fails every write still sitting in the FIFO queue
// with WriteFailed once the read side has ended: each queued reply
// gets its error and finished fired. An entry already in flight
// resolves on its own through pump's tag callback.
func (c *bidiCall) failPendingWrites(st *Status) {
	c.mu.Lock()
	pending := c.queue
	c.queue = nil
	c.mu.Unlock()
	for _, entry := range pending {
		entry.ack.setStatus(WriteFailed)
		entry.ack.emitError(st)
		entry.ack.emitFinished()
	}
}
