package grpcchannel

import (
	"context"

	"google.golang.org/grpc"
)

// serverStreamCall drives one request, many responses. The single
// request is sent eagerly at start; the read loop then submits one
// tag per received message plus a final tag carrying the stream's
// terminal status (grpc-go folds that status into the error returned
// by the last RecvMsg).
type serverStreamCall struct {
	*callBase
	onData func(data []byte)
	onDone func(status *Status)
}

func newServerStreamCall(parent context.Context, method string, cq *completionQueue) *serverStreamCall {
	return &serverStreamCall{callBase: newCallBase(parent, method, cq)}
}

// start opens the stream, sends the single request, and spawns the
// receive loop. onData is invoked (on the call's home actor) once per
// received message; onDone is invoked exactly once, with the stream's
// terminal status.
func (c *serverStreamCall) start(cc *grpc.ClientConn, requestData []byte, onData func([]byte), onDone func(*Status)) error {
	stream, err := cc.NewStream(c.ctx, &grpc.StreamDesc{StreamName: c.method, ServerStreams: true}, c.method, grpc.ForceCodecV2(rawFrameCodec{}))
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&Frame{Data: requestData}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	c.onData, c.onDone = onData, onDone
	c.ref()
	go c.recvLoop(stream)
	return nil
}

func (c *serverStreamCall) recvLoop(stream grpc.ClientStream) {
	for {
		resp := &Frame{}
		err := stream.RecvMsg(resp)
		if err != nil {
			c.cq.submit(tag{run: func(ok bool) {
				c.act.call(func() {
					c.setState(readerEnded)
					st := statusFromStreamEnd(err)
					c.setStatus(st)
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
