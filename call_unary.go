package grpcchannel

import (
	"context"

	"google.golang.org/grpc"
)

// unaryCall drives a single request/response RPC. grpc-go's
// ClientConn.Invoke already merges a separate create/read/finish tag
// sequence into one blocking call, so the submitted tag here
// represents that whole unary exchange.
type unaryCall struct {
	*callBase
}

func newUnaryCall(parent context.Context, method string, cq *completionQueue) *unaryCall {
	return &unaryCall{callBase: newCallBase(parent, method, cq)}
}

// start issues the RPC on its own goroutine (standing in for
// submitting a tag to the native completion queue) and, on
// completion, submits a tag that the queue worker redispatches onto
// this call's home actor, where the terminal status and received
// bytes are published into reply.
func (c *unaryCall) start(cc *grpc.ClientConn, requestData []byte, reply *asyncOperation) {
	c.ref()
	go func() {
		req := &Frame{Data: requestData}
		resp := &Frame{}
		err := cc.Invoke(c.ctx, c.method, req, resp, grpc.ForceCodecV2(rawFrameCodec{}))
		c.cq.submit(tag{ok: err == nil, run: func(ok bool) {
			c.act.call(func() {
				c.setState(readerProcessing)
				c.setState(readerEnded)
				st := statusFromError(err)
				c.setStatus(st)
				if st.OK() {
					reply.setData(resp.Data)
				} else {
					reply.emitError(c.ctx, st)
				}
				reply.emitFinished()
				c.unref() // balances start's ref
				c.unref() // releases the seeded handle reference
			})
		}})
	}()
}
