package grpcchannel

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"google.golang.org/grpc"
)

var tracer = otel.Tracer("grpcchannel")

// channelConfig accumulates ChannelOption values, mirroring
// grpc.DialOption's functional-option shape.
type channelConfig struct {
	dialOpts []grpc.DialOption
	logger   *slog.Logger
}

// ChannelOption configures a Channel at construction time.
type ChannelOption func(*channelConfig)

// WithDialOption forwards a grpc.DialOption to the underlying
// grpc.NewClient call.
func WithDialOption(opt grpc.DialOption) ChannelOption {
	return func(c *channelConfig) { c.dialOpts = append(c.dialOpts, opt) }
}

// WithLogger attaches a logger the Channel uses for optional debug
// breadcrumbs on teardown. A Channel built without this option
// discards these.
func WithLogger(logger *slog.Logger) ChannelOption {
	return func(c *channelConfig) { c.logger = logger }
}

// Channel owns a grpc.ClientConn, a completion queue with its
// dedicated worker, and the set of calls currently wired to it,
// cascading an Aborted status into every one of them on Shutdown.
type Channel struct {
	cc     *grpc.ClientConn
	codec  Codec
	cq     *completionQueue
	act    *actor
	logger *slog.Logger

	mu    sync.Mutex
	calls map[*callBase]func(*Status)

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

// NewChannel dials target and starts the channel's completion-queue
// worker. codec serializes/deserializes the messages passed to
// Call/Stream/StreamBidirect; the wire codec is always the internal
// raw-byte passthrough (rawcodec.go), regardless of codec.
func NewChannel(target string, codec Codec, opts ...ChannelOption) (*Channel, error) {
	cfg := &channelConfig{logger: slog.New(slog.DiscardHandler)}
	for _, o := range opts {
		o(cfg)
	}
	cc, err := grpc.NewClient(target, cfg.dialOpts...)
	if err != nil {
		return nil, err
	}
	ch := &Channel{
		cc:       cc,
		codec:    codec,
		cq:       newCompletionQueue(),
		act:      newActor(),
		logger:   cfg.logger,
		calls:    make(map[*callBase]func(*Status)),
		shutdown: make(chan struct{}),
	}
	go ch.cq.run(nil)
	return ch, nil
}

// Codec returns the message codec this channel was constructed with.
func (ch *Channel) Codec() Codec { return ch.codec }

// Done returns a channel closed once Shutdown has been called.
func (ch *Channel) Done() <-chan struct{} { return ch.shutdown }

func (ch *Channel) register(cb *callBase, abort func(*Status)) {
	ch.act.call(func() { ch.calls[cb] = abort })
}

func (ch *Channel) unregister(cb *callBase) {
	ch.act.call(func() { delete(ch.calls, cb) })
}

// Shutdown cascades an Aborted status into every call still wired to
// this channel, shuts down the completion queue, and closes the
// underlying connection.
func (ch *Channel) Shutdown(ctx context.Context) error {
	ch.shutdownOnce.Do(func() {
		ch.logger.Debug("channel shutting down, aborting active calls")
		close(ch.shutdown)
		ch.act.call(func() {
			for _, abort := range ch.calls {
				abort(AbortedStatus("channel shut down"))
			}
		})
		ch.cq.shutdown()
		ch.act.stop()
	})
	return ch.cc.Close()
}

// CallAsync issues a unary call and returns immediately with a handle
// for the eventual reply.
func (ch *Channel) CallAsync(ctx context.Context, method string, request any) (*CallReply, error) {
	data, err := ch.codec.Serialize(request)
	if err != nil {
		return nil, err
	}
	uc := newUnaryCall(ctx, method, ch.cq)
	reply := &CallReply{asyncOperation: newAsyncOperation(), call: uc}
	uc.onZero = func() { ch.unregister(uc.callBase) }
	ch.register(uc.callBase, func(st *Status) {
		uc.setStatus(st)
		reply.emitError(ctx, st)
		reply.emitFinished()
	})
	uc.start(ch.cc, data, reply.asyncOperation)
	return reply, nil
}

// Call issues a unary call and blocks for its reply. A span is
// recorded around the call when the caller has configured a global
// otel.TracerProvider; with none configured this is a no-op.
func (ch *Channel) Call(ctx context.Context, method string, request any) ([]byte, *Status, error) {
	ctx, span := tracer.Start(ctx, method)
	defer span.End()
	reply, err := ch.CallAsync(ctx, method, request)
	if err != nil {
		return nil, nil, err
	}
	select {
	case <-reply.Finished():
	case <-ctx.Done():
		reply.Abort()
		<-reply.Finished()
	}
	return reply.Data(), reply.Status(), nil
}

// Stream opens a server-streaming call and returns its persistent
// handle.
func (ch *Channel) Stream(ctx context.Context, method string, request any) (*Stream, error) {
	data, err := ch.codec.Serialize(request)
	if err != nil {
		return nil, err
	}
	s := newStream(method, data)
	if err := ch.startServerStream(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (ch *Channel) startServerStream(ctx context.Context, s *Stream) error {
	call := newServerStreamCall(ctx, s.method, ch.cq)
	s.attach(call)
	call.onZero = func() { ch.unregister(call.callBase) }
	ch.register(call.callBase, func(st *Status) {
		call.act.call(func() {
			call.setStatus(st)
			s.emitError(ctx, st)
			s.emitFinished()
		})
	})
	return call.start(ch.cc, s.requestData,
		func(data []byte) { forwardServerStreamData(ctx, s, data) },
		func(st *Status) {
			if isTerminalStreamEnd(st) {
				s.emitFinished()
			} else {
				s.emitError(ctx, st)
			}
		},
	)
}

// StreamBidirect opens a bidirectional call and returns its
// persistent handle.
func (ch *Channel) StreamBidirect(ctx context.Context, method string) (*BidiStream, error) {
	b := newBidiStream(method, ch.codec)
	if err := ch.startBidiStream(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (ch *Channel) startBidiStream(ctx context.Context, b *BidiStream) error {
	call := newBidiCall(ctx, b.method, ch.cq)
	b.attach(call)
	call.onZero = func() { ch.unregister(call.callBase) }
	ch.register(call.callBase, func(st *Status) {
		call.act.call(func() {
			call.setStatus(st)
			b.emitError(ctx, st)
			b.emitFinished()
		})
	})
	return call.start(ch.cc,
		func(data []byte) { forwardBidiData(ctx, b, data) },
		func(st *Status) {
			if isTerminalStreamEnd(st) {
				b.emitFinished()
			} else {
				b.emitError(ctx, st)
			}
		},
	)
}
