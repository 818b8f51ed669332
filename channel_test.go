package grpcchannel

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/grpcrt/grpcchannel/internal/rawtest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

// bytesCodec is the identity Codec used by tests: requests and
// responses are already []byte, so there is nothing to (de)serialize.
type bytesCodec struct{}

func (bytesCodec) Serialize(v any) ([]byte, error) {
	b, _ := v.([]byte)
	return b, nil
}

func (bytesCodec) Deserialize(data []byte, target any) error {
	if p, ok := target.(*[]byte); ok {
		*p = data
	}
	return nil
}

// echoHandler answers Unary with the request bytes, ServerStream with
// three chunks derived from the request, and Bidi by echoing every
// received message back to the caller.
type echoHandler struct{}

func (echoHandler) Unary(ctx context.Context, request []byte) ([]byte, error) {
	return request, nil
}

func (echoHandler) ServerStream(request []byte, send func([]byte) error) error {
	for i := byte(0); i < 3; i++ {
		if err := send(append(append([]byte{}, request...), i)); err != nil {
			return err
		}
	}
	return nil
}

func (echoHandler) Bidi(stream rawtest.BidiServerStream) error {
	for {
		data, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if err := stream.Send(data); err != nil {
			return err
		}
	}
}

func startRawServer(t *testing.T, h rawtest.Handler) *Channel {
	t.Helper()
	srv := grpc.NewServer()
	rawtest.RegisterService(srv, h)
	lis := bufconn.Listen(1024 * 1024)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(func() {
		srv.Stop()
		_ = lis.Close()
	})

	ch, err := NewChannel(
		"passthrough:///bufnet",
		bytesCodec{},
		WithDialOption(grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() })),
		WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	t.Cleanup(func() { _ = ch.Shutdown(context.Background()) })
	return ch
}

func TestChannelCall(t *testing.T) {
	ch := startRawServer(t, echoHandler{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, status, err := ch.Call(ctx, rawtest.MethodUnary, []byte("ping"))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !status.OK() {
		t.Fatalf("expected OK status, got %v", status)
	}
	if string(data) != "ping" {
		t.Fatalf("expected echoed %q, got %q", "ping", data)
	}
}

func TestChannelStream(t *testing.T) {
	ch := startRawServer(t, echoHandler{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := ch.Stream(ctx, rawtest.MethodServerStream, []byte("x"))
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	received := make(chan []byte, 8)
	cancelSub := s.SubscribeData(ctx, received)
	defer cancelSub()

	select {
	case <-s.Finished():
	case <-ctx.Done():
		t.Fatalf("stream never finished")
	}
	if !s.Status().OK() {
		t.Fatalf("expected OK terminal status, got %v", s.Status())
	}

	count := 0
loop:
	for {
		select {
		case <-received:
			count++
		default:
			break loop
		}
	}
	if count != 3 {
		t.Fatalf("expected 3 received messages, got %d", count)
	}
}

func TestChannelStreamBidirect(t *testing.T) {
	ch := startRawServer(t, echoHandler{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	b, err := ch.StreamBidirect(ctx, rawtest.MethodBidi)
	if err != nil {
		t.Fatalf("StreamBidirect: %v", err)
	}

	received := make(chan []byte, 8)
	cancelSub := b.SubscribeData(ctx, received)
	defer cancelSub()

	status, err := b.WriteBlocked(ctx, []byte("hello"))
	if err != nil {
		t.Fatalf("WriteBlocked: %v", err)
	}
	if status != WriteOK {
		t.Fatalf("expected WriteOK, got %v", status)
	}

	select {
	case data := <-received:
		if string(data) != "hello" {
			t.Fatalf("expected echoed %q, got %q", "hello", data)
		}
	case <-ctx.Done():
		t.Fatalf("never received echoed message")
	}

	if status, err := b.WriteDoneBlocked(ctx); err != nil || status != WriteOK {
		t.Fatalf("WriteDoneBlocked: status=%v err=%v", status, err)
	}

	select {
	case <-b.Finished():
	case <-ctx.Done():
		t.Fatalf("bidi stream never finished")
	}
}

func TestChannelCallReleasesCallOnCompletion(t *testing.T) {
	ch := startRawServer(t, echoHandler{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply, err := ch.CallAsync(ctx, rawtest.MethodUnary, []byte("ping"))
	if err != nil {
		t.Fatalf("CallAsync: %v", err)
	}
	select {
	case <-reply.Finished():
	case <-ctx.Done():
		t.Fatalf("call never finished")
	}

	// refs must reach zero exactly once all tags and the seeded
	// external reference have unwound, which also runs onZero and
	// removes the call from the channel's registry.
	deadline := time.Now().Add(2 * time.Second)
	for {
		var n int
		ch.act.call(func() { n = len(ch.calls) })
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected call to be unregistered after completion, still have %d", n)
		}
		time.Sleep(time.Millisecond)
	}
	if refs := atomic.LoadInt32(&reply.call.refs); refs != 0 {
		t.Fatalf("expected call refs to reach zero, got %d", refs)
	}
}

func TestChannelShutdownAbortsActiveCall(t *testing.T) {
	ch := startRawServer(t, echoHandler{})
	b, err := ch.StreamBidirect(context.Background(), rawtest.MethodBidi)
	if err != nil {
		t.Fatalf("StreamBidirect: %v", err)
	}
	if err := ch.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case <-b.Finished():
	case <-time.After(5 * time.Second):
		t.Fatalf("expected Shutdown to terminate the active stream")
	}
	if b.Status().Code() != codes.Aborted {
		t.Fatalf("expected codes.Aborted, got %v", b.Status().Code())
	}
}
