package grpcchannel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/grpcrt/grpcchannel/internal/rawtest"
	"google.golang.org/grpc/codes"
)

func TestClientCall(t *testing.T) {
	ch := startRawServer(t, echoHandler{})
	c := NewClient()
	c.AttachChannel(ch)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, status, err := c.Call(ctx, rawtest.MethodUnary, []byte("ping"))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !status.OK() || string(data) != "ping" {
		t.Fatalf("expected OK/%q, got %v/%q", "ping", status, data)
	}
}

func TestClientCallNoChannel(t *testing.T) {
	c := NewClient()

	errCh := make(chan *Status, 1)
	cancel := c.SubscribeErrors(context.Background(), errCh)
	defer cancel()

	data, status, err := c.Call(context.Background(), rawtest.MethodUnary, []byte("x"))
	if !errors.Is(err, ErrNoChannel) {
		t.Fatalf("expected ErrNoChannel, got %v", err)
	}
	if data != nil {
		t.Fatalf("expected nil data, got %q", data)
	}
	if status == nil || status.Code() != codes.Unknown {
		t.Fatalf("expected Unknown status, got %v", status)
	}

	select {
	case st := <-errCh:
		if st.Code() != codes.Unknown {
			t.Fatalf("expected Unknown client-level error, got %v", st)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a client-level error signal")
	}
}

func TestClientStreamDedup(t *testing.T) {
	ch := startRawServer(t, echoHandler{})
	c := NewClient()
	c.AttachChannel(ch)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const n = 4
	results := make([]*Stream, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := range n {
		go func(i int) {
			defer wg.Done()
			s, err := c.Stream(ctx, rawtest.MethodServerStream, []byte("dedup"))
			if err != nil {
				t.Errorf("Stream: %v", err)
				return
			}
			results[i] = s
		}(i)
	}
	wg.Wait()
	if t.Failed() {
		return
	}
	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatalf("expected identical deduped Stream handles for equal requests")
		}
	}
}

func TestClientStreamBidirectDedup(t *testing.T) {
	ch := startRawServer(t, echoHandler{})
	c := NewClient()
	c.AttachChannel(ch)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, err := c.StreamBidirect(ctx, rawtest.MethodBidi)
	if err != nil {
		t.Fatalf("StreamBidirect: %v", err)
	}
	b, err := c.StreamBidirect(ctx, rawtest.MethodBidi)
	if err != nil {
		t.Fatalf("StreamBidirect: %v", err)
	}
	if a != b {
		t.Fatalf("expected bidi dedup by method alone to return the same handle")
	}
}

func TestClientCloseAbortsActiveStreams(t *testing.T) {
	ch := startRawServer(t, echoHandler{})
	c := NewClient()
	c.AttachChannel(ch)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := c.Stream(ctx, rawtest.MethodServerStream, []byte("x"))
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	b, err := c.StreamBidirect(ctx, rawtest.MethodBidi)
	if err != nil {
		t.Fatalf("StreamBidirect: %v", err)
	}

	c.Close()

	select {
	case <-s.Finished():
	case <-ctx.Done():
		t.Fatalf("expected Close to abort the active stream")
	}
	select {
	case <-b.Finished():
	case <-ctx.Done():
		t.Fatalf("expected Close to abort the active bidi stream")
	}
}

func TestClientAttachChannelAbortsPreviousStreams(t *testing.T) {
	chA := startRawServer(t, echoHandler{})
	chB := startRawServer(t, echoHandler{})
	c := NewClient()
	c.AttachChannel(chA)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := c.Stream(ctx, rawtest.MethodServerStream, []byte("x"))
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	c.AttachChannel(chB)

	select {
	case <-s.Finished():
	case <-ctx.Done():
		t.Fatalf("expected previous stream to be aborted on AttachChannel")
	}
}
