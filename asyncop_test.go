package grpcchannel

import (
	"context"
	"testing"
	"time"
)

func TestAsyncOperationData(t *testing.T) {
	a := newAsyncOperation()
	if a.Data() != nil {
		t.Fatalf("expected no data initially")
	}
	a.setData([]byte("hello"))
	if string(a.Data()) != "hello" {
		t.Fatalf("expected %q, got %q", "hello", a.Data())
	}
}

func TestAsyncOperationFinishedFiresOnce(t *testing.T) {
	a := newAsyncOperation()
	select {
	case <-a.Finished():
		t.Fatalf("should not be finished yet")
	default:
	}
	a.emitFinished()
	a.emitFinished() // must not panic on double-close
	select {
	case <-a.Finished():
	default:
		t.Fatalf("expected Finished to be closed")
	}
}

func TestAsyncOperationErrors(t *testing.T) {
	a := newAsyncOperation()
	target := make(chan *Status, 8)
	cancel := a.SubscribeErrors(context.Background(), target)
	defer cancel()

	ctx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()
	a.emitError(ctx, NewStatus(100, "transient"))

	select {
	case st := <-target:
		if st.Message() != "transient" {
			t.Fatalf("expected %q, got %q", "transient", st.Message())
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for error")
	}
}
