package grpcchannel

import (
	"context"
	"testing"
	"time"
)

func TestWriteAckReplyNotConnected(t *testing.T) {
	r := newWriteAckReply(false)
	select {
	case <-r.Done():
	default:
		t.Fatalf("expected NotConnected reply to be immediately terminal")
	}
	if r.Status() != WriteNotConnected {
		t.Fatalf("expected WriteNotConnected, got %v", r.Status())
	}
	if r.Err() == nil {
		t.Fatalf("expected NotConnected reply to carry an error status")
	}
}

func TestWriteAckReplyWait(t *testing.T) {
	r := newWriteAckReply(true)
	if r.Status() != WriteInProcess {
		t.Fatalf("expected WriteInProcess, got %v", r.Status())
	}
	go func() {
		time.Sleep(10 * time.Millisecond)
		r.setStatus(WriteOK)
		r.emitFinished()
	}()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	status, err := r.Wait(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != WriteOK {
		t.Fatalf("expected WriteOK, got %v", status)
	}
}

func TestWriteAckReplyWaitContextCancelled(t *testing.T) {
	r := newWriteAckReply(true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Wait(ctx); err == nil {
		t.Fatalf("expected context error")
	}
}
