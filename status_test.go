package grpcchannel

import (
	"testing"

	"google.golang.org/grpc/codes"
)

func TestStatusOK(t *testing.T) {
	s := OkStatus()
	if !s.OK() {
		t.Fatalf("expected OK status")
	}
	if s.Code() != codes.OK {
		t.Fatalf("expected codes.OK, got %v", s.Code())
	}
}

func TestStatusSetAndClone(t *testing.T) {
	s := NewStatus(codes.Unavailable, "down")
	clone := s.Clone()
	if !clone.Equal(s) {
		t.Fatalf("clone should equal original")
	}
	s.Set(codes.OK, "")
	if clone.Code() != codes.Unavailable {
		t.Fatalf("clone should be independent, got %v", clone.Code())
	}
	if s.Equal(clone) {
		t.Fatalf("status and clone should differ after Set")
	}
}

func TestStatusCopyFrom(t *testing.T) {
	a := NewStatus(codes.Internal, "boom")
	b := OkStatus()
	b.CopyFrom(a)
	if !b.Is(codes.Internal) {
		t.Fatalf("expected codes.Internal after CopyFrom, got %v", b.Code())
	}
	if b.Message() != "boom" {
		t.Fatalf("expected message %q, got %q", "boom", b.Message())
	}
}

func TestAbortedStatus(t *testing.T) {
	s := AbortedStatus("channel shut down")
	if !s.Is(codes.Aborted) {
		t.Fatalf("expected codes.Aborted, got %v", s.Code())
	}
}
