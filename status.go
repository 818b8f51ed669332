package grpcchannel

import (
	"fmt"
	"sync"

	"google.golang.org/grpc/codes"
)

// Status carries a gRPC status code and a human message, safe for
// concurrent read/replace through an internal rw-lock. Ok means
// success; any other value means failure, with Cancelled distinguished
// from Aborted (Aborted is synthesized on channel shutdown, see
// AbortedStatus).
type Status struct {
	mu      sync.RWMutex
	code    codes.Code
	message string
}

// NewStatus constructs a Status with the given code and message.
func NewStatus(code codes.Code, message string) *Status {
	return &Status{code: code, message: message}
}

// OkStatus returns a fresh success Status.
func OkStatus() *Status { return NewStatus(codes.OK, "") }

// AbortedStatus synthesizes the status a call reaches when its
// channel's completion queue is shut down.
func AbortedStatus(message string) *Status { return NewStatus(codes.Aborted, message) }

// Code returns the status code under the read lock.
func (s *Status) Code() codes.Code {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.code
}

// Message returns the status message under the read lock.
func (s *Status) Message() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.message
}

// OK reports whether the status code is codes.OK.
func (s *Status) OK() bool { return s.Code() == codes.OK }

// Set replaces the code and message under the write lock.
func (s *Status) Set(code codes.Code, message string) {
	s.mu.Lock()
	s.code = code
	s.message = message
	s.mu.Unlock()
}

// CopyFrom replaces this Status's value with other's. It never holds
// both locks at once, so it cannot deadlock against a concurrent
// reverse copy.
func (s *Status) CopyFrom(other *Status) {
	if s == other || other == nil {
		return
	}
	other.mu.RLock()
	code, message := other.code, other.message
	other.mu.RUnlock()
	s.mu.Lock()
	s.code, s.message = code, message
	s.mu.Unlock()
}

// Clone returns an independent copy of s.
func (s *Status) Clone() *Status {
	c := &Status{}
	c.CopyFrom(s)
	return c
}

// Is reports whether s's code equals code; equality compares codes
// only.
func (s *Status) Is(code codes.Code) bool { return s.Code() == code }

// Equal reports whether s and other carry the same code.
func (s *Status) Equal(other *Status) bool {
	if other == nil {
		return false
	}
	return s.Code() == other.Code()
}

func (s *Status) String() string {
	return fmt.Sprintf("%s: %s", s.Code(), s.Message())
}
