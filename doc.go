// Package grpcchannel implements the core of a gRPC client runtime:
// a Channel that drives unary, server-streaming, and bidirectional
// calls on top of google.golang.org/grpc, and a Client that owns
// active streams, deduplicates them, and schedules reconnects.
package grpcchannel
