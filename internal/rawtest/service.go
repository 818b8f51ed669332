// Package rawtest is a hand-written gRPC service used only by this
// module's own tests. No protoc codegen is needed because the wire
// traffic is already raw bytes (grpcchannel.Frame, see rawcodec.go),
// so the service descriptor below stands in for generated stubs
// without a code-generation dependency.
package rawtest

import (
	"context"

	"github.com/grpcrt/grpcchannel"
	"google.golang.org/grpc"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "rawtest.RawTestService"

// Full method names, for use as the method argument to Channel/Client
// calls in tests.
const (
	MethodUnary        = "/" + ServiceName + "/Unary"
	MethodServerStream = "/" + ServiceName + "/ServerStream"
	MethodBidi         = "/" + ServiceName + "/Bidi"
)

// Handler is implemented by test servers registered against
// ServiceDesc.
type Handler interface {
	Unary(ctx context.Context, request []byte) ([]byte, error)
	ServerStream(request []byte, send func([]byte) error) error
	Bidi(stream BidiServerStream) error
}

// BidiServerStream is the server side of the Bidi method.
type BidiServerStream interface {
	Recv() ([]byte, error)
	Send(data []byte) error
	Context() context.Context
}

func unaryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	h := srv.(Handler)
	req := &grpcchannel.Frame{}
	if err := dec(req); err != nil {
		return nil, err
	}
	handlerFunc := func(ctx context.Context, req any) (any, error) {
		resp, err := h.Unary(ctx, req.(*grpcchannel.Frame).Data)
		if err != nil {
			return nil, err
		}
		return &grpcchannel.Frame{Data: resp}, nil
	}
	if interceptor == nil {
		return handlerFunc(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodUnary}
	return interceptor(ctx, req, info, handlerFunc)
}

func serverStreamHandler(srv any, stream grpc.ServerStream) error {
	h := srv.(Handler)
	req := &grpcchannel.Frame{}
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return h.ServerStream(req.Data, func(data []byte) error {
		return stream.SendMsg(&grpcchannel.Frame{Data: data})
	})
}

func bidiHandler(srv any, stream grpc.ServerStream) error {
	h := srv.(Handler)
	return h.Bidi(&serverBidiStream{stream: stream})
}

type serverBidiStream struct{ stream grpc.ServerStream }

func (s *serverBidiStream) Recv() ([]byte, error) {
	f := &grpcchannel.Frame{}
	if err := s.stream.RecvMsg(f); err != nil {
		return nil, err
	}
	return f.Data, nil
}

func (s *serverBidiStream) Send(data []byte) error {
	return s.stream.SendMsg(&grpcchannel.Frame{Data: data})
}

func (s *serverBidiStream) Context() context.Context { return s.stream.Context() }

// ServiceDesc is the hand-written grpc.ServiceDesc standing in for a
// protoc-generated one.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Handler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Unary", Handler: unaryHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "ServerStream", Handler: serverStreamHandler, ServerStreams: true},
		{StreamName: "Bidi", Handler: bidiHandler, ServerStreams: true, ClientStreams: true},
	},
	Metadata: "internal/rawtest/service.go",
}

// RegisterService registers h against s under ServiceDesc.
func RegisterService(s *grpc.Server, h Handler) {
	s.RegisterService(&ServiceDesc, h)
}
