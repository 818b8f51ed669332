package grpcchannel

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/protobuf/proto"
)

// Codec is the message<->bytes collaborator injected by generated
// stubs. Message serialization itself is out of scope for this
// runtime; Codec is consumed, not reimplemented.
type Codec interface {
	Serialize(message any) ([]byte, error)
	Deserialize(data []byte, target any) error
}

// Recognized codec faults, each mapped to a corresponding Status. A
// Codec implementation should wrap one of these with fmt.Errorf's %w
// so CodecStatus can classify it; any other error is treated as an
// unknown internal fault.
var (
	ErrInvalidArgument = errors.New("grpcchannel: invalid field in message")
	ErrOutOfRange      = errors.New("grpcchannel: invalid size of buffer")
)

// CodecStatus maps a Codec fault to the Status a failed write or read
// must surface as.
func CodecStatus(err error) *Status {
	switch {
	case err == nil:
		return OkStatus()
	case errors.Is(err, ErrInvalidArgument):
		return NewStatus(codes.InvalidArgument, "Response deserialization failed invalid field found")
	case errors.Is(err, ErrOutOfRange):
		return NewStatus(codes.OutOfRange, "Invalid size of received buffer")
	default:
		return NewStatus(codes.Internal, fmt.Sprintf("unknown exception caught during deserialization: %v", err))
	}
}

// ProtoCodec is a reference Codec for stubs generated against plain
// proto.Message types.
type ProtoCodec struct{}

func (ProtoCodec) Serialize(message any) ([]byte, error) {
	m, ok := message.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a proto.Message", ErrInvalidArgument, message)
	}
	b, err := proto.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	return b, nil
}

func (ProtoCodec) Deserialize(data []byte, target any) error {
	m, ok := target.(proto.Message)
	if !ok {
		return fmt.Errorf("%w: %T is not a proto.Message", ErrInvalidArgument, target)
	}
	if err := proto.Unmarshal(data, m); err != nil {
		return fmt.Errorf("%w: %v", ErrOutOfRange, err)
	}
	return nil
}

var _ Codec = ProtoCodec{}
