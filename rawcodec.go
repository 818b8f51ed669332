package grpcchannel

import (
	"fmt"

	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/mem"
)

const rawCodecName = "grpcchannel-raw"

func init() {
	encoding.RegisterCodecV2(rawFrameCodec{})
}

// Frame is the wire message type SendMsg/RecvMsg exchange over a
// Channel's calls and streams: a raw byte buffer already produced by
// the caller-injected Codec. The gRPC wire codec therefore never
// touches user messages directly — it only ever moves bytes the
// Codec already produced. Exported so a hand-written test service
// (internal/rawtest) can exchange the same wire type without
// depending on generated stubs.
type Frame struct{ Data []byte }

// rawFrameCodec is a pass-through encoding.CodecV2: the channel
// already carries fully serialized message bytes, so there is nothing
// left for the wire codec to marshal beyond handing the buffer to the
// transport.
type rawFrameCodec struct{}

func (rawFrameCodec) Marshal(v any) (mem.BufferSlice, error) {
	f, ok := v.(*Frame)
	if !ok {
		return nil, fmt.Errorf("grpcchannel: rawFrameCodec.Marshal: unsupported type %T", v)
	}
	return mem.BufferSlice{mem.SliceBuffer(f.Data)}, nil
}

func (rawFrameCodec) Unmarshal(data mem.BufferSlice, v any) error {
	f, ok := v.(*Frame)
	if !ok {
		return fmt.Errorf("grpcchannel: rawFrameCodec.Unmarshal: unsupported type %T", v)
	}
	f.Data = data.Materialize()
	return nil
}

func (rawFrameCodec) Name() string { return rawCodecName }
