package grpcchannel

import "context"

// writableOperation serializes a value through the injected Codec and
// hands the resulting bytes to whichever call currently backs the
// owning handle. appendWrite/appendDone are bound once, at BidiStream
// construction, to closures that look up the live *bidiCall under a
// mutex — so a Client-level retry that swaps the underlying call
// never invalidates writableOperation itself.
type writableOperation struct {
	*asyncOperation
	codec       Codec
	appendWrite func(ctx context.Context, data []byte) *WriteAckReply
	appendDone  func(ctx context.Context) *WriteAckReply
}

func newWritableOperation(codec Codec, appendWrite func(ctx context.Context, data []byte) *WriteAckReply, appendDone func(ctx context.Context) *WriteAckReply) *writableOperation {
	return &writableOperation{
		asyncOperation: newAsyncOperation(),
		codec:          codec,
		appendWrite:    appendWrite,
		appendDone:     appendDone,
	}
}

// Write serializes value and queues it for send, returning a
// WriteAckReply immediately — a codec fault is reported as an
// already-Failed reply rather than queuing garbage bytes.
func (w *writableOperation) Write(ctx context.Context, value any) *WriteAckReply {
	data, err := w.codec.Serialize(value)
	if err != nil {
		return failedWriteAck(CodecStatus(err))
	}
	return w.appendWrite(ctx, data)
}

// WriteBlocked serializes and queues value, then blocks for its
// acknowledgement.
func (w *writableOperation) WriteBlocked(ctx context.Context, value any) (WriteStatus, error) {
	return w.Write(ctx, value).Wait(ctx)
}

// WriteDone queues a WritesDone marker, returning a WriteAckReply for
// its acknowledgement.
func (w *writableOperation) WriteDone(ctx context.Context) *WriteAckReply {
	return w.appendDone(ctx)
}

// WriteDoneBlocked queues a WritesDone marker and blocks for its
// acknowledgement.
func (w *writableOperation) WriteDoneBlocked(ctx context.Context) (WriteStatus, error) {
	return w.appendDone(ctx).Wait(ctx)
}

func failedWriteAck(status *Status) *WriteAckReply {
	r := &WriteAckReply{status: WriteFailed, finished: make(chan struct{})}
	r.emitError(status)
	r.emitFinished()
	return r
}
