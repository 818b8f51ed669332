package grpcchannel

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	bigbuff "github.com/joeycumines/go-bigbuff"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"google.golang.org/grpc/codes"
)

// ErrNoChannel is returned by Client operations issued before any
// Channel has been attached.
var ErrNoChannel = errors.New("grpcchannel: no channel attached")

// Client owns the active server-stream and bidi-stream handles,
// dedups requests for an equal stream into one underlying call, and
// schedules a one-shot retry when a live stream ends transiently.
type Client struct {
	act *actor

	mu      sync.Mutex
	channel *Channel

	streams     map[string]*Stream
	bidiStreams map[string]*BidiStream

	sf singleflight.Group

	retryTimeout time.Duration
	logger       *slog.Logger

	errs bigbuff.Notifier
}

// NewClient constructs a Client with no channel attached.
func NewClient(opts ...ClientOption) *Client {
	cfg := defaultClientConfig()
	for _, o := range opts {
		o(cfg)
	}
	return &Client{
		act:          newActor(),
		streams:      make(map[string]*Stream),
		bidiStreams:  make(map[string]*BidiStream),
		retryTimeout: cfg.retryTimeout,
		logger:       cfg.logger,
	}
}

// SubscribeErrors registers target (a channel accepting *Status) to
// receive every client-level error not tied to any particular call or
// stream, such as an operation attempted before a channel is attached.
func (c *Client) SubscribeErrors(ctx context.Context, target any) context.CancelFunc {
	return c.errs.SubscribeCancel(ctx, nil, target)
}

// noChannelStatus emits the client-level "no channel attached" error
// and returns the Unknown-coded Status a caller should surface.
func (c *Client) noChannelStatus(ctx context.Context) *Status {
	st := NewStatus(codes.Unknown, "No channel(s) attached.")
	c.errs.PublishContext(ctx, nil, st)
	return st
}

// AttachChannel swaps the Client's active Channel. Every stream/bidi
// handle currently tracked against the previous channel is aborted
// and dropped from the dedup tables — a retry already in flight
// against the old channel completes on its own, but nothing
// previously active is automatically resubmitted against the new
// channel.
func (c *Client) AttachChannel(ch *Channel) {
	c.logger.Debug("attaching channel, aborting previously tracked streams")
	c.act.call(func() {
		c.abortTracked()
		c.channel = ch
	})
}

// abortTracked aborts every stream and bidi-stream currently tracked
// and empties the dedup tables. Must run on the home actor.
func (c *Client) abortTracked() {
	for key, s := range c.streams {
		s.Abort()
		delete(c.streams, key)
	}
	for key, b := range c.bidiStreams {
		b.Abort()
		delete(c.bidiStreams, key)
	}
}

// Close aborts every stream and bidi-stream the Client currently
// tracks and stops its home actor, propagating client destruction into
// cancellation the same way Channel.Shutdown cascades a channel's own
// teardown into its calls. Safe to call more than once.
func (c *Client) Close() {
	c.logger.Debug("closing client, aborting tracked streams")
	c.act.call(c.abortTracked)
	c.act.stop()
}

func (c *Client) currentChannel() *Channel {
	var ch *Channel
	c.act.call(func() { ch = c.channel })
	return ch
}

// CallAsync delegates to the attached Channel.
func (c *Client) CallAsync(ctx context.Context, method string, request any) (*CallReply, error) {
	ch := c.currentChannel()
	if ch == nil {
		c.noChannelStatus(ctx)
		return nil, ErrNoChannel
	}
	return ch.CallAsync(ctx, method, request)
}

// Call delegates to the attached Channel, blocking for the reply.
func (c *Client) Call(ctx context.Context, method string, request any) ([]byte, *Status, error) {
	ch := c.currentChannel()
	if ch == nil {
		return nil, c.noChannelStatus(ctx), ErrNoChannel
	}
	return ch.Call(ctx, method, request)
}

// Stream returns the (possibly shared) persistent handle for method
// called with request, deduping concurrent equal requests into one
// underlying call and scheduling a retry whenever the live attempt
// ends with a transient (non-terminal) status.
func (c *Client) Stream(ctx context.Context, method string, request any) (*Stream, error) {
	ch := c.currentChannel()
	if ch == nil {
		c.noChannelStatus(ctx)
		return nil, ErrNoChannel
	}
	data, err := ch.Codec().Serialize(request)
	if err != nil {
		return nil, err
	}
	key := method + "\x00" + string(data)
	v, err, _ := c.sf.Do("stream:"+key, func() (any, error) {
		var existing *Stream
		c.act.call(func() { existing = c.streams[key] })
		if existing != nil {
			return existing, nil
		}
		s := newStream(method, data)
		c.act.call(func() { c.streams[key] = s })
		if err := ch.startServerStream(ctx, s); err != nil {
			c.act.call(func() { delete(c.streams, key) })
			return nil, err
		}
		c.watchStream(ch, s, key)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Stream), nil
}

// watchStream pairs an error-observing goroutine with a
// finished-observing goroutine in an errgroup; both exit once s
// finishes, and the group is waited on in the background.
func (c *Client) watchStream(ch *Channel, s *Stream, key string) {
	errCh := make(chan *Status, 8)
	cancelErrs := s.SubscribeErrors(context.Background(), errCh)

	var g errgroup.Group
	g.Go(func() error {
		for {
			select {
			case st := <-errCh:
				if !isTerminalStreamEnd(st) {
					c.scheduleStreamRetry(s, key)
				}
			case <-s.Finished():
				return nil
			}
		}
	})
	g.Go(func() error {
		<-s.Finished()
		cancelErrs()
		c.act.call(func() {
			if c.streams[key] == s {
				delete(c.streams, key)
			}
		})
		return nil
	})
	go g.Wait()
}

func (c *Client) scheduleStreamRetry(s *Stream, key string) {
	c.logger.Debug("scheduling stream retry", "method", s.method, "delay", c.retryTimeout)
	time.AfterFunc(c.retryTimeout, func() {
		var tracked bool
		c.act.call(func() { tracked = c.streams[key] == s })
		if !tracked {
			return
		}
		ch := c.currentChannel()
		if ch == nil {
			return
		}
		// The watcher started by Stream keeps observing s across
		// retries, so no second watcher is added here.
		if err := ch.startServerStream(context.Background(), s); err == nil {
			c.logger.Debug("stream retry resubmitted", "method", s.method)
		}
	})
}

// StreamBidirect returns the (possibly shared) persistent handle for
// a bidirectional call to method, deduped by method alone.
func (c *Client) StreamBidirect(ctx context.Context, method string) (*BidiStream, error) {
	ch := c.currentChannel()
	if ch == nil {
		c.noChannelStatus(ctx)
		return nil, ErrNoChannel
	}
	v, err, _ := c.sf.Do("bidi:"+method, func() (any, error) {
		var existing *BidiStream
		c.act.call(func() { existing = c.bidiStreams[method] })
		if existing != nil {
			return existing, nil
		}
		b := newBidiStream(method, ch.Codec())
		c.act.call(func() { c.bidiStreams[method] = b })
		if err := ch.startBidiStream(ctx, b); err != nil {
			c.act.call(func() { delete(c.bidiStreams, method) })
			return nil, err
		}
		c.watchBidiStream(ch, b, method)
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*BidiStream), nil
}

func (c *Client) watchBidiStream(ch *Channel, b *BidiStream, key string) {
	errCh := make(chan *Status, 8)
	cancelErrs := b.SubscribeErrors(context.Background(), errCh)

	var g errgroup.Group
	g.Go(func() error {
		for {
			select {
			case st := <-errCh:
				if !isTerminalStreamEnd(st) {
					c.scheduleBidiRetry(b, key)
				}
			case <-b.Finished():
				return nil
			}
		}
	})
	g.Go(func() error {
		<-b.Finished()
		cancelErrs()
		c.act.call(func() {
			if c.bidiStreams[key] == b {
				delete(c.bidiStreams, key)
			}
		})
		return nil
	})
	go g.Wait()
}

func (c *Client) scheduleBidiRetry(b *BidiStream, key string) {
	c.logger.Debug("scheduling bidi stream retry", "method", b.method, "delay", c.retryTimeout)
	time.AfterFunc(c.retryTimeout, func() {
		var tracked bool
		c.act.call(func() { tracked = c.bidiStreams[key] == b })
		if !tracked {
			return
		}
		ch := c.currentChannel()
		if ch == nil {
			return
		}
		// The watcher started by StreamBidirect keeps observing b
		// across retries, so no second watcher is added here.
		if err := ch.startBidiStream(context.Background(), b); err == nil {
			c.logger.Debug("bidi stream retry resubmitted", "method", b.method)
		}
	})
}
