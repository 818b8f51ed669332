package grpcchannel

import (
	"log/slog"
	"time"
)

// defaultRetryTimeout is the default delay before a Client resubmits
// a stream that ended with a transient status.
const defaultRetryTimeout = time.Second

type clientConfig struct {
	retryTimeout time.Duration
	logger       *slog.Logger
}

func defaultClientConfig() *clientConfig {
	return &clientConfig{retryTimeout: defaultRetryTimeout, logger: slog.New(slog.DiscardHandler)}
}

// ClientOption configures a Client at construction time, mirroring
// grpc.DialOption's functional-option shape.
type ClientOption func(*clientConfig)

// WithRetryTimeout overrides the delay before a Client resubmits a
// stream that ended with a transient (non-terminal) status.
func WithRetryTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) { c.retryTimeout = d }
}

// WithClientLogger attaches a logger the Client uses for optional
// debug breadcrumbs on stream retry and teardown. A Client built
// without this option discards these.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *clientConfig) { c.logger = logger }
}
