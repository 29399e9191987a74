package wss

import (
	"context"
	"crypto/tls"

	"github.com/kleeedolinux/wssconn/logger"
	"github.com/kleeedolinux/wssconn/wss/transport"
)

// Dialer performs the full handshake sequence for a Worker.
type Dialer interface {
	Dial(ctx context.Context, host, port, path string) (transport.Transport, error)
}

type Option func(*Worker)

func WithLogger(logger *logger.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

// WithDialer replaces the built-in staged dialer. The transport options below
// have no effect when it is used.
func WithDialer(dialer Dialer) Option {
	return func(w *Worker) {
		w.dialer = dialer
	}
}

// WithTLSConfig sets the security context used for every Connect. The server
// name is always taken from the connection settings.
func WithTLSConfig(config *tls.Config) Option {
	return func(w *Worker) {
		w.dialerOpts = append(w.dialerOpts, transport.WithTLSConfig(config))
	}
}

// WithUserAgent overrides the client marker sent in the upgrade request.
func WithUserAgent(userAgent string) Option {
	return func(w *Worker) {
		w.dialerOpts = append(w.dialerOpts, transport.WithUserAgent(userAgent))
	}
}

func WithCompression(enabled bool) Option {
	return func(w *Worker) {
		w.dialerOpts = append(w.dialerOpts, transport.WithCompression(enabled))
	}
}

func WithReadLimit(limit int64) Option {
	return func(w *Worker) {
		w.dialerOpts = append(w.dialerOpts, transport.WithReadLimit(limit))
	}
}
