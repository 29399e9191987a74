package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/kleeedolinux/wssconn/logger"
)

const Version = "0.1.0"

// DefaultUserAgent identifies this client in the upgrade request.
var DefaultUserAgent = "wssconn/" + Version + " websocket-client"

type Dialer struct {
	tlsConfig *tls.Config
	resolver  *net.Resolver
	netDialer *net.Dialer
	logger    *logger.Logger

	userAgent       string
	compression     bool
	readLimit       int64
	readBufferSize  int
	writeBufferSize int
}

type DialerOption func(*Dialer)

// WithTLSConfig sets the client security context. ServerName is always
// replaced by the dialed host.
func WithTLSConfig(config *tls.Config) DialerOption {
	return func(d *Dialer) {
		if config != nil {
			d.tlsConfig = config.Clone()
		}
	}
}

func WithResolver(resolver *net.Resolver) DialerOption {
	return func(d *Dialer) {
		d.resolver = resolver
	}
}

func WithNetDialer(netDialer *net.Dialer) DialerOption {
	return func(d *Dialer) {
		d.netDialer = netDialer
	}
}

func WithUserAgent(userAgent string) DialerOption {
	return func(d *Dialer) {
		d.userAgent = userAgent
	}
}

func WithCompression(enabled bool) DialerOption {
	return func(d *Dialer) {
		d.compression = enabled
	}
}

// WithReadLimit caps the size of an inbound message in bytes.
func WithReadLimit(limit int64) DialerOption {
	return func(d *Dialer) {
		d.readLimit = limit
	}
}

func WithBufferSizes(read, write int) DialerOption {
	return func(d *Dialer) {
		d.readBufferSize = read
		d.writeBufferSize = write
	}
}

func NewDialer(logger *logger.Logger, opts ...DialerOption) *Dialer {
	d := &Dialer{
		tlsConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		resolver:  net.DefaultResolver,
		netDialer: &net.Dialer{},
		logger:    logger,
		userAgent: DefaultUserAgent,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Dial runs every handshake stage in order and returns the framed connection.
// Any failure comes back as a *StageError.
func (d *Dialer) Dial(ctx context.Context, host, port, path string) (Transport, error) {
	endpoints, err := d.resolve(ctx, host, port)
	if err != nil {
		return nil, &StageError{Stage: StageResolve, Err: err}
	}

	rawConn, err := d.connect(ctx, endpoints)
	if err != nil {
		return nil, &StageError{Stage: StageConnect, Err: err}
	}

	tlsConn, err := d.secure(ctx, rawConn, host)
	if err != nil {
		rawConn.Close()
		return nil, &StageError{Stage: StageTLS, Err: err}
	}

	conn, err := d.upgrade(ctx, tlsConn, host, endpoints[0].port, path)
	if err != nil {
		tlsConn.Close()
		return nil, &StageError{Stage: StageWebSocket, Err: err}
	}

	d.logger.Infof("Websocket connection established to %s%s", net.JoinHostPort(host, port), path)
	return newWebSocketTransport(conn, d.logger), nil
}

type endpoint struct {
	host string
	port string
}

func (e endpoint) String() string {
	return net.JoinHostPort(e.host, e.port)
}

func (d *Dialer) resolve(ctx context.Context, host, port string) ([]endpoint, error) {
	addrs, err := d.resolver.LookupHost(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w for %q", ErrNoAddresses, host)
	}

	portNum, err := d.resolver.LookupPort(ctx, "tcp", port)
	if err != nil {
		return nil, err
	}

	endpoints := make([]endpoint, 0, len(addrs))
	for _, addr := range addrs {
		endpoints = append(endpoints, endpoint{host: addr, port: strconv.Itoa(portNum)})
	}

	d.logger.Debugf("Resolved %s to %v", net.JoinHostPort(host, port), addrs)
	return endpoints, nil
}

// connect tries each endpoint in order and keeps the first that answers.
func (d *Dialer) connect(ctx context.Context, endpoints []endpoint) (net.Conn, error) {
	var errs []error
	for _, ep := range endpoints {
		conn, err := d.netDialer.DialContext(ctx, "tcp", ep.String())
		if err == nil {
			d.logger.Debugf("Connected to %s", ep)
			return conn, nil
		}
		d.logger.Debugf("Connect attempt to %s failed: %s", ep, err)
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}

func (d *Dialer) secure(ctx context.Context, rawConn net.Conn, host string) (*tls.Conn, error) {
	config := d.tlsConfig.Clone()
	config.ServerName = host

	conn := tls.Client(rawConn, config)
	if err := conn.HandshakeContext(ctx); err != nil {
		return nil, err
	}

	d.logger.Debugf("TLS handshake complete with %s", host)
	return conn, nil
}

func (d *Dialer) upgrade(ctx context.Context, tlsConn *tls.Conn, host, port, path string) (*websocket.Conn, error) {
	target, err := url.Parse("wss://" + net.JoinHostPort(host, port) + normalizePath(path))
	if err != nil {
		return nil, err
	}

	wsDialer := websocket.Dialer{
		// the TLS session is already up, hand it to the upgrade as is
		NetDialTLSContext: func(context.Context, string, string) (net.Conn, error) {
			return tlsConn, nil
		},
		ReadBufferSize:    d.readBufferSize,
		WriteBufferSize:   d.writeBufferSize,
		EnableCompression: d.compression,
	}

	headers := http.Header{}
	headers.Set("User-Agent", d.userAgent)

	conn, resp, err := wsDialer.DialContext(ctx, target.String(), headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w (status %s)", err, resp.Status)
		}
		return nil, err
	}

	if d.readLimit > 0 {
		conn.SetReadLimit(d.readLimit)
	}
	return conn, nil
}

func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}
	return path
}
