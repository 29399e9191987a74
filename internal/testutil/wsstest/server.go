/*
Package wsstest runs an in-process TLS WebSocket peer for tests. The peer signs
its own certificate with a throwaway CA, accepts upgrades on a single path,
records what clients send and lets a test push frames, close gracefully or drop
the socket.
*/
package wsstest

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kleeedolinux/wssconn/logger"
)

const DefaultPath = "/ws"

var ErrNoClient = errors.New("no client connected")

type Server struct {
	logger    *logger.Logger
	listener  net.Listener
	authority *Authority
	upgrader  websocket.Upgrader
	path      string
	echo      bool

	Host string
	Port string

	// Received carries every message a client sent, in arrival order.
	Received chan string

	// UserAgents carries the User-Agent header of each upgrade request.
	UserAgents chan string

	mu    sync.Mutex
	conns []*peerConn
	ready chan struct{}
}

type peerConn struct {
	writeMu sync.Mutex
	conn    *websocket.Conn
}

func (p *peerConn) write(messageType int, data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteMessage(messageType, data)
}

type Option func(*Server)

// WithEcho makes the peer write every received message back.
func WithEcho() Option {
	return func(s *Server) {
		s.echo = true
	}
}

func WithPath(path string) Option {
	return func(s *Server) {
		s.path = path
	}
}

func NewServer(logger *logger.Logger, opts ...Option) (*Server, error) {
	authority, err := NewAuthority("wsstest ca")
	if err != nil {
		return nil, err
	}

	cert, err := authority.IssueServerCert(
		"localhost",
		[]string{"localhost"},
		[]net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
	)
	if err != nil {
		return nil, err
	}

	listener, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to setup listener: %w", err)
	}

	s := &Server{
		logger:    logger,
		listener:  listener,
		authority: authority,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		path:       DefaultPath,
		Host:       "localhost",
		Port:       strconv.Itoa(listener.Addr().(*net.TCPAddr).Port),
		Received:   make(chan string, 64),
		UserAgents: make(chan string, 8),
		ready:      make(chan struct{}, 8),
	}

	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.Handle(s.path, s)
	go http.Serve(s.listener, mux)

	return s, nil
}

func (s *Server) Path() string {
	return s.path
}

func (s *Server) Authority() *Authority {
	return s.authority
}

// ClientTLSConfig trusts the peer's CA.
func (s *Server) ClientTLSConfig() *tls.Config {
	return &tls.Config{
		RootCAs:    s.authority.Pool(),
		MinVersion: tls.VersionTLS12,
	}
}

func (s *Server) Shutdown() {
	s.listener.Close()

	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	for _, c := range conns {
		c.conn.Close()
	}
}

// WaitForClient blocks until a client finished its upgrade.
func (s *Server) WaitForClient(timeout time.Duration) error {
	select {
	case <-s.ready:
		return nil
	case <-time.After(timeout):
		return ErrNoClient
	}
}

// Push sends a text frame to the most recent client.
func (s *Server) Push(message string) error {
	c, err := s.latest()
	if err != nil {
		return err
	}
	return c.write(websocket.TextMessage, []byte(message))
}

// PushBinary sends a binary frame to the most recent client.
func (s *Server) PushBinary(data []byte) error {
	c, err := s.latest()
	if err != nil {
		return err
	}
	return c.write(websocket.BinaryMessage, data)
}

// CloseGracefully starts the WebSocket close handshake with the most recent client.
func (s *Server) CloseGracefully() error {
	c, err := s.latest()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
		time.Now().Add(time.Second),
	)
}

// Drop closes the most recent client's socket without a close frame.
func (s *Server) Drop() error {
	c, err := s.latest()
	if err != nil {
		return err
	}
	return c.conn.UnderlyingConn().Close()
}

func (s *Server) latest() (*peerConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.conns) == 0 {
		return nil, ErrNoClient
	}
	return s.conns[len(s.conns)-1], nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userAgent := r.Header.Get("User-Agent")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorf("Error during connection upgrade: %s", err)
		return
	}
	defer conn.Close()

	pc := &peerConn{conn: conn}
	s.mu.Lock()
	s.conns = append(s.conns, pc)
	s.mu.Unlock()

	select {
	case s.UserAgents <- userAgent:
	default:
	}
	select {
	case s.ready <- struct{}{}:
	default:
	}

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			s.logger.Debugf("Peer stopped reading: %s", err)
			return
		}

		s.Received <- string(message)

		if s.echo {
			if err := pc.write(messageType, message); err != nil {
				s.logger.Errorf("Error during message writing: %s", err)
				return
			}
		}
	}
}
