/*
Package wss maintains a single TLS-secured WebSocket connection on behalf of an
application.

A Worker walks through name resolution, TCP connect, the TLS handshake and the
WebSocket upgrade on its own goroutine, then reads frames in a loop whose
completions run on a shared ioctx.Context. Everything the application needs to
know comes back through Callbacks and through the Result of each call.

The Worker guards its own state, so its methods may be called from any
goroutine. Only one Connect may be in flight at a time; a second one is
rejected.
*/
package wss

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/kleeedolinux/wssconn/ioctx"
	"github.com/kleeedolinux/wssconn/logger"
	"github.com/kleeedolinux/wssconn/wss/transport"
)

type Worker struct {
	id         string
	ioc        *ioctx.Context
	callbacks  Callbacks
	logger     *logger.Logger
	dialer     Dialer
	dialerOpts []transport.DialerOption

	mu         sync.Mutex
	session    *session
	settings   ConnectionSettings
	state      State
	connected  bool
	listening  bool
	connecting bool
	closed     bool

	// in-flight Connect and Send goroutines
	wg sync.WaitGroup
}

// session is the live connection of one epoch. The Worker holds at most one.
type session struct {
	transport transport.Transport
	readBuf   bytes.Buffer
	reading   bool

	// set while OnConnectionChanged(true) runs; reads and the disconnect
	// notification wait for it
	announcing bool
	// closed once OnConnectionChanged(false) has been delivered for this epoch
	gone chan struct{}
}

func newSession(t transport.Transport) *session {
	return &session{
		transport:  t,
		announcing: true,
		gone:       make(chan struct{}),
	}
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

func NewWorker(ioc *ioctx.Context, callbacks Callbacks, opts ...Option) *Worker {
	w := &Worker{
		id:        generateID(),
		ioc:       ioc,
		callbacks: callbacks,
		state:     StateIdle,
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.logger == nil {
		if l, err := logger.New(&logger.Config{}); err == nil {
			w.logger = l
		} else {
			w.logger = logger.Nop()
		}
	}

	if w.dialer == nil {
		w.dialer = transport.NewDialer(w.logger.GetComponentLogger("Websocket"), w.dialerOpts...)
	}
	w.logger = w.logger.GetComponentLogger("WssWorker").With("worker", w.id)

	return w
}

func (w *Worker) ID() string {
	return w.id
}

func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case w.connecting:
		return StateConnecting
	case w.connected && w.listening:
		return StateListening
	case w.connected:
		return StateConnected
	default:
		return w.state
	}
}

func (w *Worker) IsConnected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.connected
}

func (w *Worker) IsListening() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.listening
}

// Settings returns the settings of the latest Connect.
func (w *Worker) Settings() ConnectionSettings {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.settings
}

// Connect establishes the connection on a separate goroutine. On success
// OnConnectionChanged(true) fires before the Result resolves to true. On failure
// OnError names the failed stage, OnConnectionChanged(false) fires and the
// Result resolves to false. There is no timeout: a caller that wants one should
// wait with Result.WaitContext, and the attempt still runs to completion.
func (w *Worker) Connect(settings ConnectionSettings) *Result {
	w.mu.Lock()
	var rejected error
	switch {
	case w.closed:
		rejected = ErrClosed
	case w.connecting:
		rejected = ErrConnectInProgress
	case w.connected:
		rejected = ErrAlreadyConnected
	}
	if rejected != nil {
		w.mu.Unlock()
		w.reportError(fmt.Sprintf("cannot connect: %s", rejected))
		return resolvedResult(false)
	}

	w.settings = settings.withDefaults()
	w.connecting = true
	w.wg.Add(1)
	w.mu.Unlock()

	result := newResult()
	go func() {
		defer w.wg.Done()
		result.resolve(w.connect())
	}()
	return result
}

func (w *Worker) connect() bool {
	w.mu.Lock()
	settings := w.settings
	w.mu.Unlock()

	w.logger.Infof("Connecting to %s", settings)

	t, err := w.dialer.Dial(context.Background(), settings.Host, settings.Port, settings.Path)
	if err != nil {
		w.mu.Lock()
		w.connecting = false
		w.connected = false
		w.state = StateFailed
		w.mu.Unlock()

		w.reportError(fmt.Sprintf("connection failed: %s", err))
		w.notifyConnection(false)
		return false
	}

	s := newSession(t)

	w.mu.Lock()
	w.session = s
	w.connecting = false
	w.connected = true
	w.state = StateConnected
	w.mu.Unlock()

	w.notifyConnection(true)

	// reads requested while the connect notification was running start now,
	// so no message can overtake it
	w.mu.Lock()
	s.announcing = false
	if w.session != s {
		// disconnected while announcing
		w.mu.Unlock()
		w.announceDisconnect(s)
		return true
	}
	if w.listening && !s.reading {
		s.readBuf.Reset()
		w.armRead(s)
	}
	w.mu.Unlock()

	return true
}

// Send writes message as one text frame on a separate goroutine. A failed send
// is reported through OnError and leaves the connection as it is.
func (w *Worker) Send(message string) *Result {
	return w.write(transport.TextMessage, []byte(message))
}

// SendBinary writes data as one binary frame, otherwise like Send.
func (w *Worker) SendBinary(data []byte) *Result {
	return w.write(transport.BinaryMessage, data)
}

func (w *Worker) write(messageType transport.MessageType, data []byte) *Result {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.reportError(fmt.Sprintf("cannot send: %s", ErrClosed))
		return resolvedResult(false)
	}
	w.wg.Add(1)
	w.mu.Unlock()

	result := newResult()
	go func() {
		defer w.wg.Done()
		result.resolve(w.send(messageType, data))
	}()
	return result
}

func (w *Worker) send(messageType transport.MessageType, data []byte) bool {
	w.mu.Lock()
	s := w.session
	connected := w.connected
	w.mu.Unlock()

	if !connected || s == nil {
		w.reportError(fmt.Sprintf("cannot send: %s", ErrNotConnected))
		return false
	}

	if err := s.transport.WriteMessage(messageType, data); err != nil {
		w.reportError(fmt.Sprintf("send error: %s", err))
		return false
	}
	return true
}

// Disconnect stops listening, closes the connection with a normal close frame
// and reports OnConnectionChanged(false). It does nothing when not connected.
// A failed close is reported through OnError; the Worker is disconnected
// regardless. The notification goes through the I/O context so it lands after
// any message delivery already running there, and never before the
// OnConnectionChanged(true) of the same connection has returned.
func (w *Worker) Disconnect() {
	w.disconnect()
}

// disconnect returns a channel that is closed once OnConnectionChanged(false)
// has been delivered.
func (w *Worker) disconnect() <-chan struct{} {
	w.mu.Lock()
	s := w.session
	if !w.connected || s == nil {
		w.mu.Unlock()
		return closedChan
	}
	w.listening = false
	w.session = nil
	w.connected = false
	w.state = StateDisconnected
	announcing := s.announcing
	w.mu.Unlock()

	w.logger.Info("Disconnecting")

	if err := s.transport.Close(); err != nil {
		w.reportError(fmt.Sprintf("disconnect error: %s", err))
	}

	// connect announces it once OnConnectionChanged(true) returns
	if !announcing {
		w.announceDisconnect(s)
	}
	return s.gone
}

func (w *Worker) announceDisconnect(s *session) {
	w.ioc.Dispatch(func() {
		defer close(s.gone)
		w.notifyConnection(false)
	})
}

// Close disconnects, waits for in-flight Connect and Send calls to finish and
// returns once OnConnectionChanged(false) has been delivered. Every later call
// is rejected. Close must not be called from a callback.
func (w *Worker) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	w.wg.Wait()
	<-w.disconnect()
	return nil
}
