package wss

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/kleeedolinux/wssconn/wss/transport"
)

// recorder captures callback invocations in arrival order.
type recorder struct {
	mu       sync.Mutex
	messages []string
	errors   []string
	changes  []bool
	events   []string

	onMessage func(string)
	onChange  func(bool)
}

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnMessage: func(message string) {
			r.mu.Lock()
			r.messages = append(r.messages, message)
			r.events = append(r.events, "message:"+message)
			hook := r.onMessage
			r.mu.Unlock()
			if hook != nil {
				hook(message)
			}
		},
		OnError: func(message string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errors = append(r.errors, message)
			r.events = append(r.events, "error")
		},
		OnConnectionChanged: func(connected bool) {
			r.mu.Lock()
			r.changes = append(r.changes, connected)
			if connected {
				r.events = append(r.events, "connected")
			} else {
				r.events = append(r.events, "disconnected")
			}
			hook := r.onChange
			r.mu.Unlock()
			if hook != nil {
				hook(connected)
			}
		},
	}
}

func (r *recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

func (r *recorder) Errors() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.errors...)
}

func (r *recorder) Changes() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]bool(nil), r.changes...)
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fakeFrame struct {
	data string
	err  error
}

type fakeTransport struct {
	inbound chan fakeFrame

	mu        sync.Mutex
	writes    []string
	writeErr  error
	closeErr  error
	closed    bool
	released  bool
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{inbound: make(chan fakeFrame, 16)}
}

func (f *fakeTransport) ReadMessage(buf *bytes.Buffer) (transport.MessageType, error) {
	frame, ok := <-f.inbound
	if !ok {
		return 0, errors.New("use of closed connection")
	}
	if frame.err != nil {
		return 0, frame.err
	}
	buf.WriteString(frame.data)
	return transport.TextMessage, nil
}

func (f *fakeTransport) WriteMessage(messageType transport.MessageType, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, string(data))
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	err := f.closeErr
	f.mu.Unlock()

	f.closeOnce.Do(func() { close(f.inbound) })
	return err
}

func (f *fakeTransport) Release() error {
	f.mu.Lock()
	f.released = true
	f.mu.Unlock()

	f.closeOnce.Do(func() { close(f.inbound) })
	return nil
}

func (f *fakeTransport) Writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writes...)
}

func (f *fakeTransport) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeDialer hands out its transport, optionally after gate is closed.
type fakeDialer struct {
	transport *fakeTransport
	err       error
	gate      chan struct{}

	mu    sync.Mutex
	calls int
}

func (d *fakeDialer) Dial(ctx context.Context, host, port, path string) (transport.Transport, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()

	if d.gate != nil {
		<-d.gate
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.transport, nil
}

func (d *fakeDialer) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}
