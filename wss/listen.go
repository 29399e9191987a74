package wss

import (
	"fmt"

	"github.com/kleeedolinux/wssconn/wss/transport"
)

// StartListening arms the read loop. It does nothing when not connected,
// already listening or closed.
func (w *Worker) StartListening() {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := w.session
	if w.closed || !w.connected || s == nil || w.listening {
		return
	}
	w.listening = true

	// a read left over from before StopListening re-arms itself on completion
	if s.announcing || s.reading {
		return
	}

	s.readBuf.Reset()
	w.armRead(s)
}

// StopListening lets the read loop lapse. A read already in flight still
// completes and its message is still delivered; nothing is read after that.
func (w *Worker) StopListening() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listening = false
}

// armRead starts one read on s. The caller holds w.mu.
func (w *Worker) armRead(s *session) {
	s.reading = true

	go func() {
		messageType, err := s.transport.ReadMessage(&s.readBuf)

		posted := w.ioc.Post(func() {
			w.handleRead(s, messageType, err)
		})
		if !posted {
			w.logger.Debug("I/O context stopped, dropping read completion")

			w.mu.Lock()
			s.reading = false
			if w.session == s {
				w.listening = false
			}
			w.mu.Unlock()
		}
	}()
}

// handleRead runs on the I/O context once per completed read.
func (w *Worker) handleRead(s *session, messageType transport.MessageType, err error) {
	w.mu.Lock()
	s.reading = false

	if w.session != s {
		w.mu.Unlock()
		w.logger.Debug("Dropping read completion from a closed connection")
		return
	}

	if err != nil {
		w.session = nil
		w.connected = false
		w.listening = false
		w.state = StateDisconnected
		w.mu.Unlock()

		s.transport.Release()

		if transport.IsPeerClose(err) {
			w.logger.Infof("Connection closed by peer: %s", err)
		} else {
			w.reportError(fmt.Sprintf("read error: %s", err))
		}
		w.notifyConnection(false)
		close(s.gone)
		return
	}

	message := s.readBuf.String()
	s.readBuf.Reset()
	w.mu.Unlock()

	w.logger.Tracef("Delivering message type=%d size=%d", messageType, len(message))
	w.notifyMessage(message)

	w.mu.Lock()
	if w.session == s && w.connected && w.listening && !s.reading {
		if w.ioc.Running() {
			w.armRead(s)
		} else {
			// the context is draining; a new completion would have nowhere to run
			w.listening = false
		}
	}
	w.mu.Unlock()
}
