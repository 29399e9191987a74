package wss

// Callbacks are the notification sinks a Worker reports to. Every handler is
// optional; a nil handler drops its events, except errors, which are logged
// instead. Handlers may be called from several goroutines at once and must be
// safe for that.
type Callbacks struct {
	OnMessage           func(message string)
	OnError             func(message string)
	OnConnectionChanged func(connected bool)
}

func (w *Worker) notifyMessage(message string) {
	if w.callbacks.OnMessage == nil {
		return
	}
	w.invoke("message", func() { w.callbacks.OnMessage(message) })
}

func (w *Worker) notifyConnection(connected bool) {
	w.logger.Debugf("Connection changed: connected=%t", connected)
	if w.callbacks.OnConnectionChanged == nil {
		return
	}
	w.invoke("connection", func() { w.callbacks.OnConnectionChanged(connected) })
}

func (w *Worker) reportError(message string) {
	if w.callbacks.OnError == nil {
		w.logger.Errorf("WssWorker error: %s", message)
		return
	}
	w.logger.Debugf("Reporting error: %s", message)
	w.invoke("error", func() { w.callbacks.OnError(message) })
}

// invoke keeps a panicking handler from taking down the goroutine that called it.
func (w *Worker) invoke(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Errorf("%s callback panicked: %v", kind, r)
		}
	}()
	fn()
}
