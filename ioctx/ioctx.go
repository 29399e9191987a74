/*
Package ioctx provides the shared scheduling context that completion handlers
run on. A Context owns one goroutine which executes posted handlers one at a
time, in the order they were posted. Handlers may post further handlers.

The application owns the Context: it starts it (Start, or Run to block on it)
and stops it when it is done. Handlers already queued when Stop is called still
run before Stop returns; anything posted after that is rejected.
*/
package ioctx

import (
	"fmt"
	"sync"

	"github.com/kleeedolinux/wssconn/logger"
	"gopkg.in/tomb.v2"
)

type Context struct {
	tmb       tomb.Tomb
	logger    *logger.Logger
	startOnce sync.Once

	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	started bool
	stopped bool
}

func New(logger *logger.Logger) *Context {
	return &Context{
		logger: logger,
		wake:   make(chan struct{}, 1),
	}
}

// Start launches the handler goroutine. Calling it more than once is harmless.
func (c *Context) Start() {
	c.startOnce.Do(func() {
		c.mu.Lock()
		if c.stopped {
			c.mu.Unlock()
			return
		}
		c.started = true
		c.mu.Unlock()

		c.tmb.Go(c.loop)
	})
}

// Run starts the context and blocks until it is stopped. It returns at once if
// the context was stopped before it ever started.
func (c *Context) Run() error {
	c.Start()

	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return nil
	}
	return c.tmb.Wait()
}

// Stop rejects further posts, runs the handlers still queued and terminates
// the handler goroutine. A context that never started drains its queue on the
// calling goroutine. A stopped context cannot be restarted. Stop must not be
// called from a handler running on the context.
func (c *Context) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	started := c.started
	c.mu.Unlock()

	if !started {
		c.drain()
		return
	}

	c.tmb.Kill(nil)
	c.tmb.Wait()
}

// Done is closed once the handler goroutine has exited.
func (c *Context) Done() <-chan struct{} {
	return c.tmb.Dead()
}

// Running reports whether handlers posted now will be executed by the loop.
func (c *Context) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started && !c.stopped
}

// Pending returns the number of handlers waiting to run.
func (c *Context) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Post queues fn for execution on the context. It returns false once the
// context has been stopped.
func (c *Context) Post(fn func()) bool {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return false
	}
	c.queue = append(c.queue, fn)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return true
}

// Dispatch posts fn when the context is running and otherwise runs it on the
// calling goroutine.
func (c *Context) Dispatch(fn func()) {
	if c.Running() && c.Post(fn) {
		return
	}
	c.execute(fn)
}

func (c *Context) next() (func(), bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.queue) == 0 {
		return nil, false
	}
	fn := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	return fn, true
}

func (c *Context) loop() error {
	c.logger.Debug("I/O context started")
	defer c.logger.Debug("I/O context stopped")

	for {
		select {
		case <-c.tmb.Dying():
			c.drain()
			return nil
		default:
		}

		fn, ok := c.next()
		if !ok {
			select {
			case <-c.tmb.Dying():
				c.drain()
				return nil
			case <-c.wake:
			}
			continue
		}

		c.execute(fn)
	}
}

// drain runs whatever is left in the queue. Posts are already rejected, so the
// queue only shrinks.
func (c *Context) drain() {
	for {
		fn, ok := c.next()
		if !ok {
			return
		}
		c.execute(fn)
	}
}

func (c *Context) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error(fmt.Errorf("handler panicked: %v", r))
		}
	}()
	fn()
}
