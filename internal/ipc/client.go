package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"sync"
	"time"

	"github.com/1broseidon/winbridge/internal/codec"
)

const dialTimeout = 5 * time.Second

// PushFunc receives fire-and-forget frames pushed by the coordinator.
type PushFunc func(args Args)

// Client is the peer end of a coordinator connection. It multiplexes any
// number of concurrent invokes over one stream and fans pushes out to
// listeners.
//
// Requests are written in the order Invoke and Send are called. Listeners
// run one at a time, in arrival order, on a goroutine of their own, so a
// listener may itself call Invoke.
type Client struct {
	conn net.Conn

	writeMu sync.Mutex
	enc     *codec.Encoder
	nextID  uint64

	mu        sync.Mutex
	pending   map[uint64]chan *Frame
	listeners map[string]map[uint64]PushFunc
	nextSub   uint64
	closed    bool

	events *eventQueue
	done   chan struct{}
}

// Dial connects to the coordinator socket.
func Dial(ctx context.Context, socketPath string) (*Client, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to coordinator: %w (is the daemon running?)", err)
	}
	return NewClient(conn), nil
}

// NewClient wraps an established connection and starts reading from it.
func NewClient(conn net.Conn) *Client {
	c := &Client{
		conn:      conn,
		enc:       codec.NewEncoder(conn),
		pending:   make(map[uint64]chan *Frame),
		listeners: make(map[string]map[uint64]PushFunc),
		events:    newEventQueue(),
		done:      make(chan struct{}),
	}
	go c.readLoop()
	go c.events.run(c.dispatchPush)
	return c
}

// Invoke sends a request on name and waits for its result. It returns when
// the coordinator answers, ctx ends, or the connection is lost; it never
// waits forever on a dead connection. Coordinator-side failures come back as
// *Error.
func (c *Client) Invoke(ctx context.Context, name string, args ...any) (Result, error) {
	encoded, err := EncodeArgs(args...)
	if err != nil {
		return nil, err
	}

	ch := make(chan *Frame, 1)

	c.writeMu.Lock()
	c.nextID++
	id := c.nextID
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.writeMu.Unlock()
		return nil, ErrConnClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()
	err = c.enc.Encode(&Frame{Kind: FrameInvoke, ID: id, Channel: name, Args: encoded})
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	select {
	case frame := <-ch:
		return frameResult(name, frame)
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	case <-c.done:
		select {
		case frame := <-ch:
			return frameResult(name, frame)
		default:
			return nil, ErrConnClosed
		}
	}
}

func frameResult(name string, frame *Frame) (Result, error) {
	if frame.Error != nil {
		return nil, fromWire(name, frame.Error)
	}
	return Result(frame.Result), nil
}

// Send writes a fire-and-forget frame on name.
func (c *Client) Send(name string, args ...any) error {
	encoded, err := EncodeArgs(args...)
	if err != nil {
		return err
	}
	if c.isClosed() {
		return ErrConnClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.enc.Encode(&Frame{Kind: FrameSend, Channel: name, Args: encoded}); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// On registers fn for pushes on name. The returned function removes this
// listener; calling it more than once is harmless.
func (c *Client) On(name string, fn PushFunc) (cancel func()) {
	c.mu.Lock()
	c.nextSub++
	sub := c.nextSub
	set, ok := c.listeners[name]
	if !ok {
		set = make(map[uint64]PushFunc)
		c.listeners[name] = set
	}
	set[sub] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if set, ok := c.listeners[name]; ok {
				delete(set, sub)
				if len(set) == 0 {
					delete(c.listeners, name)
				}
			}
		})
	}
}

// RemoveAllListeners drops every listener for name.
func (c *Client) RemoveAllListeners(name string) {
	c.mu.Lock()
	delete(c.listeners, name)
	c.mu.Unlock()
}

// ListenerCount returns the number of listeners registered for name.
func (c *Client) ListenerCount(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners[name])
}

// Done is closed once the connection has ended.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close closes the connection. Pending invokes fail with ErrConnClosed.
func (c *Client) Close() error {
	err := c.conn.Close()
	<-c.done
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (c *Client) readLoop() {
	defer c.shutdown()

	dec := codec.NewDecoder(c.conn)
	for {
		var frame Frame
		if err := dec.Decode(&frame); err != nil {
			return
		}
		switch frame.Kind {
		case FrameResult:
			c.mu.Lock()
			ch, ok := c.pending[frame.ID]
			delete(c.pending, frame.ID)
			c.mu.Unlock()
			if ok {
				f := frame
				ch <- &f
			}
		case FrameSend:
			c.events.push(pushEvent{channel: frame.Channel, args: frame.Args})
		}
	}
}

func (c *Client) dispatchPush(ev pushEvent) {
	c.mu.Lock()
	set := c.listeners[ev.channel]
	fns := make([]PushFunc, 0, len(set))
	subs := make([]uint64, 0, len(set))
	for sub := range set {
		subs = append(subs, sub)
	}
	slices.Sort(subs)
	for _, sub := range subs {
		fns = append(fns, set[sub])
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(ev.args)
	}
}

func (c *Client) shutdown() {
	c.mu.Lock()
	c.closed = true
	c.pending = make(map[uint64]chan *Frame)
	c.mu.Unlock()
	c.conn.Close()
	c.events.close()
	close(c.done)
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type pushEvent struct {
	channel string
	args    Args
}

// eventQueue is an unbounded FIFO between the read loop and listener
// dispatch. The read loop must never block on a slow listener, or a
// listener waiting for an invoke result would deadlock the connection.
type eventQueue struct {
	mu     sync.Mutex
	items  []pushEvent
	closed bool
	notify chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{notify: make(chan struct{}, 1)}
}

func (q *eventQueue) push(ev pushEvent) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()
	q.signal()
}

func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *eventQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *eventQueue) run(dispatch func(pushEvent)) {
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			<-q.notify
			continue
		}
		batch := q.items
		q.items = nil
		q.mu.Unlock()

		for _, ev := range batch {
			dispatch(ev)
		}
	}
}

var _ io.Closer = (*Client)(nil)
