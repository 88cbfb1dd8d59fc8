package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/1broseidon/winbridge/internal/codec"
)

// writeTimeout bounds a single frame write so one stuck peer cannot wedge
// the dispatcher of another.
const writeTimeout = 10 * time.Second

// Server accepts peer connections on a unix socket and routes their frames
// through a Router. Connections are long-lived: a peer keeps one open for as
// long as it holds remote handles, and fire-and-forget pushes travel back on
// the same stream.
type Server struct {
	socketPath string
	router     *Router
	logger     *slog.Logger

	mu    sync.Mutex
	conns map[*serverConn]struct{}

	activeConnections sync.WaitGroup
}

type serverConn struct {
	id      string
	conn    net.Conn
	writeMu sync.Mutex
	enc     *codec.Encoder

	// pending tracks Async replies still running for this connection.
	pending sync.WaitGroup
}

// NewServer creates a server for socketPath. The socket is not created until
// Serve is called.
func NewServer(socketPath string, router *Router, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	router.SetLogger(logger.With("component", "router"))
	return &Server{
		socketPath: socketPath,
		router:     router,
		logger:     logger,
		conns:      make(map[*serverConn]struct{}),
	}
}

// SocketPath returns the path the server listens on.
func (s *Server) SocketPath() string { return s.socketPath }

// Serve listens on the socket and serves connections until ctx is cancelled.
// A stale socket file is removed first; the socket is removed on return.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create IPC socket: %w", err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	if err := os.Chmod(s.socketPath, 0600); err != nil {
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("IPC server listening", "path", s.socketPath)
	s.acceptLoop(ctx, listener)
	s.activeConnections.Wait()
	return nil
}

func (s *Server) acceptLoop(ctx context.Context, listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("IPC accept error", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.ServeConn(ctx, conn)
		}()
	}
}

// ServeConn serves one already-established connection until the peer
// disconnects or ctx is cancelled. Invokes are dispatched in the order they
// were read.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c := &serverConn{
		id:   uuid.NewString(),
		conn: conn,
		enc:  codec.NewEncoder(conn),
	}
	s.track(c)
	defer s.untrack(c)

	logger := s.logger.With("session", c.id)
	logger.Debug("peer connected")

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	s.handleConnection(ctx, c, logger)

	cancel()
	c.pending.Wait()
	logger.Debug("peer disconnected")
}

func (s *Server) handleConnection(ctx context.Context, c *serverConn, logger *slog.Logger) {
	dec := codec.NewDecoder(c.conn)
	for {
		var frame Frame
		if err := dec.Decode(&frame); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
				logger.Debug("IPC read error", "error", err)
			}
			return
		}

		call := &Call{Channel: frame.Channel, Args: frame.Args, Session: c.id}
		switch frame.Kind {
		case FrameInvoke:
			s.dispatchInvoke(ctx, c, frame.ID, call, logger)
		case FrameSend:
			s.router.Notify(ctx, call)
		default:
			logger.Warn("unexpected frame from peer", "kind", frame.Kind.String(), "channel", frame.Channel)
		}
	}
}

func (s *Server) dispatchInvoke(ctx context.Context, c *serverConn, id uint64, call *Call, logger *slog.Logger) {
	result, err := s.router.Invoke(ctx, call)
	if async, ok := result.(Async); ok && err == nil {
		c.pending.Add(1)
		go func() {
			defer c.pending.Done()
			value, err := s.router.Finish(ctx, call, async)
			c.reply(id, call.Channel, value, err, logger)
		}()
		return
	}
	c.reply(id, call.Channel, result, err, logger)
}

func (c *serverConn) reply(id uint64, channel string, value any, err error, logger *slog.Logger) {
	frame := &Frame{Kind: FrameResult, ID: id}
	if err != nil {
		logger.Debug("invoke failed", "channel", channel, "error", err)
		frame.Error = toWire(err)
	} else if value != nil {
		data, encErr := codec.Marshal(value)
		if encErr != nil {
			frame.Error = toWire(fmt.Errorf("failed to encode result: %w", encErr))
		} else {
			frame.Result = data
		}
	}
	if err := c.write(frame); err != nil {
		logger.Debug("failed to send response", "channel", channel, "error", err)
	}
}

func (c *serverConn) write(frame *Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.enc.Encode(frame)
}

// Emit pushes a fire-and-forget frame on name to every connected peer.
// Delivery is best effort: a peer that cannot be written to is skipped.
func (s *Server) Emit(name string, args ...any) error {
	encoded, err := EncodeArgs(args...)
	if err != nil {
		return err
	}
	frame := &Frame{Kind: FrameSend, Channel: name, Args: encoded}

	s.mu.Lock()
	targets := make([]*serverConn, 0, len(s.conns))
	for c := range s.conns {
		targets = append(targets, c)
	}
	s.mu.Unlock()

	for _, c := range targets {
		if err := c.write(frame); err != nil {
			s.logger.Debug("push dropped", "session", c.id, "channel", name, "error", err)
		}
	}
	return nil
}

// ConnCount returns the number of connected peers.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) track(c *serverConn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c *serverConn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}
