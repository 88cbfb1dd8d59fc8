// Package mcp exposes the surface protocol to MCP clients. The server is an
// ordinary peer of the coordinator: it holds remote handles and buffers the
// messages each window receives until a client reads them.
package mcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/winbridge/internal/ipc"
	"github.com/1broseidon/winbridge/internal/remote"
	"github.com/1broseidon/winbridge/internal/surface"
)

const (
	ServerName    = "winbridge"
	ServerVersion = "0.1.0"
)

// trackedWindow is a remote handle plus what the server remembers about it.
type trackedWindow struct {
	win      *remote.Window
	title    string
	url      string
	attached bool // obtained by identity rather than created here
	messages *MessageBuffer
}

// Server is the MCP server for winbridge windows.
type Server struct {
	mcpServer *mcpsdk.Server
	conn      remote.Conn
	logger    *slog.Logger

	maxMessages int
	capBytes    int

	mu      sync.Mutex
	windows map[surface.ID]*trackedWindow
}

// Option configures a Server.
type Option func(*Server)

// WithMessageLimits bounds each window's message buffer.
func WithMessageLimits(maxMessages, capBytes int) Option {
	return func(s *Server) {
		s.maxMessages = maxMessages
		s.capBytes = capBytes
	}
}

// WithLogger sets the server logger. MCP owns stdout, so the logger must
// write elsewhere.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates an MCP server that reaches the coordinator through conn.
func NewServer(conn remote.Conn, opts ...Option) *Server {
	s := &Server{
		conn:        conn,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxMessages: DefaultMaxMessages,
		capBytes:    DefaultMessageCapBytes,
		windows:     make(map[surface.ID]*trackedWindow),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
		nil,
	)

	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport, blocking until done.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "create_window",
		Description: "Create a new window owned by the winbridge coordinator. Optionally loads a URL right away. Returns the window identity used by every other tool.",
	}, s.handleCreateWindow)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "show_window",
		Description: "Make a window visible. Focuses it unless focused is false.",
	}, s.handleShowWindow)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "close_window",
		Description: "Close a window. Returns once the close is issued; the window is reported closed by list_windows and read_messages afterwards.",
	}, s.handleCloseWindow)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "load_url",
		Description: "Load a URL into a window and wait until loading finished or failed.",
	}, s.handleLoadURL)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "send_to_window",
		Description: "Push an application message to a window's content on the given channel. The content receives the window identity followed by args.",
	}, s.handleSendToWindow)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "post_message",
		Description: "Post a message on a window's message channel. It is relayed verbatim to the host window and echoed to every peer, including read_messages.",
	}, s.handlePostMessage)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "read_messages",
		Description: "Return and remove the messages buffered for a window, oldest first. Reports how many were dropped because the buffer was full.",
	}, s.handleReadMessages)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_windows",
		Description: "List windows this server knows about. Closed windows are listed one last time and then forgotten.",
	}, s.handleListWindows)
}

// newTracked starts buffering messages for w.
func (s *Server) newTracked(w *remote.Window, title string, attached bool) *trackedWindow {
	tw := &trackedWindow{
		win:      w,
		title:    title,
		attached: attached,
		messages: NewMessageBuffer(s.maxMessages, s.capBytes),
	}
	w.OnMessage(func(args ipc.Args) {
		tw.messages.Push(args)
	})
	w.OnClosed(func() {
		s.logger.Debug("window closed", "id", w.ID())
	})
	return tw
}

func (s *Server) track(w *remote.Window, title string) *trackedWindow {
	tw := s.newTracked(w, title, false)
	s.mu.Lock()
	s.windows[w.ID()] = tw
	s.mu.Unlock()
	return tw
}

// lookup returns the tracked window for id, attaching to it when this
// server has not seen it before.
func (s *Server) lookup(id uint64) (*trackedWindow, error) {
	if id == 0 {
		return nil, fmt.Errorf("window id is required")
	}
	sid := surface.ID(id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if tw, ok := s.windows[sid]; ok {
		return tw, nil
	}
	tw := s.newTracked(remote.Attach(s.conn, sid), "", true)
	s.windows[sid] = tw
	return tw, nil
}

func (s *Server) setURL(tw *trackedWindow, url string) {
	s.mu.Lock()
	tw.url = url
	s.mu.Unlock()
}

// list snapshots the tracked windows in identity order and forgets the
// closed ones.
func (s *Server) list() []WindowInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]surface.ID, 0, len(s.windows))
	for id := range s.windows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	infos := make([]WindowInfo, 0, len(ids))
	for _, id := range ids {
		tw := s.windows[id]
		closed := tw.win.Closed()
		infos = append(infos, WindowInfo{
			ID:       uint64(id),
			Title:    tw.title,
			URL:      tw.url,
			Closed:   closed,
			Pending:  tw.messages.Len(),
			Attached: tw.attached,
		})
		if closed {
			delete(s.windows, id)
		}
	}
	return infos
}
