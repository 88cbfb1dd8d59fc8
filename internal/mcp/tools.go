package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/winbridge/internal/remote"
	"github.com/1broseidon/winbridge/internal/surface"
)

func (s *Server) handleCreateWindow(ctx context.Context, _ *mcpsdk.CallToolRequest, args CreateWindowInput) (*mcpsdk.CallToolResult, CreateWindowOutput, error) {
	opts := surface.Options{
		Width:  args.Width,
		Height: args.Height,
		Title:  args.Title,
		Modal:  args.Modal,
		Show:   args.Show,
		Parent: surface.ID(args.Parent),
	}
	w, err := remote.Create(ctx, s.conn, opts)
	if err != nil {
		return nil, CreateWindowOutput{}, fmt.Errorf("create_window: %w", err)
	}
	tw := s.track(w, args.Title)
	s.logger.Info("window created", "id", w.ID(), "title", args.Title)

	out := CreateWindowOutput{
		ID:       uint64(w.ID()),
		Channels: w.Channels().Names(),
	}
	if args.URL != "" {
		if err := w.LoadURL(ctx, args.URL); err != nil {
			// The window exists; report it along with the failure.
			return nil, out, fmt.Errorf("window %d created, but loading %q failed: %w", out.ID, args.URL, err)
		}
		s.setURL(tw, args.URL)
		out.URL = args.URL
	}
	return nil, out, nil
}

func (s *Server) handleShowWindow(ctx context.Context, _ *mcpsdk.CallToolRequest, args ShowWindowInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
	tw, err := s.lookup(args.ID)
	if err != nil {
		return nil, StatusOutput{}, err
	}
	if args.Focused == nil || *args.Focused {
		err = tw.win.Show(ctx)
	} else {
		err = tw.win.ShowInactive(ctx)
	}
	if err != nil {
		return nil, StatusOutput{}, fmt.Errorf("show_window %d: %w", args.ID, err)
	}
	return nil, StatusOutput{ID: args.ID, Status: "shown"}, nil
}

func (s *Server) handleCloseWindow(ctx context.Context, _ *mcpsdk.CallToolRequest, args WindowInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
	tw, err := s.lookup(args.ID)
	if err != nil {
		return nil, StatusOutput{}, err
	}
	if err := tw.win.Close(ctx); err != nil {
		return nil, StatusOutput{}, fmt.Errorf("close_window %d: %w", args.ID, err)
	}
	return nil, StatusOutput{ID: args.ID, Status: "closing"}, nil
}

func (s *Server) handleLoadURL(ctx context.Context, _ *mcpsdk.CallToolRequest, args LoadURLInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
	if args.URL == "" {
		return nil, StatusOutput{}, fmt.Errorf("load_url: url is required")
	}
	tw, err := s.lookup(args.ID)
	if err != nil {
		return nil, StatusOutput{}, err
	}
	if err := tw.win.LoadURL(ctx, args.URL); err != nil {
		return nil, StatusOutput{}, fmt.Errorf("load_url %d: %w", args.ID, err)
	}
	s.setURL(tw, args.URL)
	return nil, StatusOutput{ID: args.ID, Status: "loaded"}, nil
}

func (s *Server) handleSendToWindow(ctx context.Context, _ *mcpsdk.CallToolRequest, args SendToWindowInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
	if args.Channel == "" {
		return nil, StatusOutput{}, fmt.Errorf("send_to_window: channel is required")
	}
	tw, err := s.lookup(args.ID)
	if err != nil {
		return nil, StatusOutput{}, err
	}
	if err := tw.win.Send(ctx, args.Channel, args.Args...); err != nil {
		return nil, StatusOutput{}, fmt.Errorf("send_to_window %d: %w", args.ID, err)
	}
	return nil, StatusOutput{ID: args.ID, Status: "sent"}, nil
}

func (s *Server) handlePostMessage(_ context.Context, _ *mcpsdk.CallToolRequest, args PostMessageInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
	tw, err := s.lookup(args.ID)
	if err != nil {
		return nil, StatusOutput{}, err
	}
	if err := tw.win.PostMessage(args.Args...); err != nil {
		return nil, StatusOutput{}, fmt.Errorf("post_message %d: %w", args.ID, err)
	}
	return nil, StatusOutput{ID: args.ID, Status: "posted"}, nil
}

func (s *Server) handleReadMessages(_ context.Context, _ *mcpsdk.CallToolRequest, args ReadMessagesInput) (*mcpsdk.CallToolResult, ReadMessagesOutput, error) {
	tw, err := s.lookup(args.ID)
	if err != nil {
		return nil, ReadMessagesOutput{}, err
	}
	msgs, dropped := tw.messages.Drain(args.Max)
	return nil, ReadMessagesOutput{
		ID:       args.ID,
		Messages: msgs,
		Dropped:  dropped,
		Pending:  tw.messages.Len(),
		Closed:   tw.win.Closed(),
	}, nil
}

func (s *Server) handleListWindows(_ context.Context, _ *mcpsdk.CallToolRequest, _ struct{}) (*mcpsdk.CallToolResult, ListWindowsOutput, error) {
	return nil, ListWindowsOutput{Windows: s.list()}, nil
}
