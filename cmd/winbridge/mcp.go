package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/1broseidon/winbridge/internal/daemon"
	"github.com/1broseidon/winbridge/internal/mcp"
)

func printMCPUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: winbridge mcp <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve    Start the MCP server (stdio transport)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'winbridge mcp <command> --help' for command-specific options.")
}

func runMCP(args []string) int {
	if len(args) == 0 {
		printMCPUsage(os.Stderr)
		return 2
	}

	switch args[0] {
	case "serve":
		return runMCPServe(args[1:])
	case "help", "-h", "--help":
		printMCPUsage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown mcp command: %s\n\n", args[0])
		printMCPUsage(os.Stderr)
		return 2
	}
}

func runMCPServe(args []string) int {
	fs := newFlagSet("mcp serve", "mcp serve [--path PATH] [--socket SOCKET]")
	conn := addConnFlags(fs)
	maxMessages := fs.Int("max-messages", mcp.DefaultMaxMessages, "Messages buffered per window")
	fs.Usage = func() {
		fmt.Fprintln(os.Stdout, "Usage: winbridge mcp serve [--path PATH] [--socket SOCKET]")
		fmt.Fprintln(os.Stdout, "")
		fmt.Fprintln(os.Stdout, "Start the MCP server on stdio. It connects to a running daemon as a")
		fmt.Fprintln(os.Stdout, "peer and exposes window tools to MCP clients.")
		fmt.Fprintln(os.Stdout, "")
		fs.SetOutput(os.Stdout)
		fs.PrintDefaults()
	}
	if code := parseFlags(fs, args); code >= 0 {
		return code
	}

	// stdout carries the MCP transport.
	level := new(slog.LevelVar)
	logger := daemon.NewLogger(os.Stderr, "text", level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := conn.dial(ctx)
	if err != nil {
		logger.Error("failed to connect to daemon", "error", err)
		return 1
	}
	defer client.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
		case <-client.Done():
			logger.Warn("daemon connection closed")
		}
		cancel()
	}()

	server := mcp.NewServer(client,
		mcp.WithLogger(logger),
		mcp.WithMessageLimits(*maxMessages, mcp.DefaultMessageCapBytes),
	)
	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("MCP server error", "error", err)
		return 1
	}
	return 0
}
