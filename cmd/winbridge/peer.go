package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/1broseidon/winbridge/internal/ipc"
	"github.com/1broseidon/winbridge/internal/remote"
	"github.com/1broseidon/winbridge/internal/surface"
)

const requestTimeout = 30 * time.Second

type connFlags struct {
	path   *string
	socket *string
}

func addConnFlags(fs *pflag.FlagSet) connFlags {
	return connFlags{
		path:   fs.String("path", "", "Config file path (default: ~/.config/winbridge/config.yaml)"),
		socket: fs.String("socket", "", "Daemon socket (default: from config)"),
	}
}

func (f connFlags) dial(ctx context.Context) (*ipc.Client, error) {
	socket := *f.socket
	if socket == "" {
		res, err := loadConfig(*f.path)
		if err != nil {
			return nil, err
		}
		if socket, err = res.Config.ResolveSocketPath(); err != nil {
			return nil, err
		}
	}
	client, err := ipc.Dial(ctx, socket)
	if err != nil {
		return nil, fmt.Errorf("daemon not reachable at %s (is 'winbridge daemon' running?): %w", socket, err)
	}
	return client, nil
}

// printer writes events for humans on a terminal and as NDJSON otherwise.
type printer struct {
	w     io.Writer
	human bool
}

func newPrinter() *printer {
	return &printer{w: os.Stdout, human: term.IsTerminal(int(os.Stdout.Fd()))}
}

type eventLine struct {
	Event string `json:"event"`
	ID    uint64 `json:"id"`
	Args  []any  `json:"args,omitempty"`
	Error string `json:"error,omitempty"`
}

func (p *printer) print(line eventLine) {
	if !p.human {
		data, err := json.Marshal(line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "encode event: %v\n", err)
			return
		}
		fmt.Fprintln(p.w, string(data))
		return
	}
	switch line.Event {
	case "message":
		data, _ := json.Marshal(line.Args)
		fmt.Fprintf(p.w, "[%d] message %s\n", line.ID, data)
	case "error":
		fmt.Fprintf(p.w, "[%d] undecodable message: %s\n", line.ID, line.Error)
	default:
		fmt.Fprintf(p.w, "[%d] %s\n", line.ID, line.Event)
	}
}

func (p *printer) event(id surface.ID, ev remote.Event) {
	switch ev := ev.(type) {
	case remote.MessageEvent:
		values, err := ev.Args.Values()
		if err != nil {
			p.print(eventLine{Event: "error", ID: uint64(id), Error: err.Error()})
			return
		}
		p.print(eventLine{Event: "message", ID: uint64(id), Args: values})
	case remote.ClosedEvent:
		p.print(eventLine{Event: "closed", ID: uint64(id)})
	}
}

// follow prints events for w until it closes or the process is
// interrupted. With closeOnInterrupt an interrupt closes the window first.
func follow(client *ipc.Client, w *remote.Window, closeOnInterrupt bool) int {
	p := newPrinter()
	cancel := w.Subscribe(func(ev remote.Event) { p.event(w.ID(), ev) })
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-w.Done():
		return 0
	case <-client.Done():
		if w.Closed() {
			return 0
		}
		fmt.Fprintln(os.Stderr, "connection to daemon lost")
		return 1
	case <-sigCh:
		if !closeOnInterrupt {
			return 0
		}
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if err := w.Close(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "close window %d: %v\n", w.ID(), err)
			return 1
		}
		select {
		case <-w.Done():
		case <-ctx.Done():
		}
		return 0
	}
}

func runOpen(args []string) int {
	fs := newFlagSet("open", "open [options] <url>")
	conn := addConnFlags(fs)
	width := fs.Int("width", 0, "Window width (default: from config)")
	height := fs.Int("height", 0, "Window height (default: from config)")
	title := fs.String("title", "", "Window title")
	modal := fs.Bool("modal", false, "Open as a modal child of the host window")
	inactive := fs.Bool("inactive", false, "Show without taking focus")
	detach := fs.BoolP("detach", "d", false, "Print the identity and exit instead of following messages")
	if code := parseFlags(fs, args); code >= 0 {
		return code
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	url := fs.Arg(0)

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	client, err := conn.dial(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer client.Close()

	opts := surface.Options{Width: *width, Height: *height, Title: *title, Modal: *modal}
	if *inactive {
		hidden := false
		opts.Show = &hidden
	}
	w, err := remote.Create(ctx, client, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create window: %v\n", err)
		return 1
	}
	if err := w.LoadURL(ctx, url); err != nil {
		fmt.Fprintf(os.Stderr, "window %d: load %s: %v\n", w.ID(), url, err)
	}
	if *inactive {
		if err := w.ShowInactive(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "window %d: show: %v\n", w.ID(), err)
		}
	}

	p := newPrinter()
	if p.human {
		fmt.Fprintf(p.w, "window %d (channels: %v)\n", w.ID(), w.Channels().Names())
	} else {
		p.print(eventLine{Event: "created", ID: uint64(w.ID())})
	}
	if *detach {
		return 0
	}
	return follow(client, w, true)
}

func runSend(args []string) int {
	fs := newFlagSet("send", "send [options] <id> <channel> [json-arg...]")
	conn := addConnFlags(fs)
	if code := parseFlags(fs, args); code >= 0 {
		return code
	}
	if fs.NArg() < 2 {
		fs.Usage()
		return 2
	}
	id, err := surface.ParseID(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	name := fs.Arg(1)
	values := parseJSONArgs(fs.Args()[2:])

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	client, err := conn.dial(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer client.Close()

	if err := remote.Attach(client, id).Send(ctx, name, values...); err != nil {
		fmt.Fprintf(os.Stderr, "send to window %d: %v\n", id, err)
		return 1
	}
	return 0
}

// parseJSONArgs decodes each argument as JSON and keeps it as a string
// when it is not valid JSON.
func parseJSONArgs(args []string) []any {
	values := make([]any, 0, len(args))
	for _, a := range args {
		var v any
		if err := json.Unmarshal([]byte(a), &v); err != nil {
			v = a
		}
		values = append(values, v)
	}
	return values
}

func runClose(args []string) int {
	fs := newFlagSet("close", "close [options] <id>")
	conn := addConnFlags(fs)
	if code := parseFlags(fs, args); code >= 0 {
		return code
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	id, err := surface.ParseID(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	client, err := conn.dial(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer client.Close()

	w := remote.Attach(client, id)
	if err := w.Close(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "close window %d: %v\n", id, err)
		return 1
	}
	select {
	case <-w.Done():
	case <-ctx.Done():
		fmt.Fprintf(os.Stderr, "window %d: no closed notification\n", id)
		return 1
	}
	return 0
}

func runWatch(args []string) int {
	fs := newFlagSet("watch", "watch [options] <id>")
	conn := addConnFlags(fs)
	if code := parseFlags(fs, args); code >= 0 {
		return code
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	id, err := surface.ParseID(fs.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	client, err := conn.dial(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer client.Close()

	return follow(client, remote.Attach(client, id), false)
}
