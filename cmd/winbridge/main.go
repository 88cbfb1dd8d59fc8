package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/1broseidon/winbridge/internal/config"
	"github.com/1broseidon/winbridge/internal/daemon"
)

func main() {
	if len(os.Args) < 2 {
		printMainUsage(os.Stdout)
		os.Exit(0)
	}

	switch os.Args[1] {
	case "daemon":
		os.Exit(runDaemon(os.Args[2:]))
	case "open":
		os.Exit(runOpen(os.Args[2:]))
	case "send":
		os.Exit(runSend(os.Args[2:]))
	case "close":
		os.Exit(runClose(os.Args[2:]))
	case "watch":
		os.Exit(runWatch(os.Args[2:]))
	case "config":
		os.Exit(runConfig(os.Args[2:]))
	case "mcp":
		os.Exit(runMCP(os.Args[2:]))
	case "help", "-h", "--help":
		printMainUsage(os.Stdout)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printMainUsage(os.Stderr)
		os.Exit(2)
	}
}

func printMainUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: winbridge <command> [options]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  daemon              Start the coordinator (foreground)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  open <url>          Create a window and load a URL")
	fmt.Fprintln(w, "  send <id> <chan>    Push a message into a window's content")
	fmt.Fprintln(w, "  close <id>          Close a window")
	fmt.Fprintln(w, "  watch <id>          Print a window's messages until it closes")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  config validate     Validate configuration")
	fmt.Fprintln(w, "  config print        Print configuration")
	fmt.Fprintln(w, "  config explain      Explain a config value")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  mcp serve           Start MCP server (stdio transport)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'winbridge <command> --help' for command-specific options.")
}

// newFlagSet returns a flag set that reports errors on stderr and leaves
// exiting to the caller.
func newFlagSet(name, usage string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: winbridge "+usage)
		fmt.Fprintln(os.Stderr, "")
		fs.PrintDefaults()
	}
	return fs
}

// parseFlags returns -1 when parsing succeeded, otherwise the exit code.
func parseFlags(fs *pflag.FlagSet, args []string) int {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	return -1
}

func loadConfig(path string) (*config.LoadResult, error) {
	if path == "" {
		return config.LoadWithSources()
	}
	return config.LoadFromPath(path)
}

func runDaemon(args []string) int {
	fs := newFlagSet("daemon", "daemon [--path PATH]")
	path := fs.String("path", "", "Config file path (default: ~/.config/winbridge/config.yaml)")
	if code := parseFlags(fs, args); code >= 0 {
		return code
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "daemon takes no arguments")
		return 2
	}

	res, err := loadConfig(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	cfg := res.Config

	level := new(slog.LevelVar)
	level.Set(cfg.SlogLevel())
	logger := daemon.NewLogger(os.Stderr, cfg.LogFormat, level)
	slog.SetDefault(logger)

	d, err := daemon.New(daemon.Options{
		Config:     cfg,
		ConfigPath: res.Path,
		Logger:     logger,
		Level:      level,
		Signals:    true,
	})
	if err != nil {
		logger.Error("failed to create daemon", "error", err)
		return 1
	}
	if err := d.Run(context.Background()); err != nil {
		logger.Error("daemon exited with error", "error", err)
		return 1
	}
	return 0
}

func runConfig(args []string) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, "  winbridge config validate [--path PATH]")
		fmt.Fprintln(os.Stderr, "  winbridge config print [--path PATH] [--defaults]")
		fmt.Fprintln(os.Stderr, "  winbridge config explain [--path PATH] <yaml.path>")
		return 2
	}

	switch args[0] {
	case "validate":
		fs := newFlagSet("validate", "config validate [--path PATH]")
		path := fs.String("path", "", "Config file path (default: ~/.config/winbridge/config.yaml)")
		if code := parseFlags(fs, args[1:]); code >= 0 {
			return code
		}
		if _, err := loadConfig(*path); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Println("config: ok")
		return 0

	case "print":
		fs := newFlagSet("print", "config print [--path PATH] [--defaults]")
		path := fs.String("path", "", "Config file path (default: ~/.config/winbridge/config.yaml)")
		printDefaults := fs.Bool("defaults", false, "Print built-in defaults (no files)")
		if code := parseFlags(fs, args[1:]); code >= 0 {
			return code
		}

		cfg := config.DefaultConfig()
		if !*printDefaults {
			res, err := loadConfig(*path)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return 1
			}
			cfg = res.Config
		}
		if socket, err := cfg.ResolveSocketPath(); err == nil {
			fmt.Printf("# resolved_socket: %s\n", socket)
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Print(string(data))
		return 0

	case "explain":
		fs := newFlagSet("explain", "config explain [--path PATH] <yaml.path>")
		path := fs.String("path", "", "Config file path (default: ~/.config/winbridge/config.yaml)")
		if code := parseFlags(fs, args[1:]); code >= 0 {
			return code
		}
		if fs.NArg() < 1 {
			fmt.Fprintln(os.Stderr, "explain requires <yaml.path>")
			return 2
		}
		queryPath := fs.Arg(0)

		res, err := loadConfig(*path)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		value, src, err := config.Explain(res, queryPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		out, err := yaml.Marshal(value)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}

		fmt.Printf("path: %s\n", queryPath)
		fmt.Printf("source: %s\n", formatSource(src))
		fmt.Printf("value:\n%s", string(out))
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown config subcommand: %s\n", args[0])
		return 2
	}
}

func formatSource(src config.Source) string {
	switch src.Kind {
	case config.SourceFile:
		if src.File == "" {
			return "file"
		}
		if src.Line > 0 {
			return fmt.Sprintf("file:%s:%d:%d", src.File, src.Line, src.Column)
		}
		return "file:" + src.File
	case config.SourceDefault:
		if src.Name != "" {
			return "default:" + src.Name
		}
		return "default"
	default:
		return "unknown"
	}
}
