package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/1broseidon/winbridge/internal/runtimepath"
)

// Surface backends.
const (
	BackendAuto     = "auto"
	BackendX11      = "x11"
	BackendHeadless = "headless"
)

// HostConfig describes the coordinator's own top-level surface. Its content
// is the set of connected peers: closed and message notifications are
// delivered there.
type HostConfig struct {
	Title       string `yaml:"title"`
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
	Show        bool   `yaml:"show"`
	URL         string `yaml:"url,omitempty"`
	ExitOnClose bool   `yaml:"exit_on_close"`
}

// SurfaceDefaults fill in sizes a create request leaves unset.
type SurfaceDefaults struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

type Limits struct {
	MaxSurfaces        int `yaml:"max_surfaces"`
	LoadTimeoutSeconds int `yaml:"load_timeout_seconds"`
}

// Config holds the application configuration.
type Config struct {
	SocketPath string          `yaml:"socket_path,omitempty"`
	Backend    string          `yaml:"backend"`
	Display    string          `yaml:"display,omitempty"`
	LogLevel   string          `yaml:"log_level"`
	LogFormat  string          `yaml:"log_format"`
	Host       HostConfig      `yaml:"host"`
	Defaults   SurfaceDefaults `yaml:"defaults"`
	Limits     Limits          `yaml:"limits"`
}

func DefaultConfig() *Config {
	return &Config{
		Backend:   BackendAuto,
		LogLevel:  "info",
		LogFormat: "text",
		Host: HostConfig{
			Title:       "winbridge",
			Width:       800,
			Height:      600,
			Show:        true,
			ExitOnClose: true,
		},
		Defaults: SurfaceDefaults{Width: 800, Height: 600},
		Limits:   Limits{MaxSurfaces: 64},
	}
}

// ResolveSocketPath returns socket_path, or the per-user runtime socket when
// it is unset.
func (c *Config) ResolveSocketPath() (string, error) {
	if strings.TrimSpace(c.SocketPath) != "" {
		return c.SocketPath, nil
	}
	return runtimepath.SocketPath()
}

// LoadTimeout returns the loadURL deadline, or 0 for none.
func (c *Config) LoadTimeout() time.Duration {
	return time.Duration(c.Limits.LoadTimeoutSeconds) * time.Second
}

// SlogLevel maps log_level to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Validate performs strict validation of the effective configuration.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendAuto, BackendX11, BackendHeadless:
	default:
		return &ValidationError{Path: "backend", Err: fmt.Errorf("backend must be one of: auto, x11, headless")}
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return &ValidationError{Path: "log_level", Err: fmt.Errorf("log_level must be one of: debug, info, warn, error")}
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return &ValidationError{Path: "log_format", Err: fmt.Errorf("log_format must be one of: text, json")}
	}
	if c.Host.Width <= 0 {
		return &ValidationError{Path: "host.width", Err: fmt.Errorf("width must be > 0")}
	}
	if c.Host.Height <= 0 {
		return &ValidationError{Path: "host.height", Err: fmt.Errorf("height must be > 0")}
	}
	if c.Defaults.Width < 0 {
		return &ValidationError{Path: "defaults.width", Err: fmt.Errorf("width must be >= 0")}
	}
	if c.Defaults.Height < 0 {
		return &ValidationError{Path: "defaults.height", Err: fmt.Errorf("height must be >= 0")}
	}
	if c.Limits.MaxSurfaces < 0 {
		return &ValidationError{Path: "limits.max_surfaces", Err: fmt.Errorf("max_surfaces must be >= 0")}
	}
	if c.Limits.LoadTimeoutSeconds < 0 {
		return &ValidationError{Path: "limits.load_timeout_seconds", Err: fmt.Errorf("load_timeout_seconds must be >= 0")}
	}
	return nil
}
