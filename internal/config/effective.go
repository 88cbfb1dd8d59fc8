package config

import "fmt"

type ValidationError struct {
	Path   string
	Source Source
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Source.Kind == SourceFile && e.Source.File != "" && e.Source.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %v", e.Source.File, e.Source.Line, e.Source.Column, e.Path, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

// BuildEffectiveConfig applies raw on top of the defaults.
func BuildEffectiveConfig(raw RawConfig) *Config {
	cfg := DefaultConfig()

	if raw.SocketPath != nil {
		cfg.SocketPath = *raw.SocketPath
	}
	if raw.Backend != nil {
		cfg.Backend = *raw.Backend
	}
	if raw.Display != nil {
		cfg.Display = *raw.Display
	}
	if raw.LogLevel != nil {
		cfg.LogLevel = *raw.LogLevel
	}
	if raw.LogFormat != nil {
		cfg.LogFormat = *raw.LogFormat
	}

	if h := raw.Host; h != nil {
		cfg.Host.Title = derefString(h.Title, cfg.Host.Title)
		cfg.Host.Width = derefInt(h.Width, cfg.Host.Width)
		cfg.Host.Height = derefInt(h.Height, cfg.Host.Height)
		cfg.Host.Show = derefBool(h.Show, cfg.Host.Show)
		cfg.Host.URL = derefString(h.URL, cfg.Host.URL)
		cfg.Host.ExitOnClose = derefBool(h.ExitOnClose, cfg.Host.ExitOnClose)
	}
	if d := raw.Defaults; d != nil {
		cfg.Defaults.Width = derefInt(d.Width, cfg.Defaults.Width)
		cfg.Defaults.Height = derefInt(d.Height, cfg.Defaults.Height)
	}
	if l := raw.Limits; l != nil {
		cfg.Limits.MaxSurfaces = derefInt(l.MaxSurfaces, cfg.Limits.MaxSurfaces)
		cfg.Limits.LoadTimeoutSeconds = derefInt(l.LoadTimeoutSeconds, cfg.Limits.LoadTimeoutSeconds)
	}

	return cfg
}

func derefInt(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func derefBool(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

func derefString(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}
