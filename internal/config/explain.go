package config

import (
	"fmt"
	"strings"
)

// Explain returns the effective value at the given YAML-like path and its source.
//
// Supported paths include:
//
//	socket_path
//	backend
//	display
//	log_level
//	log_format
//	host
//	host.title
//	host.exit_on_close
//	defaults.width
//	limits.max_surfaces
//	limits.load_timeout_seconds
func Explain(res *LoadResult, path string) (any, Source, error) {
	if res == nil || res.Config == nil {
		return nil, Source{}, fmt.Errorf("no config loaded")
	}
	if path == "" {
		return nil, Source{}, fmt.Errorf("path is empty")
	}

	value, err := lookupValue(res.Config, path)
	if err != nil {
		return nil, Source{}, err
	}

	// Exact-path file source wins.
	if src, ok := res.Sources[path]; ok {
		return value, src, nil
	}
	return value, Source{Kind: SourceDefault, Name: "defaults"}, nil
}

func lookupValue(cfg *Config, path string) (any, error) {
	parts := strings.Split(path, ".")
	if len(parts) > 2 {
		return nil, fmt.Errorf("unknown path: %s", path)
	}
	leaf := ""
	if len(parts) == 2 {
		leaf = parts[1]
	}

	switch parts[0] {
	case "socket_path", "backend", "display", "log_level", "log_format":
		if leaf != "" {
			return nil, fmt.Errorf("unknown path: %s", path)
		}
		switch parts[0] {
		case "socket_path":
			return cfg.SocketPath, nil
		case "backend":
			return cfg.Backend, nil
		case "display":
			return cfg.Display, nil
		case "log_level":
			return cfg.LogLevel, nil
		default:
			return cfg.LogFormat, nil
		}
	case "host":
		switch leaf {
		case "":
			return cfg.Host, nil
		case "title":
			return cfg.Host.Title, nil
		case "width":
			return cfg.Host.Width, nil
		case "height":
			return cfg.Host.Height, nil
		case "show":
			return cfg.Host.Show, nil
		case "url":
			return cfg.Host.URL, nil
		case "exit_on_close":
			return cfg.Host.ExitOnClose, nil
		}
	case "defaults":
		switch leaf {
		case "":
			return cfg.Defaults, nil
		case "width":
			return cfg.Defaults.Width, nil
		case "height":
			return cfg.Defaults.Height, nil
		}
	case "limits":
		switch leaf {
		case "":
			return cfg.Limits, nil
		case "max_surfaces":
			return cfg.Limits.MaxSurfaces, nil
		case "load_timeout_seconds":
			return cfg.Limits.LoadTimeoutSeconds, nil
		}
	}
	return nil, fmt.Errorf("unknown path: %s", path)
}
