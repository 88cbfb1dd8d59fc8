package config

type RawHost struct {
	Title       *string `yaml:"title"`
	Width       *int    `yaml:"width"`
	Height      *int    `yaml:"height"`
	Show        *bool   `yaml:"show"`
	URL         *string `yaml:"url"`
	ExitOnClose *bool   `yaml:"exit_on_close"`
}

type RawDefaults struct {
	Width  *int `yaml:"width"`
	Height *int `yaml:"height"`
}

type RawLimits struct {
	MaxSurfaces        *int `yaml:"max_surfaces"`
	LoadTimeoutSeconds *int `yaml:"load_timeout_seconds"`
}

// RawConfig mirrors the file. A nil field was not set and keeps its default.
type RawConfig struct {
	SocketPath *string      `yaml:"socket_path"`
	Backend    *string      `yaml:"backend"`
	Display    *string      `yaml:"display"`
	LogLevel   *string      `yaml:"log_level"`
	LogFormat  *string      `yaml:"log_format"`
	Host       *RawHost     `yaml:"host"`
	Defaults   *RawDefaults `yaml:"defaults"`
	Limits     *RawLimits   `yaml:"limits"`
}
