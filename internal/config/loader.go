package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type SourceKind string

const (
	SourceDefault SourceKind = "default"
	SourceFile    SourceKind = "file"
)

// Source records where an effective value came from.
type Source struct {
	Kind   SourceKind
	Name   string // for defaults
	File   string
	Line   int
	Column int
}

// LoadResult is a loaded configuration together with the position of every
// key the file set.
type LoadResult struct {
	Config *Config
	// Sources maps dotted key paths ("host.title") to their position in
	// the file. Keys left at their default are absent.
	Sources map[string]Source
	// Path is the file that was consulted, whether or not it exists.
	Path string
	// Loaded reports whether Path existed.
	Loaded bool
}

// EnvConfigPath overrides the default configuration file location.
const EnvConfigPath = "WINBRIDGE_CONFIG"

func DefaultConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "winbridge", "config.yaml"), nil
}

// LoadWithSources loads the file at the default location.
func LoadWithSources() (*LoadResult, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath reads path over the defaults. A missing file yields the
// defaults; unknown keys and invalid values are errors that name the file
// position.
func LoadFromPath(path string) (*LoadResult, error) {
	res := &LoadResult{Path: path, Sources: map[string]Source{}}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		res.Config = DefaultConfig()
		return res, nil
	case err != nil:
		return nil, fmt.Errorf("%s: failed to read: %w", path, err)
	}
	res.Loaded = true

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s: failed to parse yaml: %w", path, err)
	}
	var raw RawConfig
	if err := decodeStrict(data, &raw); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	recordPositions(&doc, path, "", res.Sources)

	cfg := BuildEffectiveConfig(raw)
	if err := cfg.Validate(); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			if src, ok := res.Sources[verr.Path]; ok {
				verr.Source = src
			}
		}
		return nil, err
	}
	res.Config = cfg
	return res, nil
}

func decodeStrict(data []byte, out *RawConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// recordPositions walks mapping nodes and stores the position of each
// value under its dotted path.
func recordPositions(node *yaml.Node, file, prefix string, out map[string]Source) {
	if node.Kind == yaml.DocumentNode {
		for _, child := range node.Content {
			recordPositions(child, file, prefix, out)
		}
		return
	}
	if node.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i].Value, node.Content[i+1]
		if prefix != "" {
			key = prefix + "." + key
		}
		out[key] = Source{Kind: SourceFile, File: file, Line: value.Line, Column: value.Column}
		recordPositions(value, file, key, out)
	}
}
