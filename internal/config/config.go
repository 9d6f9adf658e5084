// Copyright ©2026 The dmd Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config holds the configuration of the DMD recordings server.
package config // import "sbinet.org/x/dmd/internal/config"

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the configuration of a DMD recordings server.
type Config struct {
	Server     ServerConfig  `yaml:"server"`
	Library    LibraryConfig `yaml:"library"`
	Recordings []Recording   `yaml:"recordings"`
	Plot       PlotConfig    `yaml:"plot"`
	Logging    LoggingConfig `yaml:"logging"`
}

// ServerConfig describes the HTTP endpoint.
type ServerConfig struct {
	Addr string `yaml:"addr"` // [host]:port to serve
	Root string `yaml:"root"` // URL prefix of all handlers
}

// LibraryConfig locates the native DMD reader library.
type LibraryConfig struct {
	Path string `yaml:"path"` // empty: default search
}

// Recording is a DMD file served under an ID.
type Recording struct {
	ID   string `yaml:"id"`
	Path string `yaml:"path"`
}

// PlotConfig describes the generated plots.
type PlotConfig struct {
	Width     float64 `yaml:"width"`      // cm
	Height    float64 `yaml:"height"`     // cm
	MaxPoints int     `yaml:"max_points"` // 0: no decimation
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the default configuration, without recordings.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr: ":8080",
			Root: "/",
		},
		Plot: PlotConfig{
			Width:     20 * math.Phi,
			Height:    20,
			MaxPoints: 20000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads and validates the configuration file at path.
// Settings missing from the file keep their default value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("could not load config file %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a YAML configuration.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	err := yaml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("could not parse config: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if len(c.Recordings) == 0 {
		return fmt.Errorf("recordings config: no recording")
	}
	ids := make(map[string]struct{}, len(c.Recordings))
	for i, rec := range c.Recordings {
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("recordings config: recording #%d: %w", i, err)
		}
		if _, dup := ids[rec.ID]; dup {
			return fmt.Errorf("recordings config: duplicate recording id %q", rec.ID)
		}
		ids[rec.ID] = struct{}{}
	}

	if err := c.Plot.Validate(); err != nil {
		return fmt.Errorf("plot config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

func (s *ServerConfig) Validate() error {
	if s.Addr == "" {
		return fmt.Errorf("addr cannot be empty")
	}
	if !strings.HasPrefix(s.Root, "/") {
		return fmt.Errorf("root must start with '/', got %q", s.Root)
	}
	return nil
}

func (r *Recording) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("id cannot be empty")
	}
	if strings.ContainsAny(r.ID, "/?&#") {
		return fmt.Errorf("invalid id %q", r.ID)
	}
	if r.Path == "" {
		return fmt.Errorf("path of recording %q cannot be empty", r.ID)
	}
	return nil
}

func (p *PlotConfig) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("plot size must be positive, got %vx%v cm", p.Width, p.Height)
	}
	if p.MaxPoints < 0 {
		return fmt.Errorf("max_points cannot be negative, got %d", p.MaxPoints)
	}
	return nil
}

func (l *LoggingConfig) Validate() error {
	if _, err := parseLevel(l.Level); err != nil {
		return err
	}
	switch l.Format {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("format must be 'json' or 'text', got %q", l.Format)
	}
}

func parseLevel(lvl string) (slog.Level, error) {
	switch lvl {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("level must be one of [debug, info, warn, error], got %q", lvl)
	}
}

// Logger returns a logger writing to w, as configured.
func (l *LoggingConfig) Logger(w io.Writer) *slog.Logger {
	lvl, err := parseLevel(l.Level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	var h slog.Handler
	switch l.Format {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}
