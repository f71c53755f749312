package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"whiteboard/internal/canvas"
	"whiteboard/internal/domain"
	"whiteboard/internal/engine"
	"whiteboard/internal/history"
	"whiteboard/internal/offline"
	"whiteboard/internal/remote"
	"whiteboard/internal/viewport"
)

// ─────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────
//
// Loaded from a YAML file. Every field has a default so an empty or
// missing file yields a working local-only setup.

// Duration decodes "2s"-style strings as well as bare milliseconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var ms int64
	if err := n.Decode(&ms); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	var s string
	if err := n.Decode(&s); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

type Limits struct {
	MaxLayers     int `yaml:"max_layers"`
	HistorySize   int `yaml:"history_size"`
	MaxQueueSize  int `yaml:"max_queue_size"`
	MaxRetries    int `yaml:"max_retries"`
	HistoryDepth  int `yaml:"history_depth"`
	SurfaceWidth  int `yaml:"surface_width"`
	SurfaceHeight int `yaml:"surface_height"`
}

type Intervals struct {
	SyncDebounce  Duration `yaml:"sync_debounce"`
	CursorTimeout Duration `yaml:"cursor_timeout"`
	PruneInterval Duration `yaml:"prune_interval"`
	CursorPublish Duration `yaml:"cursor_publish"`
	// SyncSchedule is a cron spec, e.g. "@every 30s".
	SyncSchedule string `yaml:"sync_schedule"`
}

type Transport struct {
	// URL of a websocket hub, e.g. ws://host:8080/boards/{id}/ws.
	URL    string `yaml:"url"`
	UserID string `yaml:"user_id"`
	Name   string `yaml:"name"`
	Color  string `yaml:"color"`
}

type Render struct {
	Background string            `yaml:"background"`
	Grid       domain.GridConfig `yaml:"grid"`
	ImageDir   string            `yaml:"image_dir"`
}

type Config struct {
	DataDir   string          `yaml:"data_dir"`
	Listen    string          `yaml:"listen"`
	Limits    Limits          `yaml:"limits"`
	Intervals Intervals       `yaml:"intervals"`
	Transport Transport       `yaml:"transport"`
	Viewport  viewport.Config `yaml:"viewport"`
	Render    Render          `yaml:"render"`

	// Remote selects the shared snapshot store. An empty driver keeps the
	// board local.
	Remote remote.Conn `yaml:"remote"`
}

// DefaultDataDir mirrors the XDG data location.
func DefaultDataDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".local", "share", "whiteboard")
}

func Defaults() Config {
	return Config{
		DataDir: DefaultDataDir(),
		Listen:  ":8080",
		Limits: Limits{
			MaxLayers:     canvas.DefaultMaxLayers,
			HistorySize:   history.DefaultCapacity,
			MaxQueueSize:  offline.DefaultMaxQueueSize,
			MaxRetries:    offline.DefaultMaxRetries,
			HistoryDepth:  history.DefaultCapacity,
			SurfaceWidth:  1280,
			SurfaceHeight: 800,
		},
		Intervals: Intervals{
			SyncDebounce:  Duration(engine.DefaultSyncDebounce),
			CursorTimeout: Duration(engine.DefaultCursorTimeout),
			PruneInterval: Duration(engine.DefaultPruneInterval),
			CursorPublish: Duration(50 * time.Millisecond),
			SyncSchedule:  "@every 30s",
		},
		Transport: Transport{Color: "#2196f3"},
		Viewport:  viewport.DefaultConfig(),
		Render: Render{
			Grid: domain.GridConfig{Enabled: true, Size: 20, Color: "#e0e0e0", Opacity: 0.5},
		},
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{domain.ErrValidation}, args...)...))
		}
	}
	check(c.DataDir != "", "data_dir is empty")
	check(c.Limits.MaxLayers > 0, "limits.max_layers must be positive")
	check(c.Limits.HistorySize > 0, "limits.history_size must be positive")
	check(c.Limits.MaxQueueSize > 0, "limits.max_queue_size must be positive")
	check(c.Limits.MaxRetries > 0, "limits.max_retries must be positive")
	check(c.Limits.SurfaceWidth > 0 && c.Limits.SurfaceHeight > 0, "limits.surface size must be positive")
	check(c.Intervals.SyncDebounce > 0, "intervals.sync_debounce must be positive")
	check(c.Intervals.CursorTimeout > 0, "intervals.cursor_timeout must be positive")
	check(c.Intervals.PruneInterval > 0, "intervals.prune_interval must be positive")
	check(c.Viewport.MinZoom > 0 && c.Viewport.MinZoom < c.Viewport.MaxZoom,
		"viewport zoom range %v..%v", c.Viewport.MinZoom, c.Viewport.MaxZoom)
	check(c.Viewport.ZoomStep > 0, "viewport.zoom_step must be positive")
	switch c.Remote.Driver {
	case "", remote.DriverSQLite, remote.DriverMySQL, remote.DriverPostgres, remote.DriverMongoDB:
	default:
		check(false, "unknown remote driver %q", c.Remote.Driver)
	}
	return errors.Join(errs...)
}

// DBPath is the local SQLite file.
func (c Config) DBPath() string { return filepath.Join(c.DataDir, "whiteboard.db") }

// AssetDir holds image files referenced by components.
func (c Config) AssetDir() string {
	if c.Render.ImageDir != "" {
		return c.Render.ImageDir
	}
	return filepath.Join(c.DataDir, "assets")
}

// EngineOptions maps the config onto engine options for one session.
func (c Config) EngineOptions(sessionID string) engine.Options {
	grid := c.Render.Grid
	return engine.Options{
		SessionID:     sessionID,
		Width:         c.Limits.SurfaceWidth,
		Height:        c.Limits.SurfaceHeight,
		MaxLayers:     c.Limits.MaxLayers,
		HistorySize:   c.Limits.HistorySize,
		SyncDebounce:  c.Intervals.SyncDebounce.Std(),
		CursorTimeout: c.Intervals.CursorTimeout.Std(),
		PruneInterval: c.Intervals.PruneInterval.Std(),
		Viewport:      c.Viewport,
		Grid:          &grid,
		Background:    c.Render.Background,
	}
}

func (c Config) QueueOptions() offline.Options {
	return offline.Options{MaxSize: c.Limits.MaxQueueSize, MaxRetries: c.Limits.MaxRetries}
}
