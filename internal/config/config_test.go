package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"whiteboard/internal/domain"
	"whiteboard/internal/remote"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "whiteboard.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Limits.MaxQueueSize != 100 || cfg.Limits.MaxRetries != 5 {
		t.Errorf("expected queue defaults 100/5, got %d/%d", cfg.Limits.MaxQueueSize, cfg.Limits.MaxRetries)
	}
	if cfg.Intervals.SyncDebounce.Std() != 2*time.Second {
		t.Errorf("expected 2s debounce, got %v", cfg.Intervals.SyncDebounce.Std())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected defaults valid, got %v", err)
	}
}

func TestLoad_OverridesAndDurations(t *testing.T) {
	path := writeConfig(t, `
data_dir: /tmp/wb
limits:
  max_layers: 4
intervals:
  sync_debounce: 500ms
  cursor_timeout: 3000
  sync_schedule: "@every 1m"
remote:
  driver: postgres
  host: db.internal
  database: boards
viewport:
  min_zoom: 0.5
  max_zoom: 3
  zoom_step: 0.25
render:
  grid:
    enabled: false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DataDir != "/tmp/wb" || cfg.Limits.MaxLayers != 4 {
		t.Errorf("expected overrides, got %q %d", cfg.DataDir, cfg.Limits.MaxLayers)
	}
	if cfg.Limits.HistorySize != 50 {
		t.Errorf("expected untouched default 50, got %d", cfg.Limits.HistorySize)
	}
	if cfg.Intervals.SyncDebounce.Std() != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %v", cfg.Intervals.SyncDebounce.Std())
	}
	if cfg.Intervals.CursorTimeout.Std() != 3*time.Second {
		t.Errorf("expected bare number as ms, got %v", cfg.Intervals.CursorTimeout.Std())
	}
	if cfg.Remote.Driver != remote.DriverPostgres || cfg.Remote.Host != "db.internal" {
		t.Errorf("expected postgres remote, got %+v", cfg.Remote)
	}
	if cfg.Render.Grid.Enabled {
		t.Error("expected grid disabled")
	}

	opts := cfg.EngineOptions("b1")
	if opts.SessionID != "b1" || opts.MaxLayers != 4 || opts.Viewport.MaxZoom != 3 {
		t.Errorf("expected engine options from config, got %+v", opts)
	}
	if cfg.DBPath() != filepath.Join("/tmp/wb", "whiteboard.db") {
		t.Errorf("unexpected db path %s", cfg.DBPath())
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"negative layers", "limits:\n  max_layers: -1\n"},
		{"inverted zoom", "viewport:\n  min_zoom: 4\n  max_zoom: 2\n"},
		{"unknown driver", "remote:\n  driver: oracle\n"},
		{"bad duration", "intervals:\n  sync_debounce: soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestValidate_WrapsValidation(t *testing.T) {
	cfg := Defaults()
	cfg.Limits.MaxQueueSize = 0
	if err := cfg.Validate(); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}
