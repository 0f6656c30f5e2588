package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if !cfg.Post.FixAlphaBorder || cfg.Post.Unpremultiply {
		t.Error("expected alpha-border fix on and unpremultiply off by default")
	}
	if !cfg.Cache.Enabled || !cfg.Cache.OnlyWhenPaused {
		t.Error("expected the frame cache on and limited to paused frames by default")
	}
	if cfg.Cache.LiveThreshold != 4 {
		t.Errorf("expected live threshold 4, got %d", cfg.Cache.LiveThreshold)
	}
	if cfg.Worker.ResizeInterval != 100*time.Millisecond {
		t.Errorf("unexpected resize interval %v", cfg.Worker.ResizeInterval)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "player.yaml")
	data := `
source: pattern:60
playback:
  speed: 2
sizing:
  mode: fit
  box_width: 200
  box_height: 60
cache:
  budget_mb: 64
culling:
  mode: margin
  margin: 32
worker:
  resize_interval: 250ms
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Source != "pattern:60" || cfg.Playback.Speed != 2 {
		t.Errorf("unexpected playback %+v source %q", cfg.Playback, cfg.Source)
	}
	if !cfg.Playback.Looping {
		t.Error("unset fields must keep defaults")
	}
	if cfg.Sizing.Mode != SizeFit || cfg.Sizing.BoxW != 200 {
		t.Errorf("unexpected sizing %+v", cfg.Sizing)
	}
	if cfg.CacheBudget() != 64*1024*1024 {
		t.Errorf("unexpected budget %d", cfg.CacheBudget())
	}
	if cfg.Culling.Mode != CullWithMargin || cfg.Culling.Margin != 32 {
		t.Errorf("unexpected culling %+v", cfg.Culling)
	}
	if cfg.Worker.ResizeInterval != 250*time.Millisecond {
		t.Errorf("unexpected resize interval %v", cfg.Worker.ResizeInterval)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.Source = "clip.pdf"
	cfg.Sizing.Dynamic = true

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Source != "clip.pdf" || !got.Sizing.Dynamic {
		t.Errorf("round trip lost fields: %+v", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown sizing mode", func(c *Config) { c.Sizing.Mode = "stretch" }},
		{"fit without box", func(c *Config) { c.Sizing.Mode = SizeFit }},
		{"unknown cull mode", func(c *Config) { c.Culling.Mode = "sometimes" }},
		{"negative margin", func(c *Config) { c.Culling.Margin = -1 }},
		{"negative speed", func(c *Config) { c.Playback.Speed = -1 }},
		{"negative threshold", func(c *Config) { c.Sizing.Threshold = -0.1 }},
		{"negative interval", func(c *Config) { c.Worker.ResizeInterval = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("sizing:\n  mode: stretch\n"), 0644)

	if _, err := Load(path); !errors.Is(err, ErrInvalid) {
		t.Errorf("expected ErrInvalid, got %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestAutoCacheBudget(t *testing.T) {
	cfg := Default()
	cfg.Cache.BudgetMB = 0
	if b := cfg.CacheBudget(); b < 32*1024*1024 || b > 1024*1024*1024 {
		t.Errorf("auto budget out of range: %d", b)
	}
}
