// Package config holds the render pipeline settings and their YAML form.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ivlev/animrender/internal/system"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("config: invalid")

// SizeMode selects how the render size is derived.
type SizeMode string

const (
	SizeFixed  SizeMode = "fixed"  // container size
	SizeNative SizeMode = "native" // asset size at scale 1
	SizeFit    SizeMode = "fit"    // scale to fit Box, preserving aspect
)

// CullMode selects when rendering is suppressed for off-screen players.
type CullMode string

const (
	CullAlways     CullMode = "always" // never cull
	CullOffscreen  CullMode = "cull"
	CullWithMargin CullMode = "margin"
)

type Config struct {
	Source   string   `yaml:"source"`
	Playback Playback `yaml:"playback"`
	Sizing   Sizing   `yaml:"sizing"`
	Cache    Cache    `yaml:"cache"`
	Culling  Culling  `yaml:"culling"`
	Post     Post     `yaml:"post"`
	Worker   Worker   `yaml:"worker"`
}

type Playback struct {
	Playing  bool    `yaml:"playing"`
	Looping  bool    `yaml:"looping"`
	Autoplay bool    `yaml:"autoplay"`
	Speed    float64 `yaml:"speed"`
	Frame    float64 `yaml:"frame"`
}

type Sizing struct {
	Mode   SizeMode `yaml:"mode"`
	Width  int      `yaml:"width"`
	Height int      `yaml:"height"`
	BoxW   int      `yaml:"box_width"`
	BoxH   int      `yaml:"box_height"`

	Dynamic   bool    `yaml:"dynamic"`
	Threshold float64 `yaml:"threshold"` // relative change, e.g. 0.1
	MaxWidth  int     `yaml:"max_width"`
	MaxHeight int     `yaml:"max_height"`
	Step      int     `yaml:"step"`
}

type Cache struct {
	Enabled  bool `yaml:"enabled"`
	BudgetMB int  `yaml:"budget_mb"` // <= 0 means auto
	Quant    int  `yaml:"quant_step"`

	OnlyWhenPaused bool `yaml:"only_when_paused"`
	LiveThreshold  int  `yaml:"live_threshold"`
	ForceLive      bool `yaml:"force_live"`
}

type Culling struct {
	Mode   CullMode `yaml:"mode"`
	Margin int      `yaml:"margin"`
}

// Post selects corrections for freshly rasterized frames. The border fix
// needs straight alpha and is skipped unless Unpremultiply is set.
type Post struct {
	FixAlphaBorder bool `yaml:"fix_alpha_border"`
	Unpremultiply  bool `yaml:"unpremultiply"`
}

type Worker struct {
	ResizeInterval time.Duration `yaml:"resize_interval"`
}

// Default returns the settings a fresh player starts with.
func Default() *Config {
	return &Config{
		Playback: Playback{Looping: true, Speed: 1},
		Sizing: Sizing{
			Mode:      SizeFixed,
			Width:     512,
			Height:    512,
			Threshold: 0.1,
			Step:      8,
		},
		Cache: Cache{
			Enabled:        true,
			Quant:          1,
			OnlyWhenPaused: true,
			LiveThreshold:  4,
		},
		Culling: Culling{Mode: CullWithMargin},
		Post:    Post{FixAlphaBorder: true},
		Worker:  Worker{ResizeInterval: 100 * time.Millisecond},
	}
}

// Load reads a YAML file on top of Default and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as YAML.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	switch c.Sizing.Mode {
	case SizeFixed, SizeNative:
	case SizeFit:
		if c.Sizing.BoxW <= 0 || c.Sizing.BoxH <= 0 {
			return fmt.Errorf("%w: fit mode needs a positive box, got %dx%d", ErrInvalid, c.Sizing.BoxW, c.Sizing.BoxH)
		}
	default:
		return fmt.Errorf("%w: unknown sizing mode %q", ErrInvalid, c.Sizing.Mode)
	}

	switch c.Culling.Mode {
	case CullAlways, CullOffscreen, CullWithMargin:
	default:
		return fmt.Errorf("%w: unknown culling mode %q", ErrInvalid, c.Culling.Mode)
	}

	if c.Sizing.Width < 0 || c.Sizing.Height < 0 {
		return fmt.Errorf("%w: negative size %dx%d", ErrInvalid, c.Sizing.Width, c.Sizing.Height)
	}
	if c.Sizing.Threshold < 0 {
		return fmt.Errorf("%w: negative dynamic threshold", ErrInvalid)
	}
	if c.Sizing.Step < 0 || c.Cache.Quant < 0 {
		return fmt.Errorf("%w: negative step", ErrInvalid)
	}
	if c.Culling.Margin < 0 {
		return fmt.Errorf("%w: negative culling margin", ErrInvalid)
	}
	if c.Playback.Speed < 0 {
		return fmt.Errorf("%w: negative speed %v", ErrInvalid, c.Playback.Speed)
	}
	if c.Worker.ResizeInterval < 0 {
		return fmt.Errorf("%w: negative resize interval", ErrInvalid)
	}
	return nil
}

// CacheBudget resolves the cache byte budget. BudgetMB <= 0 asks the
// system for a share of available memory.
func (c *Config) CacheBudget() int64 {
	if c.Cache.BudgetMB > 0 {
		return int64(c.Cache.BudgetMB) * 1024 * 1024
	}
	return system.AutoCacheBudget(256 * 1024 * 1024)
}
