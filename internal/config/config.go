// Package config holds snapmark's global configuration: YAML file plus
// environment overrides, loaded once at startup. After Load returns, the
// Config value is treated as an immutable snapshot; per-window configuration
// is derived from it by value (see window.go), so no window ever aliases
// global state.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	General GeneralConfig `yaml:"general"`
	Daemon  DaemonConfig  `yaml:"daemon"`
	Logging LoggingConfig `yaml:"logging"`
}

// GeneralConfig mirrors the per-window options a request may override.
type GeneralConfig struct {
	OutputFilename       string  `yaml:"output_filename"`
	CopyCommand          string  `yaml:"copy_command"`
	InitialTool          string  `yaml:"initial_tool"`
	Fullscreen           bool    `yaml:"fullscreen"`
	EarlyExit            bool    `yaml:"early_exit"`
	CornerRoundness      float64 `yaml:"corner_roundness"`
	AnnotationSizeFactor float64 `yaml:"annotation_size_factor"`
	DefaultHideToolbars  bool    `yaml:"default_hide_toolbars"`
	NoWindowDecoration   bool    `yaml:"no_window_decoration"`
}

// DaemonConfig tunes the request drain loop. DrainBatch caps how many
// pending requests one tick may process; the original design drained one per
// tick, so that stays the default rather than being hardcoded.
type DaemonConfig struct {
	TickMillis int `yaml:"tick_millis"`
	DrainBatch int `yaml:"drain_batch"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		General: GeneralConfig{
			InitialTool:          string(ToolPointer),
			CornerRoundness:      12.0,
			AnnotationSizeFactor: 1.0,
		},
		Daemon: DaemonConfig{
			TickMillis: 10,
			DrainBatch: 1,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a file, falling back to defaults when the
// file does not exist.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(&cfg)
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if level := os.Getenv("SNAPMARK_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if cmd := os.Getenv("SNAPMARK_COPY_COMMAND"); cmd != "" {
		cfg.General.CopyCommand = cmd
	}
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	if c.Daemon.TickMillis <= 0 {
		return fmt.Errorf("daemon.tick_millis must be positive")
	}
	if c.Daemon.DrainBatch < 1 {
		return fmt.Errorf("daemon.drain_batch must be at least 1")
	}
	if c.General.AnnotationSizeFactor <= 0 {
		return fmt.Errorf("general.annotation_size_factor must be positive")
	}
	if c.General.CornerRoundness < 0 {
		return fmt.Errorf("general.corner_roundness must not be negative")
	}
	if _, ok := ParseTool(c.General.InitialTool); !ok {
		return fmt.Errorf("general.initial_tool: unknown tool %q", c.General.InitialTool)
	}
	return nil
}

// Tick returns the drain timer interval.
func (c *Config) Tick() time.Duration {
	return time.Duration(c.Daemon.TickMillis) * time.Millisecond
}

// Tool identifies an annotation tool.
type Tool string

const (
	ToolPointer   Tool = "pointer"
	ToolCrop      Tool = "crop"
	ToolLine      Tool = "line"
	ToolArrow     Tool = "arrow"
	ToolRectangle Tool = "rectangle"
	ToolEllipse   Tool = "ellipse"
	ToolText      Tool = "text"
	ToolMarker    Tool = "marker"
	ToolBlur      Tool = "blur"
	ToolHighlight Tool = "highlight"
	ToolBrush     Tool = "brush"
)

var tools = map[string]Tool{
	"pointer":   ToolPointer,
	"crop":      ToolCrop,
	"line":      ToolLine,
	"arrow":     ToolArrow,
	"rectangle": ToolRectangle,
	"ellipse":   ToolEllipse,
	"text":      ToolText,
	"marker":    ToolMarker,
	"blur":      ToolBlur,
	"highlight": ToolHighlight,
	"brush":     ToolBrush,
}

// ParseTool resolves a tool name, case-insensitively.
func ParseTool(name string) (Tool, bool) {
	t, ok := tools[strings.ToLower(name)]
	return t, ok
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "snapmark", "config.yaml"), nil
}
