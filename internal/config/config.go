// Package config loads devctl.toml (or devctl.yaml) and turns tool tables
// into tool specs.
package config

import (
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/danmuck/devctl/internal/adb"
	"github.com/danmuck/devctl/internal/argsmodel"
	"github.com/danmuck/devctl/internal/fastboot"
	"github.com/danmuck/devctl/internal/heimdall"
	"github.com/danmuck/devctl/internal/logging"
	"github.com/danmuck/devctl/internal/poll"
	"github.com/danmuck/devctl/internal/tools"
)

var ErrInvalid = errors.New("config: invalid")

// ToolConfig is one [adb], [fastboot] or [heimdall] table.
type ToolConfig struct {
	Executable string            `toml:"executable,omitempty" yaml:"executable,omitempty"`
	Options    map[string]any    `toml:"options,omitempty" yaml:"options,omitempty"`
	Env        map[string]string `toml:"env,omitempty" yaml:"env,omitempty"`
	Args       []string          `toml:"args,omitempty" yaml:"args,omitempty"`
}

// Config is the resolved runtime configuration.
type Config struct {
	// Timeout bounds each CLI operation; zero means no deadline.
	Timeout      time.Duration
	PollInterval time.Duration
	KillGrace    time.Duration
	LogLevel     string
	MetricsFile  string

	ADB      ToolConfig
	Fastboot ToolConfig
	Heimdall ToolConfig
}

// devctl.toml key mapping. YAML files use the same keys.
type fileConfig struct {
	Timeout      string     `toml:"timeout,omitempty" yaml:"timeout"`
	PollInterval string     `toml:"poll_interval,omitempty" yaml:"poll_interval"`
	KillGrace    string     `toml:"kill_grace,omitempty" yaml:"kill_grace"`
	LogLevel     string     `toml:"log_level,omitempty" yaml:"log_level"`
	MetricsFile  string     `toml:"metrics_file,omitempty" yaml:"metrics_file"`
	ADB          ToolConfig `toml:"adb" yaml:"adb"`
	Fastboot     ToolConfig `toml:"fastboot" yaml:"fastboot"`
	Heimdall     ToolConfig `toml:"heimdall" yaml:"heimdall"`
}

func Default() Config {
	return Config{
		PollInterval: poll.DefaultInterval,
		KillGrace:    tools.DefaultKillGrace,
		LogLevel:     "info",
		ADB:          ToolConfig{Executable: adb.Name},
		Fastboot:     ToolConfig{Executable: fastboot.Name},
		Heimdall:     ToolConfig{Executable: heimdall.Name},
	}
}

// Load overlays the keys defined in path onto Default and validates the
// result. Files ending in .yaml or .yml are read as YAML, anything else as
// TOML.
func Load(path string) (Config, error) {
	var (
		raw  fileConfig
		meta definedKeys
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		meta, err = decodeYAML(path, &raw)
	default:
		meta, err = decodeTOML(path, &raw)
	}
	if err != nil {
		return Config{}, fmt.Errorf("load devctl config: %w", err)
	}

	cfg := Default()
	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"timeout", raw.Timeout, &cfg.Timeout},
		{"poll_interval", raw.PollInterval, &cfg.PollInterval},
		{"kill_grace", raw.KillGrace, &cfg.KillGrace},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("load devctl config: %s: %w", d.key, err)
		}
		*d.dst = v
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("metrics_file") {
		cfg.MetricsFile = strings.TrimSpace(raw.MetricsFile)
	}

	overlayTool(meta, "adb", &cfg.ADB, raw.ADB)
	overlayTool(meta, "fastboot", &cfg.Fastboot, raw.Fastboot)
	overlayTool(meta, "heimdall", &cfg.Heimdall, raw.Heimdall)

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func overlayTool(meta definedKeys, table string, dst *ToolConfig, raw ToolConfig) {
	if meta.IsDefined(table, "executable") {
		dst.Executable = strings.TrimSpace(raw.Executable)
	}
	if meta.IsDefined(table, "options") {
		dst.Options = maps.Clone(raw.Options)
	}
	if meta.IsDefined(table, "env") {
		dst.Env = maps.Clone(raw.Env)
	}
	if meta.IsDefined(table, "args") {
		dst.Args = slices.Clone(raw.Args)
	}
}

// Validate checks durations, the log level and every tool's options
// against its schema.
func Validate(cfg Config) error {
	if cfg.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalid)
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("%w: poll_interval must be positive", ErrInvalid)
	}
	if cfg.KillGrace <= 0 {
		return fmt.Errorf("%w: kill_grace must be positive", ErrInvalid)
	}
	if _, ok := logging.ParseLevel(cfg.LogLevel); !ok {
		return fmt.Errorf("%w: log_level %q", ErrInvalid, cfg.LogLevel)
	}

	tables := []struct {
		name   string
		tool   ToolConfig
		schema *argsmodel.Schema
	}{
		{adb.Name, cfg.ADB, adb.Schema},
		{fastboot.Name, cfg.Fastboot, fastboot.Schema},
		{heimdall.Name, cfg.Heimdall, heimdall.Schema},
	}
	for _, tbl := range tables {
		if strings.TrimSpace(tbl.tool.Executable) == "" {
			return fmt.Errorf("%w: [%s] executable is required", ErrInvalid, tbl.name)
		}
		if _, err := tbl.schema.Merge(tbl.tool.Options); err != nil {
			return fmt.Errorf("%w: [%s] options: %w", ErrInvalid, tbl.name, err)
		}
	}
	return nil
}

// Spec converts a tool table into an invoker spec. Callers attach the
// signal and observer.
func (c Config) Spec(t ToolConfig) tools.Spec {
	return tools.Spec{
		Executable: t.Executable,
		Config:     argsmodel.Config(maps.Clone(t.Options)),
		Env:        maps.Clone(t.Env),
		Args:       slices.Clone(t.Args),
		KillGrace:  c.KillGrace,
	}
}
