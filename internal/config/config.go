// Package config loads the daemon configuration from TOML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/ry-diffusion/Tina/internal/ipc"
	"github.com/ry-diffusion/Tina/internal/paths"
	"go.uber.org/zap/zapcore"
)

// Config represents ~/.tina/config.toml.
type Config struct {
	DataDir           string `toml:"data_dir"`
	LogLevel          string `toml:"log_level"`
	AutostartAccounts bool   `toml:"autostart_accounts"`

	Engine Engine `toml:"engine"`
}

// Engine locates the engine project and the commands that run it.
type Engine struct {
	// Dir is resolved against DataDir when relative.
	Dir            string   `toml:"dir"`
	Command        string   `toml:"command"`
	Args           []string `toml:"args"`
	Env            []string `toml:"env,omitempty"`
	Manifest       string   `toml:"manifest"`
	DepsDir        string   `toml:"deps_dir"`
	InstallCommand []string `toml:"install_command"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		DataDir:           "~/.tina",
		LogLevel:          "info",
		AutostartAccounts: true,
		Engine: Engine{
			Dir:            "engine",
			Command:        "bun",
			Args:           []string{"run", "index.ts"},
			Manifest:       "package.json",
			DepsDir:        "node_modules",
			InstallCommand: []string{"bun", "install"},
		},
	}
}

// Load reads config from path on top of Default. A missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings the daemon cannot start with.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir is empty")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.Engine.Command == "" {
		return errors.New("engine.command is empty")
	}
	if c.Engine.Manifest == "" {
		return errors.New("engine.manifest is empty")
	}
	return nil
}

// Layout returns the data directory layout.
func (c *Config) Layout() paths.Layout {
	return paths.New(c.DataDir)
}

// BridgeOptions translates the engine section for the IPC bridge.
func (c *Config) BridgeOptions() ipc.Options {
	return ipc.Options{
		Dir:            c.Layout().Resolve(c.Engine.Dir),
		Command:        c.Engine.Command,
		Args:           c.Engine.Args,
		Env:            c.Engine.Env,
		Manifest:       c.Engine.Manifest,
		DepsDir:        c.Engine.DepsDir,
		InstallCommand: c.Engine.InstallCommand,
	}
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
