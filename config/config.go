// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

type StartType int

const (
	// Tells marathon to start a repl in parallel for interacting with it
	START_REPL = StartType(iota)
	// Tells marathon to launch a specific app on startup
	START_SINGLE_COMMAND
	// Tells marathon to start without any specific targets
	START_NONE
)

// Relative path searched in the xdg config dirs when no config file is given
const DefaultConfigFile = "marathon/config.toml"

type Config struct {
	StartType StartType `envconfig:"MARATHON_START_TYPE" toml:"start_type" yaml:"start_type"`
	// What command to launch on start. Only matters if StartType is set to START_SINGLE_COMMAND
	StartCommand string `envconfig:"MARATHON_START_COMMAND" toml:"start_command" yaml:"start_command"`

	// Name of the wayland socket inside RuntimeDir
	SocketName string `envconfig:"MARATHON_SOCKET_NAME" toml:"socket_name" yaml:"socket_name"`
	// Directory holding the socket. Empty means $XDG_RUNTIME_DIR, falling back to /tmp
	RuntimeDir string `envconfig:"MARATHON_RUNTIME_DIR" toml:"runtime_dir" yaml:"runtime_dir"`
	// Shell used as `<shell> -c <command>` for every launch
	Shell string `envconfig:"MARATHON_SHELL" toml:"shell" yaml:"shell"`
	// Where the per-launch desktop file identities point to
	DesktopFileDir string `envconfig:"MARATHON_DESKTOP_FILE_DIR" toml:"desktop_file_dir" yaml:"desktop_file_dir"`
	// Value handed to clients as QT_QUICK_CONTROLS_STYLE
	QtControlsStyle string `envconfig:"MARATHON_QT_CONTROLS_STYLE" toml:"qt_controls_style" yaml:"qt_controls_style"`

	// Time a client gets after a polite close before SIGTERM
	GracePeriodMS int `envconfig:"MARATHON_GRACE_PERIOD_MS" toml:"grace_period_ms" yaml:"grace_period_ms"`
	// Time between SIGTERM and SIGKILL
	TerminatePeriodMS int `envconfig:"MARATHON_TERMINATE_PERIOD_MS" toml:"terminate_period_ms" yaml:"terminate_period_ms"`
	// Time remaining clients get on compositor shutdown before SIGKILL
	ShutdownTimeoutMS int `envconfig:"MARATHON_SHUTDOWN_TIMEOUT_MS" toml:"shutdown_timeout_ms" yaml:"shutdown_timeout_ms"`

	// Surfaces client stdout and debug logging. Also set by MARATHON_DEBUG=1
	Debug    bool   `envconfig:"MARATHON_DEBUG" toml:"debug" yaml:"debug"`
	LogLevel string `envconfig:"MARATHON_LOG_LEVEL" toml:"log_level" yaml:"log_level"`

	// SCHED_FIFO priority for the render thread. 0 disables it
	RealtimePriority int `envconfig:"MARATHON_RT_PRIORITY" toml:"rt_priority" yaml:"rt_priority"`
	// Address for the prometheus endpoint. Empty disables it
	MetricsAddr string `envconfig:"MARATHON_METRICS_ADDR" toml:"metrics_addr" yaml:"metrics_addr"`
}

// Default returns the configuration used when nothing else is set
func Default() *Config {
	return &Config{
		StartType:         START_REPL,
		SocketName:        "marathon-wayland-0",
		Shell:             "/bin/sh",
		DesktopFileDir:    "/tmp/marathon-apps",
		QtControlsStyle:   "Material",
		GracePeriodMS:     5000,
		TerminatePeriodMS: 3000,
		ShutdownTimeoutMS: 3000,
		LogLevel:          "info",
		RealtimePriority:  75,
	}
}

// Load reads the config file at path on top of the defaults and then applies
// MARATHON_* environment overrides.
// An empty path searches the xdg config dirs and silently uses defaults if nothing is found
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		found, err := xdg.SearchConfigFile(DefaultConfigFile)
		if err == nil {
			path = found
		}
	}
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	cfg.normalise()
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, c)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// Fills in derived values and the legacy MARATHON_DEBUG switch
func (c *Config) normalise() {
	if debugEnv := strings.ToLower(os.Getenv("MARATHON_DEBUG")); debugEnv == "1" || debugEnv == "true" {
		c.Debug = true
	}
	if c.RuntimeDir == "" {
		c.RuntimeDir = xdg.RuntimeDir
	}
	if c.RuntimeDir == "" {
		c.RuntimeDir = "/tmp"
	}
	if c.Shell == "" {
		c.Shell = "/bin/sh"
	}
}

// Validate checks for values the compositor cannot work with
func (c *Config) Validate() error {
	var errs []error
	if c.SocketName == "" {
		errs = append(errs, errors.New("socket_name must not be empty"))
	}
	if strings.ContainsRune(c.SocketName, '/') {
		errs = append(errs, fmt.Errorf("socket_name %q must not contain a path separator", c.SocketName))
	}
	if c.GracePeriodMS <= 0 || c.TerminatePeriodMS <= 0 {
		errs = append(errs, errors.New("grace and terminate periods must be positive"))
	} else if c.TerminatePeriodMS > c.GracePeriodMS {
		errs = append(errs, fmt.Errorf("terminate_period_ms (%d) must not be longer than grace_period_ms (%d)", c.TerminatePeriodMS, c.GracePeriodMS))
	}
	if c.StartType == START_SINGLE_COMMAND && c.StartCommand == "" {
		errs = append(errs, errors.New("start_command is required for START_SINGLE_COMMAND"))
	}
	return errors.Join(errs...)
}

func (c *Config) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodMS) * time.Millisecond
}

func (c *Config) TerminatePeriod() time.Duration {
	return time.Duration(c.TerminatePeriodMS) * time.Millisecond
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutMS) * time.Millisecond
}
