// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package config loads the logging settings object. Settings come from
// TOML or YAML files at well-known paths, merged in registration order,
// with environment variable overrides (prefix AUDITLOG).
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	alerr "github.com/sigil-dev/auditlog/pkg/errors"
)

// EnvConfigFile names an extra config file merged after the well-known
// paths.
const EnvConfigFile = "AUDITLOG_CONFIG_FILE"

// Documented defaults, shared by Default and the file loader.
const (
	DefaultAuditLevel    = "AUDIT"
	DefaultQueueSize     = 1024
	DefaultShutdownGrace = 500 * time.Millisecond
)

// Config is the top-level settings object.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

// LoggingConfig holds every knob the logging core consumes.
type LoggingConfig struct {
	// WithAudit arms the runtime audit bridge.
	WithAudit bool `mapstructure:"with_audit"`
	// AuditLevel names the severity bridged audit events are logged at.
	AuditLevel string `mapstructure:"audit_level"`
	// OmitLoggingFrames drops frame-introspection events that originate
	// inside the logging subsystem itself.
	OmitLoggingFrames bool `mapstructure:"omit_logging_frames"`
	// DefaultExtras seeds the process-wide extras defaults.
	DefaultExtras map[string]string `mapstructure:"default_extras"`
	// RequiredExtras lists keys every record must carry; absent keys get
	// a placeholder instead of failing the formatter.
	RequiredExtras []string `mapstructure:"required_extras"`
	// ShowStackTraces controls whether Exception attaches a stack.
	ShowStackTraces bool `mapstructure:"show_stack_traces"`
	// AuditQueueSize bounds the bridge queue.
	AuditQueueSize int `mapstructure:"audit_queue_size"`
	// ShutdownGrace bounds how long disarming waits for the consumer.
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

// Default returns the documented defaults: audit off, AUDIT level,
// logging frames omitted, stack traces shown. Unlike Load, it consults
// neither files nor the environment, so it cannot fail.
func Default() *Config {
	return &Config{Logging: LoggingConfig{
		AuditLevel:        DefaultAuditLevel,
		OmitLoggingFrames: true,
		ShowStackTraces:   true,
		AuditQueueSize:    DefaultQueueSize,
		ShutdownGrace:     DefaultShutdownGrace,
	}}
}

// Load reads settings from path, or returns the defaults when path is
// empty. The file must exist and parse; use Discover for the optional
// well-known files.
func Load(path string) (*Config, error) {
	return load(func(v *viper.Viper) error {
		if path == "" {
			return nil
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return alerr.Errorf(alerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
		return nil
	})
}

// Discover merges every well-known file that exists, in registration
// order (later files win): ~/.logging.toml, ./.logging.toml, then the
// file named by AUDITLOG_CONFIG_FILE.
func Discover() (*Config, error) {
	return load(func(v *viper.Viper) error {
		merged := false
		for _, path := range WellKnownPaths() {
			if _, err := os.Stat(path); err != nil {
				continue
			}
			v.SetConfigFile(path)
			var err error
			if merged {
				err = v.MergeInConfig()
			} else {
				err = v.ReadInConfig()
				merged = true
			}
			if err != nil {
				return alerr.Errorf(alerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
			}
		}
		return nil
	})
}

// WellKnownPaths returns the candidate config files in registration
// order. Entries may not exist.
func WellKnownPaths() []string {
	paths := make([]string, 0, 3)
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".logging.toml"))
	}
	paths = append(paths, ".logging.toml")
	if custom := os.Getenv(EnvConfigFile); custom != "" {
		paths = append(paths, custom)
	}
	return paths
}

func load(read func(*viper.Viper) error) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("logging.with_audit", false)
	v.SetDefault("logging.audit_level", DefaultAuditLevel)
	v.SetDefault("logging.omit_logging_frames", true)
	v.SetDefault("logging.show_stack_traces", true)
	v.SetDefault("logging.audit_queue_size", DefaultQueueSize)
	v.SetDefault("logging.shutdown_grace", DefaultShutdownGrace)

	// Environment
	v.SetEnvPrefix("AUDITLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := read(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, alerr.Errorf(alerr.CodeConfigValidateInvalidValue, "unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the core cannot run with.
func (c *Config) Validate() error {
	if c.Logging.AuditQueueSize < 0 {
		return alerr.New(alerr.CodeConfigValidateInvalidValue,
			"logging.audit_queue_size must not be negative",
			alerr.Field("audit_queue_size", c.Logging.AuditQueueSize))
	}
	if c.Logging.ShutdownGrace < 0 {
		return alerr.New(alerr.CodeConfigValidateInvalidValue,
			"logging.shutdown_grace must not be negative",
			alerr.Field("shutdown_grace", c.Logging.ShutdownGrace.String()))
	}
	if strings.TrimSpace(c.Logging.AuditLevel) == "" {
		return alerr.New(alerr.CodeConfigValidateInvalidValue,
			"logging.audit_level must not be empty")
	}
	return nil
}
