package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the single configuration file read from configDir.
const ConfigFileName = "chatstream.yaml"

// chatstreamYAMLConfig represents the complete chatstream.yaml file structure
type chatstreamYAMLConfig struct {
	Server    *serverYAMLConfig    `yaml:"server"`
	Reconnect *reconnectYAMLConfig `yaml:"reconnect"`
	Storage   *StorageConfig       `yaml:"storage"`
	Logging   *LoggingConfig       `yaml:"logging"`
}

// serverYAMLConfig holds agent endpoint settings from YAML.
type serverYAMLConfig struct {
	URL          string `yaml:"url,omitempty"`
	WriteTimeout string `yaml:"write_timeout,omitempty"` // Parsed to time.Duration
}

// reconnectYAMLConfig holds reconnection settings from YAML.
type reconnectYAMLConfig struct {
	Enabled     *bool  `yaml:"enabled,omitempty"`
	Interval    string `yaml:"interval,omitempty"` // Parsed to time.Duration
	MaxAttempts *int   `yaml:"max_attempts,omitempty"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load chatstream.yaml from configDir (missing file means defaults)
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Resolve defaults for unset values
//  5. Validate all configuration
//  6. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized successfully",
		"server_url", cfg.Server.URL,
		"reconnect_enabled", cfg.Reconnect.Enabled,
		"storage_dir", cfg.Storage.Dir,
		"log_level", cfg.Logging.Level)

	return cfg, nil
}

// load is the internal loader (not exported)
func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{
		configDir: configDir,
	}

	yamlConfig, err := loader.loadChatstreamYAML()
	if err != nil {
		return nil, NewLoadError(ConfigFileName, err)
	}

	// Resolve each section against built-in defaults
	serverCfg := resolveServerConfig(yamlConfig.Server)
	reconnectCfg := resolveReconnectConfig(yamlConfig.Reconnect)

	storageCfg, err := resolveStorageConfig(yamlConfig.Storage)
	if err != nil {
		return nil, err
	}

	loggingCfg, err := resolveLoggingConfig(yamlConfig.Logging)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:    serverCfg,
		Reconnect: reconnectCfg,
		Storage:   storageCfg,
		Logging:   loggingCfg,
	}, nil
}

// validate performs comprehensive validation on loaded configuration
func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables using {{.VAR}} template syntax
	// Note: ExpandEnv passes through original data on parse/execution errors,
	// allowing YAML parser to handle the content (or fail with clearer error message)
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

// loadChatstreamYAML reads chatstream.yaml. A missing file is not an
// error: the application runs on built-in defaults.
func (l *configLoader) loadChatstreamYAML() (*chatstreamYAMLConfig, error) {
	var config chatstreamYAMLConfig

	if err := l.loadYAML(ConfigFileName, &config); err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			slog.Info("No configuration file found, using defaults",
				"file", ConfigFileName)
			return &config, nil
		}
		return nil, err
	}

	return &config, nil
}

// resolveServerConfig resolves server configuration from YAML, applying defaults.
func resolveServerConfig(sec *serverYAMLConfig) *ServerConfig {
	cfg := &ServerConfig{
		URL:          DefaultServerURL,
		WriteTimeout: DefaultWriteTimeout,
	}

	if sec == nil {
		return cfg
	}

	if sec.URL != "" {
		cfg.URL = sec.URL
	}
	if sec.WriteTimeout != "" {
		if d, err := time.ParseDuration(sec.WriteTimeout); err == nil {
			cfg.WriteTimeout = d
		} else {
			slog.Warn("Invalid write_timeout in server config, using default",
				"value", sec.WriteTimeout,
				"default", cfg.WriteTimeout,
				"error", err)
		}
	}

	return cfg
}

// resolveReconnectConfig resolves reconnection configuration from YAML, applying defaults.
func resolveReconnectConfig(sec *reconnectYAMLConfig) *ReconnectConfig {
	cfg := &ReconnectConfig{
		Enabled:     true,
		Interval:    DefaultReconnectInterval,
		MaxAttempts: DefaultMaxReconnectAttempts,
	}

	if sec == nil {
		return cfg
	}

	if sec.Enabled != nil {
		cfg.Enabled = *sec.Enabled
	}
	if sec.Interval != "" {
		if d, err := time.ParseDuration(sec.Interval); err == nil {
			cfg.Interval = d
		} else {
			slog.Warn("Invalid interval in reconnect config, using default",
				"value", sec.Interval,
				"default", cfg.Interval,
				"error", err)
		}
	}
	if sec.MaxAttempts != nil {
		cfg.MaxAttempts = *sec.MaxAttempts
	}

	return cfg
}

// resolveStorageConfig resolves storage configuration from YAML, applying defaults.
// User-provided values merge on top of defaults so unset fields keep defaults.
func resolveStorageConfig(sec *StorageConfig) (*StorageConfig, error) {
	cfg := &StorageConfig{
		Dir: defaultStorageDir(),
	}

	if sec != nil {
		if err := mergo.Merge(cfg, sec, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge storage config: %w", err)
		}
	}

	return cfg, nil
}

// resolveLoggingConfig resolves logging configuration from YAML, applying defaults.
func resolveLoggingConfig(sec *LoggingConfig) (*LoggingConfig, error) {
	cfg := &LoggingConfig{
		Level: DefaultLogLevel,
	}

	if sec != nil {
		if err := mergo.Merge(cfg, sec, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge logging config: %w", err)
		}
	}

	return cfg, nil
}
