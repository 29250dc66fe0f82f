// Package config loads bridge settings from defaults, an optional TOML file,
// and BRIDGE_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment override, e.g. BRIDGE_PORT or
// BRIDGE_REQUEST_TIMEOUT. Unprefixed names are never consulted.
const EnvPrefix = "BRIDGE"

// Config is the resolved bridge configuration.
type Config struct {
	Host string `split_words:"true"`
	// Port 0 lets the OS choose; the chosen port is announced on stdout.
	Port int `split_words:"true"`

	// RequestTimeout bounds every Eval and EvalImmediate. Zero disables it.
	RequestTimeout time.Duration `split_words:"true"`
	MaxMessageSize int64         `split_words:"true"`
	WriteWait      time.Duration `split_words:"true"`
	PongWait       time.Duration `split_words:"true"`

	LogLevel  string `split_words:"true"`
	LogFormat string `split_words:"true"`

	TraceCapacity  int    `split_words:"true"`
	TranscriptPath string `split_words:"true"`
	DBPath         string `split_words:"true"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		Host:           "localhost",
		Port:           0,
		RequestTimeout: 30 * time.Second,
		MaxMessageSize: 4 << 20,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		LogLevel:       "info",
		LogFormat:      "console",
		TraceCapacity:  200,
	}
}

type fileConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	RequestTimeout string `toml:"request_timeout"`
	MaxMessageSize int64  `toml:"max_message_size"`
	WriteWait      string `toml:"write_wait"`
	PongWait       string `toml:"pong_wait"`
	LogLevel       string `toml:"log_level"`
	LogFormat      string `toml:"log_format"`
	TraceCapacity  int    `toml:"trace_capacity"`
	TranscriptPath string `toml:"transcript_path"`
	DBPath         string `toml:"db_path"`
}

// Load resolves the configuration. path may be empty to skip the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		var err error
		if cfg, err = LoadFile(path, cfg); err != nil {
			return Config{}, err
		}
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("load environment overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile applies the keys defined in the TOML file at path on top of base.
func LoadFile(path string, base Config) (Config, error) {
	cfg := base

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load bridge config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load bridge config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("host") {
		if host := strings.TrimSpace(raw.Host); host != "" {
			cfg.Host = host
		}
	}
	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("max_message_size") {
		cfg.MaxMessageSize = raw.MaxMessageSize
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("log_format") {
		cfg.LogFormat = strings.TrimSpace(raw.LogFormat)
	}
	if meta.IsDefined("trace_capacity") {
		cfg.TraceCapacity = raw.TraceCapacity
	}
	if meta.IsDefined("transcript_path") {
		cfg.TranscriptPath = strings.TrimSpace(raw.TranscriptPath)
	}
	if meta.IsDefined("db_path") {
		cfg.DBPath = strings.TrimSpace(raw.DBPath)
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"request_timeout", raw.RequestTimeout, &cfg.RequestTimeout},
		{"write_wait", raw.WriteWait, &cfg.WriteWait},
		{"pong_wait", raw.PongWait, &cfg.PongWait},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	return cfg, nil
}

// Validate rejects settings the connection cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, errors.New("request_timeout must not be negative"))
	}
	if c.WriteWait <= 0 {
		errs = append(errs, errors.New("write_wait must be positive"))
	}
	if c.PongWait <= 0 {
		errs = append(errs, errors.New("pong_wait must be positive"))
	}
	if c.MaxMessageSize <= 0 {
		errs = append(errs, errors.New("max_message_size must be positive"))
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format %q must be console or json", c.LogFormat))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
