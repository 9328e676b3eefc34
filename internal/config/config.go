package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	envConfigPath     = "ATLASDECODE_CONFIG"
	envPostgresDSN    = "ATLASDECODE_POSTGRES_DSN"
	envPublicKey      = "ATLASDECODE_PUBLIC_KEY"
	DefaultConfigPath = "/etc/atlasdecode/config.yaml"
)

const (
	defaultDiskBytesCap = 1 << 30
	defaultSegmentBytes = 16 << 20
	defaultMaxBodyBytes = 4 << 20
	defaultServeAddr    = ":8080"
	defaultFailureRate  = 1.0
	defaultFailureBurst = 5
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 15 * time.Second
	defaultIdleTimeout  = 60 * time.Second
)

type Config struct {
	Validate ValidateConfig `yaml:"validate"`
	Spill    SpillConfig    `yaml:"spill"`
	Failures FailuresConfig `yaml:"failures"`
	Corpus   CorpusConfig   `yaml:"corpus"`
	Serve    ServeConfig    `yaml:"serve"`
}

type ValidateConfig struct {
	Workers         int     `yaml:"workers"`
	Strict          bool    `yaml:"strict"`
	MaxFailures     int     `yaml:"max_failures"`
	CheckInvariants bool    `yaml:"check_invariants"`
	FailureLogRate  float64 `yaml:"failure_log_rate"`
	FailureLogBurst int     `yaml:"failure_log_burst"`
}

type SpillConfig struct {
	Dir          string `yaml:"dir"`
	DiskBytesCap string `yaml:"disk_bytes_cap"`
	SegmentBytes string `yaml:"segment_bytes"`
}

type FailuresConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"`
}

type CorpusConfig struct {
	PublicKey        string `yaml:"public_key"`
	PublicKeyFile    string `yaml:"public_key_file"`
	RequireSignature bool   `yaml:"require_signature"`
}

type ServeConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	MaxBodyBytes string        `yaml:"max_body_bytes"`
}

// Default returns a normalized configuration with nothing loaded.
func Default() Config {
	var cfg Config
	cfg.Normalize()
	return cfg
}

// Normalize fills zero values with defaults.
func (c *Config) Normalize() {
	if c.Validate.Workers <= 0 {
		c.Validate.Workers = runtime.NumCPU()
	}
	if c.Validate.MaxFailures < 0 {
		c.Validate.MaxFailures = 0
	}
	if c.Validate.FailureLogRate <= 0 {
		c.Validate.FailureLogRate = defaultFailureRate
	}
	if c.Validate.FailureLogBurst <= 0 {
		c.Validate.FailureLogBurst = defaultFailureBurst
	}
	if c.Serve.Addr == "" {
		c.Serve.Addr = defaultServeAddr
	}
	if c.Serve.ReadTimeout <= 0 {
		c.Serve.ReadTimeout = defaultReadTimeout
	}
	if c.Serve.WriteTimeout <= 0 {
		c.Serve.WriteTimeout = defaultWriteTimeout
	}
	if c.Serve.IdleTimeout <= 0 {
		c.Serve.IdleTimeout = defaultIdleTimeout
	}
}

// Limits parses the spill size caps.
func (s SpillConfig) Limits() (maxBytes, segmentBytes int64, err error) {
	maxBytes, err = ParseSize(s.DiskBytesCap, defaultDiskBytesCap)
	if err != nil {
		return 0, 0, fmt.Errorf("spill disk_bytes_cap: %w", err)
	}
	segmentBytes, err = ParseSize(s.SegmentBytes, defaultSegmentBytes)
	if err != nil {
		return 0, 0, fmt.Errorf("spill segment_bytes: %w", err)
	}
	return maxBytes, segmentBytes, nil
}

// BodyLimit parses max_body_bytes.
func (s ServeConfig) BodyLimit() (int64, error) {
	n, err := ParseSize(s.MaxBodyBytes, defaultMaxBodyBytes)
	if err != nil {
		return 0, fmt.Errorf("serve max_body_bytes: %w", err)
	}
	return n, nil
}

// ResolvePublicKey returns the inline key, or reads public_key_file.
func (c CorpusConfig) ResolvePublicKey() (string, error) {
	if c.PublicKey != "" || c.PublicKeyFile == "" {
		return c.PublicKey, nil
	}
	data, err := os.ReadFile(filepath.Clean(c.PublicKeyFile))
	if err != nil {
		return "", fmt.Errorf("read public key %q: %w", c.PublicKeyFile, err)
	}
	return string(data), nil
}

func Load(ctx context.Context, path string) (Config, error) {
	var cfg Config

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}

	applyEnv(&cfg)
	cfg.Normalize()
	return cfg, nil
}

// LoadFromEnv loads an optional .env file from the working directory, then the file named
// by ATLASDECODE_CONFIG. Without that variable a missing default file yields defaults.
func LoadFromEnv(ctx context.Context) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	path := os.Getenv(envConfigPath)
	if path == "" {
		if _, err := os.Stat(DefaultConfigPath); errors.Is(err, fs.ErrNotExist) {
			cfg := Default()
			applyEnv(&cfg)
			return cfg, nil
		}
		path = DefaultConfigPath
	}
	return Load(ctx, path)
}

func applyEnv(cfg *Config) {
	if dsn := os.Getenv(envPostgresDSN); dsn != "" {
		cfg.Failures.PostgresDSN = dsn
	}
	if key := os.Getenv(envPublicKey); key != "" {
		cfg.Corpus.PublicKey = key
	}
}
