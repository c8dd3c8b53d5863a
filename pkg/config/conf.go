package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mchmarny/asdscreen/pkg/artifact"
	"gopkg.in/yaml.v3"
)

const (
	DefaultFileName = "asdscreen.yaml"

	dirMode  = 0700
	fileMode = 0600

	defaultAddress        = "0.0.0.0"
	defaultPort           = 8080
	defaultMaxUploadMB    = 32
	defaultTimeoutSeconds = 300
	defaultLogLevel       = "info"
	defaultLogFormat      = "text"
	maxPort               = 65535
)

// Config is the service configuration.
type Config struct {
	Server    Server    `yaml:"server"`
	Artifacts Artifacts `yaml:"artifacts"`
	Audit     Audit     `yaml:"audit"`
	Log       Log       `yaml:"log"`
}

type Server struct {
	Address        string `yaml:"address"`
	Port           int    `yaml:"port"`
	MaxUploadMB    int    `yaml:"max_upload_mb"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	// StrictStatus maps error payloads to 4xx/5xx instead of 200.
	StrictStatus bool `yaml:"strict_status"`
	// Token, when set, must be sent as a bearer token to /predict and /history.
	Token string `yaml:"token,omitempty"`
}

type Artifacts struct {
	// Dir is resolved against the executable's directory when relative.
	Dir   string         `yaml:"dir"`
	Files artifact.Files `yaml:"files"`
}

type Audit struct {
	// DSN is a sqlite file path or a postgres:// URL. Empty disables auditing.
	DSN string `yaml:"dsn"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: Server{
			Address:        defaultAddress,
			Port:           defaultPort,
			MaxUploadMB:    defaultMaxUploadMB,
			TimeoutSeconds: defaultTimeoutSeconds,
		},
		Artifacts: Artifacts{
			Files: artifact.DefaultFiles(),
		},
		Log: Log{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}

// Load reads the config file at path over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("error parsing config file %s: %w", path, err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return c, nil
}

// Save writes c to path, creating the parent directory when needed.
func Save(path string, c *Config) error {
	if path == "" {
		return errors.New("config path required")
	}
	if c == nil {
		return errors.New("config required")
	}

	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, dirMode); err != nil {
			return fmt.Errorf("failed to create dir %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(path, b, fileMode); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d, got %d", maxPort, c.Server.Port)
	}
	if c.Server.MaxUploadMB < 1 {
		return fmt.Errorf("server.max_upload_mb must be positive, got %d", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSeconds < 1 {
		return fmt.Errorf("server.timeout_seconds must be positive, got %d", c.Server.TimeoutSeconds)
	}
	f := c.Artifacts.Files
	if f.Imputer == "" || f.Features == "" || f.Model == "" {
		return errors.New("artifacts.files must name the imputer, features and model files")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// Address returns the host:port listen address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// MaxUploadBytes returns the request body limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Server.MaxUploadMB) << 20
}
