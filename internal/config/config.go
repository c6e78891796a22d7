// Package config handles loading, validating and persisting the agent's YAML
// configuration document.
// Configuration precedence: environment variables > config file > defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var (
	// ErrNotFound is returned when the configuration file does not exist.
	ErrNotFound = errors.New("config file not found")

	// ErrInsecureURL is returned when server.url does not use https://.
	ErrInsecureURL = errors.New("server url must use https")

	// ErrInvalid is returned for unparseable or semantically invalid documents.
	ErrInvalid = errors.New("invalid configuration")
)

var validate = validator.New()

// Duration is a wrapper around time.Duration that supports YAML unmarshaling
// from human-readable strings like "15s", "1m", or bare integers in seconds.
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements the yaml.Unmarshaler interface for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("unsupported duration format: %v", value.Kind)
	}
	if tag := value.ShortTag(); tag == "!!int" || tag == "!!float" {
		secs, err := strconv.ParseFloat(value.Value, 64)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value.Value, err)
		}
		d.Duration = time.Duration(secs * float64(time.Second))
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements the yaml.Marshaler interface for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds all agent configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Agent     AgentConfig     `yaml:"agent"`
	Intervals IntervalsConfig `yaml:"intervals"`
	Buffer    BufferConfig    `yaml:"buffer"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds collector connection settings.
type ServerConfig struct {
	URL       string `yaml:"url" validate:"required,url"`
	VerifySSL bool   `yaml:"verify_ssl"`
}

// AgentConfig holds the persisted identity and credential.
// All fields are empty on first run. APIToken is opaque here: a token the
// collector rejects is replaced at startup, not refused as a config error.
type AgentConfig struct {
	HWID     string `yaml:"hwid" validate:"omitempty,max=64"`
	Hostname string `yaml:"hostname" validate:"omitempty,max=255"`
	APIToken string `yaml:"api_token"`
}

// IntervalsConfig holds the scheduler cadences.
type IntervalsConfig struct {
	Collection Duration `yaml:"collection"`
	Send       Duration `yaml:"send"`
	Services   Duration `yaml:"services"`
	Heartbeat  Duration `yaml:"heartbeat"`
}

// BufferConfig bounds the in-memory metric buffer and configures the shutdown spool.
type BufferConfig struct {
	MaxSamples int    `yaml:"max_samples" validate:"gte=1"`
	SpoolDir   string `yaml:"spool_dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	File  string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			VerifySSL: true,
		},
		Intervals: IntervalsConfig{
			Collection: Duration{5 * time.Second},
			Send:       Duration{30 * time.Second},
			Services:   Duration{60 * time.Second},
			Heartbeat:  Duration{10 * time.Second},
		},
		Buffer: BufferConfig{
			MaxSamples: 10000,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "agent.log",
		},
	}
}

// LoadFromBytes parses YAML configuration from a byte slice and merges with defaults.
// Environment variables take highest precedence. The result is validated.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing config data: %v", ErrInvalid, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads and validates the configuration file at path.
// Unlike defaults-only startup, a missing file is an error: the agent
// cannot run without a server URL.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromBytes(data)
}

// Locate returns path if it exists, otherwise the first standard config
// location that does. Returns path unchanged when nothing is found so the
// caller reports the name the user asked for.
func Locate(path string) string {
	if _, err := os.Stat(path); err == nil {
		return path
	}
	for _, p := range configSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return path
}

// Save serializes the config to path atomically: the document is written to a
// temporary file in the same directory, synced, and renamed over the target.
// The file holds the API token, so it is created with mode 0600.
func Save(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing config file: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if url := os.Getenv("SHELTER_SERVER_URL"); url != "" {
		cfg.Server.URL = url
	}
	if level := os.Getenv("SHELTER_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = strings.ToLower(level)
	}
}

// Validate checks that the configuration is usable. A plaintext server URL
// is always rejected, including for localhost.
func (c *Config) Validate() error {
	if c.Server.URL == "" {
		return fmt.Errorf("%w: server.url is required", ErrInvalid)
	}
	if !strings.HasPrefix(c.Server.URL, "https://") {
		return fmt.Errorf("%w (got: %s)", ErrInsecureURL, c.Server.URL)
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	intervals := map[string]Duration{
		"collection": c.Intervals.Collection,
		"send":       c.Intervals.Send,
		"services":   c.Intervals.Services,
		"heartbeat":  c.Intervals.Heartbeat,
	}
	for name, d := range intervals {
		if d.Duration <= 0 {
			return fmt.Errorf("%w: intervals.%s must be positive", ErrInvalid, name)
		}
	}
	return nil
}

// BaseURL returns the server URL without a trailing slash.
func (c *Config) BaseURL() string {
	return strings.TrimRight(c.Server.URL, "/")
}

// File binds a loaded Config to the path it was read from, so that the
// registration step can persist the agent.* section back to disk.
type File struct {
	Path   string
	Config *Config
}

// PersistCredential rewrites agent.{hwid, hostname, api_token} and saves the document.
func (f *File) PersistCredential(hwid, hostname, token string) error {
	f.Config.Agent.HWID = hwid
	f.Config.Agent.Hostname = hostname
	f.Config.Agent.APIToken = token
	return Save(f.Config, f.Path)
}
