package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// AppID names the application data directory
	AppID = "com.chrisprimes.signage"

	// DefaultTenant is the content server used when config.json names none
	DefaultTenant = "https://signage.prod.chrisprimes.com"

	// DefaultHTTPAddr serves health, metrics and the resolved manifest
	DefaultHTTPAddr = "127.0.0.1:9470"

	ConfigFileName   = "config.json"
	FallbackFileName = "player.json"
	MarkerFileName   = "restmp"
	HistoryFileName  = "kiosksync.db"
	LogFileName      = "log.txt"
)

var (
	// ErrConfigNotFound means config.json does not exist
	ErrConfigNotFound = errors.New("config file not found")

	// ErrNoDeploymentID means config.json does not name a deployment
	ErrNoDeploymentID = errors.New("deployment_id is not set")
)

// DeploymentID identifies a deployment. config.json may carry it as a
// number or a string.
type DeploymentID string

// UnmarshalYAML implements yaml.Unmarshaler
func (d *DeploymentID) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: deployment_id must be a string or number", node.Line)
	}
	if node.Tag == "!!null" {
		*d = ""
		return nil
	}
	*d = DeploymentID(strings.TrimSpace(node.Value))
	return nil
}

func (d DeploymentID) String() string {
	return string(d)
}

// Duration is a time.Duration that decodes from a Go duration string
// ("90s", "15m") or a bare number of seconds
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", node.Line)
	}
	if parsed, err := time.ParseDuration(node.Value); err == nil {
		*d = Duration(parsed)
		return nil
	}
	seconds, err := strconv.ParseFloat(node.Value, 64)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", node.Line, node.Value)
	}
	*d = Duration(seconds * float64(time.Second))
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the agent configuration read from <app-data>/config.json
type Config struct {
	DeploymentID DeploymentID `yaml:"deployment_id"`
	Password     string       `yaml:"password"`
	Tenant       string       `yaml:"tenant"`

	Log       LogConfig       `yaml:"log"`
	Sync      SyncConfig      `yaml:"sync"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	HTTP      HTTPConfig      `yaml:"http"`

	// AppData is the directory holding config.json and all agent state
	AppData string `yaml:"-"`
}

// LogConfig configures logging
type LogConfig struct {
	Level  string `yaml:"level"`
	JSON   bool   `yaml:"json"`
	ToFile bool   `yaml:"to_file"`
}

// SyncConfig configures the sync orchestrator and the cache reconciler
type SyncConfig struct {
	// MaxAttempts is the number of retries after the first failed fetch
	MaxAttempts     int      `yaml:"max_attempts"`
	BaseDelay       Duration `yaml:"base_delay"`
	Multiplier      float64  `yaml:"multiplier"`
	MaxDelay        Duration `yaml:"max_delay"`
	Concurrency     int      `yaml:"concurrency"`
	RequestTimeout  Duration `yaml:"request_timeout"`
	DownloadTimeout Duration `yaml:"download_timeout"`
}

// HeartbeatConfig configures the restart monitor
type HeartbeatConfig struct {
	Interval Duration `yaml:"interval"`
}

// HTTPConfig configures the local status server. An empty Addr disables it.
type HTTPConfig struct {
	Addr              string   `yaml:"addr"`
	CacheScanInterval Duration `yaml:"cache_scan_interval"`
}

// Default returns the configuration used for every key config.json omits
func Default() *Config {
	return &Config{
		Tenant: DefaultTenant,
		Log: LogConfig{
			Level:  "info",
			ToFile: true,
		},
		Sync: SyncConfig{
			MaxAttempts:     10,
			BaseDelay:       Duration(30 * time.Second),
			Multiplier:      1.5,
			MaxDelay:        Duration(300 * time.Second),
			Concurrency:     4,
			RequestTimeout:  Duration(10 * time.Second),
			DownloadTimeout: Duration(5 * time.Minute),
		},
		Heartbeat: HeartbeatConfig{
			Interval: Duration(15 * time.Minute),
		},
		HTTP: HTTPConfig{
			Addr:              DefaultHTTPAddr,
			CacheScanInterval: Duration(time.Minute),
		},
	}
}

// DefaultAppData returns the platform application data directory
func DefaultAppData() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config directory: %w", err)
	}
	return filepath.Join(dir, AppID), nil
}

// Load reads config.json from appData
func Load(appData string) (*Config, error) {
	return LoadFile(filepath.Join(appData, ConfigFileName), appData)
}

// LoadFile reads the configuration at path. State files live in appData.
func LoadFile(path, appData string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.AppData = appData

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a JSON or YAML document over the defaults
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Tenant = strings.TrimRight(strings.TrimSpace(cfg.Tenant), "/")
	if cfg.Tenant == "" {
		cfg.Tenant = DefaultTenant
	}
	return cfg, nil
}

// Validate checks the fields the agent cannot run without
func (c *Config) Validate() error {
	id := string(c.DeploymentID)
	if id == "" {
		return ErrNoDeploymentID
	}
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("deployment_id %q cannot name a directory", id)
	}

	u, err := url.Parse(c.Tenant)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("tenant %q is not an absolute URL", c.Tenant)
	}

	if c.Sync.MaxAttempts < 1 {
		return fmt.Errorf("sync.max_attempts must be at least 1")
	}
	if c.Sync.Concurrency < 1 {
		return fmt.Errorf("sync.concurrency must be at least 1")
	}
	if c.Heartbeat.Interval <= 0 {
		return fmt.Errorf("heartbeat.interval must be positive")
	}
	return nil
}

// CacheDir is the per-deployment asset cache
func (c *Config) CacheDir() string {
	return filepath.Join(c.AppData, string(c.DeploymentID))
}

// FallbackPath is the saved /player manifest
func (c *Config) FallbackPath() string {
	return filepath.Join(c.AppData, FallbackFileName)
}

// MarkerPath is the restart marker
func (c *Config) MarkerPath() string {
	return filepath.Join(c.AppData, MarkerFileName)
}

// HistoryPath is the sync history database
func (c *Config) HistoryPath() string {
	return filepath.Join(c.AppData, HistoryFileName)
}

// LogPath is the log file
func (c *Config) LogPath() string {
	return filepath.Join(c.AppData, LogFileName)
}
