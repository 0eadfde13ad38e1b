package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrLibraryPathNotSet   = errors.New("library path is not configured")
	ErrLibraryPathNotFound = errors.New("library file does not exist")
	ErrGatewayURLNotSet    = errors.New("gateway url is not configured")
	ErrReviewsURLNotSet    = errors.New("reviews url is not configured")
	ErrInvalidUpdateMonths = errors.New("default update months must be positive")
	ErrInvalidRate         = errors.New("reviews requests per second must be positive")
)

// Default values written to a fresh config file
const (
	DefaultGatewayURL        = "https://api.steamcmd.net"
	DefaultReviewsURL        = "https://store.steampowered.com"
	DefaultPollInterval      = time.Second
	DefaultRequestsPerSecond = 2.0
	DefaultUpdateMonths      = 3.0
	DefaultUpdateTag         = "Update available"
	DefaultMissingFieldTag   = "Missing field"
	DefaultHTTPTimeout       = 30 * time.Second
	DefaultHTTPMaxRetries    = 3
)

// DefaultExcludeTags are the tags that take an entry out of the random rotation
var DefaultExcludeTags = []string{"No download", "GPU Upgrade"}

// Config represents the application configuration
type Config struct {
	Library  LibraryConfig  `yaml:"library"`
	Data     DataConfig     `yaml:"data"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Reviews  ReviewsConfig  `yaml:"reviews"`
	Tracking TrackingConfig `yaml:"tracking"`
	HTTP     HTTPConfig     `yaml:"http"`
}

// LibraryConfig points at the TOML library document
type LibraryConfig struct {
	Path string `yaml:"path"`
}

// DataConfig holds the tracking cache location
type DataConfig struct {
	Dir string `yaml:"dir"` // Directory holding data.json (default: $XDG_DATA_HOME/buildwatch)
}

// GatewayConfig holds product-info gateway settings
type GatewayConfig struct {
	URL          string        `yaml:"url"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// ReviewsConfig holds review listing settings
type ReviewsConfig struct {
	URL               string  `yaml:"url"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// TrackingConfig holds cadence and tagging settings
type TrackingConfig struct {
	DefaultUpdateMonths float64  `yaml:"default_update_months"`
	ExcludeTags         []string `yaml:"exclude_tags"`
	UpdateTag           string   `yaml:"update_tag"`
	MissingFieldTag     string   `yaml:"missing_field_tag"`
}

// HTTPConfig holds outbound HTTP settings
type HTTPConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// Default returns a configuration populated with default values
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			URL:          DefaultGatewayURL,
			PollInterval: DefaultPollInterval,
		},
		Reviews: ReviewsConfig{
			URL:               DefaultReviewsURL,
			RequestsPerSecond: DefaultRequestsPerSecond,
		},
		Tracking: TrackingConfig{
			DefaultUpdateMonths: DefaultUpdateMonths,
			ExcludeTags:         append([]string(nil), DefaultExcludeTags...),
			UpdateTag:           DefaultUpdateTag,
			MissingFieldTag:     DefaultMissingFieldTag,
		},
		HTTP: HTTPConfig{
			Timeout:    DefaultHTTPTimeout,
			MaxRetries: DefaultHTTPMaxRetries,
		},
	}
}

// ConfigPaths returns all possible config file paths in priority order
// 1. ~/.config/buildwatch/config.yaml (XDG standard - priority)
// 2. ~/.buildwatch/config.yaml (legacy fallback)
func ConfigPaths() ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}

	return []string{
		filepath.Join(xdgConfig, "buildwatch", "config.yaml"),
		filepath.Join(home, ".buildwatch", "config.yaml"),
	}, nil
}

// DefaultConfigPath returns the default config file path (XDG standard)
func DefaultConfigPath() (string, error) {
	paths, err := ConfigPaths()
	if err != nil {
		return "", err
	}
	return paths[0], nil
}

// FindConfigPath returns the first existing config file path
// Returns the default path if no config file exists yet
func FindConfigPath() (string, error) {
	paths, err := ConfigPaths()
	if err != nil {
		return "", err
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return paths[0], nil
}

// DefaultDataDir returns $XDG_DATA_HOME/buildwatch (or ~/.local/share/buildwatch)
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	xdgData := os.Getenv("XDG_DATA_HOME")
	if xdgData == "" {
		xdgData = filepath.Join(home, ".local", "share")
	}

	return filepath.Join(xdgData, "buildwatch"), nil
}

// Load reads configuration from the first available config file
// Priority: ~/.config/buildwatch/config.yaml > ~/.buildwatch/config.yaml
func Load() (*Config, error) {
	configPath, err := FindConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(configPath)
}

// LoadFrom reads configuration from a specific file path.
// A missing file is created with default values.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			if saveErr := cfg.SaveTo(path); saveErr != nil {
				return nil, saveErr
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes configuration to the default config file
func (c *Config) Save() error {
	configPath, err := DefaultConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(configPath)
}

// SaveTo writes configuration to a specific file path
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate checks the settings the engine cannot run without
func (c *Config) Validate() error {
	if c.Gateway.URL == "" {
		return ErrGatewayURLNotSet
	}
	if c.Reviews.URL == "" {
		return ErrReviewsURLNotSet
	}
	if c.Tracking.DefaultUpdateMonths <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidUpdateMonths, c.Tracking.DefaultUpdateMonths)
	}
	if c.Reviews.RequestsPerSecond <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidRate, c.Reviews.RequestsPerSecond)
	}
	return nil
}

// GetLibraryPath returns the expanded library path and checks that it exists
func (c *Config) GetLibraryPath() (string, error) {
	if c.Library.Path == "" {
		return "", ErrLibraryPathNotSet
	}

	path, err := ExpandHome(c.Library.Path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrLibraryPathNotFound, path)
		}
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrLibraryPathNotFound, path)
	}

	return path, nil
}

// GetDataDir returns the expanded tracking data directory, falling back to
// DefaultDataDir when unset
func (c *Config) GetDataDir() (string, error) {
	if c.Data.Dir == "" {
		return DefaultDataDir()
	}
	return ExpandHome(c.Data.Dir)
}

// ExpandHome replaces a leading ~ with the user's home directory
func ExpandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, path[1:]), nil
}
