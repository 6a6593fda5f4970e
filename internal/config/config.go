package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultAPIBaseURL is the backend deployment used when no override is set
	DefaultAPIBaseURL = "http://localhost:8000"
	// DefaultProxyBaseURL is where the local download intermediary listens
	DefaultProxyBaseURL = "http://localhost:18081"
	// DefaultRateLimit is the default maximum backend requests per second
	DefaultRateLimit = 5

	// APIURLEnvVar selects the backend deployment for every strategy client and the media fallback
	APIURLEnvVar = "CREATOR_SCOUT_API_URL"
	// ProxyURLEnvVar selects the download intermediary
	ProxyURLEnvVar = "CREATOR_SCOUT_PROXY_URL"
	// RateLimitEnvVar configures the backend rate limit
	RateLimitEnvVar = "CREATOR_SCOUT_RATE_LIMIT"
	// ConfigPathEnvVar overrides the location of the YAML config file
	ConfigPathEnvVar = "CREATOR_SCOUT_CONFIG"
)

// DefaultCDNHostSuffixes are hosts whose media can be downloaded without an intermediary
var DefaultCDNHostSuffixes = []string{
	"tiktokcdn.com",
	"tiktokcdn-us.com",
	"tiktokcdn-eu.com",
	"ibytedtos.com",
	"byteoversea.com",
}

// Timeouts holds per-class request budgets
type Timeouts struct {
	// Short covers username resolution, profile lookup and media resolution
	Short time.Duration `yaml:"short"`
	// Long covers endpoints that run AI ranking server side
	Long time.Duration `yaml:"long"`
	// Download covers binary transfers through the intermediary
	Download time.Duration `yaml:"download"`
}

// Config is the resolved runtime configuration
type Config struct {
	APIBaseURL      string   `yaml:"api_url"`
	ProxyBaseURL    string   `yaml:"proxy_url"`
	RateLimit       float64  `yaml:"rate_limit"`
	Timeouts        Timeouts `yaml:"timeouts"`
	CDNHostSuffixes []string `yaml:"cdn_hosts"`
}

var (
	globalConfig *Config
	configOnce   sync.Once
)

// Defaults returns the compiled-in configuration
func Defaults() *Config {
	return &Config{
		APIBaseURL:   DefaultAPIBaseURL,
		ProxyBaseURL: DefaultProxyBaseURL,
		RateLimit:    DefaultRateLimit,
		Timeouts: Timeouts{
			Short:    20 * time.Second,
			Long:     90 * time.Second,
			Download: 2 * time.Minute,
		},
		CDNHostSuffixes: append([]string(nil), DefaultCDNHostSuffixes...),
	}
}

// Get returns the process-wide configuration, loading it on first use.
// Load errors are logged and the defaults (plus environment overrides) are used.
func Get() *Config {
	configOnce.Do(func() {
		cfg, err := Load("")
		if err != nil {
			logrus.WithError(err).Warn("Failed to load configuration, using defaults")
			cfg = Defaults()
			cfg.applyEnv()
		}
		globalConfig = cfg
	})
	return globalConfig
}

// Load builds a configuration from defaults, the optional YAML file and the environment.
// Environment values win over the file. An empty path uses the default location.
func Load(path string) (*Config, error) {
	// A missing .env file is normal outside development
	_ = godotenv.Load()

	cfg := Defaults()

	if path == "" {
		path = configPath()
	}
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[1:])
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logrus.WithField("config_path", path).Debug("Configuration file not found, using defaults")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(APIURLEnvVar)); v != "" {
		c.APIBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(ProxyURLEnvVar)); v != "" {
		c.ProxyBaseURL = v
	}
	if v := os.Getenv(RateLimitEnvVar); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed > 0 {
			c.RateLimit = parsed
		}
	}
}

func (c *Config) validate() error {
	c.APIBaseURL = strings.TrimSuffix(c.APIBaseURL, "/")
	c.ProxyBaseURL = strings.TrimSuffix(c.ProxyBaseURL, "/")

	for name, raw := range map[string]string{"api_url": c.APIBaseURL, "proxy_url": c.ProxyBaseURL} {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%s must be an absolute http(s) URL, got %q", name, raw)
		}
	}

	defaults := Defaults()
	if c.RateLimit <= 0 {
		c.RateLimit = defaults.RateLimit
	}
	if c.Timeouts.Short <= 0 {
		c.Timeouts.Short = defaults.Timeouts.Short
	}
	if c.Timeouts.Long <= 0 {
		c.Timeouts.Long = defaults.Timeouts.Long
	}
	if c.Timeouts.Download <= 0 {
		c.Timeouts.Download = defaults.Timeouts.Download
	}
	if len(c.CDNHostSuffixes) == 0 {
		c.CDNHostSuffixes = defaults.CDNHostSuffixes
	}
	return nil
}

// configPath returns the path to the YAML configuration file
func configPath() string {
	if customPath := os.Getenv(ConfigPathEnvVar); customPath != "" {
		return customPath
	}

	// Default to ~/.creator-scout/config.yaml
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".creator-scout", "config.yaml")
}
