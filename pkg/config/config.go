package config

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrInvalidConfig = errors.New("invalid config")
)

const (
	DefaultBaseURL        = "http://localhost:3000"
	DefaultTimeoutSeconds = 15
	DefaultStoragePath    = "watt.db"
	DefaultTokenTTL       = 24 * 60
)

type APIConfig struct {
	Port int `json:"port"`
}

// ClientConfig describes the remote authority the client talks to.
type ClientConfig struct {
	BaseURL        string `json:"base_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	FeedbackPath   string `json:"feedback_path"`
	AppliancesPath string `json:"appliances_path"`
	UsersPath      string `json:"users_path"`
}

func (c *ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type StorageConfig struct {
	Path string `json:"path"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	File   string `json:"file"`
}

type DatabaseConfig struct {
	Hostname string `json:"hostname"`
	Username string `json:"username"`
	Password string `json:"password"`
	Database string `json:"database"`
	Port     int64  `json:"port"`
}

type SecurityConfig struct {
	Secret          string `json:"secret"`
	Enforce         bool   `json:"enforce"`
	TokenTTLMinutes int    `json:"token_ttl_minutes"`
}

type Databases struct {
	Registry *DatabaseConfig `json:"registry"`
}

type Config struct {
	API       *APIConfig      `json:"api"`
	Client    *ClientConfig   `json:"client"`
	Storage   *StorageConfig  `json:"storage"`
	Logging   *LoggingConfig  `json:"logging"`
	Databases *Databases      `json:"databases"`
	Security  *SecurityConfig `json:"security"`
}

// Default returns a config usable without any file on disk.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// FromEnv is Default with the WATT_* environment overrides applied. It is
// used when no config file exists.
func FromEnv() (*Config, error) {
	cfg := Default()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	var config Config

	err = json.Unmarshal(b, &config)
	if err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}

	config.applyDefaults()
	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.API == nil {
		c.API = &APIConfig{}
	}
	if c.API.Port == 0 {
		c.API.Port = 3000
	}
	if c.Client == nil {
		c.Client = &ClientConfig{}
	}
	if c.Client.BaseURL == "" {
		c.Client.BaseURL = DefaultBaseURL
	}
	c.Client.BaseURL = strings.TrimRight(c.Client.BaseURL, "/")
	if c.Client.TimeoutSeconds == 0 {
		c.Client.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if c.Client.FeedbackPath == "" {
		c.Client.FeedbackPath = "/api/feedback"
	}
	if c.Client.AppliancesPath == "" {
		c.Client.AppliancesPath = "/api/appliances"
	}
	if c.Client.UsersPath == "" {
		c.Client.UsersPath = "/api/users"
	}
	if c.Storage == nil {
		c.Storage = &StorageConfig{}
	}
	if c.Storage.Path == "" {
		c.Storage.Path = DefaultStoragePath
	}
	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Databases == nil {
		c.Databases = &Databases{}
	}
	if c.Security == nil {
		c.Security = &SecurityConfig{Enforce: true}
	}
	if c.Security.TokenTTLMinutes == 0 {
		c.Security.TokenTTLMinutes = DefaultTokenTTL
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv("WATT_BASE_URL"); v != "" {
		c.Client.BaseURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("WATT_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
}

// Validate reports the first unusable value. Defaults must have been
// applied first.
func (c *Config) Validate() error {
	if c.Client == nil || c.Storage == nil || c.Logging == nil || c.Security == nil || c.API == nil {
		return errors.Wrap(ErrInvalidConfig, "missing section")
	}
	if !strings.HasPrefix(c.Client.BaseURL, "http://") && !strings.HasPrefix(c.Client.BaseURL, "https://") {
		return errors.Wrapf(ErrInvalidConfig, "client.base_url %q is not an http(s) url", c.Client.BaseURL)
	}
	if c.Client.TimeoutSeconds < 0 {
		return errors.Wrap(ErrInvalidConfig, "client.timeout_seconds must not be negative")
	}
	for _, p := range []string{c.Client.FeedbackPath, c.Client.AppliancesPath, c.Client.UsersPath} {
		if !strings.HasPrefix(p, "/") {
			return errors.Wrapf(ErrInvalidConfig, "route %q must start with /", p)
		}
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return errors.Wrapf(ErrInvalidConfig, "api.port %d out of range", c.API.Port)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return errors.Wrapf(ErrInvalidConfig, "logging.format %q", c.Logging.Format)
	}
	return nil
}
