// Package config loads gateway connection settings from an optional YAML
// file with environment-variable overrides.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "IGNITION_MCP_"

// TagEndpoint configures the WebDev resource used by the tag tools.
type TagEndpoint struct {
	// Path is the WebDev resource path, relative to the gateway base URL.
	Path string `yaml:"path"`

	// DefaultMethod is the HTTP method used when a call does not override
	// it.
	DefaultMethod string `yaml:"defaultMethod"`
}

// Config holds the gateway connection settings.
type Config struct {
	// GatewayURL is the base URL of the Ignition Gateway.
	GatewayURL string `yaml:"gatewayUrl"`

	// Username and Password authenticate via HTTP Basic when no API key is
	// set.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// APIKey authenticates via the gateway's API-token header. Wins over
	// the username/password pair. May be an op:// or env:// reference.
	APIKey string `yaml:"apiKey"`

	// TagEndpoint configures the WebDev tag tools.
	TagEndpoint TagEndpoint `yaml:"tagEndpoint"`

	// RulesEngineURL is the base URL of the script validation rules
	// engine. Empty disables validation; sessions are still recorded.
	RulesEngineURL string `yaml:"rulesEngineUrl"`

	// Timeout bounds each gateway request.
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		GatewayURL: "http://localhost:8088",
		Username:   "admin",
		Password:   "password",
		TagEndpoint: TagEndpoint{
			Path:          "/system/webdev/tags",
			DefaultMethod: "POST",
		},
		Timeout: 30 * time.Second,
	}
}

// LoadFile loads configuration from a YAML file, then applies environment
// overrides. A missing file is not an error; defaults apply.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		cfg.applyEnv()
		return cfg, nil
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := Default()
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("error opening config file: %w", err)
	}
	defer f.Close()

	cfg, err := Load(f)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// Load loads configuration from an io.Reader on top of the defaults.
// Environment overrides are not applied here; LoadFile does that.
func Load(r io.Reader) (*Config, error) {
	cfg := Default()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error reading config data: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config YAML: %w", err)
	}

	cfg.GatewayURL = strings.TrimSuffix(cfg.GatewayURL, "/")
	cfg.RulesEngineURL = strings.TrimSuffix(cfg.RulesEngineURL, "/")
	return cfg, nil
}

// applyEnv overlays IGNITION_MCP_-prefixed environment variables.
// Environment values win over file values.
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvPrefix + "GATEWAY_URL"); v != "" {
		c.GatewayURL = strings.TrimSuffix(v, "/")
	}
	if v := os.Getenv(EnvPrefix + "USERNAME"); v != "" {
		c.Username = v
	}
	if v := os.Getenv(EnvPrefix + "PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv(EnvPrefix + "API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv(EnvPrefix + "TAG_PATH"); v != "" {
		c.TagEndpoint.Path = v
	}
	if v := os.Getenv(EnvPrefix + "TAG_METHOD"); v != "" {
		c.TagEndpoint.DefaultMethod = strings.ToUpper(v)
	}
	if v := os.Getenv(EnvPrefix + "RULES_ENGINE_URL"); v != "" {
		c.RulesEngineURL = strings.TrimSuffix(v, "/")
	}
	if v := os.Getenv(EnvPrefix + "TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Timeout = d
		}
	}
}
