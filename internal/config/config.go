package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"sap-mcp-sse/internal/odata"
)

// EnvPrefix namespaces environment variables, e.g. SAP_USERNAME.
const EnvPrefix = "SAP"

// ErrMissingCredentials is returned when no SAP username or password is set.
// The server cannot start without them.
var ErrMissingCredentials = errors.New("MissingCredentials")

// Config holds all configuration options for the bridge
type Config struct {
	// SAP gateway
	Username      string            `mapstructure:"username"`
	Password      string            `mapstructure:"password"`
	ServiceURL    string            `mapstructure:"service_url"`
	SAPClient     string            `mapstructure:"sap_client"`
	VerifyTLS     bool              `mapstructure:"verify_tls"`
	Timeout       time.Duration     `mapstructure:"timeout"`
	DefaultExpand string            `mapstructure:"default_expand"`
	Headers       map[string]string `mapstructure:"-"`

	// HTTP server
	Addr     string `mapstructure:"addr"`
	LogLevel string `mapstructure:"log_level"`

	// MCP sessions
	KeepAlive       time.Duration `mapstructure:"keepalive"`
	SessionTimeout  time.Duration `mapstructure:"session_timeout"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	MetricsInterval time.Duration `mapstructure:"metrics_interval"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		ServiceURL:    odata.DefaultServiceURL,
		SAPClient:     "800",
		VerifyTLS:     true,
		Timeout:       odata.DefaultTimeout,
		DefaultExpand: odata.DefaultExpand,
		Headers: map[string]string{
			"Operation": "DUNOT",
		},
		Addr:            ":3001",
		LogLevel:        "info",
		KeepAlive:       15 * time.Second,
		SessionTimeout:  time.Hour,
		CleanupInterval: 5 * time.Minute,
		MetricsInterval: 15 * time.Second,
	}
}

// SetDefaults registers every key with its default so that environment
// variables are picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("username", "")
	v.SetDefault("password", "")
	v.SetDefault("service_url", d.ServiceURL)
	v.SetDefault("sap_client", d.SAPClient)
	v.SetDefault("verify_tls", d.VerifyTLS)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("default_expand", d.DefaultExpand)
	v.SetDefault("addr", d.Addr)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("keepalive", d.KeepAlive)
	v.SetDefault("session_timeout", d.SessionTimeout)
	v.SetDefault("cleanup_interval", d.CleanupInterval)
	v.SetDefault("metrics_interval", d.MetricsInterval)
}

// NewViper returns a viper instance reading SAP_* environment variables on
// top of the defaults.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// headers arrive either as a map (config, defaults) or a JSON object (env)
	if v.IsSet("headers") {
		cfg.Headers = v.GetStringMapString("headers")
	}

	cfg.Username = strings.TrimSpace(cfg.Username)
	cfg.ServiceURL = strings.TrimRight(strings.TrimSpace(cfg.ServiceURL), "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	if c.Username == "" || c.Password == "" {
		return fmt.Errorf("%w: set %s_USERNAME and %s_PASSWORD", ErrMissingCredentials, EnvPrefix, EnvPrefix)
	}

	u, err := url.Parse(c.ServiceURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid service_url %q: must be an absolute http(s) URL", c.ServiceURL)
	}

	for name, d := range map[string]time.Duration{
		"timeout":          c.Timeout,
		"keepalive":        c.KeepAlive,
		"session_timeout":  c.SessionTimeout,
		"cleanup_interval": c.CleanupInterval,
		"metrics_interval": c.MetricsInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if c.KeepAlive >= c.SessionTimeout {
		return fmt.Errorf("keepalive (%s) must be shorter than session_timeout (%s)", c.KeepAlive, c.SessionTimeout)
	}

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return nil
}

// Level returns the configured zerolog level, defaulting to info.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// ClientConfig derives the data source client settings.
func (c *Config) ClientConfig() odata.ClientConfig {
	return odata.ClientConfig{
		Credentials: odata.Credentials{Username: c.Username, Password: c.Password},
		VerifyTLS:   c.VerifyTLS,
		Timeout:     c.Timeout,
		Headers:     c.Headers,
	}
}
