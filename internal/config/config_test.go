package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sap-mcp-sse/internal/odata"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, odata.DefaultServiceURL, cfg.ServiceURL)
	assert.Equal(t, ":3001", cfg.Addr)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 15*time.Second, cfg.KeepAlive)
	assert.True(t, cfg.VerifyTLS)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "DUNOT", cfg.Headers["Operation"])

	// no zero durations that would panic a ticker
	assert.Positive(t, cfg.SessionTimeout)
	assert.Positive(t, cfg.CleanupInterval)
	assert.Positive(t, cfg.MetricsInterval)
}

func TestLoad_MissingCredentials(t *testing.T) {
	t.Setenv("SAP_USERNAME", "")
	t.Setenv("SAP_PASSWORD", "")

	_, err := Load(NewViper())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingCredentials))

	t.Setenv("SAP_USERNAME", "alice")
	_, err = Load(NewViper())
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("SAP_USERNAME", " alice ")
	t.Setenv("SAP_PASSWORD", "secret")
	t.Setenv("SAP_SERVICE_URL", "https://gw.example.com/sap/opu/odata/sap/ZEMT_PMAPP_SRV/")
	t.Setenv("SAP_VERIFY_TLS", "false")
	t.Setenv("SAP_TIMEOUT", "12s")
	t.Setenv("SAP_SAP_CLIENT", "100")
	t.Setenv("SAP_LOG_LEVEL", "debug")
	t.Setenv("SAP_HEADERS", `{"IvUser":"ENST1","Operation":"DUNOT"}`)

	cfg, err := Load(NewViper())
	require.NoError(t, err)

	assert.Equal(t, "alice", cfg.Username)
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, "https://gw.example.com/sap/opu/odata/sap/ZEMT_PMAPP_SRV", cfg.ServiceURL)
	assert.False(t, cfg.VerifyTLS)
	assert.Equal(t, 12*time.Second, cfg.Timeout)
	assert.Equal(t, "100", cfg.SAPClient)
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())
	assert.Equal(t, map[string]string{"IvUser": "ENST1", "Operation": "DUNOT"}, cfg.Headers)

	cc := cfg.ClientConfig()
	assert.Equal(t, "alice", cc.Credentials.Username)
	assert.Equal(t, 12*time.Second, cc.Timeout)
}

func TestLoad_ExplicitValuesOverrideDefaults(t *testing.T) {
	t.Setenv("SAP_USERNAME", "alice")
	t.Setenv("SAP_PASSWORD", "secret")

	v := NewViper()
	v.Set("addr", ":9000")
	v.Set("headers", map[string]string{"Deviceid": "546546"})

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	require.Len(t, cfg.Headers, 1)
	for name, value := range cfg.Headers {
		// viper may fold map keys to lower case
		assert.True(t, strings.EqualFold("Deviceid", name), name)
		assert.Equal(t, "546546", value)
	}
}

func TestValidate(t *testing.T) {
	valid := DefaultConfig()
	valid.Username = "u"
	valid.Password = "p"
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"relative url", func(c *Config) { c.ServiceURL = "/sap/opu" }},
		{"ftp url", func(c *Config) { c.ServiceURL = "ftp://host/x" }},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
		{"keepalive too long", func(c *Config) { c.KeepAlive = 2 * c.SessionTimeout }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.False(t, errors.Is(err, ErrMissingCredentials))
		})
	}
}
