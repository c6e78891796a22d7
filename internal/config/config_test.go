package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDoc = `
server:
  url: "https://collector.example.com"
agent:
  hwid: ""
  hostname: ""
  api_token: ""
intervals:
  collection: 5
  send: 30
  services: "1m"
  heartbeat: 10
`

func TestLoadFromBytes_DefaultsAndIntervals(t *testing.T) {
	cfg, err := LoadFromBytes([]byte(validDoc))
	require.NoError(t, err)

	assert.Equal(t, "https://collector.example.com", cfg.Server.URL)
	assert.True(t, cfg.Server.VerifySSL, "verify_ssl must default to true")
	assert.Equal(t, 5*time.Second, cfg.Intervals.Collection.Duration)
	assert.Equal(t, 30*time.Second, cfg.Intervals.Send.Duration)
	assert.Equal(t, time.Minute, cfg.Intervals.Services.Duration)
	assert.Equal(t, 10*time.Second, cfg.Intervals.Heartbeat.Duration)
	assert.Equal(t, 10000, cfg.Buffer.MaxSamples)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromBytes_VerifySSLOptOut(t *testing.T) {
	cfg, err := LoadFromBytes([]byte("server:\n  url: https://c.example.com\n  verify_ssl: false\n"))
	require.NoError(t, err)
	assert.False(t, cfg.Server.VerifySSL)
}

func TestLoadFromBytes_RejectsPlaintextURL(t *testing.T) {
	for _, url := range []string{"http://insecure.example", "http://localhost:8080", "ftp://x"} {
		t.Run(url, func(t *testing.T) {
			_, err := LoadFromBytes([]byte("server:\n  url: " + url + "\n"))
			require.ErrorIs(t, err, ErrInsecureURL)
		})
	}
}

func TestLoadFromBytes_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unparseable", "server: [unterminated"},
		{"missing url", "agent:\n  hwid: abc\n"},
		{"bad level", "server:\n  url: https://c.example.com\nlogging:\n  level: loud\n"},
		{"zero interval", "server:\n  url: https://c.example.com\nintervals:\n  send: 0\n"},
		{"bad duration", "server:\n  url: https://c.example.com\nintervals:\n  send: soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(tt.doc))
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoadFromBytes_OpaqueToken(t *testing.T) {
	for _, token := range []string{"abc", "sk-live-opaque-server-token"} {
		t.Run(token, func(t *testing.T) {
			cfg, err := LoadFromBytes([]byte("server:\n  url: https://c.example.com\nagent:\n  api_token: " + token + "\n"))
			require.NoError(t, err)
			assert.Equal(t, token, cfg.Agent.APIToken)
		})
	}
}

func TestLoadFromBytes_EnvOverrides(t *testing.T) {
	t.Setenv("SHELTER_SERVER_URL", "https://env.example.com")
	t.Setenv("SHELTER_LOG_LEVEL", "DEBUG")

	cfg, err := LoadFromBytes([]byte(validDoc))
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.Server.URL)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSave_RoundTripAndMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.yml")

	cfg := DefaultConfig()
	cfg.Server.URL = "https://test.example.com"
	cfg.Agent.HWID = "0123456789abcdef"

	require.NoError(t, Save(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	if os.PathSeparator == '/' {
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Agent.HWID, loaded.Agent.HWID)
	assert.Equal(t, cfg.Intervals, loaded.Intervals)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestFile_PersistCredential(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(validDoc), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	token := strings.Repeat("ab", 32)
	f := &File{Path: path, Config: cfg}
	require.NoError(t, f.PersistCredential("0123456789abcdef", "web-01", token))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef", reloaded.Agent.HWID)
	assert.Equal(t, "web-01", reloaded.Agent.Hostname)
	assert.Equal(t, token, reloaded.Agent.APIToken)
	assert.Equal(t, "https://collector.example.com", reloaded.Server.URL)
}

func TestLocate_FallsBackToGivenPath(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "config.yml")
	assert.Equal(t, missing, Locate(missing))
}
