package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("EXPLORER_NODE_URL", "http://node:8080")
	t.Setenv("EXPLORER_POSTGRES_URL", "postgres://localhost/explorer")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://node:8080", cfg.NodeURL)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 5*time.Minute, cfg.ResyncInterval)
	assert.Equal(t, uint64(10), cfg.ResyncDepth)
	assert.Equal(t, ":3001", cfg.HTTPAddr)
	assert.Equal(t, 25, cfg.PageSize)
	assert.Equal(t, 100, cfg.MaxPageSize)
	assert.Empty(t, cfg.RedisURL)
	assert.Empty(t, cfg.NodeWSURL)
}

func TestLoadMissingNodeURL(t *testing.T) {
	t.Setenv("EXPLORER_NODE_URL", "")
	t.Setenv("EXPLORER_POSTGRES_URL", "postgres://localhost/explorer")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NODE_URL")
}

func TestLoadMissingPostgresURL(t *testing.T) {
	t.Setenv("EXPLORER_NODE_URL", "http://node:8080")
	t.Setenv("EXPLORER_POSTGRES_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_URL")
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("EXPLORER_POLL_INTERVAL", "500ms")
	t.Setenv("EXPLORER_RESYNC_INTERVAL", "300")
	t.Setenv("EXPLORER_RESYNC_DEPTH", "25")
	t.Setenv("EXPLORER_HTTP_ADDR", ":9000")
	t.Setenv("EXPLORER_ADMIN_TOKEN", "s3cret")
	t.Setenv("EXPLORER_REDIS_URL", "redis://localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 5*time.Minute, cfg.ResyncInterval) // bare seconds
	assert.Equal(t, uint64(25), cfg.ResyncDepth)
	assert.Equal(t, ":9000", cfg.HTTPAddr)
	assert.Equal(t, "s3cret", cfg.AdminToken)
	assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
}

func TestLoadBadInterval(t *testing.T) {
	setRequired(t)
	t.Setenv("EXPLORER_POLL_INTERVAL", "soon")

	_, err := Load()
	require.Error(t, err)
}

func TestParseInterval(t *testing.T) {
	type testcase struct {
		input       string
		expected    time.Duration
		shouldError bool
	}
	testcases := []testcase{
		{input: "2", expected: 2 * time.Second},
		{input: "300", expected: 5 * time.Minute},
		{input: "90s", expected: 90 * time.Second},
		{input: "5m", expected: 5 * time.Minute},
		{input: "0", shouldError: true},
		{input: "-3", shouldError: true},
		{input: "-1s", shouldError: true},
		{input: "later", shouldError: true},
	}

	for _, tc := range testcases {
		t.Run(tc.input, func(t *testing.T) {
			d, err := parseInterval(tc.input)
			if tc.shouldError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, d)
		})
	}
}
