package bbsconfig

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withEnv(t *testing.T, kv map[string]string, fn func()) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
	fn()
}

func TestLoadRequiresStoreDSN(t *testing.T) {
	os.Unsetenv("BBS_STORE_DSN")
	_, err := Load()
	require.Error(t, err)
}

func TestLoadAppliesDefaults(t *testing.T) {
	withEnv(t, map[string]string{"BBS_STORE_DSN": "memory"}, func() {
		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "memory", cfg.StoreDSN)
		assert.Equal(t, ":8080", cfg.HTTPAddr)
		assert.Equal(t, "github.com", cfg.RemoteAllowedHosts)
		assert.Equal(t, "*", cfg.CORSAllowedOrigins)
	})
}

func TestCORSOriginsSplitsAndTrims(t *testing.T) {
	cfg := Config{CORSAllowedOrigins: " https://a.example , https://b.example ,"}
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins())
}

func TestCORSOriginsWildcard(t *testing.T) {
	cfg := Config{CORSAllowedOrigins: "*"}
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins())
}

func TestAllowedHostsSplitsAndTrims(t *testing.T) {
	cfg := Config{RemoteAllowedHosts: "github.com, raw.githubusercontent.com"}
	assert.Equal(t, []string{"github.com", "raw.githubusercontent.com"}, cfg.AllowedHosts())
}
