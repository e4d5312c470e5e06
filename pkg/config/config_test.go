package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesAndSanitizes(t *testing.T) {
	p := writeFile(t, "config.yaml", `
server:
  port: 9000
  read_header_timeout: 7
  ping_interval: "15s"
  trust_proxy_headers: true
chat:
  provider: " OpenAI "
  max_history: -1
audio:
  frame_size: 0
widget:
  default_language: en
tracing:
  sampling_rate: 3
`)
	cfg, err := Load(p)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Bind)
	assert.Equal(t, 7*time.Second, cfg.Server.ReadHeaderTimeout.ToDuration())
	assert.Equal(t, 15*time.Second, cfg.Server.PingInterval.ToDuration())
	assert.True(t, cfg.Server.TrustProxyHeaders)
	assert.Equal(t, ProviderOpenAI, cfg.Chat.Provider)
	assert.Equal(t, 10, cfg.Chat.MaxHistory)
	assert.Equal(t, 4096, cfg.Audio.FrameSize)
	assert.Equal(t, "en", cfg.Widget.DefaultLanguage)
	assert.Equal(t, 1.0, cfg.Tracing.SamplingRate)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr())
}

func TestLoadRejectsUnknownValues(t *testing.T) {
	p := writeFile(t, "config.yaml", "chat:\n  provider: claude\n")
	_, err := Load(p)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	p = writeFile(t, "config.yaml", "widget:\n  default_language: fr\n")
	_, err = Load(p)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadBadDuration(t *testing.T) {
	p := writeFile(t, "config.yaml", "server:\n  write_timeout: soon\n")
	_, err := Load(p)
	assert.Error(t, err)
}

func TestGeminiAPIKeyFallback(t *testing.T) {
	cfg := Default()

	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv(FallbackAPIKeyEnv, "")
	assert.Empty(t, cfg.GeminiAPIKey())

	t.Setenv(FallbackAPIKeyEnv, " fallback ")
	assert.Equal(t, "fallback", cfg.GeminiAPIKey())

	t.Setenv("GEMINI_API_KEY", "primary")
	assert.Equal(t, "primary", cfg.GeminiAPIKey())
}

func TestLoadEnv(t *testing.T) {
	p := writeFile(t, ".env", "WIDGET_TEST_VALUE=from-dotenv\n")
	t.Setenv("WIDGET_TEST_VALUE", "")
	os.Unsetenv("WIDGET_TEST_VALUE")

	require.NoError(t, LoadEnv(p, filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, "from-dotenv", os.Getenv("WIDGET_TEST_VALUE"))
}
