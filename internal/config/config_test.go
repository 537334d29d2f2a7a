package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// chdir moves into an empty directory so no stray config.yaml or .env is picked up.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdir(t)

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 3001, cfg.Server.Port)
	require.Equal(t, int64(2<<20), cfg.Server.MaxBodyBytes)
	require.Equal(t, []string{"*"}, cfg.Server.AllowOrigins)
	require.Equal(t, "http://localhost:11434", cfg.Ollama.BaseURL)
	require.Equal(t, "/api/tags", cfg.Ollama.ModelsPath)
	require.Equal(t, "/api/chat", cfg.Ollama.ChatPath)
	require.Equal(t, 5*time.Second, cfg.Ollama.ConnectTimeout)
	require.Equal(t, "http://localhost:3001", cfg.Gateway.URL)
	require.Equal(t, 5, cfg.Retrieval.MaxItems)
	require.Equal(t, 6000, cfg.Retrieval.MaxChars)
	require.True(t, cfg.Chat.IncludeRAG)
	require.Equal(t, 12, cfg.Chat.HistoryWindow)
	require.Equal(t, 8000, cfg.Chat.AttachmentLimit)
	require.Equal(t, "0.0.0.0:3001", cfg.Address())
}

func TestLoad_LegacyEnv(t *testing.T) {
	chdir(t)
	t.Setenv("API_PORT", "4010")
	t.Setenv("OLLAMA_BASE_URL", "http://gpu-box:11434")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 4010, cfg.Server.Port)
	require.Equal(t, "http://gpu-box:11434", cfg.Ollama.BaseURL)
}

func TestLoad_PrefixedEnvWins(t *testing.T) {
	chdir(t)
	t.Setenv("API_PORT", "4010")
	t.Setenv("NOISE_SERVER_PORT", "5020")
	t.Setenv("NOISE_CHAT_MODEL", "llama3")
	t.Setenv("NOISE_RETRIEVAL_TIMEOUT", "250ms")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 5020, cfg.Server.Port)
	require.Equal(t, "llama3", cfg.Chat.Model)
	require.Equal(t, 250*time.Millisecond, cfg.Retrieval.Timeout)
}

func TestLoad_File(t *testing.T) {
	dir := chdir(t)
	path := filepath.Join(dir, "noise.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 8088
retrieval:
  semantic_url: http://localhost:9001/search
  max_items: 3
log:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 8088, cfg.Server.Port)
	require.Equal(t, "http://localhost:9001/search", cfg.Retrieval.SemanticURL)
	require.Equal(t, 3, cfg.Retrieval.MaxItems)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := chdir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("NOISE_GATEWAY_URL=http://10.0.0.2:3001\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("NOISE_GATEWAY_URL") })

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "http://10.0.0.2:3001", cfg.Gateway.URL)
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := chdir(t)
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
