package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/sheetctx/internal/assembler"
)

// setupTestHome points HOME at a temp dir and returns the sheetctx config dir
// inside it.
func setupTestHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".config", "sheetctx")
	require.NoError(t, os.MkdirAll(dir, 0700))
	return dir
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	require.NoError(t, os.Chmod(path, perm))
	return path
}

const testYAML = `assembler:
  max_context_tokens: 4000
  section_targets:
    schema: 900
  retrieval:
    top_k: 7
dlp:
  allow_list:
    - "example\\.org"
embeddings:
  provider: tei
  base_url: http://tei:8080
  api_key: s3cret
  timeout: 5s
vectorstore:
  collection: workbook_chunks
logging:
  level: debug
`

func TestLoadWithFile_Defaults(t *testing.T) {
	setupTestHome(t)

	cfg, err := LoadWithFile("")
	require.NoError(t, err)

	want := assembler.DefaultConfig()
	assert.Equal(t, want.MaxContextTokens, cfg.Assembler.MaxContextTokens)
	assert.Equal(t, want.SectionTargets, cfg.Assembler.SectionTargets)
	assert.True(t, cfg.DLP.Enabled)
	assert.Equal(t, "hash", cfg.Embeddings.Provider)
	assert.Equal(t, "sheetctx_chunks", cfg.VectorStore.Collection)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout.Duration())
}

func TestLoadWithFile_ValidYAML(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, testYAML, 0600)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Assembler.MaxContextTokens)
	assert.Equal(t, 900, cfg.Assembler.SectionTargets[assembler.SectionSchema])
	assert.Equal(t, 2500, cfg.Assembler.SectionTargets[assembler.SectionRetrieved], "unset keys keep defaults")
	assert.Equal(t, 7, cfg.Assembler.Retrieval.TopK)
	assert.Equal(t, []string{`example\.org`}, cfg.DLP.AllowList)
	assert.Equal(t, "tei", cfg.Embeddings.Provider)
	assert.Equal(t, "s3cret", cfg.Embeddings.APIKey.Value())
	assert.Equal(t, 5*time.Second, cfg.Embeddings.Timeout.Duration())
	assert.Equal(t, "workbook_chunks", cfg.VectorStore.Collection)

	p := cfg.Embeddings.ToProvider()
	assert.Equal(t, "s3cret", p.APIKey)
	assert.Equal(t, 5*time.Second, p.Timeout)
}

func TestLoadWithFile_EnvOverridesFile(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, testYAML, 0600)

	t.Setenv("SHEETCTX_ASSEMBLER_RETRIEVAL_TOP_K", "9")
	t.Setenv("SHEETCTX_ASSEMBLER_MAX_CONTEXT_TOKENS", "12000")
	t.Setenv("SHEETCTX_ASSEMBLER_SAMPLING_STRATEGY", "random")
	t.Setenv("SHEETCTX_EMBEDDINGS_API_KEY", "from-env")
	t.Setenv("SHEETCTX_SERVER_PORT", "8181")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9, cfg.Assembler.Retrieval.TopK)
	assert.Equal(t, 12000, cfg.Assembler.MaxContextTokens)
	assert.EqualValues(t, "random", cfg.Assembler.Sampling.Strategy)
	assert.Equal(t, "from-env", cfg.Embeddings.APIKey.Value())
	assert.Equal(t, 8181, cfg.Server.Port)
}

func TestSource_Unmarshal(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, testYAML, 0600)
	t.Setenv("SHEETCTX_LOGGING_OUTPUT_OTEL", "true")

	src, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, path, src.Path())

	type output struct {
		Stderr bool `koanf:"stderr"`
		OTEL   bool `koanf:"otel"`
	}
	section := struct {
		Level  string `koanf:"level"`
		Format string `koanf:"format"`
		Output output `koanf:"output"`
	}{Level: "info", Format: "json", Output: output{Stderr: true}}

	require.NoError(t, src.Unmarshal("logging", &section))
	assert.Equal(t, "debug", section.Level)
	assert.Equal(t, "json", section.Format, "defaults survive")
	assert.True(t, section.Output.Stderr)
	assert.True(t, section.Output.OTEL)
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"SHEETCTX_ASSEMBLER_MAX_CONTEXT_TOKENS", "assembler.max_context_tokens"},
		{"SHEETCTX_ASSEMBLER_RETRIEVAL_TOP_K", "assembler.retrieval.top_k"},
		{"SHEETCTX_ASSEMBLER_SECTION_TARGETS_SCHEMA", "assembler.section_targets.schema"},
		{"SHEETCTX_ASSEMBLER_SCHEMA_MAX_SCANNED_CELLS", "assembler.schema.max_scanned_cells"},
		{"SHEETCTX_DLP_EXTENDED_SECRET_SCAN", "dlp.extended_secret_scan"},
		{"SHEETCTX_EMBEDDINGS_BASE_URL", "embeddings.base_url"},
		{"SHEETCTX_TELEMETRY_METRICS_EXPORT_INTERVAL", "telemetry.metrics.export_interval"},
		{"SHEETCTX_LOGGING_LEVEL", "logging.level"},
		{"SHEETCTX_VERBOSE", "verbose"},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			assert.Equal(t, tt.want, envKey(tt.env))
		})
	}
}

func TestLoadWithFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown embeddings provider",
			yaml:    "embeddings:\n  provider: onnx\n",
			wantErr: "unknown embeddings provider",
		},
		{
			name:    "negative budget",
			yaml:    "assembler:\n  max_context_tokens: -1\n",
			wantErr: "max_context_tokens",
		},
		{
			name:    "fractional sample size",
			yaml:    "assembler:\n  sampling:\n    size: 2.5\n",
			wantErr: "sample size",
		},
		{
			name:    "bad allow-list pattern",
			yaml:    "dlp:\n  allow_list:\n    - \"(\"\n",
			wantErr: "dlp",
		},
		{
			name:    "bad collection name",
			yaml:    "vectorstore:\n  collection: \"bad name!\"\n",
			wantErr: "vectorstore",
		},
		{
			name:    "negative rate limit",
			yaml:    "server:\n  rate_limit: -1\n",
			wantErr: "server.rate_limit",
		},
		{
			name:    "port out of range",
			yaml:    "server:\n  port: 70000\n",
			wantErr: "server.port",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := setupTestHome(t)
			path := writeConfig(t, dir, tt.yaml, 0600)

			_, err := LoadWithFile(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadWithFile_PathValidation(t *testing.T) {
	setupTestHome(t)
	outside := t.TempDir()
	path := writeConfig(t, outside, testYAML, 0600)

	_, err := open(path, []string{filepath.Join(t.TempDir(), "allowed")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config path validation failed")

	_, err = open(filepath.Join(outside, "..", filepath.Base(outside)+"-sibling", "config.yaml"), []string{outside})
	require.Error(t, err, "sibling directories sharing a prefix are rejected")

	src, err := open(path, []string{outside})
	require.NoError(t, err)
	cfg, err := src.Config()
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Assembler.MaxContextTokens)
}

func TestLoadWithFile_FileProperties(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on windows")
	}

	t.Run("rejects world readable file", func(t *testing.T) {
		dir := setupTestHome(t)
		path := writeConfig(t, dir, testYAML, 0644)

		_, err := LoadWithFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "insecure config file permissions")
	})

	t.Run("accepts read-only file", func(t *testing.T) {
		dir := setupTestHome(t)
		path := writeConfig(t, dir, testYAML, 0400)

		_, err := LoadWithFile(path)
		require.NoError(t, err)
	})

	t.Run("rejects oversized file", func(t *testing.T) {
		dir := setupTestHome(t)
		big := "# " + strings.Repeat("x", maxConfigFileSize) + "\n"
		path := writeConfig(t, dir, big, 0600)

		_, err := LoadWithFile(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "config file too large")
	})
}

func TestEnsureConfigDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	require.NoError(t, EnsureConfigDir())
	info, err := os.Stat(filepath.Join(home, ".config", "sheetctx"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	if runtime.GOOS != "windows" {
		assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
	}
}
