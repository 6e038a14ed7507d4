package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "SHEETCTX_"
)

// subsections lists nested keys per top-level section so that env names can
// be split unambiguously: SHEETCTX_ASSEMBLER_RETRIEVAL_TOP_K maps to
// assembler.retrieval.top_k, not assembler.retrieval_top_k.
var subsections = map[string][]string{
	"assembler": {"section_targets", "section_priorities", "sampling", "retrieval", "schema"},
	"logging":   {"output", "sampling"},
	"telemetry": {"sampling", "metrics", "shutdown"},
}

// Source is a loaded configuration tree: file values overridden by env.
type Source struct {
	k    *koanf.Koanf
	path string
}

// LoadWithFile loads configuration from a YAML file, then overrides it with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SHEETCTX_ASSEMBLER_MAX_CONTEXT_TOKENS, ...)
//  2. YAML config file (~/.config/sheetctx/config.yaml)
//  3. Default()
//
// # Security Considerations
//
// The file must have 0600 or 0400 permissions and be at most 1MB. Only files
// under ~/.config/sheetctx/, /etc/sheetctx/ or the working directory are
// accepted; symlinks are resolved before the check.
//
// # Environment Variable Mapping
//
//	SHEETCTX_ASSEMBLER_MAX_CONTEXT_TOKENS -> assembler.max_context_tokens
//	SHEETCTX_ASSEMBLER_RETRIEVAL_TOP_K    -> assembler.retrieval.top_k
//	SHEETCTX_EMBEDDINGS_API_KEY           -> embeddings.api_key
//	SHEETCTX_LOGGING_LEVEL                -> logging.level
func LoadWithFile(configPath string) (*Config, error) {
	src, err := Open(configPath)
	if err != nil {
		return nil, err
	}
	return src.Config()
}

// Open reads the file at configPath (or the default path when empty) and the
// environment into a Source. A missing file is not an error.
func Open(configPath string) (*Source, error) {
	dirs, err := allowedConfigDirs()
	if err != nil {
		return nil, err
	}
	return open(configPath, dirs)
}

func open(configPath string, allowedDirs []string) (*Source, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "sheetctx", "config.yaml")
	}

	if err := validateConfigPath(configPath, allowedDirs); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		// Validate through the opened descriptor to avoid a TOCTOU race.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(envProvider(), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	return &Source{k: k, path: configPath}, nil
}

// Path returns the file path the source was read from.
func (s *Source) Path() string { return s.path }

// Config unmarshals the whole tree over Default and validates it.
func (s *Source) Config() (*Config, error) {
	cfg := Default()
	if err := s.k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Unmarshal decodes one top-level section into out. Keys absent from the
// source leave the existing values in out untouched, so callers pass a
// struct pre-filled with their defaults.
func (s *Source) Unmarshal(section string, out any) error {
	if err := s.k.Unmarshal(section, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s config: %w", section, err)
	}
	return nil
}

// envProvider maps SHEETCTX_* variables onto koanf keys.
func envProvider() *env.Env {
	return env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, interface{}) {
		if !strings.HasPrefix(key, EnvPrefix) {
			return "", nil
		}
		return envKey(key), value
	})
}

// envKey converts SHEETCTX_SECTION_FIELD into section.field, honouring the
// known subsections of each section.
func envKey(name string) string {
	lower := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	for _, sub := range subsections[section] {
		if rest, found := strings.CutPrefix(field, sub+"_"); found && rest != "" {
			return section + "." + sub + "." + rest
		}
	}
	return section + "." + field
}

// EnsureConfigDir creates ~/.config/sheetctx with 0700 permissions.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	configDir := filepath.Join(home, ".config", "sheetctx")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}
	return nil
}

func allowedConfigDirs() ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	dirs := []string{
		filepath.Join(home, ".config", "sheetctx"),
		"/etc/sheetctx",
	}
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	return dirs, nil
}

// validateConfigPath checks that path lies in one of the allowed directories.
// It runs even when the file does not exist yet.
func validateConfigPath(path string, allowedDirs []string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolvedPath = absPath
	}

	for _, dir := range allowedDirs {
		resolvedDir, err := filepath.EvalSymlinks(dir)
		if err != nil {
			resolvedDir = filepath.Clean(dir)
		}
		rel, err := filepath.Rel(resolvedDir, resolvedPath)
		if err != nil {
			continue
		}
		if rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil
		}
	}
	return fmt.Errorf("config file must be in ~/.config/sheetctx/, /etc/sheetctx/ or the working directory")
}

// validateConfigFileProperties checks permissions and size of an opened file.
func validateConfigFileProperties(info os.FileInfo) error {
	// Windows has a different permission model.
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	return nil
}
