// Package config loads client settings and per-language server definitions
// from YAML or TOML files and routes files to the server that handles them.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Standard errors returned by the config package.
var (
	// ErrNoCommand indicates a server definition without an executable.
	ErrNoCommand = errors.New("server config missing command")

	// ErrUnknownFormat indicates a config file with an unsupported extension.
	ErrUnknownFormat = errors.New("unknown config file format")
)

// Settings holds diagnostic verbosity flags. They affect logging only,
// never protocol behavior.
type Settings struct {
	// LogPayloads logs full message payloads at debug level.
	LogPayloads bool `yaml:"log_payloads" toml:"log_payloads"`

	// LogStderr forwards the server process's stderr to the client log.
	LogStderr bool `yaml:"log_stderr" toml:"log_stderr"`
}

// ServerConfig defines how to start and reach one language server.
type ServerConfig struct {
	// Command is the server executable.
	Command string `yaml:"command" toml:"command"`

	// Args are command-line arguments.
	Args []string `yaml:"args" toml:"args"`

	// Env are additional environment variables.
	Env map[string]string `yaml:"env" toml:"env"`

	// WorkDir is the working directory for the server process.
	WorkDir string `yaml:"workdir" toml:"workdir"`

	// TCPPort, when nonzero, connects over TCP instead of stdio.
	TCPPort int `yaml:"tcp_port" toml:"tcp_port"`

	// LanguageIDs this server handles (e.g. "go").
	LanguageIDs []string `yaml:"languages" toml:"languages"`

	// FilePatterns this server handles, as doublestar globs
	// (e.g. "**/*.go", "go.mod").
	FilePatterns []string `yaml:"file_patterns" toml:"file_patterns"`

	// InitializationOptions are sent during the initialize handshake.
	InitializationOptions map[string]any `yaml:"initialization_options" toml:"initialization_options"`

	// TimeoutSeconds bounds synchronous requests. Zero means the default.
	TimeoutSeconds int `yaml:"timeout_seconds" toml:"timeout_seconds"`
}

// RequestTimeout returns the request timeout as a duration.
func (sc ServerConfig) RequestTimeout() time.Duration {
	if sc.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(sc.TimeoutSeconds) * time.Second
}

// Matches reports whether this server handles the given file, by language id
// or by file pattern.
func (sc ServerConfig) Matches(path string) bool {
	langID := DetectLanguageID(path)
	if langID != "" {
		for _, id := range sc.LanguageIDs {
			if id == langID {
				return true
			}
		}
	}

	slashed := filepath.ToSlash(path)
	base := filepath.Base(path)
	for _, pattern := range sc.FilePatterns {
		if matched, err := doublestar.Match(pattern, slashed); err == nil && matched {
			return true
		}
		if matched, err := doublestar.Match(pattern, base); err == nil && matched {
			return true
		}
	}
	return false
}

// Config is the full client configuration.
type Config struct {
	Settings Settings                `yaml:"settings" toml:"settings"`
	Servers  map[string]ServerConfig `yaml:"servers" toml:"servers"`
}

// Load reads a configuration file. The format is chosen by extension:
// .yaml/.yml or .toml.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse yaml config: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse toml config: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, filepath.Ext(path))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that every server definition is usable.
func (c *Config) Validate() error {
	for name, sc := range c.Servers {
		if sc.Command == "" {
			return fmt.Errorf("server %q: %w", name, ErrNoCommand)
		}
	}
	return nil
}

// ServerForFile returns the name and config of the server that handles the
// given file. Servers are checked in name order so the result is stable when
// more than one matches.
func (c *Config) ServerForFile(path string) (string, ServerConfig, bool) {
	names := make([]string, 0, len(c.Servers))
	for name := range c.Servers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if sc := c.Servers[name]; sc.Matches(path) {
			return name, sc, true
		}
	}
	return "", ServerConfig{}, false
}

// langIDByExt maps file extensions to LSP language identifiers.
var langIDByExt = map[string]string{
	".go":   "go",
	".py":   "python",
	".rs":   "rust",
	".js":   "javascript",
	".jsx":  "javascriptreact",
	".ts":   "typescript",
	".tsx":  "typescriptreact",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".hpp":  "cpp",
	".java": "java",
	".rb":   "ruby",
	".php":  "php",
	".lua":  "lua",
	".sh":   "shellscript",
	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
	".toml": "toml",
	".md":   "markdown",
	".html": "html",
	".css":  "css",
}

// DetectLanguageID returns the LSP language identifier for a file path, or
// the empty string when unknown.
func DetectLanguageID(path string) string {
	return langIDByExt[strings.ToLower(filepath.Ext(path))]
}
