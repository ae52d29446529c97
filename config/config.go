// Package config loads runtime configuration from the environment with an
// optional YAML overlay for tuning knobs that do not belong in env vars.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	// AnthropicAPIKey authenticates against the Claude API.
	AnthropicAPIKey string `yaml:"-"`

	// Model answers conversational turns; ExtractionModel runs fact
	// extraction off the hot path.
	Model           string `yaml:"model"`
	ExtractionModel string `yaml:"extractionModel"`
	MaxTokens       int64  `yaml:"maxTokens"`

	// DataDir holds the conversation state, the fact snapshot, and the
	// vector store.
	DataDir string `yaml:"dataDir"`

	// ListenAddr is the WebSocket server bind address.
	ListenAddr string `yaml:"listenAddr"`

	// CoalesceWindow is the rapid-fire debounce window. In YAML it is a
	// duration string like "3s"; ApplyFile parses it separately because
	// time.Duration has no native YAML form.
	CoalesceWindow time.Duration `yaml:"-"`

	// Embedder selects the embedding backend: "mock" or "onnx".
	Embedder       string `yaml:"embedder"`
	ONNXModelPath  string `yaml:"onnxModelPath"`
	TokenizerPath  string `yaml:"tokenizerPath"`
	EmbedCacheSize int64  `yaml:"embedCacheSize"`

	// Retrieval tuning. Zero values mean library defaults.
	MinSimilarity float64 `yaml:"minSimilarity"`
	RecencyWeight float64 `yaml:"recencyWeight"`
	DecayRate     float64 `yaml:"decayRate"`

	// Logging.
	LogLevel string `yaml:"logLevel"`
	LogFile  string `yaml:"logFile"`
}

// FromEnv builds a Config from environment variables with defaults for
// everything except the API key.
func FromEnv() (*Config, error) {
	cfg := &Config{
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		Model:           envOr("AIDE_MODEL", ""),
		ExtractionModel: envOr("AIDE_EXTRACTION_MODEL", ""),
		DataDir:         envOr("AIDE_DATA_DIR", "./data"),
		ListenAddr:      envOr("AIDE_LISTEN_ADDR", ":8780"),
		Embedder:        envOr("AIDE_EMBEDDER", "mock"),
		ONNXModelPath:   os.Getenv("AIDE_ONNX_MODEL"),
		TokenizerPath:   os.Getenv("AIDE_TOKENIZER"),
		LogLevel:        envOr("AIDE_LOG_LEVEL", "info"),
		LogFile:         os.Getenv("AIDE_LOG_FILE"),
		CoalesceWindow:  0,
	}

	if v := os.Getenv("AIDE_MAX_TOKENS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("AIDE_MAX_TOKENS: %w", err)
		}
		cfg.MaxTokens = n
	}
	if v := os.Getenv("AIDE_COALESCE_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("AIDE_COALESCE_WINDOW: %w", err)
		}
		cfg.CoalesceWindow = d
	}

	if cfg.AnthropicAPIKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is required")
	}
	return cfg, nil
}

// ApplyFile overlays tuning values from a YAML file onto cfg. Only fields
// present in the file change; a missing file is an error, since the caller
// asked for it explicitly.
func (c *Config) ApplyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	// Durations take the same "3s" notation as the env path.
	var durations struct {
		CoalesceWindow string `yaml:"coalesceWindow"`
	}
	if err := yaml.Unmarshal(data, &durations); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if durations.CoalesceWindow != "" {
		d, err := time.ParseDuration(durations.CoalesceWindow)
		if err != nil {
			return fmt.Errorf("coalesceWindow: %w", err)
		}
		c.CoalesceWindow = d
	}
	return nil
}

// StatePath is the conversation recovery document location.
func (c *Config) StatePath() string { return c.DataDir + "/conversation.json" }

// FactsPath is the fact snapshot location.
func (c *Config) FactsPath() string { return c.DataDir + "/facts.json" }

// VectorPath is the chromem persistence directory.
func (c *Config) VectorPath() string { return c.DataDir + "/vectors" }

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
