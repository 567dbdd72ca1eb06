// Package config provides configuration loading and validation.
//
// A single global Config is loaded once at startup and accessed by value;
// updates never happen at runtime. Secrets (API keys) come from the
// environment, never from the config file.
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"fitcoach/pkg/llm"
	"fitcoach/pkg/logx"
)

// Environment variables consulted for secrets and overrides.
const (
	EnvAnthropicKey = "ANTHROPIC_API_KEY"
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvOllamaHost   = "OLLAMA_HOST"
)

// Defaults applied for fields the config file leaves unset.
const (
	DefaultListenAddr      = ":8080"
	DefaultDBPath          = "fitcoach.db"
	DefaultProvider        = llm.ProviderAnthropic
	DefaultAnthropicModel  = "claude-sonnet-4-20250514"
	DefaultOpenAIModel     = "gpt-4o"
	DefaultOllamaModel     = "llama3.2"
	DefaultContextTTL      = 5 * time.Minute
	DefaultHistoryBudget   = 2048
	DefaultClassifierCache = 128
)

// ModelConfig selects the chat model backend.
type ModelConfig struct {
	Provider string `yaml:"provider"`
	Name     string `yaml:"name"`
	// Host is only used by the ollama provider.
	Host string `yaml:"host"`
	// APIKey is resolved from the environment, never serialized.
	APIKey string `yaml:"-"`
}

// ServerConfig holds the HTTP surface settings.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

// ContextConfig tunes the user context cache.
type ContextConfig struct {
	TTL time.Duration `yaml:"ttl"`
	// HistoryTokenBudget bounds the conversation tail fed into prompts.
	HistoryTokenBudget int `yaml:"history_token_budget"`
}

// ClassifierConfig tunes free-mode message routing.
type ClassifierConfig struct {
	// MemoCapacity bounds the per-session memo table used for voice
	// transcription replays.
	MemoCapacity int `yaml:"memo_capacity"`
}

// Config is the full application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Model      ModelConfig      `yaml:"model"`
	Context    ContextConfig    `yaml:"context"`
	Classifier ClassifierConfig `yaml:"classifier"`
}

//nolint:gochecknoglobals // Intentional singleton pattern for config management
var (
	config *Config
	mu     sync.RWMutex
	logger *logx.Logger
)

func getLogger() *logx.Logger {
	if logger == nil {
		logger = logx.NewLogger("config")
	}
	return logger
}

// LoadConfig reads and validates the YAML config at path, then installs it as
// the global config. An empty path loads pure defaults.
func LoadConfig(path string) error {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyDefaults(cfg)
	resolveSecrets(cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	mu.Lock()
	config = cfg
	mu.Unlock()

	getLogger().Info("configuration loaded: provider=%s model=%s", cfg.Model.Provider, cfg.Model.Name)
	return nil
}

// GetConfig returns the global config by value to prevent external mutation.
func GetConfig() (Config, error) {
	mu.RLock()
	defer mu.RUnlock()
	if config == nil {
		return Config{}, fmt.Errorf("config not initialized - call LoadConfig first")
	}
	return *config, nil
}

// Reset clears the global config. Test use only.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	config = nil
}

func defaultConfig() *Config {
	return &Config{
		Server:  ServerConfig{ListenAddr: DefaultListenAddr},
		Storage: StorageConfig{DBPath: DefaultDBPath},
		Model: ModelConfig{
			Provider: DefaultProvider,
			Name:     DefaultAnthropicModel,
		},
		Context: ContextConfig{
			TTL:                DefaultContextTTL,
			HistoryTokenBudget: DefaultHistoryBudget,
		},
		Classifier: ClassifierConfig{MemoCapacity: DefaultClassifierCache},
	}
}

// applyDefaults fills fields the file left zero-valued.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = DefaultDBPath
	}
	if cfg.Model.Provider == "" {
		cfg.Model.Provider = DefaultProvider
	}
	if cfg.Model.Name == "" {
		switch cfg.Model.Provider {
		case llm.ProviderOpenAI:
			cfg.Model.Name = DefaultOpenAIModel
		case llm.ProviderOllama:
			cfg.Model.Name = DefaultOllamaModel
		default:
			cfg.Model.Name = DefaultAnthropicModel
		}
	}
	if cfg.Context.TTL <= 0 {
		cfg.Context.TTL = DefaultContextTTL
	}
	if cfg.Context.HistoryTokenBudget <= 0 {
		cfg.Context.HistoryTokenBudget = DefaultHistoryBudget
	}
	if cfg.Classifier.MemoCapacity <= 0 {
		cfg.Classifier.MemoCapacity = DefaultClassifierCache
	}
}

// resolveSecrets pulls API keys and host overrides from the environment.
func resolveSecrets(cfg *Config) {
	switch cfg.Model.Provider {
	case llm.ProviderAnthropic:
		cfg.Model.APIKey = os.Getenv(EnvAnthropicKey)
	case llm.ProviderOpenAI:
		cfg.Model.APIKey = os.Getenv(EnvOpenAIKey)
	case llm.ProviderOllama:
		if host := os.Getenv(EnvOllamaHost); host != "" {
			cfg.Model.Host = host
		}
	}
}

// Validate checks the configuration for startup-blocking problems.
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case llm.ProviderAnthropic:
		if c.Model.APIKey == "" {
			return fmt.Errorf("anthropic provider selected but %s is not set", EnvAnthropicKey)
		}
	case llm.ProviderOpenAI:
		if c.Model.APIKey == "" {
			return fmt.Errorf("openai provider selected but %s is not set", EnvOpenAIKey)
		}
	case llm.ProviderOllama:
		// No key required.
	default:
		return fmt.Errorf("unknown model provider: %q", c.Model.Provider)
	}

	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage db_path cannot be empty")
	}
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server listen_addr cannot be empty")
	}
	return nil
}
