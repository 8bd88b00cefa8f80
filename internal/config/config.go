package config

import (
	"fmt"
	"strings"
)

type Config struct {
	Server  ServerConfig
	Engine  EngineConfig
	Storage StorageConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port int
}

type EngineConfig struct {
	Provider      string
	GeminiAPIKey  string
	GeminiModel   string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4700,
		},
		Engine: EngineConfig{
			Provider:      "gemini",
			GeminiModel:   "gemini-3-flash-preview",
			OpenAIBaseURL: "http://localhost:11434/v1",
			OpenAIModel:   "qwen2.5:14b",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.lingobridge.app) and
// secrets fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/lingobridge/config.json
// and secrets fall back to a secrets file under $XDG_DATA_HOME.
//
// Environment variables (LINGO_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), NewKeychain())
}

// Keychain abstracts platform secret storage.
type Keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

func loadWith(b ConfigBackend, kc Keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Engine.GeminiAPIKey == "" {
		if key, err := kc.Get(keychainService, "gemini_api_key"); err == nil && key != "" {
			cfg.Engine.GeminiAPIKey = key
		}
	}
	if cfg.Engine.OpenAIAPIKey == "" {
		if key, err := kc.Get(keychainService, "openai_api_key"); err == nil && key != "" {
			cfg.Engine.OpenAIAPIKey = key
		}
	}

	switch cfg.Engine.Provider {
	case "gemini":
		if cfg.Engine.GeminiAPIKey == "" {
			msg := "missing required config: Gemini API key. " +
				"Set it via environment variable LINGO_GEMINI_API_KEY" +
				apiKeyHint()
			return Config{}, fmt.Errorf("%s", msg)
		}
	case "openai":
		// Local OpenAI-compatible servers (Ollama) accept any key.
	default:
		return Config{}, fmt.Errorf("unknown engine provider %q (expected gemini or openai)", cfg.Engine.Provider)
	}

	return cfg, nil
}

const keychainService = "lingobridge"

// systemKeychain talks to the platform secret store.
type systemKeychain struct{}

// NewKeychain returns the platform secret store.
func NewKeychain() Keychain {
	return systemKeychain{}
}

func (systemKeychain) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (systemKeychain) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}
