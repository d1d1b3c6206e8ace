package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	DefaultModel           = "openai/gpt-4o-mini"
	DefaultMaxTokens       = 4096
	DefaultTemperature     = 0.3
	DefaultRequestTimeout  = 120
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 18890
	DefaultBufSize         = 100
	DefaultProviderBaseURL = "https://openrouter.ai/api/v1"
	DefaultBackendBaseURL  = "http://localhost:5000"
	DefaultPollInterval    = 5
	DefaultPollTimeout     = 600
)

type Config struct {
	Agent    AgentConfig    `json:"agent"`
	Provider ProviderConfig `json:"provider"`
	Backend  BackendConfig  `json:"backend"`
	Channels ChannelsConfig `json:"channels"`
	Gateway  GatewayConfig  `json:"gateway"`
	Sessions SessionsConfig `json:"sessions"`
	Campaign CampaignConfig `json:"campaign"`
}

type AgentConfig struct {
	Model                 string   `json:"model"`
	Models                []string `json:"models,omitempty"`
	MaxTokens             int      `json:"maxTokens"`
	Temperature           float64  `json:"temperature"`
	RequestTimeoutSeconds int      `json:"requestTimeoutSeconds"`
	PromptPacksDir        string   `json:"promptPacksDir,omitempty"`
}

type ProviderConfig struct {
	APIKey  string `json:"apiKey"`
	BaseURL string `json:"baseUrl,omitempty"`
}

type BackendConfig struct {
	BaseURL string `json:"baseUrl"`
}

type ChannelsConfig struct {
	WebUI    WebUIConfig    `json:"webui"`
	Telegram TelegramConfig `json:"telegram"`
}

type WebUIConfig struct {
	Enabled   bool     `json:"enabled"`
	AllowFrom []string `json:"allowFrom,omitempty"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom,omitempty"`
	Proxy     string   `json:"proxy,omitempty"`
}

type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type SessionsConfig struct {
	DBPath string `json:"dbPath,omitempty"`
}

type CampaignConfig struct {
	PollIntervalSeconds int `json:"pollIntervalSeconds"`
	PollTimeoutSeconds  int `json:"pollTimeoutSeconds"`
}

func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			Model:                 DefaultModel,
			MaxTokens:             DefaultMaxTokens,
			Temperature:           DefaultTemperature,
			RequestTimeoutSeconds: DefaultRequestTimeout,
		},
		Provider: ProviderConfig{
			BaseURL: DefaultProviderBaseURL,
		},
		Backend: BackendConfig{
			BaseURL: DefaultBackendBaseURL,
		},
		Channels: ChannelsConfig{
			WebUI: WebUIConfig{Enabled: true},
		},
		Gateway: GatewayConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Campaign: CampaignConfig{
			PollIntervalSeconds: DefaultPollInterval,
			PollTimeoutSeconds:  DefaultPollTimeout,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".talentclaw")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if key := os.Getenv("TALENTCLAW_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = key
	}
	if url := os.Getenv("TALENTCLAW_BASE_URL"); url != "" {
		cfg.Provider.BaseURL = url
	}
	if url := os.Getenv("TALENTCLAW_BACKEND_URL"); url != "" {
		cfg.Backend.BaseURL = url
	}
	if model := os.Getenv("TALENTCLAW_MODEL"); model != "" {
		cfg.Agent.Model = model
	}
	if token := os.Getenv("TALENTCLAW_TELEGRAM_TOKEN"); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if dbPath := os.Getenv("TALENTCLAW_SESSION_DB_PATH"); dbPath != "" {
		cfg.Sessions.DBPath = dbPath
	}
	if timeout := os.Getenv("TALENTCLAW_REQUEST_TIMEOUT"); timeout != "" {
		if parsed, err := strconv.Atoi(timeout); err == nil && parsed > 0 {
			cfg.Agent.RequestTimeoutSeconds = parsed
		}
	}

	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = DefaultProviderBaseURL
	}
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = DefaultBackendBaseURL
	}
	if cfg.Agent.Model == "" {
		cfg.Agent.Model = DefaultModel
	}
	if cfg.Agent.MaxTokens <= 0 {
		cfg.Agent.MaxTokens = DefaultMaxTokens
	}
	if cfg.Agent.RequestTimeoutSeconds <= 0 {
		cfg.Agent.RequestTimeoutSeconds = DefaultRequestTimeout
	}
	if cfg.Campaign.PollIntervalSeconds <= 0 {
		cfg.Campaign.PollIntervalSeconds = DefaultPollInterval
	}
	if cfg.Campaign.PollTimeoutSeconds <= 0 {
		cfg.Campaign.PollTimeoutSeconds = DefaultPollTimeout
	}

	return cfg, nil
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}
