package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Research  ResearchConfig  `yaml:"research"`
	Search    SearchConfig    `yaml:"search"`
	JQuants   JQuantsConfig   `yaml:"jquants"`
	NATS      NATSConfig      `yaml:"nats"`
	Store     StoreConfig     `yaml:"store"`
	Web       WebConfig       `yaml:"web"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Vault     VaultConfig     `yaml:"vault"`
}

type LLMConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	// Model roles: Research drives the supervisor and researchers,
	// Compression synthesizes researcher transcripts, Report writes the
	// final report. Compression is typically a smaller model.
	Research    ModelConfig `yaml:"research"`
	Compression ModelConfig `yaml:"compression"`
	Report      ModelConfig `yaml:"report"`
}

type ModelConfig struct {
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

type ResearchConfig struct {
	MaxConcurrentUnits         int `yaml:"max_concurrent_units"`
	MaxResearcherIterations    int `yaml:"max_researcher_iterations"`
	MaxReactToolCalls          int `yaml:"max_react_tool_calls"`
	MaxStructuredOutputRetries int `yaml:"max_structured_output_retries"`
}

type SearchConfig struct {
	Provider string `yaml:"provider"` // "tavily", or empty to disable web search
	APIKey   string `yaml:"api_key"`
	Depth    string `yaml:"depth"`
}

type JQuantsConfig struct {
	BaseURL      string        `yaml:"base_url"`
	RefreshToken string        `yaml:"refresh_token"`
	MinInterval  time.Duration `yaml:"min_interval"`
}

type NATSConfig struct {
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Auth    string `yaml:"auth"`
}

type SchedulerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

type VaultConfig struct {
	Passphrase string `yaml:"passphrase"`
}

func defaults() Config {
	return Config{
		LLM: LLMConfig{
			BaseURL:     "https://api.openai.com/v1",
			Research:    ModelConfig{Model: "gpt-4.1", MaxTokens: 10000},
			Compression: ModelConfig{Model: "gpt-4.1-mini", MaxTokens: 8192},
			Report:      ModelConfig{Model: "gpt-4.1", MaxTokens: 10000},
		},
		Research: ResearchConfig{
			MaxConcurrentUnits:         5,
			MaxResearcherIterations:    6,
			MaxReactToolCalls:          10,
			MaxStructuredOutputRetries: 3,
		},
		Search: SearchConfig{
			Provider: "tavily",
			Depth:    "basic",
		},
		JQuants: JQuantsConfig{
			BaseURL:     "https://api.jquants.com",
			MinInterval: 2 * time.Second,
		},
		NATS: NATSConfig{
			Port:    4222,
			DataDir: "data/nats",
		},
		Store: StoreConfig{
			Path: "data/kabuto.db",
		},
		Web: WebConfig{
			Enabled: true,
			Port:    8080,
		},
		Scheduler: SchedulerConfig{
			PollInterval: 30 * time.Second,
		},
	}
}

func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("KABUTO_CONFIG")
	if path == "" {
		path = "config/kabuto.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults + env
	} else {
		// Expand environment variables in YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	applyEnv(&cfg)

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("KABUTO_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("TAVILY_API_KEY"); v != "" && cfg.Search.APIKey == "" {
		cfg.Search.APIKey = v
	}
	if v := os.Getenv("JQUANTS_REFRESH_TOKEN"); v != "" && cfg.JQuants.RefreshToken == "" {
		cfg.JQuants.RefreshToken = v
	}
	if v := os.Getenv("KABUTO_WEB_PASSWORD"); v != "" {
		cfg.Web.Auth = v
	}
	if v := os.Getenv("KABUTO_WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = port
		}
	}
	if v := os.Getenv("KABUTO_NATS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Port = port
		}
	}
	if v := os.Getenv("KABUTO_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("KABUTO_VAULT_PASSPHRASE"); v != "" {
		cfg.Vault.Passphrase = v
	}
}
