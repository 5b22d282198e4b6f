// Package config loads process configuration for the RLM runtime: provider
// credentials for the root/sub/judge language models, engine budgets, sandbox
// limits, and the optional durability backends (Postgres/Redis/Kafka/Qdrant).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pterm/pterm"
	"gopkg.in/yaml.v3"
)

// AnthropicPromptCacheConfig controls Anthropic prompt-cache breakpoints.
type AnthropicPromptCacheConfig struct {
	Enabled       bool `yaml:"enabled"`
	CacheSystem   bool `yaml:"cache_system"`
	CacheTools    bool `yaml:"cache_tools"`
	CacheMessages bool `yaml:"cache_messages"`
}

// AnthropicConfig configures the Anthropic provider client.
type AnthropicConfig struct {
	APIKey      string                     `yaml:"api_key"`
	BaseURL     string                     `yaml:"base_url,omitempty"`
	Model       string                     `yaml:"model"`
	PromptCache AnthropicPromptCacheConfig `yaml:"prompt_cache,omitempty"`
	ExtraParams map[string]any             `yaml:"extra_params,omitempty"`
}

// OpenAIConfig configures the OpenAI-compatible provider client.
type OpenAIConfig struct {
	APIKey      string         `yaml:"api_key"`
	BaseURL     string         `yaml:"base_url,omitempty"`
	Model       string         `yaml:"model"`
	API         string         `yaml:"api,omitempty"` // "completions" | "responses"
	LogPayloads bool           `yaml:"log_payloads,omitempty"`
	ExtraParams map[string]any `yaml:"extra_params,omitempty"`
}

// GoogleConfig configures the Gemini provider client.
type GoogleConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model"`
	Timeout int    `yaml:"timeout_seconds,omitempty"`
}

// LLMClientConfig names which provider backs a given role (root/sub/judge)
// plus that provider's credentials.
type LLMClientConfig struct {
	Provider  string          `yaml:"provider"` // "anthropic" | "openai" | "google" | "local"
	Anthropic AnthropicConfig `yaml:"anthropic,omitempty"`
	OpenAI    OpenAIConfig    `yaml:"openai,omitempty"`
	Google    GoogleConfig    `yaml:"google,omitempty"`
}

// EngineConfig carries the RLM loop's default budgets and sandbox limits.
type EngineConfig struct {
	MaxIterations     int `yaml:"max_iterations"`
	MaxLLMCalls       int `yaml:"max_llm_calls"`
	StdoutTruncateLen int `yaml:"stdout_truncate_len"`
	BatchedWorkers    int `yaml:"batched_workers"`
	LMTimeoutSeconds  int `yaml:"lm_timeout_seconds"`
	SparqlTimeoutSecs int `yaml:"sparql_timeout_seconds"`
}

// DBConfig carries DSNs for the optional durability backends. Each is
// disabled (nil behavior) when its DSN is empty.
type DBConfig struct {
	PostgresDSN   string `yaml:"postgres_dsn,omitempty"`
	RedisDSN      string `yaml:"redis_dsn,omitempty"`
	KafkaBrokers  string `yaml:"kafka_brokers,omitempty"` // comma-separated
	KafkaTopic    string `yaml:"kafka_topic,omitempty"`
	QdrantDSN     string `yaml:"qdrant_dsn,omitempty"`
	QdrantColl    string `yaml:"qdrant_collection,omitempty"`
	QdrantDim     int    `yaml:"qdrant_dimensions,omitempty"`
	QdrantMetric  string `yaml:"qdrant_metric,omitempty"`
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// Config is the root process configuration.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	LogPath   string          `yaml:"log_path,omitempty"`
	RootLLM   LLMClientConfig `yaml:"root_llm"`
	SubLLM    LLMClientConfig `yaml:"sub_llm,omitempty"`
	JudgeLLM  LLMClientConfig `yaml:"judge_llm,omitempty"`
	Engine    EngineConfig    `yaml:"engine"`
	DB        DBConfig        `yaml:"db,omitempty"`
	OTel      TelemetryConfig `yaml:"otel,omitempty"`
	// LLMClient is kept for provider clients built directly against a single
	// provider config (e.g. the harness judge-only invocation path).
	LLMClient LLMClientConfig `yaml:"-"`
}

func defaults() Config {
	return Config{
		LogLevel: "info",
		Engine: EngineConfig{
			MaxIterations:     12,
			MaxLLMCalls:       20,
			StdoutTruncateLen: 10000,
			BatchedWorkers:    8,
			LMTimeoutSeconds:  60,
			SparqlTimeoutSecs: 30,
		},
		OTel: TelemetryConfig{ServiceName: "ontorlm"},
	}
}

// Load reads configuration from an optional YAML file, then overlays
// environment variables (provider keys, DSNs), matching the teacher's
// convention of YAML-as-base, env-as-override. A .env file in the working
// directory is loaded first via godotenv when present.
func Load(yamlPath string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			pterm.Error.Printf("error reading config file: %v\n", err)
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			pterm.Error.Printf("error unmarshaling config: %v\n", err)
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.RootLLM.Provider == "" {
		pterm.Warning.Println("no root_llm.provider configured, defaulting to anthropic")
		cfg.RootLLM.Provider = "anthropic"
	}
	if cfg.SubLLM.Provider == "" {
		cfg.SubLLM = cfg.RootLLM
	}
	if cfg.JudgeLLM.Provider == "" {
		cfg.JudgeLLM = cfg.RootLLM
	}
	cfg.LLMClient = cfg.RootLLM

	pterm.Success.Println("configuration loaded")
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.RootLLM.Anthropic.APIKey = v
		cfg.SubLLM.Anthropic.APIKey = v
		cfg.JudgeLLM.Anthropic.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.RootLLM.OpenAI.APIKey = v
		cfg.SubLLM.OpenAI.APIKey = v
		cfg.JudgeLLM.OpenAI.APIKey = v
	}
	if v := os.Getenv("GOOGLE_API_KEY"); v != "" {
		cfg.RootLLM.Google.APIKey = v
		cfg.SubLLM.Google.APIKey = v
		cfg.JudgeLLM.Google.APIKey = v
	}
	if v := os.Getenv("ONTORLM_POSTGRES_DSN"); v != "" {
		cfg.DB.PostgresDSN = v
	}
	if v := os.Getenv("ONTORLM_REDIS_DSN"); v != "" {
		cfg.DB.RedisDSN = v
	}
	if v := os.Getenv("ONTORLM_KAFKA_BROKERS"); v != "" {
		cfg.DB.KafkaBrokers = v
	}
	if v := os.Getenv("ONTORLM_QDRANT_DSN"); v != "" {
		cfg.DB.QdrantDSN = v
	}
	if v := os.Getenv("ONTORLM_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.MaxIterations = n
		}
	}
	if v := os.Getenv("ONTORLM_MAX_LLM_CALLS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.MaxLLMCalls = n
		}
	}
}

// KafkaBrokerList splits the comma-separated broker list.
func (d DBConfig) KafkaBrokerList() []string {
	if strings.TrimSpace(d.KafkaBrokers) == "" {
		return nil
	}
	parts := strings.Split(d.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
