package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for transform-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (API keys, connection strings) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// BigQuery configuration
	BigQuery BigQueryConfig `yaml:"bigquery"`

	// LLM provider configuration
	LLM LLMConfig `yaml:"llm"`

	// Pipeline behavior
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Task store backend
	TaskStore TaskStoreConfig `yaml:"task_store"`
}

// BigQueryConfig holds the Google Cloud project used for dry-run
// validation and sample fetching.
type BigQueryConfig struct {
	ProjectID string `yaml:"project_id" env:"BIGQUERY_PROJECT_ID" env-default:""`
}

// LLMConfig selects the text generation provider and model.
type LLMConfig struct {
	Provider string `yaml:"provider" env:"LLM_PROVIDER" env-default:"gemini"`
	Model    string `yaml:"model" env:"LLM_MODEL" env-default:"gemini-2.5-pro"`
	APIKey   string `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	Endpoint string `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:""`
}

// PipelineConfig tunes the transformation pipeline.
type PipelineConfig struct {
	// MaxFixAttempts is the number of fix rounds after a failed validation.
	MaxFixAttempts int `yaml:"max_fix_attempts" env:"PIPELINE_MAX_FIX_ATTEMPTS" env-default:"3"`
	// TimeoutMinutes bounds a single end-to-end pipeline run.
	TimeoutMinutes int `yaml:"timeout_minutes" env:"PIPELINE_TIMEOUT_MINUTES" env-default:"10"`
	// SchemaPath points at the destination schema definition.
	SchemaPath string `yaml:"schema_path" env:"PIPELINE_SCHEMA_PATH" env-default:"schema.json"`
}

// TaskStoreConfig selects and tunes the task store backend.
type TaskStoreConfig struct {
	// Backend is "memory" or "postgres".
	Backend string `yaml:"backend" env:"TASK_STORE_BACKEND" env-default:"memory"`
	// DSN is the PostgreSQL connection string for the postgres backend.
	DSN string `yaml:"-" env:"TASK_STORE_DSN"` // Secret - not in YAML
	// TTLHours is how long finished tasks are retained by the memory backend.
	TTLHours int `yaml:"ttl_hours" env:"TASK_STORE_TTL_HOURS" env-default:"24"`
}

// Load reads configuration from the given YAML file with environment
// variable overrides. A missing file is not an error: configuration then
// comes from environment variables and defaults alone. The version
// parameter is injected at build time and set on the returned Config.
func Load(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	err := cleanenv.ReadConfig(path, cfg)
	if errors.Is(err, os.ErrNotExist) {
		err = cleanenv.ReadEnv(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.TaskStore.Backend {
	case "memory":
	case "postgres":
		if c.TaskStore.DSN == "" {
			return fmt.Errorf("task_store backend %q requires TASK_STORE_DSN", c.TaskStore.Backend)
		}
	default:
		return fmt.Errorf("unknown task_store backend %q", c.TaskStore.Backend)
	}

	switch c.LLM.Provider {
	case "gemini", "openai", "anthropic":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}

	if c.Pipeline.MaxFixAttempts < 0 {
		return fmt.Errorf("max_fix_attempts must be non-negative, got %d", c.Pipeline.MaxFixAttempts)
	}

	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return c.BindAddr + ":" + c.Port
}
