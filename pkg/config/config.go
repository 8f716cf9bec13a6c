package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for insight-engine.
// Configuration comes from a YAML file (config.yaml) with environment
// variable overrides. Secrets (API keys, passwords) must only come from
// environment variables.
type Config struct {
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	Database  DatabaseConfig  `yaml:"database"`
	LLM       LLMConfig       `yaml:"llm"`
	Profiler  ProfilerConfig  `yaml:"profiler"`
	Executor  ExecutorConfig  `yaml:"executor"`
	Insights  InsightsConfig  `yaml:"insights"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// DatabaseConfig holds PostgreSQL configuration for the persistence layer.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"insight"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"insight_engine"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

// LLMConfig holds model endpoint configuration for translation and narration.
// Provider selects the backend: "openai" (any OpenAI-compatible endpoint) or
// "anthropic".
type LLMConfig struct {
	Provider    string  `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	Endpoint    string  `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model       string  `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o-mini"`
	APIKey      string  `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	Temperature float64 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0.0"`
}

// ProfilerConfig bounds dataset profiling.
type ProfilerConfig struct {
	MaxRows      int `yaml:"max_rows" env:"PROFILER_MAX_ROWS" env-default:"1000000"`
	MaxColumns   int `yaml:"max_columns" env:"PROFILER_MAX_COLUMNS" env-default:"500"`
	SampleValues int `yaml:"sample_values" env:"PROFILER_SAMPLE_VALUES" env-default:"5"`
}

// ExecutorConfig bounds query evaluation.
type ExecutorConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds" env:"EXECUTOR_TIMEOUT_SECONDS" env-default:"5"`
	MaxResultRows  int `yaml:"max_result_rows" env:"EXECUTOR_MAX_RESULT_ROWS" env-default:"1000"`
	MaxGroups      int `yaml:"max_groups" env:"EXECUTOR_MAX_GROUPS" env-default:"10000"`
}

// InsightsConfig tunes the insight synthesizer.
type InsightsConfig struct {
	MaxInsights          int     `yaml:"max_insights" env:"INSIGHTS_MAX" env-default:"5"`
	CorrelationThreshold float64 `yaml:"correlation_threshold" env:"INSIGHTS_CORRELATION_THRESHOLD" env-default:"0.6"`
	TrendR2Threshold     float64 `yaml:"trend_r2_threshold" env:"INSIGHTS_TREND_R2_THRESHOLD" env-default:"0.3"`
	MinSamples           int     `yaml:"min_samples" env:"INSIGHTS_MIN_SAMPLES" env-default:"4"`
	FreshnessHours       int     `yaml:"freshness_hours" env:"INSIGHTS_FRESHNESS_HOURS" env-default:"24"`
}

// OptimizerConfig tunes the feedback exemplar optimizer.
type OptimizerConfig struct {
	MaxTrainSize int `yaml:"max_train_size" env:"OPTIMIZER_MAX_TRAIN_SIZE" env-default:"1000"`
	MinExamples  int `yaml:"min_examples" env:"OPTIMIZER_MIN_EXAMPLES" env-default:"10"`
}

// JobsConfig bounds background work.
type JobsConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" env:"JOBS_MAX_CONCURRENT" env-default:"5"`
}

// SchedulerConfig holds cron expressions for periodic work.
type SchedulerConfig struct {
	InsightsSpec  string `yaml:"insights_spec" env:"SCHEDULE_INSIGHTS" env-default:"@hourly"`
	OptimizerSpec string `yaml:"optimizer_spec" env:"SCHEDULE_OPTIMIZER" env-default:"@daily"`
	RetentionSpec string `yaml:"retention_spec" env:"SCHEDULE_RETENTION" env-default:"@midnight"`
	RetentionDays int    `yaml:"retention_days" env:"SCHEDULE_RETENTION_DAYS" env-default:"30"`
}

// Load reads configuration from config.yaml with environment variable
// overrides. If the file does not exist, env vars and defaults alone apply.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment config: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Executor.TimeoutSeconds <= 0 {
		return fmt.Errorf("executor timeout_seconds must be positive, got %d", c.Executor.TimeoutSeconds)
	}
	if c.Executor.MaxResultRows <= 0 {
		return fmt.Errorf("executor max_result_rows must be positive, got %d", c.Executor.MaxResultRows)
	}
	if c.Insights.CorrelationThreshold < 0 || c.Insights.CorrelationThreshold > 1 {
		return fmt.Errorf("insights correlation_threshold must be in [0,1], got %g", c.Insights.CorrelationThreshold)
	}
	if c.Optimizer.MaxTrainSize <= 0 {
		return fmt.Errorf("optimizer max_train_size must be positive, got %d", c.Optimizer.MaxTrainSize)
	}
	if c.Jobs.MaxConcurrent <= 0 {
		return fmt.Errorf("jobs max_concurrent must be positive, got %d", c.Jobs.MaxConcurrent)
	}
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("llm provider must be openai or anthropic, got %q", c.LLM.Provider)
	}
	return nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
