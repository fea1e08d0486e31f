package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Workflow    WorkflowConfig  `toml:"workflow"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Platform    PlatformConfig  `toml:"platform"`
	Gemini      GeminiConfig    `toml:"gemini"`
	Claude      ClaudeConfig    `toml:"claude"`
	LLM         LLMConfig       `toml:"llm"`
	WebSocket   WebSocketConfig `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gt=0,lte=65535"`
	Host string `toml:"host" validate:"required"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// WorkflowConfig tunes the workflow engine and its supervisor sweep.
// Durations are strings parsed with time.ParseDuration.
type WorkflowConfig struct {
	MaxConcurrentJobs int    `toml:"max_concurrent_jobs" validate:"gt=0"` // admission-control cap on active jobs
	SweepInterval     string `toml:"sweep_interval"`                      // supervisor sweep period
	StaleThreshold    string `toml:"stale_threshold"`                     // force-fail jobs with no updates past this
	MaxJobAge         string `toml:"max_job_age"`                         // absolute per-job timeout
	MaxRetries        int    `toml:"max_retries" validate:"gte=0"`        // failures before a job goes terminal
	RetryBaseDelay    string `toml:"retry_base_delay"`                    // base for exponential backoff
	RetryMaxDelay     string `toml:"retry_max_delay"`                     // backoff cap
	CompletedGrace    string `toml:"completed_grace"`                     // archival delay for completed jobs
	FailedGrace       string `toml:"failed_grace"`                        // archival delay for failed jobs
	CancelledGrace    string `toml:"cancelled_grace"`                     // archival delay for cancelled jobs
}

// SchedulerConfig drives the periodic job search and daily counters.
type SchedulerConfig struct {
	SearchSchedule     string `toml:"search_schedule"` // cron expression for the job search sweep
	MaxDailyApps       int    `toml:"max_daily_apps" validate:"gte=0"`
	MaxJobsPerSearch   int    `toml:"max_jobs_per_search" validate:"gt=0"`
	MessagePollingTime string `toml:"message_polling"` // interval between message checks
}

// PlatformConfig describes the gig platform endpoints the collaborators
// talk to. The engine itself never touches these.
type PlatformConfig struct {
	BaseURL        string  `toml:"base_url" validate:"required,url"`
	JobsPath       string  `toml:"jobs_path"`
	UserAgent      string  `toml:"user_agent"`
	RequestTimeout string  `toml:"request_timeout"`
	RateLimit      string  `toml:"rate_limit"` // minimum delay between requests
	MinPayment     float64 `toml:"min_payment"`
}

// GeminiConfig contains Gemini LLM provider settings
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Timeout     string  `toml:"timeout"`
	Temperature float32 `toml:"temperature"`
}

// ClaudeConfig contains Claude LLM provider settings
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Timeout     string  `toml:"timeout"`
	Temperature float32 `toml:"temperature"`
}

// LLMProvider identifies which LLM backend to use
type LLMProvider string

const (
	LLMProviderClaude LLMProvider = "claude"
	LLMProviderGemini LLMProvider = "gemini"
	LLMProviderNone   LLMProvider = "none"
)

type LLMConfig struct {
	Provider LLMProvider `toml:"provider"` // "claude", "gemini" or "none"
}

// WebSocketConfig controls the operator event stream.
type WebSocketConfig struct {
	MinLevel          string            `toml:"min_level"`
	AllowedEvents     []string          `toml:"allowed_events"`     // whitelist; empty = allow all
	ThrottleIntervals map[string]string `toml:"throttle_intervals"` // per-event-type rate limits
}

// NewDefaultConfig returns the baseline configuration. Values mirror the
// original platform constants: 60s sweep, 30m staleness, 24h job age,
// 3 retries with 5m base backoff capped at 1h.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8177,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data/laboro",
				ResetOnStartup: false,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Workflow: WorkflowConfig{
			MaxConcurrentJobs: 5,
			SweepInterval:     "60s",
			StaleThreshold:    "30m",
			MaxJobAge:         "24h",
			MaxRetries:        3,
			RetryBaseDelay:    "5m",
			RetryMaxDelay:     "1h",
			CompletedGrace:    "1h",
			FailedGrace:       "2h",
			CancelledGrace:    "30m",
		},
		Scheduler: SchedulerConfig{
			SearchSchedule:     "*/5 * * * *", // every 5 minutes
			MaxDailyApps:       10,
			MaxJobsPerSearch:   5,
			MessagePollingTime: "30s",
		},
		Platform: PlatformConfig{
			BaseURL:        "https://app.shufti.jp",
			JobsPath:       "/jobs/search",
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			RequestTimeout: "30s",
			RateLimit:      "2s",
			MinPayment:     500,
		},
		Gemini: GeminiConfig{
			APIKey:      "",
			Model:       "gemini-3-flash-preview",
			Timeout:     "5m",
			Temperature: 0.7,
		},
		Claude: ClaudeConfig{
			APIKey:      "",
			Model:       "claude-haiku-3-5-20241022",
			MaxTokens:   8192,
			Timeout:     "5m",
			Temperature: 0.7,
		},
		LLM: LLMConfig{
			Provider: LLMProviderNone,
		},
		WebSocket: WebSocketConfig{
			MinLevel:      "info",
			AllowedEvents: []string{},
			ThrottleIntervals: map[string]string{
				"job_transition": "500ms",
			},
		},
	}
}

// LoadFromFiles loads configuration with priority: default -> file1 -> file2 -> ... -> env
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks structural constraints and that every duration field parses.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := map[string]string{
		"workflow.sweep_interval":   c.Workflow.SweepInterval,
		"workflow.stale_threshold":  c.Workflow.StaleThreshold,
		"workflow.max_job_age":      c.Workflow.MaxJobAge,
		"workflow.retry_base_delay": c.Workflow.RetryBaseDelay,
		"workflow.retry_max_delay":  c.Workflow.RetryMaxDelay,
		"workflow.completed_grace":  c.Workflow.CompletedGrace,
		"workflow.failed_grace":     c.Workflow.FailedGrace,
		"workflow.cancelled_grace":  c.Workflow.CancelledGrace,
		"scheduler.message_polling": c.Scheduler.MessagePollingTime,
		"platform.request_timeout":  c.Platform.RequestTimeout,
		"platform.rate_limit":       c.Platform.RateLimit,
	}
	for field, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %q: %w", field, value, err)
		}
	}

	switch c.LLM.Provider {
	case LLMProviderClaude, LLMProviderGemini, LLMProviderNone:
	default:
		return fmt.Errorf("invalid llm provider: %s (must be claude, gemini or none)", c.LLM.Provider)
	}

	return nil
}

// Duration parses a duration config field that Validate has already checked.
func Duration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("LABORO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("LABORO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("LABORO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if badgerPath := os.Getenv("LABORO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if level := os.Getenv("LABORO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if maxJobs := os.Getenv("LABORO_MAX_CONCURRENT_JOBS"); maxJobs != "" {
		if n, err := strconv.Atoi(maxJobs); err == nil {
			config.Workflow.MaxConcurrentJobs = n
		}
	}

	if baseURL := os.Getenv("LABORO_PLATFORM_URL"); baseURL != "" {
		config.Platform.BaseURL = baseURL
	}

	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" && config.Claude.APIKey == "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" && config.Gemini.APIKey == "" {
		config.Gemini.APIKey = apiKey
	}
	if provider := os.Getenv("LABORO_LLM_PROVIDER"); provider != "" {
		config.LLM.Provider = LLMProvider(provider)
	}
}
