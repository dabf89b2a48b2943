package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Complete-Coding/KG-AI-Benchmark-sub000/pkg/telemetry"
)

// Default configuration values exported for documentation and validation
const (
	DefaultEndpointBaseURL = "http://localhost:11434/v1"
	DefaultModelID         = "llama3.1:8b-instruct"
	DefaultTemperature     = 0.2
	DefaultTopP            = 0.9
	DefaultMaxOutputTokens = 1024
	DefaultRequestTimeout  = 120 * time.Second
	DefaultAPIBind         = "127.0.0.1:8090"
	DefaultExcerptLimit    = 40
	DefaultPollInterval    = 5 * time.Minute
)

// Config represents the complete engine configuration
type Config struct {
	Storage     StorageConfig         `yaml:"storage"`
	API         APIConfig             `yaml:"api"`
	Defaults    ProfileDefaults       `yaml:"defaults"`
	Dataset     DatasetConfig         `yaml:"dataset"`
	Discovery   DiscoveryConfig       `yaml:"discovery"`
	Relay       RelayConfig           `yaml:"relay"`
	Diagnostics DiagnosticsConfig     `yaml:"diagnostics"`
	Logging     LoggingConfig         `yaml:"logging"`
	Tracing     TracingConfig         `yaml:"tracing"`
}

// StorageConfig configures the SQLite store
type StorageConfig struct {
	Path string `yaml:"path"` // SQLite DSN or file path
}

// APIConfig configures the HTTP boundary consumed by the dashboard
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
}

// ProfileDefaults are applied to model profiles that omit generation settings
type ProfileDefaults struct {
	EndpointBaseURL  string        `yaml:"endpoint_base_url"`
	APIKey           string        `yaml:"api_key"`
	ModelID          string        `yaml:"model_id"`
	Temperature      float64       `yaml:"temperature"`
	TopP             float64       `yaml:"top_p"`
	FrequencyPenalty float64       `yaml:"frequency_penalty"`
	PresencePenalty  float64       `yaml:"presence_penalty"`
	MaxOutputTokens  int           `yaml:"max_output_tokens"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	SystemPrompt     string        `yaml:"system_prompt"`
}

// DatasetConfig points at the question bank and topology catalog files
type DatasetConfig struct {
	QuestionsPath string `yaml:"questions_path"`
	CatalogPath   string `yaml:"catalog_path"`
	ExcerptLimit  int    `yaml:"excerpt_limit"` // max catalog entries per classification prompt
}

// DiscoveryConfig controls background model-discovery polling
type DiscoveryConfig struct {
	Enabled      bool          `yaml:"enabled"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// RelayConfig enables republishing progress events to NATS
type RelayConfig struct {
	Enabled bool                  `yaml:"enabled"`
	NATS    telemetry.RelayConfig `yaml:"nats"`
}

// DiagnosticsConfig controls network logging and tracing of endpoint traffic
type DiagnosticsConfig struct {
	NetworkLogsEnabled bool `yaml:"network_logs_enabled"`
}

// LoggingConfig controls the structured JSONL logs
type LoggingConfig struct {
	Dir      string `yaml:"dir"`
	MinLevel string `yaml:"min_level"`
}

// TracingConfig controls OpenTelemetry stage spans
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads configuration from a YAML file, applying defaults and env overrides.
// A missing file is not an error; defaults are used.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".kgbench")
	return &Config{
		Storage: StorageConfig{Path: filepath.Join(base, "kgbench.db")},
		API:     APIConfig{Enabled: true, Bind: DefaultAPIBind},
		Defaults: ProfileDefaults{
			EndpointBaseURL: DefaultEndpointBaseURL,
			ModelID:         DefaultModelID,
			Temperature:     DefaultTemperature,
			TopP:            DefaultTopP,
			MaxOutputTokens: DefaultMaxOutputTokens,
			RequestTimeout:  DefaultRequestTimeout,
			SystemPrompt:    "You are a precise exam-taking assistant. Answer strictly in the requested JSON format.",
		},
		Dataset: DatasetConfig{
			QuestionsPath: filepath.Join(base, "questions.yaml"),
			CatalogPath:   filepath.Join(base, "topology.yaml"),
			ExcerptLimit:  DefaultExcerptLimit,
		},
		Discovery: DiscoveryConfig{Enabled: true, PollInterval: DefaultPollInterval},
		Logging:   LoggingConfig{Dir: filepath.Join(base, "logs"), MinLevel: "info"},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KGBENCH_DB_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("KGBENCH_API_BIND"); v != "" {
		cfg.API.Bind = v
	}
	if v := os.Getenv("KGBENCH_ENDPOINT_URL"); v != "" {
		cfg.Defaults.EndpointBaseURL = v
	}
	if v := os.Getenv("KGBENCH_API_KEY"); v != "" {
		cfg.Defaults.APIKey = v
	}
	if v := os.Getenv("KGBENCH_MODEL_ID"); v != "" {
		cfg.Defaults.ModelID = v
	}
	if v := os.Getenv("KGBENCH_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Defaults.RequestTimeout = d
		}
	}
	if v := os.Getenv("KGBENCH_NETWORK_LOGS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Diagnostics.NetworkLogsEnabled = b
		}
	}
	if v := os.Getenv("KGBENCH_NATS_URL"); v != "" {
		cfg.Relay.Enabled = true
		cfg.Relay.NATS.URL = v
	}
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if c.Defaults.RequestTimeout <= 0 {
		return fmt.Errorf("defaults.request_timeout must be positive")
	}
	if c.Defaults.MaxOutputTokens <= 0 {
		return fmt.Errorf("defaults.max_output_tokens must be positive")
	}
	if c.Dataset.ExcerptLimit <= 0 {
		c.Dataset.ExcerptLimit = DefaultExcerptLimit
	}
	if c.Discovery.PollInterval <= 0 {
		c.Discovery.PollInterval = DefaultPollInterval
	}
	return nil
}
