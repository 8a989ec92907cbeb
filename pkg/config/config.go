package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/auth"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/batch"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/notify"
	"github.com/Kevster1337/deepinstinct-rest-api-wrapper/pkg/readiness"
)

// DefaultPath is read when no --config flag is given.
const DefaultPath = "dictl.yaml"

type Config struct {
	Console   ConsoleConfig    `yaml:"console"`
	Readiness readiness.Config `yaml:"readiness"`
	Forwarder ForwarderConfig  `yaml:"forwarder"`
	Batch     BatchConfig      `yaml:"batch"`
	Export    ExportConfig     `yaml:"export"`
	Health    HealthConfig     `yaml:"health"`
	Logging   LoggingConfig    `yaml:"logging"`
	Tracing   TracingConfig    `yaml:"tracing"`
}

type ConsoleConfig struct {
	// URL may be a bare FQDN such as acme.customers.deepinstinctweb.com.
	URL              string `yaml:"url"`
	APIKey           string `yaml:"api_key"`
	APIKeyFile       string `yaml:"api_key_file"`
	RequestTimeout   int    `yaml:"request_timeout_s"`
	RetryInitialMs   int    `yaml:"retry_initial_ms"`
	RetryMaxMs       int    `yaml:"retry_max_ms"`
	RetryMaxAttempts int    `yaml:"retry_max_attempts"`
}

type ForwarderConfig struct {
	Interval          int      `yaml:"interval_s"`
	StartAfterEventID int64    `yaml:"start_after_event_id"`
	WebhookURL        string   `yaml:"webhook_url"`
	WebhookTimeout    int      `yaml:"webhook_timeout_s"`
	StripFields       []string `yaml:"strip_fields"`
	CloseForwarded    bool     `yaml:"close_forwarded"`
	ArchiveForwarded  bool     `yaml:"archive_forwarded"`
	StatusAddr        string   `yaml:"status_addr"`
	StatusRateLimit   int      `yaml:"status_rate_limit"`
}

type BatchConfig struct {
	Size int `yaml:"size"`
}

type ExportConfig struct {
	Dir string `yaml:"dir"`
}

type HealthConfig struct {
	TimeDriftMaxS int `yaml:"time_drift_max_s"`
}

type LoggingConfig struct {
	Level         string `yaml:"level"`
	JSON          bool   `yaml:"json"`
	HumanReadable bool   `yaml:"human_readable"`
}

type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
	LogSpans    bool    `yaml:"log_spans"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Console: ConsoleConfig{
			RequestTimeout:   30,
			RetryInitialMs:   500,
			RetryMaxMs:       5000,
			RetryMaxAttempts: 5,
		},
		Readiness: readiness.DefaultConfig(),
		Forwarder: ForwarderConfig{
			Interval:        300,
			WebhookTimeout:  10,
			StripFields:     append([]string(nil), notify.DefaultStripFields...),
			StatusRateLimit: 60,
		},
		Batch:  BatchConfig{Size: batch.DefaultSize},
		Export: ExportConfig{Dir: "exports"},
		Health: HealthConfig{TimeDriftMaxS: 120},
		Logging: LoggingConfig{
			Level:         "info",
			HumanReadable: true,
		},
		Tracing: TracingConfig{SampleRatio: 1},
	}
}

// Load reads config from file with env var overrides. A missing file is not
// an error; flags are applied by the caller before Validate.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		}
	}

	if url := os.Getenv("DICTL_CONSOLE_URL"); url != "" {
		cfg.Console.URL = url
	}
	if key := os.Getenv("DICTL_API_KEY"); key != "" {
		cfg.Console.APIKey = key
	}
	if keyFile := os.Getenv("DICTL_API_KEY_FILE"); keyFile != "" {
		cfg.Console.APIKeyFile = keyFile
	}
	if level := os.Getenv("DICTL_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if cfg.Console.APIKey == "" && cfg.Console.APIKeyFile == "" {
		cfg.Console.APIKeyFile = defaultKeyPath(path)
	}

	return cfg, nil
}

// defaultKeyPath looks for api.key next to the config file.
func defaultKeyPath(configPath string) string {
	if configPath == "" {
		return ""
	}
	p := filepath.Join(filepath.Dir(configPath), "api.key")
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

// APIKey resolves the inline key or the key file.
func (c *Config) APIKey() (auth.APIKey, error) {
	return auth.LoadAPIKey(c.Console.APIKey, c.Console.APIKeyFile)
}

// Validate checks what every command needs and fills in zero values.
// Readiness thresholds are only checked by the readiness command.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Console.URL) == "" {
		return ErrMissingConsoleURL
	}
	if c.Batch.Size <= 0 {
		return ErrInvalidBatchSize
	}
	if c.Forwarder.Interval < 1 {
		return ErrInvalidInterval
	}
	if c.Console.RequestTimeout <= 0 {
		c.Console.RequestTimeout = 30
	}
	if c.Console.RetryInitialMs <= 0 {
		c.Console.RetryInitialMs = 500
	}
	if c.Console.RetryMaxMs <= 0 {
		c.Console.RetryMaxMs = 5000
	}
	if c.Console.RetryMaxAttempts < 0 {
		c.Console.RetryMaxAttempts = 5
	}
	if c.Console.RetryMaxMs < c.Console.RetryInitialMs {
		c.Console.RetryMaxMs = c.Console.RetryInitialMs
	}
	if c.Forwarder.WebhookTimeout <= 0 {
		c.Forwarder.WebhookTimeout = 10
	}
	if c.Export.Dir == "" {
		c.Export.Dir = "."
	}
	if c.Tracing.SampleRatio <= 0 || c.Tracing.SampleRatio > 1 {
		c.Tracing.SampleRatio = 1
	}
	return nil
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Console.RequestTimeout) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Forwarder.Interval) * time.Second
}

// ForwardOps are the bulk transitions applied to forwarded events.
func (c *Config) ForwardOps() []batch.Op {
	var ops []batch.Op
	if c.Forwarder.CloseForwarded {
		ops = append(ops, batch.Close)
	}
	if c.Forwarder.ArchiveForwarded {
		ops = append(ops, batch.Archive)
	}
	return ops
}

var (
	ErrMissingConsoleURL = &Error{"console URL is required (console.url or DICTL_CONSOLE_URL)"}
	ErrInvalidBatchSize  = &Error{"batch size must be positive"}
	ErrInvalidInterval   = &Error{"forwarder interval must be >= 1s"}
)

type Error struct {
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
