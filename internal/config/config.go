package config

import (
	"fmt"
	"os"
	"time"

	"github.com/cuongbtq/lecturecast/internal/domain"
	"github.com/cuongbtq/lecturecast/internal/usage"
	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
	Worker   WorkerConfig   `yaml:"worker"`
	Storage  StorageConfig  `yaml:"storage"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	LLM      LLMConfig      `yaml:"llm"`
	TTS      TTSConfig      `yaml:"tts"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Usage    UsageConfig    `yaml:"usage"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// PublicURL prefixes status_url in upload responses; empty means relative URLs
	PublicURL string `yaml:"public_url"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	// AutoMigrate applies the embedded schema at startup
	AutoMigrate bool `yaml:"auto_migrate"`
}

// RabbitMQConfig holds RabbitMQ connection and exchange/queue configuration
type RabbitMQConfig struct {
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	Retry      RetryConfig      `yaml:"retry"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
	Consumer   ConsumerConfig   `yaml:"consumer"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration. One queue per stage is
// declared, named "<prefix>.<stage>".
type QueueConfig struct {
	Prefix     string `yaml:"prefix"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// RetryConfig names the exchange and queue that hold delayed triggers
type RetryConfig struct {
	Exchange string `yaml:"exchange"`
	Queue    string `yaml:"queue"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// ConsumerConfig holds RabbitMQ consumer settings
type ConsumerConfig struct {
	PrefetchCount int `yaml:"prefetch_count"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// WorkerConfig holds worker service configuration
type WorkerConfig struct {
	ID              string        `yaml:"id"`
	Concurrency     int           `yaml:"concurrency"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig holds object storage settings
type StorageConfig struct {
	Root        string `yaml:"root"`
	Prefix      string `yaml:"prefix"`
	AudioFormat string `yaml:"audio_format"`
}

// StagePolicyConfig is the retry and timeout policy of one stage
type StagePolicyConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Timeout     time.Duration `yaml:"timeout"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffMax  time.Duration `yaml:"backoff_max"`
}

// PipelineConfig holds per-stage policies
type PipelineConfig struct {
	Analyze    StagePolicyConfig `yaml:"analyze"`
	Script     StagePolicyConfig `yaml:"script"`
	Synthesize StagePolicyConfig `yaml:"synthesize"`
}

// Policy returns the configured policy of stage
func (p PipelineConfig) Policy(stage domain.Stage) StagePolicyConfig {
	switch stage {
	case domain.StageAnalyze:
		return p.Analyze
	case domain.StageScript:
		return p.Script
	case domain.StageSynthesize:
		return p.Synthesize
	}
	return StagePolicyConfig{}
}

// LLMConfig holds language model settings
type LLMConfig struct {
	APIKey          string        `yaml:"api_key"`
	BaseURL         string        `yaml:"base_url"`
	AnalysisModel   string        `yaml:"analysis_model"`
	ScriptModel     string        `yaml:"script_model"`
	Temperature     float64       `yaml:"temperature"`
	MaxRetries      int           `yaml:"max_retries"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxSections     int           `yaml:"max_sections"`
	ExactTokenCount bool          `yaml:"exact_token_count"`
}

// TTSConfig holds speech synthesis provider settings
type TTSConfig struct {
	OpenAI     TTSProviderConfig `yaml:"openai"`
	ElevenLabs TTSProviderConfig `yaml:"elevenlabs"`
}

// TTSProviderConfig holds one provider's settings. A provider without an API key is disabled.
type TTSProviderConfig struct {
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	Timeout    time.Duration `yaml:"timeout"`
}

// IngestConfig holds upload limits
type IngestConfig struct {
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
}

// UsageConfig overrides prices of the built-in rate table, in USD per unit
type UsageConfig struct {
	Rates map[string]float64 `yaml:"rates"`
}

// Load reads the configuration file, expands ${VAR} references from the
// environment and applies defaults
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults fills unset optional fields
func (c *Config) ApplyDefaults() {
	if c.RabbitMQ.Exchange.Type == "" {
		c.RabbitMQ.Exchange.Type = "direct"
	}
	if c.RabbitMQ.Queue.Prefix == "" {
		c.RabbitMQ.Queue.Prefix = "lecturecast"
	}
	if c.RabbitMQ.Retry.Exchange == "" {
		c.RabbitMQ.Retry.Exchange = c.RabbitMQ.Exchange.Name + ".retry"
	}
	if c.RabbitMQ.Retry.Queue == "" {
		c.RabbitMQ.Retry.Queue = c.RabbitMQ.Queue.Prefix + ".retry"
	}
	if c.Storage.Prefix == "" {
		c.Storage.Prefix = "uploads"
	}
	if c.Storage.AudioFormat == "" {
		c.Storage.AudioFormat = "mp3"
	}
	if c.Ingest.MaxUploadBytes <= 0 {
		c.Ingest.MaxUploadBytes = 50 << 20
	}
	if c.LLM.MaxSections <= 0 {
		c.LLM.MaxSections = 50
	}
	if c.Worker.Concurrency <= 0 {
		c.Worker.Concurrency = 4
	}
	if c.Worker.ShutdownTimeout <= 0 {
		c.Worker.ShutdownTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
}

// QueueName returns the queue carrying triggers of stage
func (r RabbitMQConfig) QueueName(stage domain.Stage) string {
	return r.Queue.Prefix + "." + string(stage)
}

// Validate checks the settings shared by both services
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	if c.RabbitMQ.Queue.Prefix == "" {
		return fmt.Errorf("rabbitmq queue prefix is required")
	}

	if c.Storage.Root == "" {
		return fmt.Errorf("storage root is required")
	}

	return nil
}

// ValidateAPIConfig checks the configuration of the API service
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.Validate(); err != nil {
		return err
	}

	if c.Ingest.MaxUploadBytes <= 0 {
		return fmt.Errorf("ingest max_upload_bytes must be greater than 0")
	}

	return nil
}

// ValidateWorkerConfig checks the configuration of the worker service
func (c *Config) ValidateWorkerConfig() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be greater than 0")
	}

	if c.Worker.ShutdownTimeout <= 0 {
		return fmt.Errorf("worker shutdown_timeout must be greater than 0")
	}

	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm api_key is required")
	}

	if c.TTS.OpenAI.APIKey == "" && c.TTS.ElevenLabs.APIKey == "" {
		return fmt.Errorf("at least one tts provider api_key is required")
	}

	for _, stage := range []domain.Stage{domain.StageAnalyze, domain.StageScript, domain.StageSynthesize} {
		p := c.Pipeline.Policy(stage)
		if p.MaxAttempts < 0 || p.Timeout < 0 || p.BackoffBase < 0 || p.BackoffMax < 0 {
			return fmt.Errorf("pipeline %s policy values must not be negative", stage)
		}
	}

	if err := usage.RateTable(c.Usage.Rates).Validate(); err != nil {
		return fmt.Errorf("invalid usage rates: %w", err)
	}

	return nil
}
