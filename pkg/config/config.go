package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"CreditPulse/internal/domain/models"
	pkgch "CreditPulse/pkg/clickhouse"
	"CreditPulse/pkg/validate"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string           `yaml:"environment" default:"development" validate:"oneof=development staging production"`
	Server      ServerConfig     `yaml:"server"`
	Logger      LoggerConfig     `yaml:"logger"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	Redis       RedisConfig      `yaml:"redis"`
	Batch       BatchConfig      `yaml:"batch"`
	// Analytics is threaded explicitly into every engine call.
	Analytics models.AnalyticsConfig `yaml:"analytics"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	SlowThreshold   time.Duration `yaml:"slow_threshold" default:"1s"`
}

type LoggerConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"json" validate:"oneof=json console"`
	Output string `yaml:"output" default:"stdout"`
}

type ClickHouseConfig struct {
	Host             string         `yaml:"host" validate:"required"`
	Port             int            `yaml:"port" default:"9000" validate:"gte=1,lte=65535"`
	Database         string         `yaml:"database" default:"creditpulse"`
	User             string         `yaml:"user" default:"default"`
	Password         string         `yaml:"password"`
	UseHTTP          bool           `yaml:"use_http"`
	AsyncInsert      bool           `yaml:"async_insert"`
	WaitForAsync     bool           `yaml:"wait_for_async_insert"`
	MaxOpenConns     int            `yaml:"max_open_conns" default:"10"`
	MaxIdleConns     int            `yaml:"max_idle_conns" default:"5"`
	DialTimeout      time.Duration  `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration  `yaml:"read_timeout" default:"30s"`
	MaxExecutionTime time.Duration  `yaml:"max_execution_time"`
	InitSchema       bool           `yaml:"init_schema"`
	Settings         map[string]any `yaml:"settings"`
	Tables           pkgch.Tables   `yaml:"tables"`
}

type KafkaConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Brokers  []string       `yaml:"brokers"`
	Topics   KafkaTopics    `yaml:"topics"`
	Producer ProducerConfig `yaml:"producer"`
	Consumer ConsumerConfig `yaml:"consumer"`
}

type KafkaTopics struct {
	Inputs   string `yaml:"inputs" default:"creditpulse.inputs"`
	Results  string `yaml:"results" default:"creditpulse.results"`
	Signals  string `yaml:"signals" default:"creditpulse.signals"`
	Failures string `yaml:"failures"`
}

type ProducerConfig struct {
	RequiredAcks string        `yaml:"required_acks" default:"all" validate:"oneof=all one none"`
	Compression  string        `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
	BatchSize    int           `yaml:"batch_size" default:"100"`
	BatchTimeout time.Duration `yaml:"batch_timeout" default:"50ms"`
}

type ConsumerConfig struct {
	GroupID    string        `yaml:"group_id" default:"creditpulse"`
	Workers    int           `yaml:"workers" default:"4" validate:"gte=1"`
	BufferSize int           `yaml:"buffer_size" default:"256"`
	RetryMax   int           `yaml:"retry_max" default:"3" validate:"gte=0"`
	BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
	BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
	DLQTopic   string        `yaml:"dlq_topic"`
	GateBuffer int           `yaml:"gate_buffer" default:"1000" validate:"gte=1"`
	// RatePerTicker limits admitted rows per ticker and second; 0 disables it.
	RatePerTicker float64 `yaml:"rate_per_ticker" validate:"gte=0"`
	RateBurst     int     `yaml:"rate_burst" default:"10" validate:"gte=1"`
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr" default:"localhost:6379"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"pool_size" default:"10"`
	Prefix   string        `yaml:"prefix" default:"creditpulse"`
	TTL      time.Duration `yaml:"ttl" default:"10m"`
	L1Size   int           `yaml:"l1_size" default:"1024"`
	L1TTL    time.Duration `yaml:"l1_ttl" default:"30s"`
}

// BatchConfig drives the analysis runner.
type BatchConfig struct {
	Workers       int           `yaml:"workers" default:"4" validate:"gte=1"`
	BundleTimeout time.Duration `yaml:"bundle_timeout" default:"30s"`
	ReturnsWindow int           `yaml:"returns_window" default:"252" validate:"gte=2"`
	// Analyses lists the optional stages to run after the solve.
	Analyses       []string          `yaml:"analyses" default:"[\"sensitivity\",\"bootstrap\",\"stress\",\"signal\"]" validate:"dive,oneof=sensitivity bootstrap stress signal real_world"`
	Scenarios      []string          `yaml:"scenarios"`
	ExtraScenarios []models.Scenario `yaml:"custom_scenarios" validate:"dive"`
	SinkBatchSize  int               `yaml:"sink_batch_size" default:"500" validate:"gte=1"`
	SinkFlush      time.Duration     `yaml:"sink_flush_interval" default:"2s"`
}

// Runs reports whether the named optional analysis is enabled.
func (b BatchConfig) Runs(analysis string) bool {
	for _, a := range b.Analyses {
		if a == analysis {
			return true
		}
	}
	return false
}

// Acks maps required_acks to the Kafka wire value.
func (p ProducerConfig) Acks() int {
	switch p.RequiredAcks {
	case "none":
		return 0
	case "one":
		return 1
	default:
		return -1
	}
}

// Load reads, defaults and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes into a validated Config.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.finish(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides it with CREDITPULSE_*
// environment variables.
func LoadWithEnv(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.finish(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) finish() error {
	c.Analytics.ApplyDefaults()
	if err := validate.Struct(context.Background(), c); err != nil {
		return fmt.Errorf("validate config: %s", validate.Describe(err))
	}
	return c.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"CREDITPULSE_ENV":                 &c.Environment,
		"CREDITPULSE_LOG_LEVEL":           &c.Logger.Level,
		"CREDITPULSE_CLICKHOUSE_HOST":     &c.ClickHouse.Host,
		"CREDITPULSE_CLICKHOUSE_USER":     &c.ClickHouse.User,
		"CREDITPULSE_CLICKHOUSE_PASSWORD": &c.ClickHouse.Password,
		"CREDITPULSE_KAFKA_INPUT_TOPIC":   &c.Kafka.Topics.Inputs,
		"CREDITPULSE_REDIS_ADDR":          &c.Redis.Addr,
		"CREDITPULSE_REDIS_PASSWORD":      &c.Redis.Password,
	}
	for key, dst := range str {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	if v, ok := lookup("CREDITPULSE_KAFKA_BROKERS"); ok && v != "" {
		c.Kafka.Brokers = splitList(v)
		c.Kafka.Enabled = true
	}
	if v, ok := lookup("CREDITPULSE_SERVER_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CREDITPULSE_SERVER_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v, ok := lookup("CREDITPULSE_REDIS_ENABLED"); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CREDITPULSE_REDIS_ENABLED: %w", err)
		}
		c.Redis.Enabled = enabled
	}
	if v, ok := lookup("CREDITPULSE_BOOTSTRAP_SEED"); ok && v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("CREDITPULSE_BOOTSTRAP_SEED: %w", err)
		}
		c.Analytics.Bootstrap.Seed = seed
	}
	return nil
}

// Validate checks cross-field rules the struct tags cannot express.
func (c *Config) Validate() error {
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("kafka.brokers is required when kafka is enabled")
		}
		if c.Kafka.Topics.Inputs == "" {
			return errors.New("kafka.topics.inputs is required when kafka is enabled")
		}
	}
	if c.Kafka.Consumer.BackoffMax < c.Kafka.Consumer.BackoffMin {
		return errors.New("kafka.consumer.backoff_max must not be below backoff_min")
	}
	if c.Batch.BundleTimeout <= 0 {
		return errors.New("batch.bundle_timeout must be positive")
	}
	if err := c.Analytics.Validate(); err != nil {
		return fmt.Errorf("analytics: %w", err)
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
