package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"

	LogFormatText = "text"
	LogFormatJSON = "json"

	envPrefix = "BILLING"
)

// Config описывает настройки запуска сервиса.
type Config struct {
	HTTPAddr    string `mapstructure:"http_addr"`
	GRPCAddr    string `mapstructure:"grpc_addr"`
	MetricsAddr string `mapstructure:"metrics_addr"`

	StorageDriver       string `mapstructure:"storage_driver"`
	PostgresDSN         string `mapstructure:"postgres_dsn"`
	PostgresAutoMigrate bool   `mapstructure:"postgres_auto_migrate"`

	// KafkaBrokers - список брокеров через запятую; пустое значение отключает Kafka.
	KafkaBrokers       string `mapstructure:"kafka_brokers"`
	KafkaConsumerGroup string `mapstructure:"kafka_consumer_group"`
	KafkaIntakeRetries int    `mapstructure:"kafka_intake_retries"`

	OutboxPollInterval time.Duration `mapstructure:"outbox_poll_interval"`
	OutboxBatchSize    int           `mapstructure:"outbox_batch_size"`
	OutboxMaxAttempts  int           `mapstructure:"outbox_max_attempts"`
	OutboxRetryDelay   time.Duration `mapstructure:"outbox_retry_delay"`
	// OutboxMaxPending - порог backlog, после которого health переходит в degraded.
	OutboxMaxPending int `mapstructure:"outbox_max_pending"`

	// OrderRetry* - повторы единицы работы над заказом при конфликте версий.
	// Исчерпанный бюджет возвращает клиенту retryable VERSION_CONFLICT.
	OrderRetryAttempts     int           `mapstructure:"order_retry_attempts"`
	OrderRetryInitialDelay time.Duration `mapstructure:"order_retry_initial_delay"`
	OrderRetryMaxDelay     time.Duration `mapstructure:"order_retry_max_delay"`

	IdempotencyTTL              time.Duration `mapstructure:"idempotency_ttl"`
	IdempotencyCleanupInterval  time.Duration `mapstructure:"idempotency_cleanup_interval"`
	IdempotencyCleanupBatchSize int           `mapstructure:"idempotency_cleanup_batch_size"`

	// AllowedOrigins - CORS-источники backoffice через запятую.
	AllowedOrigins string `mapstructure:"allowed_origins"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// DefaultConfig возвращает настройки для локального запуска на in-memory хранилище.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                    ":8080",
		GRPCAddr:                    ":50051",
		MetricsAddr:                 ":9090",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		KafkaConsumerGroup:          "billing-payment-intake",
		KafkaIntakeRetries:          3,
		OutboxPollInterval:          time.Second,
		OutboxBatchSize:             100,
		OutboxMaxAttempts:           3,
		OutboxRetryDelay:            100 * time.Millisecond,
		OutboxMaxPending:            1000,
		OrderRetryAttempts:          5,
		OrderRetryInitialDelay:      10 * time.Millisecond,
		OrderRetryMaxDelay:          500 * time.Millisecond,
		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,
		LogLevel:                    log.InfoLevel.String(),
		LogFormat:                   LogFormatText,
	}
}

// LoadConfig читает настройки: значения по умолчанию, затем файл (если path не пустой),
// затем переменные окружения с префиксом BILLING_.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg = cfg.normalized()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults регистрирует все ключи, иначе AutomaticEnv не увидит их при Unmarshal.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("http_addr", cfg.HTTPAddr)
	v.SetDefault("grpc_addr", cfg.GRPCAddr)
	v.SetDefault("metrics_addr", cfg.MetricsAddr)
	v.SetDefault("storage_driver", cfg.StorageDriver)
	v.SetDefault("postgres_dsn", cfg.PostgresDSN)
	v.SetDefault("postgres_auto_migrate", cfg.PostgresAutoMigrate)
	v.SetDefault("kafka_brokers", cfg.KafkaBrokers)
	v.SetDefault("kafka_consumer_group", cfg.KafkaConsumerGroup)
	v.SetDefault("kafka_intake_retries", cfg.KafkaIntakeRetries)
	v.SetDefault("outbox_poll_interval", cfg.OutboxPollInterval)
	v.SetDefault("outbox_batch_size", cfg.OutboxBatchSize)
	v.SetDefault("outbox_max_attempts", cfg.OutboxMaxAttempts)
	v.SetDefault("outbox_retry_delay", cfg.OutboxRetryDelay)
	v.SetDefault("outbox_max_pending", cfg.OutboxMaxPending)
	v.SetDefault("order_retry_attempts", cfg.OrderRetryAttempts)
	v.SetDefault("order_retry_initial_delay", cfg.OrderRetryInitialDelay)
	v.SetDefault("order_retry_max_delay", cfg.OrderRetryMaxDelay)
	v.SetDefault("idempotency_ttl", cfg.IdempotencyTTL)
	v.SetDefault("idempotency_cleanup_interval", cfg.IdempotencyCleanupInterval)
	v.SetDefault("idempotency_cleanup_batch_size", cfg.IdempotencyCleanupBatchSize)
	v.SetDefault("allowed_origins", cfg.AllowedOrigins)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)
}

func (c Config) normalized() Config {
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	c.PostgresDSN = strings.TrimSpace(c.PostgresDSN)
	c.KafkaBrokers = strings.TrimSpace(c.KafkaBrokers)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	return c
}

// Validate проверяет настройки и возвращает все найденные ошибки сразу.
func (c Config) Validate() error {
	var errs []error
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres_dsn is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http_addr must not be empty"))
	}
	if c.OutboxPollInterval <= 0 {
		errs = append(errs, errors.New("outbox_poll_interval must be positive"))
	}
	if c.OutboxBatchSize <= 0 {
		errs = append(errs, errors.New("outbox_batch_size must be positive"))
	}
	if c.OutboxMaxAttempts <= 0 {
		errs = append(errs, errors.New("outbox_max_attempts must be positive"))
	}
	if c.OutboxRetryDelay < 0 {
		errs = append(errs, errors.New("outbox_retry_delay must not be negative"))
	}
	if c.OutboxMaxPending < 0 {
		errs = append(errs, errors.New("outbox_max_pending must not be negative"))
	}
	if c.OrderRetryAttempts <= 0 {
		errs = append(errs, errors.New("order_retry_attempts must be positive"))
	}
	if c.OrderRetryInitialDelay < 0 {
		errs = append(errs, errors.New("order_retry_initial_delay must not be negative"))
	}
	if c.OrderRetryMaxDelay < c.OrderRetryInitialDelay {
		errs = append(errs, errors.New("order_retry_max_delay must not be below order_retry_initial_delay"))
	}
	if c.IdempotencyCleanupInterval < time.Second {
		errs = append(errs, errors.New("idempotency_cleanup_interval must be at least 1s"))
	}
	if c.IdempotencyCleanupBatchSize <= 0 {
		errs = append(errs, errors.New("idempotency_cleanup_batch_size must be positive"))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.LogFormat != LogFormatText && c.LogFormat != LogFormatJSON {
		errs = append(errs, fmt.Errorf("unsupported log_format %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

// ConfigureLogger выставляет уровень и формат глобального logrus.
func (c Config) ConfigureLogger() {
	if level, err := log.ParseLevel(c.LogLevel); err == nil {
		log.SetLevel(level)
	}
	if c.LogFormat == LogFormatJSON {
		log.SetFormatter(&log.JSONFormatter{})
		return
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
}

func (c Config) brokerList() []string {
	return splitList(c.KafkaBrokers)
}

func (c Config) originList() []string {
	return splitList(c.AllowedOrigins)
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// cleanupSchedule переводит интервал в cron-выражение для воркера очистки.
func (c Config) cleanupSchedule() string {
	return "@every " + c.IdempotencyCleanupInterval.String()
}
