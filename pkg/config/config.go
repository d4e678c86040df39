package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"time"

	"staybook/pkg/client"
	"staybook/pkg/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	RedisURL string

	Port string

	JWTSecret       string
	TokenCookieName string

	RateLimitRequests int
	RateLimitWindow   time.Duration
	// TrustProxyHeaders takes the client IP from X-Real-IP. Enable it only
	// behind a proxy that overwrites the header.
	TrustProxyHeaders bool

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	AdmissionLockTTL time.Duration

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxBaseBackoff  time.Duration
	OutboxMaxBackoff   time.Duration

	BookingEventsTopic    string
	BookingEventsDLQTopic string
	NotifierGroupID       string

	CompletionSweepInterval time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	Log    *logger.Logger
	Client *client.Client
}

func Load(serviceName string) *Config {
	envErr := godotenv.Load()

	cfg := &Config{
		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		RedisURL: getEnvStr(EnvRedisURL, ""),

		Port: getEnvStr(EnvPort, DefaultPort),

		JWTSecret:       getEnvStr(EnvJWTSecret, ""),
		TokenCookieName: getEnvStr(EnvTokenCookieName, DefaultTokenCookieName),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),
		TrustProxyHeaders: getEnvBool(EnvTrustProxyHeaders, false),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		AdmissionLockTTL: getEnvDuration(EnvAdmissionLockTTL, DefaultAdmissionLockTTL),

		OutboxPollInterval: getEnvDuration(EnvOutboxPollInterval, DefaultOutboxPollInterval),
		OutboxBatchSize:    getEnvNum(EnvOutboxBatchSize, DefaultOutboxBatchSize),
		OutboxMaxAttempts:  getEnvNum(EnvOutboxMaxAttempts, DefaultOutboxMaxAttempts),
		OutboxBaseBackoff:  getEnvDuration(EnvOutboxBaseBackoff, DefaultOutboxBaseBackoff),
		OutboxMaxBackoff:   getEnvDuration(EnvOutboxMaxBackoff, DefaultOutboxMaxBackoff),

		BookingEventsTopic:    getEnvStr(EnvBookingEventsTopic, DefaultBookingEventsTopic),
		BookingEventsDLQTopic: getEnvStr(EnvBookingEventsDLQTopic, DefaultBookingEventsDLQTopic),
		NotifierGroupID:       getEnvStr(EnvNotifierGroupID, DefaultNotifierGroupID),

		CompletionSweepInterval: getEnvDuration(EnvCompletionSweepInterval, DefaultCompletionSweepInterval),

		SMTPHost:     getEnvStr(EnvSMTPHost, ""),
		SMTPPort:     getEnvNum(EnvSMTPPort, DefaultSMTPPort),
		SMTPUsername: getEnvStr(EnvSMTPUsername, ""),
		SMTPPassword: getEnvStr(EnvSMTPPassword, ""),
		SMTPFrom:     getEnvStr(EnvSMTPFrom, ""),

		Log: logger.New(logger.Config{
			Level:      getEnvStr(EnvLogLevel, DefaultLogLevel),
			Format:     logger.JSON,
			AddSource:  true,
			Service:    serviceName,
			File:       getEnvStr(EnvLogFile, ""),
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 14,
		}),
		Client: client.NewClient(),
	}

	if envErr != nil && !errors.Is(envErr, fs.ErrNotExist) {
		cfg.Log.Warn("Failed to load .env file", "error", envErr)
	}

	err := cfg.Validate()
	if err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) SetRedis() {
	cfg.Client.SetRedis(cfg.Log, cfg.RedisURL, cfg.MongoConnTimeout)
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	if cfg.MongoURI == "" {
		errors = append(errors, "MongoURI cannot be empty")
	} else if len(cfg.MongoURI) < 10 || !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
		errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactURI(cfg.MongoURI)))
	}

	if cfg.MongoDatabaseName == "" {
		errors = append(errors, "MongoDatabaseName cannot be empty")
	}

	if cfg.RedisURL != "" && !regexp.MustCompile(`^rediss?://`).MatchString(cfg.RedisURL) {
		errors = append(errors, "RedisURL must start with 'redis://' or 'rediss://'")
	}

	if cfg.MongoConnTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("MongoConnTimeout must be positive, got: %s", cfg.MongoConnTimeout))
	}
	if cfg.RateLimitWindow <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitWindow must be positive, got: %s", cfg.RateLimitWindow))
	}
	if cfg.RequestTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.IdempotencyTTL <= 0 {
		errors = append(errors, fmt.Sprintf("IdempotencyTTL must be positive, got: %s", cfg.IdempotencyTTL))
	}
	if cfg.ReadTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}
	if cfg.AdmissionLockTTL <= 0 {
		errors = append(errors, fmt.Sprintf("AdmissionLockTTL must be positive, got: %s", cfg.AdmissionLockTTL))
	} else if cfg.AdmissionLockTTL < cfg.RequestTimeout {
		errors = append(errors, fmt.Sprintf("AdmissionLockTTL (%s) must not be shorter than RequestTimeout (%s)", cfg.AdmissionLockTTL, cfg.RequestTimeout))
	}

	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}

	if cfg.OutboxPollInterval <= 0 {
		errors = append(errors, fmt.Sprintf("OutboxPollInterval must be positive, got: %s", cfg.OutboxPollInterval))
	}
	if cfg.OutboxBatchSize <= 0 {
		errors = append(errors, fmt.Sprintf("OutboxBatchSize must be positive, got: %d", cfg.OutboxBatchSize))
	}
	if cfg.OutboxMaxAttempts <= 0 {
		errors = append(errors, fmt.Sprintf("OutboxMaxAttempts must be positive, got: %d", cfg.OutboxMaxAttempts))
	}
	if cfg.OutboxBaseBackoff <= 0 {
		errors = append(errors, fmt.Sprintf("OutboxBaseBackoff must be positive, got: %s", cfg.OutboxBaseBackoff))
	}
	if cfg.OutboxMaxBackoff < cfg.OutboxBaseBackoff {
		errors = append(errors, fmt.Sprintf("OutboxMaxBackoff (%s) must be >= OutboxBaseBackoff (%s)", cfg.OutboxMaxBackoff, cfg.OutboxBaseBackoff))
	}

	if cfg.BookingEventsTopic == "" {
		errors = append(errors, "BookingEventsTopic cannot be empty")
	}
	if cfg.CompletionSweepInterval <= 0 {
		errors = append(errors, fmt.Sprintf("CompletionSweepInterval must be positive, got: %s", cfg.CompletionSweepInterval))
	}
	if cfg.SMTPPort < 1 || cfg.SMTPPort > 65535 {
		errors = append(errors, fmt.Sprintf("SMTPPort must be between 1 and 65535, got: %d", cfg.SMTPPort))
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

// RequireJWTSecret is checked by services that authenticate callers.
func (cfg *Config) RequireJWTSecret() error {
	if len(cfg.JWTSecret) < 32 {
		return fmt.Errorf("JWTSecret must be at least 32 characters, got %d", len(cfg.JWTSecret))
	}
	return nil
}

// RequireSMTP is checked by services that send email.
func (cfg *Config) RequireSMTP() error {
	if cfg.SMTPHost == "" {
		return fmt.Errorf("SMTPHost cannot be empty")
	}
	if cfg.SMTPFrom == "" {
		return fmt.Errorf("SMTPFrom cannot be empty")
	}
	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"mongo_uri", redactURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"redis_uri", redactURI(cfg.RedisURL),
		"port", cfg.Port,
		"jwt_secret_set", cfg.JWTSecret != "",
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"trust_proxy_headers", cfg.TrustProxyHeaders,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"admission_lock_ttl", cfg.AdmissionLockTTL,
		"outbox_poll_interval", cfg.OutboxPollInterval,
		"outbox_batch_size", cfg.OutboxBatchSize,
		"outbox_max_attempts", cfg.OutboxMaxAttempts,
		"outbox_base_backoff", cfg.OutboxBaseBackoff,
		"outbox_max_backoff", cfg.OutboxMaxBackoff,
		"booking_events_topic", cfg.BookingEventsTopic,
		"booking_events_dlq_topic", cfg.BookingEventsDLQTopic,
		"notifier_group_id", cfg.NotifierGroupID,
		"completion_sweep_interval", cfg.CompletionSweepInterval,
		"smtp_host", cfg.SMTPHost,
		"smtp_port", cfg.SMTPPort,
		"smtp_password_set", cfg.SMTPPassword != "",
	)
}

func redactURI(uri string) string {
	credentialRegex := regexp.MustCompile(`^([a-z+]+://)[^:@/]*:[^@]+@`)
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown()
	cfg.Log.Close()
}

func NormalizePaginationLimit(limit int) int {
	if limit <= 0 {
		limit = 10
	} else if limit > DefaultPaginationLimit {
		limit = DefaultPaginationLimit
	}
	return limit
}

func NormalizeOffset(offset int64) int64 {
	return max(0, offset)
}
