package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "staybook"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	DefaultTokenCookieName = "token"

	DefaultRateLimitRequests = 60
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultAdmissionLockTTL = 45 * time.Second

	DefaultOutboxPollInterval = 2 * time.Second
	DefaultOutboxBatchSize    = 50
	DefaultOutboxMaxAttempts  = 8
	DefaultOutboxBaseBackoff  = 5 * time.Second
	DefaultOutboxMaxBackoff   = 10 * time.Minute

	DefaultBookingEventsTopic    = "booking-events"
	DefaultBookingEventsDLQTopic = "dlq-booking-events"
	DefaultNotifierGroupID       = "notifier-consumer-group"

	DefaultCompletionSweepInterval = 15 * time.Minute

	DefaultSMTPPort = 587

	DefaultPaginationLimit = 100
)
