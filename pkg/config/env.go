package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvRedisURL = "REDIS_URL"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"
	EnvLogFile  = "LOG_FILE"

	EnvJWTSecret       = "JWT_SECRET"
	EnvTokenCookieName = "TOKEN_COOKIE_NAME"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"
	EnvTrustProxyHeaders = "TRUST_PROXY_HEADERS"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvAdmissionLockTTL = "ADMISSION_LOCK_TTL"

	EnvOutboxPollInterval = "OUTBOX_POLL_INTERVAL"
	EnvOutboxBatchSize    = "OUTBOX_BATCH_SIZE"
	EnvOutboxMaxAttempts  = "OUTBOX_MAX_ATTEMPTS"
	EnvOutboxBaseBackoff  = "OUTBOX_BASE_BACKOFF"
	EnvOutboxMaxBackoff   = "OUTBOX_MAX_BACKOFF"

	EnvBookingEventsTopic    = "BOOKING_EVENTS_TOPIC"
	EnvBookingEventsDLQTopic = "BOOKING_EVENTS_DLQ_TOPIC"
	EnvNotifierGroupID       = "NOTIFIER_GROUP_ID"

	EnvCompletionSweepInterval = "COMPLETION_SWEEP_INTERVAL"

	EnvSMTPHost     = "SMTP_HOST"
	EnvSMTPPort     = "SMTP_PORT"
	EnvSMTPUsername = "SMTP_USERNAME"
	EnvSMTPPassword = "SMTP_PASSWORD"
	EnvSMTPFrom     = "SMTP_FROM"
)
