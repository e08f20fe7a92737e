package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvHoldTTL                = "HOLD_TTL"
	EnvLockSweepInterval      = "LOCK_SWEEP_INTERVAL"
	EnvMatchingRetryThreshold = "MATCHING_RETRY_THRESHOLD"
	EnvMatchingCandidateLimit = "MATCHING_CANDIDATE_LIMIT"
	EnvMatchingAutoConfirm    = "MATCHING_AUTO_CONFIRM"
	EnvFallbackSizeTolerance  = "FALLBACK_SIZE_TOLERANCE"
	EnvFallbackFanOutLimit    = "FALLBACK_FANOUT_LIMIT"

	EnvScheduleServiceURL = "SCHEDULE_SERVICE_URL"
)
