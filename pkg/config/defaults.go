package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "saubio"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	// Matching tuning parameters. Operational knobs, always overridable via
	// environment; the numbers here are illustrative starting points.
	DefaultHoldTTL                = 10 * time.Minute
	DefaultLockSweepInterval      = 30 * time.Second
	DefaultMatchingRetryThreshold = 3
	DefaultMatchingCandidateLimit = 5
	DefaultMatchingAutoConfirm    = false
	DefaultFallbackSizeTolerance  = 2
	DefaultFallbackFanOutLimit    = 10

	DefaultScheduleServiceURL = "http://localhost:8081"

	DefaultPaginationLimit = 100
)
