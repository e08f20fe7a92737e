package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"saubio/pkg/client"
	"saubio/pkg/logger"
)

type Config struct {
	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	Port string

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Matching core tuning.
	HoldTTL                time.Duration
	LockSweepInterval      time.Duration
	MatchingRetryThreshold int
	MatchingCandidateLimit int
	MatchingAutoConfirm    bool
	FallbackSizeTolerance  int
	FallbackFanOutLimit    int

	ScheduleServiceURL string

	Log    *logger.Logger
	Client *client.Client
}

func Load(serviceName string) *Config {
	cfg := &Config{
		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		Port: getEnvStr(EnvPort, DefaultPort),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		HoldTTL:                getEnvDuration(EnvHoldTTL, DefaultHoldTTL),
		LockSweepInterval:      getEnvDuration(EnvLockSweepInterval, DefaultLockSweepInterval),
		MatchingRetryThreshold: getEnvNum(EnvMatchingRetryThreshold, DefaultMatchingRetryThreshold),
		MatchingCandidateLimit: getEnvNum(EnvMatchingCandidateLimit, DefaultMatchingCandidateLimit),
		MatchingAutoConfirm:    getEnvBool(EnvMatchingAutoConfirm, DefaultMatchingAutoConfirm),
		FallbackSizeTolerance:  getEnvNum(EnvFallbackSizeTolerance, DefaultFallbackSizeTolerance),
		FallbackFanOutLimit:    getEnvNum(EnvFallbackFanOutLimit, DefaultFallbackFanOutLimit),

		ScheduleServiceURL: getEnvStr(EnvScheduleServiceURL, DefaultScheduleServiceURL),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) Validate() error {
	var errs []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	if cfg.MongoURI == "" {
		errs = append(errs, "MongoURI cannot be empty")
	} else if !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
		errs = append(errs, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", cfg.MongoURI))
	}
	if cfg.MongoDatabaseName == "" {
		errs = append(errs, "MongoDatabaseName cannot be empty")
	}

	for name, d := range map[string]time.Duration{
		"MongoConnTimeout":  cfg.MongoConnTimeout,
		"RequestTimeout":    cfg.RequestTimeout,
		"IdempotencyTTL":    cfg.IdempotencyTTL,
		"ReadTimeout":       cfg.ReadTimeout,
		"WriteTimeout":      cfg.WriteTimeout,
		"IdleTimeout":       cfg.IdleTimeout,
		"ShutdownTimeout":   cfg.ShutdownTimeout,
		"HoldTTL":           cfg.HoldTTL,
		"LockSweepInterval": cfg.LockSweepInterval,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Sprintf("%s must be positive, got: %s", name, d))
		}
	}

	if cfg.MaxRequestSize <= 0 {
		errs = append(errs, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}
	if cfg.MatchingRetryThreshold < 1 {
		errs = append(errs, fmt.Sprintf("MatchingRetryThreshold must be at least 1, got: %d", cfg.MatchingRetryThreshold))
	}
	if cfg.MatchingCandidateLimit < 1 {
		errs = append(errs, fmt.Sprintf("MatchingCandidateLimit must be at least 1, got: %d", cfg.MatchingCandidateLimit))
	}
	if cfg.FallbackSizeTolerance < 0 {
		errs = append(errs, fmt.Sprintf("FallbackSizeTolerance cannot be negative, got: %d", cfg.FallbackSizeTolerance))
	}
	if cfg.FallbackFanOutLimit < 1 {
		errs = append(errs, fmt.Sprintf("FallbackFanOutLimit must be at least 1, got: %d", cfg.FallbackFanOutLimit))
	}

	if len(errs) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, e := range errs {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, e)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mongo_conn_timeout", cfg.MongoConnTimeout,
		"port", cfg.Port,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
		"hold_ttl", cfg.HoldTTL,
		"lock_sweep_interval", cfg.LockSweepInterval,
		"matching_retry_threshold", cfg.MatchingRetryThreshold,
		"matching_candidate_limit", cfg.MatchingCandidateLimit,
		"matching_auto_confirm", cfg.MatchingAutoConfirm,
		"fallback_size_tolerance", cfg.FallbackSizeTolerance,
		"fallback_fanout_limit", cfg.FallbackFanOutLimit,
		"schedule_service_url", cfg.ScheduleServiceURL,
	)
}

func redactMongoURI(uri string) string {
	credentialRegex := regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
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

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown()
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
