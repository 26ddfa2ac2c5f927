// Package config provides configuration loading and validation for the
// trip-telemetry server. It uses koanf to merge environment variables with
// an optional YAML file override.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config holds all configuration values for the trip-telemetry server.
type Config struct {
	// Server
	Port             int    `koanf:"port"`
	Env              string `koanf:"env"`
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	ProfilingEnabled bool

	// Store
	RedisAddr  string `koanf:"redis_addr"`
	RedisDBNum int    `koanf:"redis_db_num"`

	// Spatial encoder
	GeohashPrecision int

	// Lifecycle
	BucketTTL           time.Duration
	PrefixRetention     time.Duration
	PrefixSweepInterval time.Duration
}

// Configuration validation errors.
var (
	ErrInvalidPort             = errors.New("PORT must be a valid integer")
	ErrInvalidRedisDBNum       = errors.New("REDIS_DB_NUM must be an integer between 0 and 15")
	ErrInvalidGeohashPrecision = errors.New("GEOHASH_PRECISION must be a positive integer")
	ErrInvalidDuration         = errors.New("duration value must be a valid Go duration string")
)

// Default values.
const (
	DefaultPort                = 6789
	DefaultEnv                 = "development"
	DefaultRedisAddr           = "localhost:6379"
	DefaultRedisDBNum          = 0
	DefaultGeohashPrecision    = 12
	DefaultBucketTTL           = 2160 * time.Hour // 90 days
	DefaultPrefixRetention     = 720 * time.Hour  // 30 days
	DefaultPrefixSweepInterval = time.Hour
	DefaultHTTPReadTimeout     = 30 * time.Second
	DefaultHTTPWriteTimeout    = 30 * time.Second
)

// Load reads configuration from environment variables and an optional
// YAML config file. Environment variables take precedence over file
// values. Returns the loaded config and a slice of validation errors
// (empty if valid).
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	var loadErrs []error

	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	port, err := getEnvIntOrDefault("PORT", k.Int("port"), DefaultPort)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}

	redisDBNum, err := getEnvIntOrDefault("REDIS_DB_NUM", k.Int("redis_db_num"), DefaultRedisDBNum)
	if err != nil {
		loadErrs = append(loadErrs, err)
	} else if redisDBNum < 0 || redisDBNum > 15 {
		loadErrs = append(loadErrs, ErrInvalidRedisDBNum)
	}

	precision, err := getEnvIntOrDefault("GEOHASH_PRECISION", k.Int("geohash_precision"), DefaultGeohashPrecision)
	if err != nil {
		loadErrs = append(loadErrs, err)
	} else if precision <= 0 {
		loadErrs = append(loadErrs, ErrInvalidGeohashPrecision)
	}

	bucketTTL, err := getEnvDurationOrDefault("BUCKET_TTL", DefaultBucketTTL)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	prefixRetention, err := getEnvDurationOrDefault("PREFIX_RETENTION", DefaultPrefixRetention)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	sweepInterval, err := getEnvDurationOrDefault("PREFIX_SWEEP_INTERVAL", DefaultPrefixSweepInterval)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	readTimeout, err := getEnvDurationOrDefault("HTTP_READ_TIMEOUT", DefaultHTTPReadTimeout)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}
	writeTimeout, err := getEnvDurationOrDefault("HTTP_WRITE_TIMEOUT", DefaultHTTPWriteTimeout)
	if err != nil {
		loadErrs = append(loadErrs, err)
	}

	cfg := &Config{
		Port:                port,
		Env:                 getEnvOrDefault("LOG_ENV", k.String("env"), DefaultEnv),
		HTTPReadTimeout:     readTimeout,
		HTTPWriteTimeout:    writeTimeout,
		ProfilingEnabled:    os.Getenv("PROFILING_ENABLED") == "true",
		RedisAddr:           getEnvOrDefault("REDIS_ADDR", k.String("redis_addr"), DefaultRedisAddr),
		RedisDBNum:          redisDBNum,
		GeohashPrecision:    precision,
		BucketTTL:           bucketTTL,
		PrefixRetention:     prefixRetention,
		PrefixSweepInterval: sweepInterval,
	}

	return cfg, append(loadErrs, cfg.Validate()...)
}

func getEnvOrDefault(envKey string, koanfVal string, defaultVal string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

func getEnvIntOrDefault(envKey string, koanfVal int, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", envKey, ErrInvalidPort)
		}
		return i, nil
	}
	if koanfVal != 0 {
		return koanfVal, nil
	}
	return defaultVal, nil
}

func getEnvDurationOrDefault(envKey string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(envKey)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %v", envKey, ErrInvalidDuration, err)
	}
	return d, nil
}

// Validate checks that all configuration values are within acceptable
// bounds.
func (c *Config) Validate() []error {
	var errs []error
	if c.RedisDBNum < 0 || c.RedisDBNum > 15 {
		errs = append(errs, ErrInvalidRedisDBNum)
	}
	if c.GeohashPrecision <= 0 {
		errs = append(errs, ErrInvalidGeohashPrecision)
	}
	return errs
}

// LogSummary returns a summary of the configuration suitable for logging.
func (c *Config) LogSummary() map[string]string {
	return map[string]string{
		"port":                  fmt.Sprintf("%d", c.Port),
		"env":                   c.Env,
		"http_read_timeout":     c.HTTPReadTimeout.String(),
		"http_write_timeout":    c.HTTPWriteTimeout.String(),
		"profiling_enabled":     fmt.Sprintf("%t", c.ProfilingEnabled),
		"redis_addr":            c.RedisAddr,
		"redis_db_num":          fmt.Sprintf("%d", c.RedisDBNum),
		"geohash_precision":     fmt.Sprintf("%d", c.GeohashPrecision),
		"bucket_ttl":            c.BucketTTL.String(),
		"prefix_retention":      c.PrefixRetention.String(),
		"prefix_sweep_interval": c.PrefixSweepInterval.String(),
	}
}
