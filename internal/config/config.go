package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	BackendRedis = "redis"
	BackendS3    = "s3"
)

type Config struct {
	ListenAddr string
	LogLevel   string
	Tracing    string

	StoreBackend string

	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	RedisPoolSize     int
	RedisMaxRetries   int
	RedisDialTimeout  time.Duration
	RedisReadTimeout  time.Duration
	RedisWriteTimeout time.Duration

	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string

	TTLSeconds        int
	DerivedTTLSeconds int
}

func Load() (Config, error) {
	cfg := Config{
		ListenAddr:        getenv("RAIKOU_LISTEN_ADDR", ":8080"),
		LogLevel:          getenv("RAIKOU_LOG_LEVEL", "info"),
		Tracing:           os.Getenv("RAIKOU_TRACING"),
		StoreBackend:      getenv("RAIKOU_STORE_BACKEND", BackendRedis),
		RedisAddr:         getenv("RAIKOU_REDIS_ADDR", ""),
		RedisPassword:     os.Getenv("RAIKOU_REDIS_PASSWORD"),
		RedisDB:           getenvInt("RAIKOU_REDIS_DB", 0),
		RedisPoolSize:     getenvInt("RAIKOU_REDIS_POOL_SIZE", 10),
		RedisMaxRetries:   getenvInt("RAIKOU_REDIS_MAX_RETRIES", 3),
		RedisDialTimeout:  getenvDuration("RAIKOU_REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisReadTimeout:  getenvDuration("RAIKOU_REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWriteTimeout: getenvDuration("RAIKOU_REDIS_WRITE_TIMEOUT", 3*time.Second),
		S3Endpoint:        getenv("RAIKOU_S3_ENDPOINT", ""),
		S3Region:          getenv("RAIKOU_S3_REGION", ""),
		S3Bucket:          getenv("RAIKOU_S3_BUCKET", ""),
		S3AccessKey:       os.Getenv("RAIKOU_S3_ACCESS_KEY"),
		S3SecretKey:       os.Getenv("RAIKOU_S3_SECRET_KEY"),
		TTLSeconds:        getenvInt("RAIKOU_TTL_SECONDS", 3600),
		DerivedTTLSeconds: getenvInt("RAIKOU_DERIVED_TTL_SECONDS", 7200),
	}

	switch cfg.StoreBackend {
	case BackendRedis:
		if cfg.RedisAddr == "" {
			return cfg, errors.New("RAIKOU_REDIS_ADDR is required")
		}
	case BackendS3:
		if cfg.S3Endpoint == "" || cfg.S3Bucket == "" || cfg.S3AccessKey == "" || cfg.S3SecretKey == "" {
			return cfg, errors.New("S3 endpoint/bucket/access/secret are required")
		}
	default:
		return cfg, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	return cfg, nil
}

// TTL is the cache lifetime for primary resource reads.
func (c Config) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// DerivedTTL is the longer lifetime for derived listings such as
// category and tag views.
func (c Config) DerivedTTL() time.Duration {
	return time.Duration(c.DerivedTTLSeconds) * time.Second
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
