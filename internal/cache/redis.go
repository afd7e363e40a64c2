package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/52poke/raikou/internal/metrics"
)

const scanBatchSize = 100

type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisStore keeps cache entries in redis. The client is shared for the
// life of the process and dialed lazily on first use.
type RedisStore struct {
	opts RedisOptions
	log  *logrus.Logger

	initOnce sync.Once
	client   *redis.Client

	health *health
}

func NewRedisStore(opts RedisOptions, log *logrus.Logger) *RedisStore {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RedisStore{
		opts:   opts,
		log:    log,
		health: newHealth(0, 0),
	}
}

// Client returns the underlying redis client, creating it on first
// call. Repeated calls reuse the same connection pool.
func (s *RedisStore) Client() *redis.Client {
	s.initOnce.Do(func() {
		s.client = redis.NewClient(&redis.Options{
			Addr:         s.opts.Addr,
			Password:     s.opts.Password,
			DB:           s.opts.DB,
			PoolSize:     s.opts.PoolSize,
			MaxRetries:   s.opts.MaxRetries,
			DialTimeout:  s.opts.DialTimeout,
			ReadTimeout:  s.opts.ReadTimeout,
			WriteTimeout: s.opts.WriteTimeout,
		})
	})
	return s.client
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool) {
	if open, _ := s.health.state(); !open {
		return nil, false
	}
	val, err := s.Client().Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			s.health.succeeded()
			return nil, false
		}
		s.fail("get", key, err)
		return nil, false
	}
	s.health.succeeded()
	return val, true
}

func (s *RedisStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if open, _ := s.health.state(); !open {
		return nil
	}
	if err := s.Client().Set(ctx, key, value, ttl).Err(); err != nil {
		s.fail("set", key, err)
		return err
	}
	s.health.succeeded()
	return nil
}

func (s *RedisStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	if open, _ := s.health.state(); !open {
		return 0, nil
	}

	var (
		cursor  uint64
		deleted int
	)
	pattern := prefix + "*"
	for {
		keys, next, err := s.Client().Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			s.fail("delete", prefix, err)
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := s.Client().Del(ctx, keys...).Result()
			deleted += int(n)
			if err != nil {
				s.fail("delete", prefix, err)
				return deleted, err
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	s.health.succeeded()
	return deleted, nil
}

func (s *RedisStore) Available(ctx context.Context) bool {
	open, probe := s.health.state()
	if !open {
		return false
	}
	if !probe {
		return true
	}
	if err := s.Client().Ping(ctx).Err(); err != nil {
		s.fail("ping", "", err)
		return false
	}
	s.health.succeeded()
	return true
}

func (s *RedisStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) fail(op, key string, err error) {
	metrics.StoreErrors.WithLabelValues(op).Inc()
	s.health.failed()
	s.log.WithError(err).WithFields(logrus.Fields{"op": op, "key": key}).Warn("cache store error")
}
