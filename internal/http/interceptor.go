package httpx

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/52poke/raikou/internal/cache"
	"github.com/52poke/raikou/internal/metrics"
)

const tracerName = "github.com/52poke/raikou/internal/http"

// Interceptor wraps read handlers with cache-aside behavior over a
// Store. Every cache failure mode degrades to calling the handler
// directly; no store error ever reaches the caller.
type Interceptor struct {
	store  cache.Store
	log    *logrus.Logger
	tracer trace.Tracer
	group  *singleflight.Group
}

type Option func(*Interceptor)

// WithCollapsing makes concurrent misses on the same key share a single
// handler call instead of each invoking the handler.
func WithCollapsing() Option {
	return func(i *Interceptor) {
		i.group = &singleflight.Group{}
	}
}

func NewInterceptor(store cache.Store, log *logrus.Logger, opts ...Option) *Interceptor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	i := &Interceptor{
		store:  store,
		log:    log,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Intercept serves req from the cache when possible, falling back to
// handler and storing a successful result for ttl. A ttl of zero or
// less serves through without storing.
func (i *Interceptor) Intercept(ctx context.Context, req Request, ttl time.Duration, handler Handler) (Result, error) {
	ctx, span := i.tracer.Start(ctx, "cache.intercept", trace.WithAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("url.path", req.Path),
	))
	defer span.End()

	info := Classify(req)
	if !info.Cacheable {
		return i.bypass(ctx, span, req, info.Reason, handler)
	}
	if !i.store.Available(ctx) {
		return i.bypass(ctx, span, req, ReasonUnavailable, handler)
	}

	key := req.Key()
	span.SetAttributes(attribute.String("cache.key", key))

	if raw, ok := i.store.Get(ctx, key); ok {
		res, err := decodeResult(raw)
		if err == nil {
			metrics.CacheHits.Inc()
			span.SetAttributes(attribute.Bool("cache.hit", true))
			i.log.WithField("key", key).Debug("cache hit")
			return res, nil
		}
		// Corrupt entry: treat as a miss, the fill overwrites it.
		i.log.WithError(err).WithField("key", key).Warn("corrupt cache entry")
	}

	metrics.CacheMisses.Inc()
	span.SetAttributes(attribute.Bool("cache.hit", false))
	i.log.WithField("key", key).Debug("cache miss")

	if i.group != nil {
		v, err, _ := i.group.Do(key, func() (any, error) {
			return i.fill(ctx, key, ttl, req, handler)
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return Result{}, err
		}
		return v.(Result), nil
	}

	res, err := i.fill(ctx, key, ttl, req, handler)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (i *Interceptor) bypass(ctx context.Context, span trace.Span, req Request, reason string, handler Handler) (Result, error) {
	metrics.CacheBypass.WithLabelValues(reason).Inc()
	span.SetAttributes(attribute.String("cache.bypass", reason))
	i.log.WithFields(logrus.Fields{"path": req.Path, "reason": reason}).Debug("cache bypass")

	res, err := handler(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (i *Interceptor) fill(ctx context.Context, key string, ttl time.Duration, req Request, handler Handler) (Result, error) {
	res, err := handler(ctx, req)
	if err != nil {
		return Result{}, err
	}
	if !res.OK || ttl <= 0 {
		return res, nil
	}

	raw, err := encodeResult(res)
	if err != nil {
		i.log.WithError(err).WithField("key", key).Warn("result not serializable, skipping cache")
		return res, nil
	}
	_ = i.store.SetWithTTL(ctx, key, raw, ttl)
	return res, nil
}
