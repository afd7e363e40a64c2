package invalidate

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/52poke/raikou/internal/cache"
	"github.com/52poke/raikou/internal/metrics"
)

// ErrUnknownResource is returned when a resource name was never
// registered with the coordinator.
var ErrUnknownResource = errors.New("unknown resource")

// Coordinator purges cached reads after writes commit. Each registered
// resource maps to its own key prefix plus any secondary views whose
// cached listings are derived from the same documents. Secondary views
// are explicit configuration: they cannot be inferred from key shapes.
type Coordinator struct {
	store     cache.Store
	log       *logrus.Logger
	resources map[string][]string
}

func NewCoordinator(store cache.Store, log *logrus.Logger) *Coordinator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Coordinator{
		store:     store,
		log:       log,
		resources: map[string][]string{},
	}
}

// NewDefault returns a coordinator with the content resources and their
// secondary views registered.
func NewDefault(store cache.Store, log *logrus.Logger) *Coordinator {
	c := NewCoordinator(store, log)
	c.Register("projects")
	c.Register("blog", "blog/categories", "blog/tags")
	c.Register("skills", "skills/categories")
	c.Register("profile")
	return c
}

// Register adds a resource and the secondary views purged alongside it.
// Registering the same resource again replaces its view list.
func (c *Coordinator) Register(resource string, secondary ...string) {
	c.resources[resource] = append([]string(nil), secondary...)
}

// Resources returns the registered resource names, sorted.
func (c *Coordinator) Resources() []string {
	names := make([]string, 0, len(c.resources))
	for name := range c.resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InvalidateResource purges every cached read under the resource and
// its secondary views, returning how many entries were removed. A
// failed prefix does not stop the remaining ones; the first error is
// reported after all prefixes were attempted. Purging an already-clean
// resource is a no-op.
func (c *Coordinator) InvalidateResource(ctx context.Context, resource string) (int, error) {
	secondary, ok := c.resources[resource]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknownResource, resource)
	}

	total := 0
	var firstErr error
	for _, fragment := range append([]string{resource}, secondary...) {
		n, err := c.store.DeleteByPrefix(ctx, cache.ReadPrefix(fragment))
		total += n
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	metrics.InvalidatedKeys.WithLabelValues(resource).Add(float64(total))
	if firstErr != nil {
		metrics.InvalidationErrors.WithLabelValues(resource).Inc()
		c.log.WithError(firstErr).WithField("resource", resource).Warn("cache invalidation incomplete")
		return total, firstErr
	}
	c.log.WithFields(logrus.Fields{"resource": resource, "keys": total}).Debug("cache invalidated")
	return total, nil
}

// OnCommit runs commit and, only after it succeeds, purges the
// resource. An invalidation failure is logged and swallowed: the
// committed write stands either way, and stale entries age out by TTL.
// An unknown resource is rejected before commit runs.
func (c *Coordinator) OnCommit(ctx context.Context, resource string, commit func(ctx context.Context) error) error {
	if _, ok := c.resources[resource]; !ok {
		return fmt.Errorf("%w %q", ErrUnknownResource, resource)
	}
	if err := commit(ctx); err != nil {
		return err
	}
	_, _ = c.InvalidateResource(ctx, resource)
	return nil
}
