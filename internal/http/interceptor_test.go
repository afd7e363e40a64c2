package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// fakeStore is an in-memory cache.Store that counts accesses.
type fakeStore struct {
	mu        sync.Mutex
	entries   map[string][]byte
	ttls      map[string]time.Duration
	available bool
	failSet   error
	gets      int
	sets      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entries:   map[string][]byte{},
		ttls:      map[string]time.Duration{},
		available: true,
	}
}

func (f *fakeStore) Get(ctx context.Context, key string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	v, ok := f.entries[key]
	return v, ok
}

func (f *fakeStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSet != nil {
		return f.failSet
	}
	f.sets++
	f.entries[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	deleted := 0
	for k := range f.entries {
		if strings.HasPrefix(k, prefix) {
			delete(f.entries, k)
			deleted++
		}
	}
	return deleted, nil
}

func (f *fakeStore) Available(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

func (f *fakeStore) counts() (gets, sets int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets, f.sets
}

type stubHandler struct {
	mu    sync.Mutex
	calls int
	res   Result
	err   error
	delay time.Duration
}

func (s *stubHandler) handle(ctx context.Context, req Request) (Result, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.res, s.err
}

func (s *stubHandler) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestInterceptor(store *fakeStore, opts ...Option) *Interceptor {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewInterceptor(store, log, opts...)
}

func payloadJSON(t *testing.T, res Result) string {
	t.Helper()
	raw, err := json.Marshal(res.Payload)
	require.NoError(t, err)
	return string(raw)
}

func TestInterceptMissThenHit(t *testing.T) {
	store := newFakeStore()
	ic := newTestInterceptor(store)
	stub := &stubHandler{res: OKResult(map[string]any{"id": 7})}
	req := Request{Method: http.MethodGet, Path: "/api/blog/7"}
	ctx := context.Background()

	first, err := ic.Intercept(ctx, req, time.Hour, stub.handle)
	require.NoError(t, err)
	assert.True(t, first.OK)
	assert.Equal(t, 1, stub.callCount())

	second, err := ic.Intercept(ctx, req, time.Hour, stub.handle)
	require.NoError(t, err)
	assert.True(t, second.OK)
	assert.Equal(t, 1, stub.callCount())
	assert.JSONEq(t, payloadJSON(t, first), payloadJSON(t, second))

	_, sets := store.counts()
	assert.Equal(t, 1, sets)
}

func TestInterceptDistinctQueriesDistinctEntries(t *testing.T) {
	store := newFakeStore()
	ic := newTestInterceptor(store)
	stub := &stubHandler{res: OKResult("page")}
	ctx := context.Background()

	page1 := Request{Method: http.MethodGet, Path: "/api/blog", Query: map[string][]string{"page": {"1"}}}
	page2 := Request{Method: http.MethodGet, Path: "/api/blog", Query: map[string][]string{"page": {"2"}}}

	_, err := ic.Intercept(ctx, page1, time.Hour, stub.handle)
	require.NoError(t, err)
	_, err = ic.Intercept(ctx, page2, time.Hour, stub.handle)
	require.NoError(t, err)
	assert.Equal(t, 2, stub.callCount())

	_, err = ic.Intercept(ctx, page1, time.Hour, stub.handle)
	require.NoError(t, err)
	assert.Equal(t, 2, stub.callCount())
}

func TestInterceptBypass(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"mutating method", Request{Method: http.MethodPost, Path: "/api/blog"}},
		{"authenticated", Request{Method: http.MethodGet, Path: "/api/blog", Authenticated: true}},
		{"admin path", Request{Method: http.MethodGet, Path: "/api/admin/posts"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			ic := newTestInterceptor(store)
			stub := &stubHandler{res: OKResult("x")}
			ctx := context.Background()

			for range 2 {
				res, err := ic.Intercept(ctx, tt.req, time.Hour, stub.handle)
				require.NoError(t, err)
				assert.True(t, res.OK)
			}

			// Both requests reach the handler, the store is untouched.
			assert.Equal(t, 2, stub.callCount())
			gets, sets := store.counts()
			assert.Zero(t, gets)
			assert.Zero(t, sets)
		})
	}
}

func TestInterceptBypassWhenStoreDown(t *testing.T) {
	store := newFakeStore()
	store.available = false
	ic := newTestInterceptor(store)
	stub := &stubHandler{res: OKResult("x")}

	res, err := ic.Intercept(context.Background(), Request{Method: http.MethodGet, Path: "/api/blog"}, time.Hour, stub.handle)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, 1, stub.callCount())

	gets, sets := store.counts()
	assert.Zero(t, gets)
	assert.Zero(t, sets)
}

func TestInterceptFailedResultNotCached(t *testing.T) {
	store := newFakeStore()
	ic := newTestInterceptor(store)
	stub := &stubHandler{res: FailedResult(map[string]any{"error": "not found"})}
	req := Request{Method: http.MethodGet, Path: "/api/blog/404"}
	ctx := context.Background()

	res, err := ic.Intercept(ctx, req, time.Hour, stub.handle)
	require.NoError(t, err)
	assert.False(t, res.OK)

	_, err = ic.Intercept(ctx, req, time.Hour, stub.handle)
	require.NoError(t, err)
	assert.Equal(t, 2, stub.callCount())

	_, sets := store.counts()
	assert.Zero(t, sets)
}

func TestInterceptHandlerErrorNotCached(t *testing.T) {
	store := newFakeStore()
	ic := newTestInterceptor(store)
	stub := &stubHandler{err: errors.New("db gone")}
	req := Request{Method: http.MethodGet, Path: "/api/blog"}

	_, err := ic.Intercept(context.Background(), req, time.Hour, stub.handle)
	assert.Error(t, err)

	_, sets := store.counts()
	assert.Zero(t, sets)
}

func TestInterceptUnserializableResultServed(t *testing.T) {
	store := newFakeStore()
	ic := newTestInterceptor(store)
	stub := &stubHandler{res: OKResult(make(chan int))}
	req := Request{Method: http.MethodGet, Path: "/api/blog"}

	res, err := ic.Intercept(context.Background(), req, time.Hour, stub.handle)
	require.NoError(t, err)
	assert.True(t, res.OK)

	_, sets := store.counts()
	assert.Zero(t, sets)
}

func TestInterceptCorruptEntryRefilled(t *testing.T) {
	store := newFakeStore()
	ic := newTestInterceptor(store)
	stub := &stubHandler{res: OKResult(map[string]any{"id": 1})}
	req := Request{Method: http.MethodGet, Path: "/api/blog/1"}
	ctx := context.Background()

	store.entries[req.Key()] = []byte("not json at all")

	res, err := ic.Intercept(ctx, req, time.Hour, stub.handle)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, 1, stub.callCount())

	// The fill overwrote the corrupt entry, so the next read hits.
	_, err = ic.Intercept(ctx, req, time.Hour, stub.handle)
	require.NoError(t, err)
	assert.Equal(t, 1, stub.callCount())
}

func TestInterceptSetFailureStillServes(t *testing.T) {
	store := newFakeStore()
	store.failSet = errors.New("write refused")
	ic := newTestInterceptor(store)
	stub := &stubHandler{res: OKResult("x")}

	res, err := ic.Intercept(context.Background(), Request{Method: http.MethodGet, Path: "/api/blog"}, time.Hour, stub.handle)
	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestInterceptTTLPassedThrough(t *testing.T) {
	store := newFakeStore()
	ic := newTestInterceptor(store)
	stub := &stubHandler{res: OKResult("x")}
	req := Request{Method: http.MethodGet, Path: "/api/blog/categories"}

	_, err := ic.Intercept(context.Background(), req, 2*time.Hour, stub.handle)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, store.ttls[req.Key()])
}

func TestInterceptZeroTTLSkipsStore(t *testing.T) {
	store := newFakeStore()
	ic := newTestInterceptor(store)
	stub := &stubHandler{res: OKResult("x")}

	res, err := ic.Intercept(context.Background(), Request{Method: http.MethodGet, Path: "/api/blog"}, 0, stub.handle)
	require.NoError(t, err)
	assert.True(t, res.OK)

	_, sets := store.counts()
	assert.Zero(t, sets)
}

func TestInterceptConcurrentMissesConsistentStore(t *testing.T) {
	store := newFakeStore()
	ic := newTestInterceptor(store)
	stub := &stubHandler{res: OKResult(map[string]any{"featured": true}), delay: 20 * time.Millisecond}
	req := Request{Method: http.MethodGet, Path: "/api/projects", Query: map[string][]string{"featured": {"true"}}}

	g := new(errgroup.Group)
	for range 4 {
		g.Go(func() error {
			res, err := ic.Intercept(context.Background(), req, time.Hour, stub.handle)
			if err != nil {
				return err
			}
			if !res.OK {
				return errors.New("served a failed result")
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	// Without collapsing each miss may run its own fill; whichever set
	// lands last must leave one decodable entry behind.
	assert.GreaterOrEqual(t, stub.callCount(), 1)
	raw, ok := store.Get(context.Background(), req.Key())
	require.True(t, ok)
	res, err := decodeResult(raw)
	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestInterceptCollapsing(t *testing.T) {
	store := newFakeStore()
	ic := newTestInterceptor(store, WithCollapsing())
	stub := &stubHandler{res: OKResult(map[string]any{"id": 7}), delay: 100 * time.Millisecond}
	req := Request{Method: http.MethodGet, Path: "/api/blog/7"}

	results := make([]Result, 5)
	g := new(errgroup.Group)
	for idx := range results {
		g.Go(func() error {
			res, err := ic.Intercept(context.Background(), req, time.Hour, stub.handle)
			if err != nil {
				return err
			}
			results[idx] = res
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, stub.callCount())
	for _, res := range results {
		assert.True(t, res.OK)
	}
}
