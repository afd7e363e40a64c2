package httpx

import (
	"context"
	"net/http"
	"net/url"

	"github.com/52poke/raikou/internal/cache"
)

// Request carries the parts of a read request the cache layer inspects.
// Everything else about the request stays with the handler.
type Request struct {
	Method        string
	Path          string
	Query         url.Values
	Authenticated bool
}

// Handler produces the result for a read request. The error return is
// for transport-level failure; a served-but-unsuccessful response is a
// Result with OK false.
type Handler func(ctx context.Context, req Request) (Result, error)

// FromHTTP extracts a Request from an incoming HTTP request. The caller
// supplies the verdict of its own auth layer.
func FromHTTP(r *http.Request, authenticated bool) Request {
	return Request{
		Method:        r.Method,
		Path:          r.URL.Path,
		Query:         r.URL.Query(),
		Authenticated: authenticated,
	}
}

// Key returns the cache key this request reads from and fills.
func (r Request) Key() string {
	return cache.RequestKey(r.Method, r.Path, r.Query)
}
