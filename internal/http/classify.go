package httpx

import (
	"net/http"
	"strings"
)

// Bypass reasons, used as log fields and metric labels.
const (
	ReasonMethod        = "method-not-get"
	ReasonAuthenticated = "authenticated"
	ReasonAdminPath     = "admin-path"
	ReasonUnavailable   = "store-unavailable"
)

type RequestInfo struct {
	Cacheable bool
	Reason    string
}

// Classify decides whether a read request may be served from cache.
// Mutating methods, authenticated requests and admin surfaces always go
// straight to the handler.
func Classify(req Request) RequestInfo {
	if req.Method != http.MethodGet {
		return RequestInfo{Reason: ReasonMethod}
	}
	if req.Authenticated {
		return RequestInfo{Reason: ReasonAuthenticated}
	}
	if isAdminPath(req.Path) {
		return RequestInfo{Reason: ReasonAdminPath}
	}
	return RequestInfo{Cacheable: true}
}

func isAdminPath(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "admin" {
			return true
		}
	}
	return false
}
