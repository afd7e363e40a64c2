package cache

import (
	"net/url"
	"path"
	"sort"
	"strings"
)

const apiPrefix = "/api/"

// RequestKey derives the cache key for a read request. The key is the
// upper-cased method, a colon, the cleaned path, and, when present, a
// "?" followed by the query pairs sorted by name (values sorted within
// a name) so that equivalent requests share one entry.
func RequestKey(method, rawPath string, query url.Values) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(method))
	b.WriteByte(':')
	b.WriteString(cleanPath(rawPath))
	if enc := encodeQuery(query); enc != "" {
		b.WriteByte('?')
		b.WriteString(enc)
	}
	return b.String()
}

// ReadPrefix returns the key prefix covering every cached GET under the
// given API path fragment, e.g. "blog" or "blog/categories".
func ReadPrefix(fragment string) string {
	return "GET:" + apiPrefix + strings.Trim(fragment, "/")
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func encodeQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	names := make([]string, 0, len(q))
	for name := range q {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		values := append([]string(nil), q[name]...)
		sort.Strings(values)
		for _, v := range values {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(name))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}
