package editstate

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// BlobScheme prefixes URIs minted by a BlobRegistry.
const BlobScheme = "blob:embedpool/"

// BlobRegistry maps opaque blob URIs to payloads for the page session.
type BlobRegistry struct {
	mu    sync.RWMutex
	blobs map[string]string
}

// NewBlobRegistry creates an empty registry.
func NewBlobRegistry() *BlobRegistry {
	return &BlobRegistry{blobs: make(map[string]string)}
}

// Put stores payload under a fresh URI.
func (r *BlobRegistry) Put(payload string) string {
	uri := BlobScheme + uuid.NewString()
	r.mu.Lock()
	r.blobs[uri] = payload
	r.mu.Unlock()
	return uri
}

// Resolve returns the payload behind uri.
func (r *BlobRegistry) Resolve(uri string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.blobs[uri]
	return v, ok
}

// Revoke releases uri. Unknown URIs are ignored.
func (r *BlobRegistry) Revoke(uri string) {
	r.mu.Lock()
	delete(r.blobs, uri)
	r.mu.Unlock()
}

// Len returns the number of live blobs.
func (r *BlobRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blobs)
}

// ReplaceURLParam sets param to value in the query of rawURL, keeping the
// order of other parameters and any fragment. The parameter is appended when
// absent.
func ReplaceURLParam(rawURL, param, value string) string {
	base, fragment, hasFragment := strings.Cut(rawURL, "#")
	path, query, _ := strings.Cut(base, "?")

	escaped := fmt.Sprintf("%s=%s", param, url.QueryEscape(value))
	var parts []string
	replaced := false
	if query != "" {
		for _, kv := range strings.Split(query, "&") {
			key, _, _ := strings.Cut(kv, "=")
			if key == param && !replaced {
				parts = append(parts, escaped)
				replaced = true
				continue
			}
			parts = append(parts, kv)
		}
	}
	if !replaced {
		parts = append(parts, escaped)
	}

	out := path + "?" + strings.Join(parts, "&")
	if hasFragment {
		out += "#" + fragment
	}
	return out
}

// URLParam returns the unescaped value of param in rawURL.
func URLParam(rawURL, param string) (string, bool) {
	base, _, _ := strings.Cut(rawURL, "#")
	_, query, ok := strings.Cut(base, "?")
	if !ok {
		return "", false
	}
	for _, kv := range strings.Split(query, "&") {
		key, val, _ := strings.Cut(kv, "=")
		if key == param {
			if v, err := url.QueryUnescape(val); err == nil {
				return v, true
			}
			return val, true
		}
	}
	return "", false
}
