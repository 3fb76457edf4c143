package engine

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps dispatch keys to action handlers. Registration is explicit;
// there is no package-level default registry.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

// Register binds a handler to a key. Re-registering a key replaces the
// previous handler.
func (r *Registry) Register(key string, h Handler) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("registry: empty key")
	}
	if strings.Contains(key, ":") {
		return fmt.Errorf("registry: key %q may not contain ':'", key)
	}
	if h == nil {
		return fmt.Errorf("registry: nil handler for %q", key)
	}
	r.mu.Lock()
	r.handlers[key] = h
	r.mu.Unlock()
	return nil
}

// Lookup resolves a key to its handler.
func (r *Registry) Lookup(key string) (Handler, bool) {
	r.mu.RLock()
	h, ok := r.handlers[key]
	r.mu.RUnlock()
	return h, ok
}

// Keys returns the registered keys, sorted. Used by UIs listing available
// actions.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}
