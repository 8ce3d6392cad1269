package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"sort"
	"sync"
)

// Registry dispatches Dial calls to the Dialer registered for the broker
// URL's scheme. It is itself a Dialer.
type Registry struct {
	mu      sync.RWMutex
	dialers map[string]Dialer
}

func NewRegistry() *Registry {
	return &Registry{dialers: make(map[string]Dialer)}
}

// Register binds d to every scheme in schemes, replacing earlier bindings.
func (r *Registry) Register(d Dialer, schemes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range schemes {
		r.dialers[s] = d
	}
}

// Schemes lists the registered schemes in sorted order.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.dialers))
	for s := range r.dialers {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Dial(ctx context.Context, endpoint Endpoint, tlsCfg *tls.Config) (Connection, error) {
	scheme := endpoint.Scheme()

	r.mu.RLock()
	d, ok := r.dialers[scheme]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q in %s", ErrUnsupportedScheme, scheme, endpoint.BrokerURL)
	}
	return d.Dial(ctx, endpoint, tlsCfg)
}
