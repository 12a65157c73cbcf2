package breaker

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Moof29/batchly/internal/config"
)

// SurfaceAuthRefresh guards the credential refresh endpoint so a degraded
// auth service cannot cause a refresh storm.
const SurfaceAuthRefresh = "auth_refresh"

// Registry hands out one independent breaker per API surface.
type Registry struct {
	cfg    *config.BreakerConfig
	logger *logrus.Logger
	opts   []Option

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry creates a breaker registry.
func NewRegistry(cfg *config.BreakerConfig, logger *logrus.Logger, opts ...Option) *Registry {
	return &Registry{
		cfg:      cfg,
		logger:   logger,
		opts:     opts,
		breakers: make(map[string]*Breaker),
	}
}

// For returns the breaker for a surface, creating it on first use.
func (r *Registry) For(surface string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[surface]; ok {
		return b
	}
	b := New(surface, r.cfg, r.logger, r.opts...)
	r.breakers[surface] = b
	return b
}

// States returns a snapshot of every known surface's state.
func (r *Registry) States() map[string]State {
	r.mu.Lock()
	defer r.mu.Unlock()

	states := make(map[string]State, len(r.breakers))
	for surface, b := range r.breakers {
		states[surface] = b.State()
	}
	return states
}
