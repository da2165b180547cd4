package discovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/surveylab/coding-service/internal/core/domain"
	"github.com/surveylab/coding-service/internal/pkg/errors"
)

// Registry holds the available discovery engines keyed by name. Unlike
// configuration-driven factories, engines carry live clients, so the
// registry is instance-scoped and wired at startup.
type Registry struct {
	mu      sync.RWMutex
	engines map[domain.EngineName]Engine
}

// NewRegistry creates an empty engine registry
func NewRegistry() *Registry {
	return &Registry{engines: make(map[domain.EngineName]Engine)}
}

// Register adds an engine under its own name
func (r *Registry) Register(engine Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[engine.Name()] = engine
}

// Get retrieves an engine by name
func (r *Registry) Get(name domain.EngineName) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	engine, exists := r.engines[name]
	if !exists {
		return nil, fmt.Errorf("discovery engine '%s' not found. Available: %v", name, r.listLocked())
	}
	return engine, nil
}

// ListAvailable returns the registered engine names
func (r *Registry) ListAvailable() []domain.EngineName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked()
}

func (r *Registry) listLocked() []domain.EngineName {
	names := make([]domain.EngineName, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	return names
}

// Discover dispatches to the named engine. Satisfies the resolution
// pipeline's discovery dependency.
func (r *Registry) Discover(ctx context.Context, engine domain.EngineName, texts []string, maxCodes, sampleSize int) ([]domain.CodeDefinition, error) {
	e, err := r.Get(engine)
	if err != nil {
		return nil, errors.DiscoveryFailed(err, string(engine))
	}
	return e.Discover(ctx, texts, maxCodes, sampleSize)
}
