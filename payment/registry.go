package payment

import (
	"fmt"
	"sync"
)

// Registry resolves checkout payment methods and webhook provider names to
// services.
type Registry struct {
	mu        sync.RWMutex
	byMethod  map[string]Service
	providers map[string]Service
}

func NewRegistry() *Registry {
	return &Registry{
		byMethod:  make(map[string]Service),
		providers: make(map[string]Service),
	}
}

// Register binds svc to its provider name and to each payment method it
// settles.
func (r *Registry) Register(svc Service, methods ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[svc.Name()] = svc
	for _, m := range methods {
		r.byMethod[m] = svc
	}
}

func (r *Registry) ForMethod(method string) (Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.byMethod[method]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, method)
	}
	return svc, nil
}

func (r *Registry) ForProvider(name string) (Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMethod, name)
	}
	return svc, nil
}

// Supports reports whether a provider settles method.
func (r *Registry) Supports(method string) bool {
	_, err := r.ForMethod(method)
	return err == nil
}
