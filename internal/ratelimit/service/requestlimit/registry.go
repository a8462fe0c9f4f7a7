package requestlimit

import (
	"context"
	"fmt"

	"authcore/internal/platform/kvstore"
	"authcore/internal/ratelimit/config"
	"authcore/internal/ratelimit/models"
	dErrors "authcore/pkg/domain-errors"
)

// Registry holds one limiter per configured namespace.
type Registry struct {
	services   map[string]*Service
	namespaces []string
}

// NewRegistry builds a limiter for every namespace in cfg, all backed by store.
func NewRegistry(cfg *config.Config, store kvstore.Store, opts ...Option) (*Registry, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	r := &Registry{services: make(map[string]*Service, len(cfg.Limits))}
	for _, ns := range cfg.Namespaces() {
		svc, err := New(ns, cfg.Limits[ns], store, opts...)
		if err != nil {
			return nil, fmt.Errorf("rate limiter %q: %w", ns, err)
		}
		r.services[ns] = svc
		r.namespaces = append(r.namespaces, ns)
	}
	return r, nil
}

// Get returns the limiter for namespace.
func (r *Registry) Get(namespace string) (*Service, bool) {
	svc, ok := r.services[namespace]
	return svc, ok
}

// Namespaces lists registered namespaces in sorted order.
func (r *Registry) Namespaces() []string {
	return append([]string(nil), r.namespaces...)
}

// Status looks up the bucket view in namespace. Unknown namespaces are CodeNotFound.
func (r *Registry) Status(ctx context.Context, namespace, identifier, endpoint string) (*models.RateLimitStatus, error) {
	svc, err := r.lookup(namespace)
	if err != nil {
		return nil, err
	}
	return svc.Status(ctx, identifier, endpoint)
}

// Reset clears one bucket in namespace.
func (r *Registry) Reset(ctx context.Context, namespace, identifier, endpoint string) error {
	svc, err := r.lookup(namespace)
	if err != nil {
		return err
	}
	return svc.Reset(ctx, identifier, endpoint)
}

func (r *Registry) lookup(namespace string) (*Service, error) {
	svc, ok := r.services[namespace]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("unknown rate limit namespace %q", namespace))
	}
	return svc, nil
}

func (r *Registry) Auth() *Service    { return r.services[config.NamespaceAuth] }
func (r *Registry) API() *Service     { return r.services[config.NamespaceAPI] }
func (r *Registry) Upload() *Service  { return r.services[config.NamespaceUpload] }
func (r *Registry) Comment() *Service { return r.services[config.NamespaceComment] }

// SweepExpired sweeps every namespace and returns the total removed.
func (r *Registry) SweepExpired(ctx context.Context) (int, error) {
	total := 0
	for _, ns := range r.namespaces {
		n, err := r.services[ns].SweepExpired(ctx)
		total += n
		if err != nil {
			return total, fmt.Errorf("sweep %s: %w", ns, err)
		}
	}
	return total, nil
}
