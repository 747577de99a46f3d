package config

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	secretmanager "google.golang.org/api/secretmanager/v1"
)

// ParamSource fetches a named parameter value.
type ParamSource interface {
	Get(ctx context.Context, name string) (string, error)
}

// SecretManagerSource reads parameters from Google Secret Manager.
// Names are full version resource names
// (projects/{p}/secrets/{s}/versions/{v}).
type SecretManagerSource struct {
	svc *secretmanager.Service
}

// NewSecretManagerSource creates a Secret Manager backed source.
func NewSecretManagerSource(ctx context.Context) (*SecretManagerSource, error) {
	svc, err := secretmanager.NewService(ctx)
	if err != nil {
		return nil, fmt.Errorf("config: create secretmanager service: %w", err)
	}
	return &SecretManagerSource{svc: svc}, nil
}

// Get accesses a secret version and returns its payload.
func (s *SecretManagerSource) Get(ctx context.Context, name string) (string, error) {
	resp, err := s.svc.Projects.Secrets.Versions.Access(name).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("config: accessing secret %s: %w", name, err)
	}
	data, err := base64.StdEncoding.DecodeString(resp.Payload.Data)
	if err != nil {
		return "", fmt.Errorf("config: decoding secret %s payload: %w", name, err)
	}
	return string(data), nil
}

// CachedParams wraps a ParamSource with a cache that lives for the
// process lifetime. There is no invalidation: rotated secrets are picked
// up on the next cold start. Safe for concurrent use.
type CachedParams struct {
	source ParamSource

	mu     sync.Mutex
	values map[string]string
}

// NewCachedParams wraps the source with process-lifetime caching.
func NewCachedParams(source ParamSource) *CachedParams {
	return &CachedParams{source: source, values: make(map[string]string)}
}

// Get returns the cached value, fetching it on first use. Errors are not
// cached, so a transient fetch failure retries on the next call.
func (c *CachedParams) Get(ctx context.Context, name string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.values[name]; ok {
		return v, nil
	}

	v, err := c.source.Get(ctx, name)
	if err != nil {
		return "", err
	}
	c.values[name] = v
	return v, nil
}
