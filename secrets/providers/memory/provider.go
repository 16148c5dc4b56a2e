// Package memory provides an in-memory secret provider for tests and local runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/bcit-ltc/forge-pipeline/secrets"
)

// latestVersion keys the value returned when no version is requested.
const latestVersion = "latest"

// Provider is a thread-safe in-memory secret store.
type Provider struct {
	mu    sync.RWMutex
	store map[string]map[string][]byte
}

// New creates an empty provider.
func New() *Provider {
	return &Provider{store: make(map[string]map[string][]byte)}
}

// Name returns "memory".
func (p *Provider) Name() string { return "memory" }

// Store saves value under ref. An empty version updates the latest value.
func (p *Provider) Store(_ context.Context, ref secrets.SecretRef, value []byte) error {
	if ref.Path == "" {
		return fmt.Errorf("store: %w", secrets.ErrInvalidRef)
	}
	version := ref.Version
	if version == "" {
		version = latestVersion
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	versions, ok := p.store[ref.Path]
	if !ok {
		versions = make(map[string][]byte)
		p.store[ref.Path] = versions
	}
	versions[version] = append([]byte(nil), value...)
	if version != latestVersion {
		versions[latestVersion] = append([]byte(nil), value...)
	}
	return nil
}

// Resolve returns a copy of the stored value.
func (p *Provider) Resolve(ctx context.Context, ref secrets.SecretRef) (*secrets.Secret, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("resolve cancelled: %w", err)
	}
	version := ref.Version
	if version == "" {
		version = latestVersion
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	value, ok := p.store[ref.Path][version]
	if !ok {
		return nil, fmt.Errorf("%q: %w", ref.Path, secrets.ErrSecretNotFound)
	}
	return &secrets.Secret{Value: append([]byte(nil), value...), Version: ref.Version}, nil
}

// Exists reports whether ref is stored.
func (p *Provider) Exists(_ context.Context, ref secrets.SecretRef) (bool, error) {
	version := ref.Version
	if version == "" {
		version = latestVersion
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.store[ref.Path][version]
	return ok, nil
}

// Close zeroes and drops every stored value.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for path, versions := range p.store {
		for v, value := range versions {
			for i := range value {
				value[i] = 0
			}
			delete(versions, v)
		}
		delete(p.store, path)
	}
	return nil
}
