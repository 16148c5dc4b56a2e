package secrets

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Config configures a Manager.
type Config struct {
	// DefaultProvider is used by Resolve and Exists.
	DefaultProvider string

	// AutoClear is applied to every resolved secret.
	AutoClear bool

	// Logger receives access records. Values are never logged.
	Logger *slog.Logger
}

// Manager resolves secrets across registered providers. It is safe for
// concurrent use.
type Manager struct {
	mu              sync.RWMutex
	providers       map[string]Provider
	defaultProvider string
	autoClear       bool
	logger          *slog.Logger
}

// NewManager creates a Manager. A nil config yields an empty manager without
// a default provider.
func NewManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = &Config{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		providers:       make(map[string]Provider),
		defaultProvider: cfg.DefaultProvider,
		autoClear:       cfg.AutoClear,
		logger:          logger,
	}
}

// RegisterProvider adds p under p.Name(). Names must be unique.
func (m *Manager) RegisterProvider(p Provider) error {
	if p == nil {
		return fmt.Errorf("provider cannot be nil")
	}
	name := p.Name()
	if name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.providers[name]; exists {
		return fmt.Errorf("provider with name %q already registered", name)
	}
	m.providers[name] = p
	return nil
}

// Providers returns the registered provider names in sorted order.
func (m *Manager) Providers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve resolves ref with the default provider.
func (m *Manager) Resolve(ctx context.Context, ref SecretRef) (*Secret, error) {
	return m.ResolveFrom(ctx, m.defaultProvider, ref)
}

// ResolveFrom resolves ref with the named provider.
func (m *Manager) ResolveFrom(ctx context.Context, providerName string, ref SecretRef) (*Secret, error) {
	p, err := m.provider(providerName, ref)
	if err != nil {
		return nil, err
	}
	if ref.Path == "" {
		return nil, &ProviderError{Provider: providerName, Err: ErrInvalidRef}
	}

	secret, err := p.Resolve(ctx, ref)
	m.logger.Debug("secret access", "provider", providerName, "path", ref.Path, "ok", err == nil)
	if err != nil {
		var pe *ProviderError
		if stderrors.As(err, &pe) {
			return nil, err
		}
		return nil, &ProviderError{Provider: providerName, Path: ref.Path, Err: err}
	}

	secret.AutoClear = m.autoClear
	return secret, nil
}

// Exists checks ref with the default provider.
func (m *Manager) Exists(ctx context.Context, ref SecretRef) (bool, error) {
	return m.ExistsFrom(ctx, m.defaultProvider, ref)
}

// ExistsFrom checks ref with the named provider.
func (m *Manager) ExistsFrom(ctx context.Context, providerName string, ref SecretRef) (bool, error) {
	p, err := m.provider(providerName, ref)
	if err != nil {
		return false, err
	}
	ok, err := p.Exists(ctx, ref)
	if err != nil {
		return false, &ProviderError{Provider: providerName, Path: ref.Path, Err: err}
	}
	return ok, nil
}

//nolint:ireturn // registry lookup
func (m *Manager) provider(name string, ref SecretRef) (Provider, error) {
	if name == "" {
		return nil, &ProviderError{Path: ref.Path, Err: fmt.Errorf("no provider selected: %w", ErrProviderNotFound)}
	}
	m.mu.RLock()
	p, ok := m.providers[name]
	m.mu.RUnlock()
	if !ok {
		return nil, &ProviderError{Provider: name, Path: ref.Path, Err: ErrProviderNotFound}
	}
	return p, nil
}

// Close closes every provider and empties the registry.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for name, p := range m.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close provider %q: %w", name, err))
		}
	}
	m.providers = make(map[string]Provider)
	return stderrors.Join(errs...)
}
