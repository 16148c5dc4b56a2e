// Package env resolves secrets from environment variables.
//
// A SecretRef path is turned into a variable name by upper-casing it and
// replacing every character outside [A-Z0-9_] with "_", so "ci/registry-token"
// reads CI_REGISTRY_TOKEN. Versions are not supported.
package env

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/bcit-ltc/forge-pipeline/secrets"
)

// Provider reads secrets from the process environment.
type Provider struct {
	prefix string
	lookup func(string) (string, bool)
}

// Option configures a Provider.
type Option func(*Provider)

// WithPrefix prepends prefix to every variable name.
func WithPrefix(prefix string) Option {
	return func(p *Provider) {
		p.prefix = prefix
	}
}

// WithLookup replaces os.LookupEnv.
func WithLookup(fn func(string) (string, bool)) Option {
	return func(p *Provider) {
		if fn != nil {
			p.lookup = fn
		}
	}
}

// New creates a Provider.
func New(opts ...Option) *Provider {
	p := &Provider{lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns "env".
func (p *Provider) Name() string { return "env" }

// VarName returns the environment variable read for path.
func (p *Provider) VarName(path string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(p.prefix + path) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Resolve reads the variable for ref.Path. Unset and empty variables are
// reported as not found.
func (p *Provider) Resolve(_ context.Context, ref secrets.SecretRef) (*secrets.Secret, error) {
	if ref.Path == "" {
		return nil, fmt.Errorf("empty path: %w", secrets.ErrInvalidRef)
	}
	if ref.Version != "" {
		return nil, fmt.Errorf("versions are not supported: %w", secrets.ErrInvalidRef)
	}
	name := p.VarName(ref.Path)
	value, ok := p.lookup(name)
	if !ok || value == "" {
		return nil, fmt.Errorf("%s: %w", name, secrets.ErrSecretNotFound)
	}
	return &secrets.Secret{Value: []byte(value)}, nil
}

// Exists reports whether the variable for ref.Path is set and non-empty.
func (p *Provider) Exists(_ context.Context, ref secrets.SecretRef) (bool, error) {
	if ref.Path == "" {
		return false, fmt.Errorf("empty path: %w", secrets.ErrInvalidRef)
	}
	value, ok := p.lookup(p.VarName(ref.Path))
	return ok && value != "", nil
}

// Close is a no-op.
func (p *Provider) Close() error { return nil }
