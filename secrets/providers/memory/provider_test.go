package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcit-ltc/forge-pipeline/secrets"
)

func TestMemoryProvider_StoreResolve(t *testing.T) {
	p := New()
	ctx := context.Background()

	tests := []struct {
		name  string
		store secrets.SecretRef
		get   secrets.SecretRef
		value string
	}{
		{"latest", secrets.SecretRef{Path: "ci/token"}, secrets.SecretRef{Path: "ci/token"}, "t1"},
		{"explicit version", secrets.SecretRef{Path: "ci/pass", Version: "v2"}, secrets.SecretRef{Path: "ci/pass", Version: "v2"}, "p2"},
		{"version updates latest", secrets.SecretRef{Path: "ci/key", Version: "v3"}, secrets.SecretRef{Path: "ci/key"}, "k3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, p.Store(ctx, tt.store, []byte(tt.value)))
			s, err := p.Resolve(ctx, tt.get)
			require.NoError(t, err)
			assert.Equal(t, tt.value, s.String())
		})
	}
}

func TestMemoryProvider_ResolveReturnsCopy(t *testing.T) {
	p := New()
	ctx := context.Background()
	ref := secrets.SecretRef{Path: "ci/token"}
	require.NoError(t, p.Store(ctx, ref, []byte("secret")))

	s, err := p.Resolve(ctx, ref)
	require.NoError(t, err)
	s.Clear()

	again, err := p.Resolve(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "secret", again.String())
}

func TestMemoryProvider_Errors(t *testing.T) {
	p := New()
	ctx := context.Background()

	_, err := p.Resolve(ctx, secrets.SecretRef{Path: "missing"})
	require.ErrorIs(t, err, secrets.ErrSecretNotFound)

	require.ErrorIs(t, p.Store(ctx, secrets.SecretRef{}, []byte("x")), secrets.ErrInvalidRef)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = p.Resolve(cancelled, secrets.SecretRef{Path: "missing"})
	require.ErrorIs(t, err, context.Canceled)
}

func TestMemoryProvider_Close(t *testing.T) {
	p := New()
	ctx := context.Background()
	ref := secrets.SecretRef{Path: "ci/token"}
	require.NoError(t, p.Store(ctx, ref, []byte("secret")))

	ok, err := p.Exists(ctx, ref)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, p.Close())
	ok, err = p.Exists(ctx, ref)
	require.NoError(t, err)
	assert.False(t, ok)
}
