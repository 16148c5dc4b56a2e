package secrets

import "context"

// Provider is a secret backend registered with a Manager under Name.
// Pipeline credentials select "env" or "aws"; "memory" backs tests.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, ref SecretRef) (*Secret, error)
	// Exists checks that ref resolves without materializing the value.
	Exists(ctx context.Context, ref SecretRef) (bool, error)
	Close() error
}
