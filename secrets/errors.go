package secrets

import (
	stderrors "errors"
	"fmt"

	"github.com/bcit-ltc/forge-pipeline/errors"
)

// Sentinel errors matched with errors.Is.
var (
	// ErrSecretNotFound indicates that the secret does not exist in the provider.
	ErrSecretNotFound = stderrors.New("secret not found")

	// ErrAccessDenied indicates missing permissions for the secret.
	ErrAccessDenied = stderrors.New("access denied")

	// ErrInvalidRef indicates a malformed SecretRef.
	ErrInvalidRef = stderrors.New("invalid secret reference")

	// ErrProviderNotFound indicates that no provider is registered under the name.
	ErrProviderNotFound = stderrors.New("provider not registered")
)

// ProviderError wraps a provider failure with the provider name and secret
// path. The secret value is never part of the message.
type ProviderError struct {
	Provider string
	Path     string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %q: secret %q: %v", e.Provider, e.Path, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Code implements errors.Coder.
func (e *ProviderError) Code() errors.ErrorCode {
	switch {
	case stderrors.Is(e.Err, ErrSecretNotFound), stderrors.Is(e.Err, ErrProviderNotFound):
		return errors.CodeNotFound
	case stderrors.Is(e.Err, ErrAccessDenied):
		return errors.CodeForbidden
	case stderrors.Is(e.Err, ErrInvalidRef):
		return errors.CodeInvalidInput
	default:
		return errors.CodeUnavailable
	}
}
