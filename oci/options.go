package oci

import (
	"context"
	"log/slog"
	"time"

	"oras.land/oras-go/v2"

	orasint "github.com/bcit-ltc/forge-pipeline/oci/internal/oras"
)

// TargetFactory returns the ORAS target for a repository path such as
// "ghcr.io/org/charts/web".
type TargetFactory func(ctx context.Context, repository string) (oras.Target, error)

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

type clientOptions struct {
	auth          orasint.AuthOptions
	targetFactory TargetFactory
	maxAttempts   int
	retryDelay    time.Duration
	timeout       time.Duration
	logger        *slog.Logger
}

func defaultClientOptions() *clientOptions {
	return &clientOptions{
		auth:        orasint.AuthOptions{UserAgent: "forge-pipeline"},
		maxAttempts: 3,
		retryDelay:  time.Second,
		timeout:     5 * time.Minute,
		logger:      slog.New(slog.DiscardHandler),
	}
}

// WithStaticAuth sets username/password credentials for one registry.
func WithStaticAuth(registry, username, password string) ClientOption {
	return func(o *clientOptions) {
		o.auth.CredentialFunc = orasint.StaticCredentials(registry, username, password)
	}
}

// WithCredentialFunc sets a custom credential resolver.
func WithCredentialFunc(fn orasint.CredentialFunc) ClientOption {
	return func(o *clientOptions) {
		o.auth.CredentialFunc = fn
	}
}

// WithPlainHTTP marks registries reached over plain HTTP.
func WithPlainHTTP(registries ...string) ClientOption {
	return func(o *clientOptions) {
		o.auth.PlainHTTP = append(o.auth.PlainHTTP, registries...)
	}
}

// WithTargetFactory replaces the remote repository factory.
func WithTargetFactory(f TargetFactory) ClientOption {
	return func(o *clientOptions) {
		o.targetFactory = f
	}
}

// WithRetry sets the number of attempts and the initial delay between them.
// The delay doubles after every failed attempt.
func WithRetry(attempts int, delay time.Duration) ClientOption {
	return func(o *clientOptions) {
		if attempts > 0 {
			o.maxAttempts = attempts
		}
		if delay >= 0 {
			o.retryDelay = delay
		}
	}
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(o *clientOptions) {
		if l != nil {
			o.logger = l
		}
	}
}
