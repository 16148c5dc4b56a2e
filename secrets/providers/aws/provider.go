// Package aws resolves secrets from AWS Secrets Manager.
//
// Credentials are loaded lazily through the default AWS SDK v2 chain. Errors
// are mapped onto the secrets sentinels so callers can branch on
// secrets.ErrSecretNotFound and secrets.ErrAccessDenied.
//
//	p, err := aws.New(ctx, aws.WithRegion("ca-central-1"))
//	s, err := p.Resolve(ctx, secrets.SecretRef{Path: "ci/registry-token"})
package aws

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/smithy-go"

	"github.com/bcit-ltc/forge-pipeline/secrets"
)

// SecretsManagerAPI is the subset of the Secrets Manager client the provider calls.
type SecretsManagerAPI interface {
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)
	DescribeSecret(
		ctx context.Context,
		params *secretsmanager.DescribeSecretInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.DescribeSecretOutput, error)
}

// Config holds the provider configuration.
type Config struct {
	Region     string
	MaxRetries int
	// Endpoint overrides the service endpoint (LocalStack and similar).
	Endpoint string
	// Client replaces the SDK client entirely.
	Client SecretsManagerAPI
}

// Option configures the provider.
type Option func(*Config)

// WithRegion sets the AWS region.
func WithRegion(region string) Option {
	return func(c *Config) { c.Region = region }
}

// WithMaxRetries sets the SDK retry attempts.
func WithMaxRetries(n int) Option {
	return func(c *Config) { c.MaxRetries = n }
}

// WithEndpoint sets a custom service endpoint.
func WithEndpoint(endpoint string) Option {
	return func(c *Config) { c.Endpoint = endpoint }
}

// WithClient injects a client, bypassing AWS configuration loading.
func WithClient(client SecretsManagerAPI) Option {
	return func(c *Config) { c.Client = client }
}

// Provider reads secrets from AWS Secrets Manager. It is safe for concurrent use.
type Provider struct {
	client SecretsManagerAPI
}

// New creates a provider, loading the default AWS configuration unless a
// client was injected.
func New(ctx context.Context, opts ...Option) (*Provider, error) {
	cfg := &Config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Client != nil {
		return &Provider{client: cfg.Client}, nil
	}

	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.MaxRetries > 0 {
		loadOpts = append(loadOpts, config.WithRetryMaxAttempts(cfg.MaxRetries))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := secretsmanager.NewFromConfig(awsCfg, func(o *secretsmanager.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Provider{client: client}, nil
}

// Name returns "aws".
func (p *Provider) Name() string { return "aws" }

// Close is a no-op; SDK clients hold no resources that need releasing.
func (p *Provider) Close() error { return nil }

// Resolve fetches the secret value. ref.Version may be a version stage
// (AWSCURRENT, AWSPREVIOUS, AWSPENDING) or a version id.
func (p *Provider) Resolve(ctx context.Context, ref secrets.SecretRef) (*secrets.Secret, error) {
	if ref.Path == "" {
		return nil, fmt.Errorf("secret reference path cannot be empty: %w", secrets.ErrInvalidRef)
	}

	input := &secretsmanager.GetSecretValueInput{SecretId: aws.String(ref.Path)}
	switch {
	case ref.Version == "":
	case strings.HasPrefix(ref.Version, "AWS"):
		input.VersionStage = aws.String(ref.Version)
	default:
		input.VersionId = aws.String(ref.Version)
	}

	out, err := p.client.GetSecretValue(ctx, input)
	if err != nil {
		return nil, mapAWSError(ref, err)
	}

	var value []byte
	switch {
	case out.SecretString != nil:
		value = []byte(*out.SecretString)
	case out.SecretBinary != nil:
		value = append([]byte(nil), out.SecretBinary...)
	default:
		return nil, fmt.Errorf("secret %q has no value: %w", ref.Path, secrets.ErrSecretNotFound)
	}

	return &secrets.Secret{Value: value, Version: aws.ToString(out.VersionId)}, nil
}

// Exists reports whether the secret exists. Secrets scheduled for deletion
// count as absent.
func (p *Provider) Exists(ctx context.Context, ref secrets.SecretRef) (bool, error) {
	if ref.Path == "" {
		return false, fmt.Errorf("secret reference path cannot be empty: %w", secrets.ErrInvalidRef)
	}
	out, err := p.client.DescribeSecret(ctx, &secretsmanager.DescribeSecretInput{SecretId: aws.String(ref.Path)})
	if err != nil {
		mapped := mapAWSError(ref, err)
		if errors.Is(mapped, secrets.ErrSecretNotFound) {
			return false, nil
		}
		return false, mapped
	}
	return out.DeletedDate == nil, nil
}

// mapAWSError maps SDK errors onto the secrets sentinels.
func mapAWSError(ref secrets.SecretRef, err error) error {
	var rnf *types.ResourceNotFoundException
	if errors.As(err, &rnf) {
		return fmt.Errorf("secret %q not found: %w", ref.Path, secrets.ErrSecretNotFound)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDeniedException", "AccessDenied", "UnrecognizedClientException":
			return fmt.Errorf("access denied for secret %q: %w", ref.Path, secrets.ErrAccessDenied)
		case "InvalidRequestException":
			if strings.Contains(apiErr.ErrorMessage(), "marked deleted") {
				return fmt.Errorf("secret %q is deleted: %w", ref.Path, secrets.ErrSecretNotFound)
			}
		}
		if containsAccessDeniedMessage(apiErr.ErrorMessage()) {
			return fmt.Errorf("access denied for secret %q: %w", ref.Path, secrets.ErrAccessDenied)
		}
	}

	return &secrets.ProviderError{Provider: "aws", Path: ref.Path, Err: err}
}

func containsAccessDeniedMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "access") && strings.Contains(lower, "denied")
}
