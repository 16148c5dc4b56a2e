// Package oras builds authenticated ORAS repositories for the oci client.
package oras

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"oras.land/oras-go/v2/registry/remote"
	"oras.land/oras-go/v2/registry/remote/auth"
	"oras.land/oras-go/v2/registry/remote/retry"
)

// CredentialFunc is an alias for ORAS's credential function type.
// It provides credentials for a given registry (host:port).
type CredentialFunc = auth.CredentialFunc

// AuthOptions configures authentication and transport for a repository.
type AuthOptions struct {
	// CredentialFunc resolves credentials per registry. When nil, requests
	// are anonymous.
	CredentialFunc CredentialFunc

	// PlainHTTP lists registries reached over plain HTTP. "*" matches all.
	PlainHTTP []string

	// Transport overrides the HTTP transport.
	Transport http.RoundTripper

	// UserAgent is sent with every request.
	UserAgent string
}

// NewRepository returns a remote repository for the repository part of
// reference (tag or digest are ignored).
func NewRepository(ctx context.Context, reference string, opts *AuthOptions) (*remote.Repository, error) {
	repoPath, _, _ := SplitReference(reference)
	if repoPath == "" {
		return nil, fmt.Errorf("invalid reference: %s", reference)
	}

	repo, err := remote.NewRepository(repoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create repository: %w", err)
	}

	if opts == nil {
		opts = &AuthOptions{}
	}

	transport := opts.Transport
	if transport == nil {
		transport = retry.NewTransport(http.DefaultTransport)
	}

	client := &auth.Client{
		Client: &http.Client{Transport: transport, Timeout: 10 * time.Minute},
		Cache:  auth.NewCache(),
	}
	if opts.CredentialFunc != nil {
		client.Credential = opts.CredentialFunc
	}
	if opts.UserAgent != "" {
		client.SetUserAgent(opts.UserAgent)
	}

	repo.Client = client
	repo.PlainHTTP = matchesRegistry(repo.Reference.Registry, opts.PlainHTTP)

	return repo, nil
}

// StaticCredentials returns a CredentialFunc answering for a single registry.
func StaticCredentials(registry, username, password string) CredentialFunc {
	return auth.StaticCredential(registry, auth.Credential{Username: username, Password: password})
}

func matchesRegistry(registry string, patterns []string) bool {
	for _, p := range patterns {
		if p == "*" || p == registry {
			return true
		}
		// A hostname without port matches any port on that host.
		if !strings.Contains(p, ":") && strings.HasPrefix(registry, p+":") {
			return true
		}
	}
	return false
}

// SplitReference splits a full OCI reference into repository path and reference part (tag or digest).
// Examples:
//
//	localhost:5000/myrepo:latest -> ("localhost:5000/myrepo", "latest", false)
//	ghcr.io/org/name@sha256:abcd -> ("ghcr.io/org/name", "sha256:abcd", true)
func SplitReference(full string) (repoPath, refPart string, isDigest bool) {
	if full == "" {
		return "", "", false
	}
	lastSlash := strings.LastIndex(full, "/")
	if lastSlash == -1 {
		return full, "", false
	}
	head := full[:lastSlash]
	tail := full[lastSlash+1:]

	if at := strings.LastIndex(tail, "@"); at != -1 {
		return head + "/" + tail[:at], tail[at+1:], true
	}
	if colon := strings.LastIndex(tail, ":"); colon != -1 {
		// Only the tail is searched so registry ports are not mistaken for tags.
		return head + "/" + tail[:colon], tail[colon+1:], false
	}
	return full, "", false
}
