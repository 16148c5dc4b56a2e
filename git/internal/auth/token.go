// Package auth resolves credentials for git remotes.
package auth

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
)

// DefaultTokenUser is sent as the basic auth username alongside a token.
// GitHub and GitLab both ignore the value as long as it is non-empty.
const DefaultTokenUser = "x-access-token"

// TokenProvider authenticates HTTPS remotes with an access token.
type TokenProvider struct {
	auth *http.BasicAuth

	// Hosts restricts the token to matching hosts. Patterns may start with
	// "*." to match any subdomain. Empty allows every host.
	Hosts []string
}

// NewTokenProvider returns a provider sending token as the basic auth password.
func NewTokenProvider(token string) *TokenProvider {
	return &TokenProvider{
		auth: &http.BasicAuth{Username: DefaultTokenUser, Password: token},
	}
}

// WithHosts restricts the provider to the given host patterns.
func (p *TokenProvider) WithHosts(hosts ...string) *TokenProvider {
	p.Hosts = hosts
	return p
}

// Method returns the auth method for remoteURL, or nil when the host is not
// covered by the provider.
//
//nolint:ireturn // go-git consumes transport.AuthMethod
func (p *TokenProvider) Method(remoteURL string) (transport.AuthMethod, error) {
	u, err := url.Parse(remoteURL)
	if err != nil {
		return nil, fmt.Errorf("invalid remote URL: %w", err)
	}

	switch u.Scheme {
	case "https", "http":
	default:
		return nil, fmt.Errorf("token auth requires an http(s) remote, got %q", u.Scheme)
	}

	if p.auth.Password == "" || !p.allowed(u.Hostname()) {
		return nil, nil
	}
	return p.auth, nil
}

func (p *TokenProvider) allowed(host string) bool {
	if len(p.Hosts) == 0 {
		return true
	}
	for _, pattern := range p.Hosts {
		if host == pattern {
			return true
		}
		if suffix, ok := strings.CutPrefix(pattern, "*."); ok {
			if host == suffix || strings.HasSuffix(host, "."+suffix) {
				return true
			}
		}
	}
	return false
}
