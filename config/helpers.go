package config

import (
	"time"

	"github.com/bcit-ltc/forge-pipeline/domain"
	"github.com/bcit-ltc/forge-pipeline/imagebuild"
	schema "github.com/bcit-ltc/forge-pipeline/schemas"
)

// Policy returns the stage policy for env. Environments missing from the
// configuration run every stage.
func (c *Config) Policy(env domain.Environment) schema.EnvironmentPolicy {
	if p, ok := c.Environments[env.String()]; ok {
		return p
	}
	return schema.EnvironmentPolicy{UpdateChart: true, ReleaseChart: true}
}

// TagRules returns the default image tag rules overridden per environment by
// image.tags.
func (c *Config) TagRules() imagebuild.TagRules {
	rules := imagebuild.DefaultTagRules()
	for env, formats := range c.Image.Tags {
		rules[domain.Environment(env)] = append([]string(nil), formats...)
	}
	return rules
}

// RetryDelay returns the initial backoff delay.
func (c *Config) RetryDelay() time.Duration {
	return mustDuration(c.Retry.Delay)
}

// RetryTimeout returns the per-attempt timeout for network operations.
func (c *Config) RetryTimeout() time.Duration {
	return mustDuration(c.Retry.Timeout)
}

// mustDuration parses a duration Validate already accepted. Unvalidated
// garbage yields zero.
func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
