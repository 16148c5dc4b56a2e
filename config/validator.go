package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/bcit-ltc/forge-pipeline/domain"
	"github.com/bcit-ltc/forge-pipeline/errors"
	"github.com/bcit-ltc/forge-pipeline/imagebuild"
	schema "github.com/bcit-ltc/forge-pipeline/schemas"
)

// Validate runs the checks CUE cannot express. Every problem is collected
// into a single CodeInvalidConfig error.
func (c *Config) Validate() error {
	if c == nil || c.Pipeline == nil {
		return errors.New(errors.CodeInvalidInput, "pipeline configuration is nil")
	}

	var problems []string
	add := func(err error) {
		if err != nil {
			problems = append(problems, err.Error())
		}
	}

	add(validateForgeVersion(c.ForgeVersion))
	add(validateRelease(c.Release))
	add(validateRetry(c.Retry))
	add(validatePolicies(c.Environments))
	add(validateTagFormats(c.Image.Tags))
	add(validateCredentials(c.Credentials))

	if len(problems) > 0 {
		return errors.New(
			errors.CodeInvalidConfig,
			fmt.Sprintf("pipeline configuration validation failed: %s", strings.Join(problems, "; ")),
		)
	}
	return nil
}

func validateForgeVersion(v string) error {
	ok, err := schema.IsCompatible(v)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("forgeVersion %s is not compatible with schema version %s", v, schema.SchemaVersion)
	}
	return nil
}

func validateRelease(r schema.Release) error {
	if _, err := regexp.Compile(r.TagPattern); err != nil {
		return fmt.Errorf("release.tagPattern: %w", err)
	}
	if _, err := semver.StrictNewVersion(r.InitialVersion); err != nil {
		return fmt.Errorf("release.initialVersion %q: %w", r.InitialVersion, err)
	}
	return nil
}

func validateRetry(r schema.Retry) error {
	for field, s := range map[string]string{"retry.delay": r.Delay, "retry.timeout": r.Timeout} {
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive", field)
		}
	}
	return nil
}

// validatePolicies rejects a release without a chart update: the released
// chart must be the one the update committed.
func validatePolicies(envs map[string]schema.EnvironmentPolicy) error {
	var bad []string
	for _, env := range domain.Environments {
		p, ok := envs[env.String()]
		if ok && p.ReleaseChart && !p.UpdateChart {
			bad = append(bad, env.String())
		}
	}
	if len(bad) > 0 {
		return fmt.Errorf("releaseChart requires updateChart in environment(s): %s", strings.Join(bad, ", "))
	}
	return nil
}

func validateTagFormats(tags map[string][]string) error {
	for env, formats := range tags {
		if len(formats) == 0 {
			return fmt.Errorf("image.tags.%s: at least one format is required", env)
		}
		for _, f := range formats {
			if err := imagebuild.ValidateFormat(f); err != nil {
				return fmt.Errorf("image.tags.%s: %w", env, err)
			}
		}
	}
	return nil
}

// validateCredentials requires a user name for registry logins. The chart
// repository is authenticated with a bare token.
func validateCredentials(creds schema.Credentials) error {
	for field, c := range map[string]*schema.Credential{
		"credentials.registry":      creds.Registry,
		"credentials.chartRegistry": creds.ChartRegistry,
	} {
		if c != nil && c.Username == "" {
			return fmt.Errorf("%s.username is required", field)
		}
	}
	return nil
}
