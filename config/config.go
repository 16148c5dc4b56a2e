// Package config loads and validates pipeline configuration written in CUE.
//
// A configuration file (by default .forge/pipeline.cue) is unified with the
// embedded #Pipeline schema, validated concretely and decoded into
// schema.Pipeline. Cross-field rules CUE cannot express are checked by
// Validate.
//
//	cfg, err := config.Load(ctx, billy.NewOSFS("."), config.DefaultPath)
//	if err != nil {
//	    return err
//	}
//	policy := cfg.Policy(domain.EnvironmentReview)
//
// Configuration is an explicit value handed to constructors; the package
// keeps no global state.
package config

import (
	"context"

	"github.com/bcit-ltc/forge-pipeline/errors"
	"github.com/bcit-ltc/forge-pipeline/fs"
	schema "github.com/bcit-ltc/forge-pipeline/schemas"
)

// DefaultPath is where the pipeline configuration lives in a repository.
const DefaultPath = ".forge/pipeline.cue"

// Config wraps schema.Pipeline with helpers. A loaded Config is read-only.
type Config struct {
	*schema.Pipeline
}

// LoadOptions configures loading.
type LoadOptions struct {
	// SkipValidation disables the cross-field checks run after decoding.
	// Schema constraints are always enforced.
	SkipValidation bool
}

// Load reads path from fsys, decodes it and validates the result.
func Load(ctx context.Context, fsys fs.Filesystem, path string) (*Config, error) {
	return LoadWithOptions(ctx, fsys, path, LoadOptions{})
}

// LoadWithOptions is Load with custom options.
func LoadWithOptions(ctx context.Context, fsys fs.Filesystem, path string, opts LoadOptions) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeCancelled, "configuration load cancelled")
	}
	if fsys == nil {
		return nil, errors.New(errors.CodeInvalidInput, "filesystem is nil")
	}
	if path == "" {
		path = DefaultPath
	}

	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, errors.WrapWithContext(
			err,
			errors.CodeNotFound,
			"failed to read pipeline configuration",
			map[string]interface{}{
				"path": path,
			},
		)
	}

	return parse(data, path, opts)
}

// Parse decodes and validates configuration source. filename is only used
// in error positions.
func Parse(data []byte, filename string) (*Config, error) {
	return parse(data, filename, LoadOptions{})
}

func parse(data []byte, filename string, opts LoadOptions) (*Config, error) {
	p, err := decode(data, filename)
	if err != nil {
		return nil, err
	}
	cfg := &Config{Pipeline: p}
	if opts.SkipValidation {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
