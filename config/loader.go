package config

import (
	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/bcit-ltc/forge-pipeline/errors"
	schema "github.com/bcit-ltc/forge-pipeline/schemas"
)

// decode unifies the user source with #Pipeline and decodes the concrete
// result. Load failures cover syntax errors and schema violations; decode
// failures cover values CUE accepted but Go could not represent.
func decode(data []byte, filename string) (*schema.Pipeline, error) {
	ctx := cuecontext.New()

	def := ctx.CompileBytes(schema.PipelineSchema(), cue.Filename(schema.PipelineFile)).
		LookupPath(cue.ParsePath(schema.PipelineDefinition))
	if err := def.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "embedded pipeline schema is invalid")
	}

	user := ctx.CompileBytes(data, cue.Filename(filename))
	if err := user.Err(); err != nil {
		return nil, loadError(err, filename, "failed to compile pipeline configuration")
	}

	v := def.Unify(user)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, loadError(err, filename, "pipeline configuration does not match schema")
	}

	var p schema.Pipeline
	if err := v.Decode(&p); err != nil {
		return nil, errors.WrapWithContext(
			err,
			errors.CodeCUEDecodeFailed,
			"failed to decode pipeline configuration",
			map[string]interface{}{
				"path": filename,
			},
		)
	}
	return &p, nil
}

func loadError(err error, filename, msg string) error {
	return errors.WrapWithContext(
		err,
		errors.CodeCUELoadFailed,
		msg,
		map[string]interface{}{
			"path":    filename,
			"details": cueerrors.Details(err, nil),
		},
	)
}
