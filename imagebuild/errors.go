package imagebuild

import (
	"fmt"

	"github.com/bcit-ltc/forge-pipeline/errors"
)

// BuildError reports a failed image build or push. It is terminal for the run.
type BuildError struct {
	// Op is "build" or "push".
	Op string

	// Ref is the image reference being built or pushed.
	Ref string

	ExitCode int

	// Output is the tail of the command's error output.
	Output string

	Err error
}

func (e *BuildError) Error() string {
	msg := fmt.Sprintf("docker %s %s failed", e.Op, e.Ref)
	if e.ExitCode > 0 {
		msg += fmt.Sprintf(" (exit %d)", e.ExitCode)
	}
	if e.Output != "" {
		msg += ": " + e.Output
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// Code implements errors.Coder.
func (e *BuildError) Code() errors.ErrorCode {
	return errors.CodeBuildFailed
}
