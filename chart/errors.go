package chart

import (
	"fmt"

	"github.com/bcit-ltc/forge-pipeline/errors"
	"github.com/bcit-ltc/forge-pipeline/git"
)

// WriteConflictError is returned when the chart repository kept moving
// underneath the updater until the retry budget ran out.
type WriteConflictError struct {
	Repository string
	Branch     string
	Attempts   int
	Err        error
}

func (e *WriteConflictError) Error() string {
	return fmt.Sprintf("chart repository %s@%s: concurrent writes after %d attempts: %v",
		e.Repository, e.Branch, e.Attempts, e.Err)
}

func (e *WriteConflictError) Unwrap() error { return e.Err }

// Code implements errors.Coder.
func (e *WriteConflictError) Code() errors.ErrorCode { return errors.CodeWriteConflict }

// PublishError is returned when a chart cannot be published. Reason is
// CodeConflict when different content already exists at the version.
type PublishError struct {
	Reference string
	Reason    errors.ErrorCode
	Message   string
	Err       error
}

func (e *PublishError) Error() string {
	msg := fmt.Sprintf("publish %s: %s", e.Reference, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PublishError) Unwrap() error { return e.Err }

// Code implements errors.Coder.
func (e *PublishError) Code() errors.ErrorCode {
	if e.Reason == "" {
		return errors.CodePublishFailed
	}
	return e.Reason
}

// gitError wraps a git failure with the code git.ErrorCode assigns to it.
func gitError(err error, msg string) error {
	return errors.Wrap(err, git.ErrorCode(err), msg)
}
