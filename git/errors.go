package git

import (
	"context"
	"errors"
	"fmt"

	perrors "github.com/bcit-ltc/forge-pipeline/errors"
)

// Sentinel errors. go-git failures are translated into these so callers can
// match them with errors.Is without importing go-git.
var (
	// ErrAlreadyUpToDate reports a fetch or push that changed nothing.
	ErrAlreadyUpToDate = errors.New("already up to date")

	// ErrAuthRequired reports a remote that demanded credentials none were given for.
	ErrAuthRequired = errors.New("authentication required")

	// ErrAuthFailed reports rejected credentials.
	ErrAuthFailed = errors.New("authentication failed")

	ErrTagExists  = errors.New("tag already exists")
	ErrTagMissing = errors.New("tag does not exist")

	// ErrNotFastForward reports a push rejected because the remote branch
	// moved. Callers reset to the remote and retry.
	ErrNotFastForward = errors.New("not a fast-forward")

	// ErrEmptyCommit reports a commit with nothing staged.
	ErrEmptyCommit = errors.New("nothing to commit")

	ErrInvalidRef    = errors.New("invalid reference")
	ErrResolveFailed = errors.New("cannot resolve revision")
)

// WrapError prefixes err with msg. Sentinels stay matchable.
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// WrapErrorf is WrapError with a format string.
func WrapErrorf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// ErrorCode classifies a git failure. Anything unrecognised is assumed to be
// a transport problem and reported as CodeNetwork.
func ErrorCode(err error) perrors.ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return perrors.CodeCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return perrors.CodeTimeout
	case errors.Is(err, ErrAuthRequired), errors.Is(err, ErrAuthFailed):
		return perrors.CodeUnauthorized
	case errors.Is(err, ErrResolveFailed), errors.Is(err, ErrInvalidRef), errors.Is(err, ErrTagMissing):
		return perrors.CodeNotFound
	case errors.Is(err, ErrTagExists):
		return perrors.CodeAlreadyExists
	case errors.Is(err, ErrNotFastForward):
		return perrors.CodeWriteConflict
	}
	return perrors.CodeNetwork
}
