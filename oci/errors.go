package oci

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/bcit-ltc/forge-pipeline/errors"
	"oras.land/oras-go/v2/errdef"
	"oras.land/oras-go/v2/registry/remote/errcode"
)

// ErrNotFound is returned by Describe when the reference does not exist.
var ErrNotFound = errors.New(errors.CodeNotFound, "artifact not found")

// mapError converts an ORAS or transport error into a PlatformError with a
// code callers can branch on.
func mapError(err error, op, ref string) error {
	if err == nil {
		return nil
	}
	fields := map[string]interface{}{"op": op, "reference": ref}

	switch {
	case errors.Is(err, context.Canceled):
		return errors.WrapWithContext(err, errors.CodeCancelled, op+" cancelled", fields)
	case errors.Is(err, context.DeadlineExceeded):
		return errors.WrapWithContext(err, errors.CodeTimeout, op+" timed out", fields)
	case errors.Is(err, errdef.ErrNotFound):
		return errors.WrapWithContext(err, errors.CodeNotFound, "artifact not found", fields)
	case errors.Is(err, errdef.ErrAlreadyExists):
		return errors.WrapWithContext(err, errors.CodeAlreadyExists, "artifact already exists", fields)
	}

	var resp *errcode.ErrorResponse
	if errors.As(err, &resp) {
		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return errors.WrapWithContext(err, errors.CodeUnauthorized, "registry authentication required", fields)
		case resp.StatusCode == http.StatusForbidden:
			return errors.WrapWithContext(err, errors.CodeForbidden, "registry access denied", fields)
		case resp.StatusCode == http.StatusNotFound:
			return errors.WrapWithContext(err, errors.CodeNotFound, "artifact not found", fields)
		case resp.StatusCode == http.StatusTooManyRequests:
			return errors.WrapWithContext(err, errors.CodeRateLimit, "registry rate limit exceeded", fields)
		case resp.StatusCode >= 500:
			return errors.WrapWithContext(err, errors.CodeUnavailable, "registry unavailable", fields)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return errors.WrapWithContext(err, errors.CodeTimeout, op+" timed out", fields)
		}
		return errors.WrapWithContext(err, errors.CodeNetwork, "registry unreachable", fields)
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"connection refused", "connection reset", "i/o timeout", "no such host", "eof"} {
		if strings.Contains(msg, marker) {
			return errors.WrapWithContext(err, errors.CodeNetwork, "registry unreachable", fields)
		}
	}

	return errors.WrapWithContext(err, errors.CodePublishFailed, op+" failed", fields)
}
