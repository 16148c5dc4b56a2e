// Package errors provides the structured errors used across the pipeline.
// Every error carries an ErrorCode that survives wrapping, is classified as
// retryable or not, and serializes into the run result.
package errors

// ErrorCode identifies a failure class. Codes are strings so they read well
// in logs and in the JSON run result.
type ErrorCode string

// Input and configuration.
const (
	CodeInvalidInput  ErrorCode = "INVALID_INPUT"
	CodeInvalidConfig ErrorCode = "INVALID_CONFIGURATION"
	// CodeCUELoadFailed means a CUE document did not compile or did not
	// unify with the pipeline schema.
	CodeCUELoadFailed   ErrorCode = "CUE_LOAD_FAILED"
	CodeCUEDecodeFailed ErrorCode = "CUE_DECODE_FAILED"
	// CodeClassificationFailed means a source ref matched no environment.
	CodeClassificationFailed ErrorCode = "CLASSIFICATION_FAILED"
)

// Remote state: registries and chart repositories.
const (
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
	// CodeConflict means the remote holds different content under the same
	// name, for example a chart version published with another digest.
	CodeConflict ErrorCode = "CONFLICT"
	// CodeWriteConflict means a remote branch moved between read and push.
	CodeWriteConflict ErrorCode = "WRITE_CONFLICT"
	CodeUnauthorized  ErrorCode = "UNAUTHORIZED"
	CodeForbidden     ErrorCode = "FORBIDDEN"
)

// Transport.
const (
	CodeNetwork     ErrorCode = "NETWORK_ERROR"
	CodeTimeout     ErrorCode = "TIMEOUT"
	CodeRateLimit   ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Stage execution.
const (
	CodeExecutionFailed ErrorCode = "EXECUTION_FAILED"
	CodeBuildFailed     ErrorCode = "BUILD_FAILED"
	CodePublishFailed   ErrorCode = "PUBLISH_FAILED"
	CodeCancelled       ErrorCode = "CANCELLED"
	CodeInternal        ErrorCode = "INTERNAL_ERROR"
	// CodeUnknown is reported for errors that carry no code.
	CodeUnknown ErrorCode = "UNKNOWN"
)

// IsRetryableCode reports whether code describes a transient condition that
// a later attempt may not hit.
func IsRetryableCode(code ErrorCode) bool {
	switch code {
	case CodeNetwork, CodeTimeout, CodeRateLimit, CodeUnavailable, CodeWriteConflict:
		return true
	}
	return false
}
