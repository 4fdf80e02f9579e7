package httpapi

import (
	"github.com/stanisci/ebics-sandbox/internal/app/sandboxerr"
)

// sandboxError adapts a *sandboxerr.ServiceError to the access API's
// `{error:{type, description}}` envelope: sandboxerr's numeric-prefixed
// codes (AUTH_1001, RES_4001, ...) are the wire identity used by log
// correlation, while Type is the named string spec.md's admitted-types list
// requires in the HTTP body. EBICS-layer errors never use this type: they
// are encoded inside a signed EBICS XML body instead (see
// internal/app/ebicserr).
type sandboxError struct {
	*sandboxerr.ServiceError
	Type string
}

func (e *sandboxError) Error() string { return e.Message }

func newSandboxError(svcErr *sandboxerr.ServiceError, errType string) *sandboxError {
	return &sandboxError{ServiceError: svcErr, Type: errType}
}

func errForbidden(description string) *sandboxError {
	return newSandboxError(sandboxerr.Forbidden(description), "Forbidden")
}

func errUnauthorized(description string) *sandboxError {
	return newSandboxError(sandboxerr.Unauthorized(description), "Unauthorized")
}

func errNotFound(description string) *sandboxError {
	return newSandboxError(sandboxerr.New(sandboxerr.ErrCodeNotFound, description, 404), "NotFound")
}

func errConflict(description string) *sandboxError {
	return newSandboxError(sandboxerr.Conflict(description), "Conflict")
}

func errUnprocessable(description string) *sandboxError {
	return newSandboxError(sandboxerr.Unprocessable(description), "UnprocessableEntity")
}

func errBadRequest(description string) *sandboxError {
	return newSandboxError(sandboxerr.New(sandboxerr.ErrCodeInvalidInput, description, 400), "BadRequest")
}

func errInternal(description string) *sandboxError {
	return newSandboxError(sandboxerr.Internal(description, nil), "InternalServerError")
}
