package xrpc

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spkeasy-social/spkeasy/pkg/models"
	"github.com/spkeasy-social/spkeasy/pkg/recrypt"
)

// Kind classifies an error for callers. Kinds travel on the wire in the
// error body and map one-to-one to HTTP statuses.
type Kind string

const (
	KindValidation     Kind = "ValidationError"
	KindAuthentication Kind = "AuthenticationError"
	KindAuthorization  Kind = "AuthorizationError"
	KindNotFound       Kind = "NotFoundError"
	KindConflict       Kind = "ConflictError"
	KindRateLimit      Kind = "RateLimitError"
	KindUpstream       Kind = "UpstreamError"
	KindInternal       Kind = "InternalError"
)

// HTTPStatus returns the status an error of this kind is served with.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified error. Message is user-facing; Code optionally
// names the failure symbolically so clients can branch without string
// matching.
type Error struct {
	Kind    Kind
	Message string
	Code    string
}

// NewError creates an Error of the given kind.
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithCode attaches a symbolic code and returns the error.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is lets errors.Is match two classified errors by kind and code.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind && (other.Code == "" || e.Code == other.Code)
}

// Symbolic codes carried in error bodies.
const (
	CodeDuplicateKey     = "DuplicateKey"
	CodeDuplicateTrust   = "DuplicateTrust"
	CodeRotationTooSoon  = "RotationTooSoon"
	CodeTrustQuota       = "TrustQuotaExceeded"
	CodeAuthorKeyMissing = "AuthorKeyMissing"
)

// FromStoreError translates a store sentinel into a classified error.
// Unknown errors become InternalError with a generic message; the
// underlying error is the caller's to log, never the client's to read.
func FromStoreError(err error) *Error {
	var xe *Error
	if errors.As(err, &xe) {
		return xe
	}

	switch {
	case errors.Is(err, models.ErrInvalidDID), errors.Is(err, recrypt.ErrInvalidKey):
		return NewError(KindValidation, "%s", err.Error())
	case errors.Is(err, models.ErrKeyPairNotFound):
		return NewError(KindNotFound, "key pair not found")
	case errors.Is(err, models.ErrTrustNotFound):
		return NewError(KindNotFound, "trust relationship not found")
	case errors.Is(err, models.ErrSessionNotFound):
		return NewError(KindNotFound, "no active session")
	case errors.Is(err, models.ErrSessionKeyNotFound):
		return NewError(KindNotFound, "no session key for recipient")
	case errors.Is(err, models.ErrDuplicateKey):
		return NewError(KindConflict, "a current key pair already exists").WithCode(CodeDuplicateKey)
	case errors.Is(err, models.ErrDuplicateTrust):
		return NewError(KindConflict, "recipient is already trusted").WithCode(CodeDuplicateTrust)
	case errors.Is(err, models.ErrRotationTooSoon):
		return NewError(KindConflict, "key pair was rotated too recently").WithCode(CodeRotationTooSoon)
	case errors.Is(err, models.ErrTrustQuota):
		return NewError(KindRateLimit, "trust additions exceed the daily quota").WithCode(CodeTrustQuota)
	case errors.Is(err, models.ErrAuthorKeyMissing):
		return NewError(KindValidation, "recipients must include the author").WithCode(CodeAuthorKeyMissing)
	case errors.Is(err, models.ErrKeyOwnership):
		// Ownership violations are an invariant breach, not client input.
		return NewError(KindInternal, "internal error")
	default:
		return NewError(KindInternal, "internal error")
	}
}

// errorBody is the wire shape of a failed call.
type errorBody struct {
	Error   Kind   `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}
