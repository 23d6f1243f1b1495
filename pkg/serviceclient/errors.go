package serviceclient

import (
	"encoding/json"
	"errors"
	"fmt"
)

// APIError is an error body returned by a peer service, annotated with
// the HTTP status it travelled on.
type APIError struct {
	Kind       string `json:"error"`
	Message    string `json:"message"`
	Code       string `json:"code,omitempty"`
	StatusCode int    `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// IsNotFound reports whether the peer answered NotFoundError.
func (e *APIError) IsNotFound() bool {
	return e.Kind == "NotFoundError"
}

// IsConflict reports whether the peer answered ConflictError.
func (e *APIError) IsConflict() bool {
	return e.Kind == "ConflictError"
}

// IsValidation reports whether the peer answered ValidationError.
func (e *APIError) IsValidation() bool {
	return e.Kind == "ValidationError"
}

// IsAuthError reports whether the peer rejected our credentials or
// permissions.
func (e *APIError) IsAuthError() bool {
	return e.Kind == "AuthenticationError" || e.Kind == "AuthorizationError"
}

// IsRateLimit reports whether the peer answered RateLimitError.
func (e *APIError) IsRateLimit() bool {
	return e.Kind == "RateLimitError"
}

// transportError wraps a network-level failure so retry logic can tell
// it apart from a definitive answer.
type transportError struct {
	nsid string
	err  error
}

func (e *transportError) Error() string {
	return fmt.Sprintf("call %s: %v", e.nsid, e.err)
}

func (e *transportError) Unwrap() error {
	return e.err
}

// decodeAPIError turns an error response into an *APIError, falling back
// to the raw body when the peer did not answer with the standard shape.
func decodeAPIError(nsid string, status int, body []byte) error {
	apiErr := &APIError{}
	if json.Unmarshal(body, apiErr) == nil && apiErr.Kind != "" {
		apiErr.StatusCode = status
		return apiErr
	}
	return &APIError{
		Kind:       "UpstreamError",
		Message:    fmt.Sprintf("call %s: status %d: %s", nsid, status, truncate(body, 256)),
		StatusCode: status,
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// AsAPIError unwraps err to an *APIError if one is in the chain.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
