// Package identity verifies the bearer credentials presented to the
// control plane services.
//
// Two principal kinds exist. Service principals authenticate with a
// shared secret of the form "api-key:<service>:<secret>" and act on
// behalf of authors named in request bodies. User principals present a
// session token minted by their own PDS; the verifier delegates
// liveness to the issuing host rather than checking signatures locally,
// and guards against hostile hosts by requiring unknown hosts to prove
// they serve the subject's handle.
package identity

import "errors"

// Kind distinguishes user principals from cooperating services.
type Kind string

const (
	KindUser    Kind = "user"
	KindService Kind = "service"
)

// Principal is the authenticated caller of a request.
//
// User principals carry the DID and handle bound to their session
// token. Service principals carry only the service name; the author
// they act for arrives in the request body.
type Principal struct {
	Kind    Kind
	DID     string
	Handle  string
	Service string
}

// IsService reports whether the principal is a cooperating service.
func (p *Principal) IsService() bool {
	return p != nil && p.Kind == KindService
}

// Verification errors. ErrTokenInvalid covers every locally detectable
// rejection and every definitive rejection by the issuing host;
// ErrHostUnavailable marks failures where the host could not be asked,
// so the caller can answer 502 instead of 401.
var (
	ErrTokenInvalid    = errors.New("invalid bearer token")
	ErrHostUnavailable = errors.New("identity host unavailable")
)
