package xrpc

import (
	"context"

	"github.com/spkeasy-social/spkeasy/pkg/identity"
)

// principalKey is a private context key for the authenticated principal.
type principalKey struct{}

// WithPrincipal returns a context carrying the authenticated principal.
func WithPrincipal(ctx context.Context, p *identity.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the authenticated principal, or nil when
// the request was not authenticated.
func PrincipalFromContext(ctx context.Context) *identity.Principal {
	p, _ := ctx.Value(principalKey{}).(*identity.Principal)
	return p
}

// CallerAuthor resolves which author a request acts for.
//
// Service principals act for the author named in the request and must
// name one. User principals act for themselves; naming a different
// author is forbidden, naming none defaults to their own DID.
func CallerAuthor(p *identity.Principal, requested string) (string, error) {
	if p == nil {
		return "", NewError(KindAuthentication, "authentication required")
	}
	if p.IsService() {
		if requested == "" {
			return "", NewError(KindValidation, "authorDid is required for service calls")
		}
		return requested, nil
	}
	if requested != "" && requested != p.DID {
		return "", NewError(KindAuthorization, "cannot act for another author")
	}
	return p.DID, nil
}

// RequireUser returns the principal's DID or an authorization error when
// the caller is not a user. Methods addressed to "the caller themselves"
// have no meaning for service principals.
func RequireUser(p *identity.Principal) (string, error) {
	if p == nil {
		return "", NewError(KindAuthentication, "authentication required")
	}
	if p.IsService() {
		return "", NewError(KindAuthorization, "user principal required")
	}
	return p.DID, nil
}
