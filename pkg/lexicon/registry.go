package lexicon

import (
	"sort"

	"github.com/invopop/jsonschema"
)

// MethodKind distinguishes XRPC reads from writes. Queries are served on
// GET with query string parameters, procedures on POST with a JSON body.
type MethodKind string

const (
	KindQuery     MethodKind = "query"
	KindProcedure MethodKind = "procedure"
)

// Method describes one control plane method: its identifier, verb kind,
// owning service, and the Go shapes of its input and output. ServiceOnly
// methods reject user principals outright.
type Method struct {
	NSID        string
	Kind        MethodKind
	Service     string
	Input       any
	Output      any
	ServiceOnly bool
}

// Methods indexes every control plane method by NSID.
var Methods = map[string]Method{
	GraphGetTrusted: {
		NSID:    GraphGetTrusted,
		Kind:    KindQuery,
		Service: ServiceTrust,
		Input:   &GetTrustedParams{},
		Output:  &GetTrustedResponse{},
	},
	GraphAddTrusted: {
		NSID:    GraphAddTrusted,
		Kind:    KindProcedure,
		Service: ServiceTrust,
		Input:   &AddTrustedRequest{},
		Output:  &AddTrustedResponse{},
	},
	GraphRemoveTrusted: {
		NSID:    GraphRemoveTrusted,
		Kind:    KindProcedure,
		Service: ServiceTrust,
		Input:   &RemoveTrustedRequest{},
	},
	GraphBulkAddTrusted: {
		NSID:    GraphBulkAddTrusted,
		Kind:    KindProcedure,
		Service: ServiceTrust,
		Input:   &BulkAddTrustedRequest{},
		Output:  &BulkAddTrustedResponse{},
	},
	GraphBulkRemoveTrusted: {
		NSID:    GraphBulkRemoveTrusted,
		Kind:    KindProcedure,
		Service: ServiceTrust,
		Input:   &BulkRemoveTrustedRequest{},
		Output:  &BulkRemoveTrustedResponse{},
	},
	KeyGetPublicKey: {
		NSID:    KeyGetPublicKey,
		Kind:    KindQuery,
		Service: ServiceKeys,
		Input:   &GetPublicKeyParams{},
		Output:  &GetPublicKeyResponse{},
	},
	KeyGetPublicKeys: {
		NSID:    KeyGetPublicKeys,
		Kind:    KindProcedure,
		Service: ServiceKeys,
		Input:   &GetPublicKeysRequest{},
		Output:  &GetPublicKeysResponse{},
	},
	KeyGetPrivateKey: {
		NSID:    KeyGetPrivateKey,
		Kind:    KindQuery,
		Service: ServiceKeys,
		Output:  &GetPrivateKeyResponse{},
	},
	KeyGetPrivateKeys: {
		NSID:        KeyGetPrivateKeys,
		Kind:        KindProcedure,
		Service:     ServiceKeys,
		Input:       &GetPrivateKeysRequest{},
		Output:      &GetPrivateKeysResponse{},
		ServiceOnly: true,
	},
	KeyRotate: {
		NSID:    KeyRotate,
		Kind:    KindProcedure,
		Service: ServiceKeys,
		Input:   &RotateRequest{},
		Output:  &RotateResponse{},
	},
	PrivateSessionCreate: {
		NSID:    PrivateSessionCreate,
		Kind:    KindProcedure,
		Service: ServicePrivateSessions,
		Input:   &CreateSessionRequest{},
		Output:  &CreateSessionResponse{},
	},
	PrivateSessionRevoke: {
		NSID:    PrivateSessionRevoke,
		Kind:    KindProcedure,
		Service: ServicePrivateSessions,
		Input:   &RevokeSessionRequest{},
		Output:  &RevokeSessionResponse{},
	},
	PrivateSessionAddUser: {
		NSID:    PrivateSessionAddUser,
		Kind:    KindProcedure,
		Service: ServicePrivateSessions,
		Input:   &AddUserRequest{},
		Output:  &AddUserResponse{},
	},
	PrivateSessionUpdateKeys: {
		NSID:        PrivateSessionUpdateKeys,
		Kind:        KindProcedure,
		Service:     ServicePrivateSessions,
		Input:       &UpdateKeysRequest{},
		Output:      &UpdateKeysResponse{},
		ServiceOnly: true,
	},
	PrivateSessionGetSession: {
		NSID:    PrivateSessionGetSession,
		Kind:    KindQuery,
		Service: ServicePrivateSessions,
		Input:   &GetSessionParams{},
		Output:  &GetSessionResponse{},
	},
	ProfileSessionCreate: {
		NSID:    ProfileSessionCreate,
		Kind:    KindProcedure,
		Service: ServicePrivateProfiles,
		Input:   &CreateSessionRequest{},
		Output:  &CreateSessionResponse{},
	},
	ProfileSessionRevoke: {
		NSID:    ProfileSessionRevoke,
		Kind:    KindProcedure,
		Service: ServicePrivateProfiles,
		Input:   &RevokeSessionRequest{},
		Output:  &RevokeSessionResponse{},
	},
	ProfileSessionAddUser: {
		NSID:    ProfileSessionAddUser,
		Kind:    KindProcedure,
		Service: ServicePrivateProfiles,
		Input:   &AddUserRequest{},
		Output:  &AddUserResponse{},
	},
	ProfileSessionUpdateKeys: {
		NSID:        ProfileSessionUpdateKeys,
		Kind:        KindProcedure,
		Service:     ServicePrivateProfiles,
		Input:       &UpdateKeysRequest{},
		Output:      &UpdateKeysResponse{},
		ServiceOnly: true,
	},
	ProfileSessionGetSession: {
		NSID:    ProfileSessionGetSession,
		Kind:    KindQuery,
		Service: ServicePrivateProfiles,
		Input:   &GetSessionParams{},
		Output:  &GetSessionResponse{},
	},
}

// ForService returns the methods a deployment serves, sorted by NSID so
// route registration and schema exports are deterministic.
func ForService(service string) []Method {
	var out []Method
	for _, m := range Methods {
		if m.Service == service {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NSID < out[j].NSID })
	return out
}

// JSONSchema renders Bytes as the base64url string it marshals to, so
// reflected method schemas describe the wire format rather than a byte
// array.
func (Bytes) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:            "string",
		ContentEncoding: "base64url",
		Description:     "Binary data encoded as base64url without padding",
	}
}
