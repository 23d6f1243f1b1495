// Package lexicon defines the XRPC method identifiers and wire shapes of
// the spkeasy control plane. Request handlers, the inter-service client,
// and the schema registry all share these types so the wire contract lives
// in one place.
package lexicon

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Service names. These identify deployments on the wire: queue job names
// are prefixed with them and service principals authenticate as them.
const (
	ServiceKeys            = "user-keys"
	ServiceTrust           = "trusted-users"
	ServicePrivateSessions = "private-sessions"
	ServicePrivateProfiles = "private-profiles"
)

// SessionServices returns the services that own sessions, in the order
// propagation work is addressed to them.
func SessionServices() []string {
	return []string{ServicePrivateSessions, ServicePrivateProfiles}
}

// KnownService reports whether name identifies a recognised deployment.
func KnownService(name string) bool {
	switch name {
	case ServiceKeys, ServiceTrust, ServicePrivateSessions, ServicePrivateProfiles:
		return true
	}
	return false
}

// Trust graph methods.
const (
	GraphGetTrusted        = "social.spkeasy.graph.getTrusted"
	GraphAddTrusted        = "social.spkeasy.graph.addTrusted"
	GraphRemoveTrusted     = "social.spkeasy.graph.removeTrusted"
	GraphBulkAddTrusted    = "social.spkeasy.graph.bulkAddTrusted"
	GraphBulkRemoveTrusted = "social.spkeasy.graph.bulkRemoveTrusted"
)

// Keystore methods.
const (
	KeyGetPublicKey   = "social.spkeasy.key.getPublicKey"
	KeyGetPublicKeys  = "social.spkeasy.key.getPublicKeys"
	KeyGetPrivateKey  = "social.spkeasy.key.getPrivateKey"
	KeyGetPrivateKeys = "social.spkeasy.key.getPrivateKeys"
	KeyRotate         = "social.spkeasy.key.rotate"
)

// Private session methods.
const (
	PrivateSessionCreate     = "social.spkeasy.privateSession.create"
	PrivateSessionRevoke     = "social.spkeasy.privateSession.revoke"
	PrivateSessionAddUser    = "social.spkeasy.privateSession.addUser"
	PrivateSessionUpdateKeys = "social.spkeasy.privateSession.updateKeys"
	PrivateSessionGetSession = "social.spkeasy.privateSession.getSession"
)

// Profile session methods. Same shapes as the private session methods,
// served by a distinct store.
const (
	ProfileSessionCreate     = "social.spkeasy.profileSession.create"
	ProfileSessionRevoke     = "social.spkeasy.profileSession.revoke"
	ProfileSessionAddUser    = "social.spkeasy.profileSession.addUser"
	ProfileSessionUpdateKeys = "social.spkeasy.profileSession.updateKeys"
	ProfileSessionGetSession = "social.spkeasy.profileSession.getSession"
)

// Session method operation names, the suffix shared by both session
// services' NSIDs.
const (
	OpCreate     = "create"
	OpRevoke     = "revoke"
	OpAddUser    = "addUser"
	OpUpdateKeys = "updateKeys"
	OpGetSession = "getSession"
)

// SessionNSID returns the NSID of op on a session-owning service. The two
// session services share method shapes but not method prefixes.
func SessionNSID(service, op string) (string, bool) {
	switch service {
	case ServicePrivateSessions:
		return "social.spkeasy.privateSession." + op, true
	case ServicePrivateProfiles:
		return "social.spkeasy.profileSession." + op, true
	}
	return "", false
}

// Bytes is binary material on the wire: base64url without padding, the
// encoding the envelope format mandates for encryptedDek and key fields.
type Bytes []byte

// MarshalJSON encodes the bytes as a base64url JSON string.
func (b Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.RawURLEncoding.EncodeToString(b))
}

// UnmarshalJSON decodes a base64url JSON string.
func (b *Bytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("expected base64url string: %w", err)
	}
	decoded, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid base64url payload: %w", err)
	}
	*b = decoded
	return nil
}
