package models

// Propagation job kinds. Queue job names are "<service>.<kind>" so each
// session-owning service drains only work addressed to it.
const (
	JobAddRecipient      = "add-recipient-to-sessions"
	JobRevokeSession     = "revoke-session"
	JobDeleteSessionKeys = "delete-session-keys"
	JobUpdateSessionKeys = "update-session-keys"
)

// JobName builds the queue name for a job kind addressed to a service.
func JobName(service, kind string) string {
	return service + "." + kind
}

// AddRecipientJob asks a session service to grant a newly trusted
// recipient access to the author's recent sessions.
type AddRecipientJob struct {
	AuthorDID    string `json:"authorDid"`
	RecipientDID string `json:"recipientDid"`
}

// RevokeSessionJob asks a session service to revoke the author's active
// sessions. RecipientDID, when set, additionally removes that recipient's
// keys from the author's sessions.
type RevokeSessionJob struct {
	AuthorDID    string `json:"authorDid"`
	RecipientDID string `json:"recipientDid,omitempty"`
}

// DeleteSessionKeysJob asks a session service to delete a recipient's
// keys across the author's sessions once the trust edge is gone.
type DeleteSessionKeysJob struct {
	AuthorDID    string `json:"authorDid"`
	RecipientDID string `json:"recipientDid"`
}

// UpdateSessionKeysJob asks a session service to re-encrypt every session
// key addressed under the previous keypair to the new one.
//
// PrevPrivateKey is the only place key material transits the queue; the
// queue field-encrypts it at rest (see SensitiveFields).
type UpdateSessionKeysJob struct {
	PrevKeyID      string `json:"prevKeyId"`
	NewKeyID       string `json:"newKeyId"`
	PrevPrivateKey []byte `json:"prevPrivateKey"`
	NewPublicKey   []byte `json:"newPublicKey"`
}

// SensitiveFields names the payload fields the queue encrypts at rest.
func (UpdateSessionKeysJob) SensitiveFields() []string {
	return []string{"prevPrivateKey"}
}
