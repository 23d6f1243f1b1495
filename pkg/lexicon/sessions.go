package lexicon

import "time"

// SessionRecipientInput is one recipient entry in a session create or
// addUser call. The DEK is encrypted client side against the recipient's
// public key; the service never sees plaintext key material.
type SessionRecipientInput struct {
	RecipientDID  string `json:"recipientDid" validate:"required"`
	EncryptedDEK  Bytes  `json:"encryptedDek" validate:"required"`
	UserKeyPairID string `json:"userKeyPairId" validate:"required,uuid"`
}

// CreateSessionRequest is the input of social.spkeasy.privateSession.create.
// The author must appear among the recipients so they can read their own
// content back.
type CreateSessionRequest struct {
	Recipients []SessionRecipientInput `json:"recipients" validate:"required,min=1,max=1001,dive"`
}

// CreateSessionResponse is the output of social.spkeasy.privateSession.create.
type CreateSessionResponse struct {
	SessionID string    `json:"sessionId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// RevokeSessionRequest is the input of social.spkeasy.privateSession.revoke.
// AuthorDID is only honoured for service principals acting on a user's
// behalf; user calls revoke their own sessions. When RecipientDID is set
// that recipient's keys are deleted across the author's sessions as well.
type RevokeSessionRequest struct {
	AuthorDID    string  `json:"authorDid,omitempty"`
	RecipientDID *string `json:"recipientDid,omitempty"`
}

// RevokeSessionResponse is the output of social.spkeasy.privateSession.revoke.
type RevokeSessionResponse struct {
	Revoked int64 `json:"revoked"`
}

// AddUserRequest is the input of social.spkeasy.privateSession.addUser.
// SessionID defaults to the author's newest active session when empty.
type AddUserRequest struct {
	SessionID     string `json:"sessionId,omitempty" validate:"omitempty,uuid"`
	RecipientDID  string `json:"recipientDid" validate:"required"`
	EncryptedDEK  Bytes  `json:"encryptedDek" validate:"required"`
	UserKeyPairID string `json:"userKeyPairId" validate:"required,uuid"`
}

// AddUserResponse is the output of social.spkeasy.privateSession.addUser.
type AddUserResponse struct {
	SessionID    string `json:"sessionId"`
	RecipientDID string `json:"recipientDid"`
}

// UpdateKeysRequest is the input of social.spkeasy.privateSession.updateKeys.
// Only service principals may call it: the keystore hands the retiring
// private key to the session services so they can re-encrypt envelopes
// onto the fresh pair.
type UpdateKeysRequest struct {
	PrevKeyPairID  string `json:"prevKeyPairId" validate:"required,uuid"`
	NewKeyPairID   string `json:"newKeyPairId" validate:"required,uuid"`
	PrevPrivateKey Bytes  `json:"prevPrivateKey" validate:"required"`
	NewPublicKey   Bytes  `json:"newPublicKey" validate:"required"`
}

// UpdateKeysResponse is the output of social.spkeasy.privateSession.updateKeys.
type UpdateKeysResponse struct {
	Updated int64 `json:"updated"`
}

// GetSessionParams are the query parameters of
// social.spkeasy.privateSession.getSession. The envelope returned is the
// one encrypted for the calling recipient.
type GetSessionParams struct {
	AuthorDID string `json:"authorDid" validate:"required"`
}

// GetSessionResponse is the output of social.spkeasy.privateSession.getSession.
type GetSessionResponse struct {
	SessionID     string     `json:"sessionId"`
	AuthorDID     string     `json:"authorDid"`
	RecipientDID  string     `json:"recipientDid"`
	EncryptedDEK  Bytes      `json:"encryptedDek"`
	UserKeyPairID string     `json:"userKeyPairId"`
	CreatedAt     time.Time  `json:"createdAt"`
	ExpiresAt     time.Time  `json:"expiresAt"`
	RevokedAt     *time.Time `json:"revokedAt,omitempty"`
}
