package models

import "errors"

// Common errors for keystore, trust graph and session operations.
var (
	// ErrInvalidDID rejects identifiers without the did: scheme.
	ErrInvalidDID = errors.New("invalid did")

	// Keystore errors
	ErrKeyPairNotFound = errors.New("keypair not found")
	ErrDuplicateKey    = errors.New("keypair already exists")
	ErrRotationTooSoon = errors.New("current keypair is too recent to rotate")
	ErrKeyOwnership    = errors.New("keypair does not belong to the requesting user")

	// Trust graph errors
	ErrTrustNotFound  = errors.New("trusted user not found")
	ErrDuplicateTrust = errors.New("recipient is already trusted")
	ErrTrustQuota     = errors.New("trust creation quota exceeded")

	// Session errors
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionKeyNotFound = errors.New("session key not found")
	ErrAuthorKeyMissing   = errors.New("session has no author-addressed key")
)
