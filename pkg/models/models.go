// Package models defines the persistent entities of the control plane and
// their shared sentinel errors. Each service schema migrates only the models
// it owns; no foreign keys cross schema boundaries.
package models

// KeystoreModels returns the models owned by the keystore schema.
func KeystoreModels() []any {
	return []any{&UserKeyPair{}}
}

// TrustGraphModels returns the models owned by the trust graph schema.
func TrustGraphModels() []any {
	return []any{&TrustedUser{}}
}

// SessionModels returns the models owned by a session service schema.
func SessionModels() []any {
	return []any{&Session{}, &SessionKey{}}
}
