package lexicon

// PublicKey is a user's current public key as returned by the key methods.
type PublicKey struct {
	KeyPairID string `json:"keyPairId"`
	AuthorDID string `json:"authorDid"`
	PublicKey Bytes  `json:"publicKey"`
}

// PrivateKey pairs a key pair id with its private key material. It only
// ever travels between services and the owner of the pair.
type PrivateKey struct {
	KeyPairID  string `json:"keyPairId"`
	AuthorDID  string `json:"authorDid"`
	PrivateKey Bytes  `json:"privateKey"`
}

// GetPublicKeyParams are the query parameters of social.spkeasy.key.getPublicKey.
type GetPublicKeyParams struct {
	DID string `json:"did" validate:"required"`
}

// GetPublicKeyResponse is the output of social.spkeasy.key.getPublicKey.
type GetPublicKeyResponse struct {
	Key PublicKey `json:"key"`
}

// GetPublicKeysRequest is the input of social.spkeasy.key.getPublicKeys.
type GetPublicKeysRequest struct {
	DIDs []string `json:"dids" validate:"required,min=1,max=1000,dive,required"`
}

// GetPublicKeysResponse is the output of social.spkeasy.key.getPublicKeys.
// Keys come back in request order with duplicates collapsed.
type GetPublicKeysResponse struct {
	Keys []PublicKey `json:"keys"`
}

// GetPrivateKeyResponse is the output of social.spkeasy.key.getPrivateKey.
// The method takes no parameters: it returns the private key of the
// caller's current pair.
type GetPrivateKeyResponse struct {
	Key PrivateKey `json:"key"`
}

// GetPrivateKeysRequest is the input of social.spkeasy.key.getPrivateKeys.
// All requested pairs must belong to the named author.
type GetPrivateKeysRequest struct {
	AuthorDID  string   `json:"authorDid" validate:"required"`
	KeyPairIDs []string `json:"keyPairIds" validate:"required,min=1,max=1000,dive,required"`
}

// GetPrivateKeysResponse is the output of social.spkeasy.key.getPrivateKeys.
type GetPrivateKeysResponse struct {
	Keys []PrivateKey `json:"keys"`
}

// RotateRequest is the input of social.spkeasy.key.rotate. The caller
// generates the replacement pair locally and submits both halves.
type RotateRequest struct {
	PublicKey  Bytes `json:"publicKey" validate:"required"`
	PrivateKey Bytes `json:"privateKey" validate:"required"`
}

// RotateResponse is the output of social.spkeasy.key.rotate.
type RotateResponse struct {
	Key PublicKey `json:"key"`
}
