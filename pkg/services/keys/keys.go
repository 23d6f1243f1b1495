// Package keys serves the user-keys deployment: ML-KEM-768 keypair
// distribution and rotation over XRPC.
//
// Handlers stay thin. The keystore owns every invariant and logs every
// mutation; this package resolves who the caller may act for and maps
// rows to wire shapes.
package keys

import (
	"context"

	"github.com/spkeasy-social/spkeasy/pkg/lexicon"
	"github.com/spkeasy-social/spkeasy/pkg/models"
	"github.com/spkeasy-social/spkeasy/pkg/store"
	"github.com/spkeasy-social/spkeasy/pkg/xrpc"
)

// Handlers serves the keystore methods.
type Handlers struct {
	keys *store.KeyStore
}

// New creates the handlers over a keystore.
func New(keys *store.KeyStore) *Handlers {
	return &Handlers{keys: keys}
}

// Register mounts every keystore method on m.
func (h *Handlers) Register(m *xrpc.Mux) {
	xrpc.Handle(m, lexicon.KeyGetPublicKey, h.getPublicKey)
	xrpc.Handle(m, lexicon.KeyGetPublicKeys, h.getPublicKeys)
	xrpc.Handle(m, lexicon.KeyGetPrivateKey, h.getPrivateKey)
	xrpc.Handle(m, lexicon.KeyGetPrivateKeys, h.getPrivateKeys)
	xrpc.Handle(m, lexicon.KeyRotate, h.rotate)
}

// getPublicKey returns a user's current public key, materialising a pair
// on first request. Any authenticated principal may ask: public keys are
// what senders encrypt against.
func (h *Handlers) getPublicKey(ctx context.Context, in *lexicon.GetPublicKeyParams) (*lexicon.GetPublicKeyResponse, error) {
	pair, err := h.keys.GetOrCreatePublicKey(ctx, in.DID)
	if err != nil {
		return nil, err
	}
	return &lexicon.GetPublicKeyResponse{Key: publicKey(pair)}, nil
}

func (h *Handlers) getPublicKeys(ctx context.Context, in *lexicon.GetPublicKeysRequest) (*lexicon.GetPublicKeysResponse, error) {
	pairs, err := h.keys.GetPublicKeys(ctx, in.DIDs)
	if err != nil {
		return nil, err
	}
	keys := make([]lexicon.PublicKey, 0, len(pairs))
	for _, pair := range pairs {
		keys = append(keys, publicKey(pair))
	}
	return &lexicon.GetPublicKeysResponse{Keys: keys}, nil
}

// getPrivateKey returns the private half of the caller's current pair so
// their client can decrypt envelopes addressed to them. Only the user
// themselves qualifies; services fetch historical pairs through
// getPrivateKeys instead.
func (h *Handlers) getPrivateKey(ctx context.Context, _ *struct{}) (*lexicon.GetPrivateKeyResponse, error) {
	did, err := xrpc.RequireUser(xrpc.PrincipalFromContext(ctx))
	if err != nil {
		return nil, err
	}
	pair, err := h.keys.GetOrCreatePublicKey(ctx, did)
	if err != nil {
		return nil, err
	}
	return &lexicon.GetPrivateKeyResponse{Key: privateKey(pair)}, nil
}

// getPrivateKeys returns the author's private keys for the requested pair
// ids, tombstoned pairs included. The registry marks it service-only; the
// store re-asserts ownership of every returned row.
func (h *Handlers) getPrivateKeys(ctx context.Context, in *lexicon.GetPrivateKeysRequest) (*lexicon.GetPrivateKeysResponse, error) {
	pairs, err := h.keys.GetPrivateKeys(ctx, in.AuthorDID, in.KeyPairIDs)
	if err != nil {
		return nil, err
	}
	keys := make([]lexicon.PrivateKey, 0, len(pairs))
	for _, pair := range pairs {
		keys = append(keys, privateKey(pair))
	}
	return &lexicon.GetPrivateKeysResponse{Keys: keys}, nil
}

// rotate installs a replacement pair generated on the caller's device.
// The store tombstones the old pair and enqueues the session services'
// re-encryption work in the same transaction.
func (h *Handlers) rotate(ctx context.Context, in *lexicon.RotateRequest) (*lexicon.RotateResponse, error) {
	did, err := xrpc.RequireUser(xrpc.PrincipalFromContext(ctx))
	if err != nil {
		return nil, err
	}
	pair, err := h.keys.Rotate(ctx, did, in.PublicKey, in.PrivateKey)
	if err != nil {
		return nil, err
	}
	return &lexicon.RotateResponse{Key: publicKey(pair)}, nil
}

func publicKey(pair *models.UserKeyPair) lexicon.PublicKey {
	return lexicon.PublicKey{
		KeyPairID: pair.ID,
		AuthorDID: pair.AuthorDID,
		PublicKey: pair.PublicKey,
	}
}

func privateKey(pair *models.UserKeyPair) lexicon.PrivateKey {
	return lexicon.PrivateKey{
		KeyPairID:  pair.ID,
		AuthorDID:  pair.AuthorDID,
		PrivateKey: pair.PrivateKey,
	}
}
