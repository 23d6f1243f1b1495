package serviceclient

import (
	"context"
	"net/url"

	"github.com/spkeasy-social/spkeasy/pkg/lexicon"
)

// GetPublicKey returns a user's current public key, materialising one if
// the user has none yet.
func (c *Client) GetPublicKey(ctx context.Context, did string) (*lexicon.PublicKey, error) {
	params := url.Values{"did": {did}}

	var resp lexicon.GetPublicKeyResponse
	if err := c.get(ctx, lexicon.ServiceKeys, lexicon.KeyGetPublicKey, params, &resp); err != nil {
		return nil, err
	}
	return &resp.Key, nil
}

// GetPublicKeys returns current public keys for a batch of users, in
// request order with duplicates collapsed.
func (c *Client) GetPublicKeys(ctx context.Context, dids []string) ([]lexicon.PublicKey, error) {
	req := lexicon.GetPublicKeysRequest{DIDs: dids}

	var resp lexicon.GetPublicKeysResponse
	if err := c.post(ctx, lexicon.ServiceKeys, lexicon.KeyGetPublicKeys, &req, &resp); err != nil {
		return nil, err
	}
	return resp.Keys, nil
}

// GetPrivateKeys returns the author's private keys for the requested
// pair ids. The keystore rejects requests spanning more than one owner.
func (c *Client) GetPrivateKeys(ctx context.Context, authorDID string, keyPairIDs []string) ([]lexicon.PrivateKey, error) {
	req := lexicon.GetPrivateKeysRequest{AuthorDID: authorDID, KeyPairIDs: keyPairIDs}

	var resp lexicon.GetPrivateKeysResponse
	if err := c.post(ctx, lexicon.ServiceKeys, lexicon.KeyGetPrivateKeys, &req, &resp); err != nil {
		return nil, err
	}
	return resp.Keys, nil
}
