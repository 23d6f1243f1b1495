package serviceclient

import (
	"context"
	"net/url"

	"github.com/spkeasy-social/spkeasy/pkg/lexicon"
)

// GetTrusted returns the author's active trust edges. A non-empty
// recipient narrows the listing to that single edge; propagation
// handlers use this to re-check a relationship before destructive work.
func (c *Client) GetTrusted(ctx context.Context, authorDID, recipientDID string) ([]lexicon.TrustedUser, error) {
	params := url.Values{"authorDid": {authorDID}}
	if recipientDID != "" {
		params.Set("recipientDid", recipientDID)
	}

	var resp lexicon.GetTrustedResponse
	if err := c.get(ctx, lexicon.ServiceTrust, lexicon.GraphGetTrusted, params, &resp); err != nil {
		return nil, err
	}
	return resp.Trusted, nil
}

// IsTrusted reports whether an active edge from author to recipient
// exists right now.
func (c *Client) IsTrusted(ctx context.Context, authorDID, recipientDID string) (bool, error) {
	trusted, err := c.GetTrusted(ctx, authorDID, recipientDID)
	if err != nil {
		if apiErr, ok := AsAPIError(err); ok && apiErr.IsNotFound() {
			return false, nil
		}
		return false, err
	}
	for _, edge := range trusted {
		if edge.RecipientDID == recipientDID && edge.DeletedAt == nil {
			return true, nil
		}
	}
	return false, nil
}
