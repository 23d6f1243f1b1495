package serviceclient

import (
	"context"
	"fmt"

	"github.com/spkeasy-social/spkeasy/pkg/lexicon"
)

// AddUser grants a recipient access to one of an author's sessions on
// the addressed session service.
func (c *Client) AddUser(ctx context.Context, service string, req *lexicon.AddUserRequest) (*lexicon.AddUserResponse, error) {
	nsid, err := sessionNSID(service, lexicon.OpAddUser)
	if err != nil {
		return nil, err
	}
	var resp lexicon.AddUserResponse
	if err := c.post(ctx, service, nsid, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateKeys re-encrypts every envelope referencing a retired keypair on
// the addressed session service and returns how many were updated.
func (c *Client) UpdateKeys(ctx context.Context, service string, req *lexicon.UpdateKeysRequest) (*lexicon.UpdateKeysResponse, error) {
	nsid, err := sessionNSID(service, lexicon.OpUpdateKeys)
	if err != nil {
		return nil, err
	}
	var resp lexicon.UpdateKeysResponse
	if err := c.post(ctx, service, nsid, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Revoke revokes an author's active sessions on the addressed session
// service, optionally deleting one recipient's keys as well.
func (c *Client) Revoke(ctx context.Context, service string, req *lexicon.RevokeSessionRequest) (*lexicon.RevokeSessionResponse, error) {
	nsid, err := sessionNSID(service, lexicon.OpRevoke)
	if err != nil {
		return nil, err
	}
	var resp lexicon.RevokeSessionResponse
	if err := c.post(ctx, service, nsid, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func sessionNSID(service, op string) (string, error) {
	nsid, ok := lexicon.SessionNSID(service, op)
	if !ok {
		return "", fmt.Errorf("%q is not a session-owning service", service)
	}
	return nsid, nil
}
