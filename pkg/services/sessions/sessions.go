// Package sessions serves a session-owning deployment. The private
// sessions and private profiles services expose the same five methods
// under different NSID prefixes; one Handlers instance serves one of
// them over its own store.
package sessions

import (
	"context"
	"fmt"

	"github.com/spkeasy-social/spkeasy/pkg/lexicon"
	"github.com/spkeasy-social/spkeasy/pkg/models"
	"github.com/spkeasy-social/spkeasy/pkg/recrypt"
	"github.com/spkeasy-social/spkeasy/pkg/store"
	"github.com/spkeasy-social/spkeasy/pkg/xrpc"
)

// Recryptor migrates every session key envelope from a retired keypair to
// its replacement. The propagation engine provides the implementation; the
// synchronous updateKeys method and the queued rotation job share it.
type Recryptor interface {
	RecryptKeyPair(ctx context.Context, prevKeyID, newKeyID string, prevPrivateKey, newPublicKey []byte) (int64, error)
}

// Handlers serves the session methods of one session-owning service.
type Handlers struct {
	service   string
	sessions  *store.SessionStore
	recryptor Recryptor
}

// New creates the handlers for service over its session store.
func New(service string, sessions *store.SessionStore, recryptor Recryptor) *Handlers {
	return &Handlers{service: service, sessions: sessions, recryptor: recryptor}
}

// Register mounts the five session methods under the service's NSID
// prefix. Fails if the service does not own sessions.
func (h *Handlers) Register(m *xrpc.Mux) error {
	for _, bind := range []struct {
		op    string
		mount func(nsid string)
	}{
		{lexicon.OpCreate, func(nsid string) { xrpc.Handle(m, nsid, h.create) }},
		{lexicon.OpRevoke, func(nsid string) { xrpc.Handle(m, nsid, h.revoke) }},
		{lexicon.OpAddUser, func(nsid string) { xrpc.Handle(m, nsid, h.addUser) }},
		{lexicon.OpUpdateKeys, func(nsid string) { xrpc.Handle(m, nsid, h.updateKeys) }},
		{lexicon.OpGetSession, func(nsid string) { xrpc.Handle(m, nsid, h.getSession) }},
	} {
		nsid, ok := lexicon.SessionNSID(h.service, bind.op)
		if !ok {
			return fmt.Errorf("%q is not a session-owning service", h.service)
		}
		bind.mount(nsid)
	}
	return nil
}

// create opens a new encryption session for the calling author. Envelopes
// are produced client side; the author's own envelope must be among the
// recipients or the store rejects the batch.
func (h *Handlers) create(ctx context.Context, in *lexicon.CreateSessionRequest) (*lexicon.CreateSessionResponse, error) {
	author, err := xrpc.RequireUser(xrpc.PrincipalFromContext(ctx))
	if err != nil {
		return nil, err
	}

	recipients := make([]store.SessionRecipient, 0, len(in.Recipients))
	for _, r := range in.Recipients {
		recipients = append(recipients, store.SessionRecipient{
			RecipientDID:  r.RecipientDID,
			EncryptedDEK:  r.EncryptedDEK,
			UserKeyPairID: r.UserKeyPairID,
		})
	}

	session, err := h.sessions.CreateSession(ctx, author, recipients)
	if err != nil {
		return nil, err
	}
	return &lexicon.CreateSessionResponse{SessionID: session.ID, ExpiresAt: session.ExpiresAt}, nil
}

// revoke closes every active session of the author; the next post starts a
// fresh one. Naming a recipient additionally deletes that recipient's keys
// across the author's sessions, active or not.
func (h *Handlers) revoke(ctx context.Context, in *lexicon.RevokeSessionRequest) (*lexicon.RevokeSessionResponse, error) {
	author, err := xrpc.CallerAuthor(xrpc.PrincipalFromContext(ctx), in.AuthorDID)
	if err != nil {
		return nil, err
	}

	revoked, err := h.sessions.RevokeAllActive(ctx, author)
	if err != nil {
		return nil, err
	}
	if in.RecipientDID != nil && *in.RecipientDID != "" {
		if _, err := h.sessions.DeleteKeys(ctx, *in.RecipientDID, author); err != nil {
			return nil, err
		}
	}
	return &lexicon.RevokeSessionResponse{Revoked: revoked}, nil
}

// addUser grants one recipient access to a session. Users may only touch
// their own sessions and default to their newest active one; services
// always name the session explicitly because no author travels with the
// request.
func (h *Handlers) addUser(ctx context.Context, in *lexicon.AddUserRequest) (*lexicon.AddUserResponse, error) {
	p := xrpc.PrincipalFromContext(ctx)

	sessionID := in.SessionID
	if p.IsService() {
		if sessionID == "" {
			return nil, xrpc.NewError(xrpc.KindValidation, "sessionId is required for service calls")
		}
	} else {
		author, err := xrpc.RequireUser(p)
		if err != nil {
			return nil, err
		}
		if sessionID == "" {
			session, _, err := h.sessions.GetSessionForRecipient(ctx, author, author)
			if err != nil {
				return nil, err
			}
			sessionID = session.ID
		} else {
			session, err := h.sessions.GetSession(ctx, sessionID)
			if err != nil {
				return nil, err
			}
			// Foreign sessions look absent, same as auth failures
			// elsewhere never disclose existence.
			if session.AuthorDID != author {
				return nil, models.ErrSessionNotFound
			}
		}
	}

	key := &models.SessionKey{
		SessionID:     sessionID,
		RecipientDID:  in.RecipientDID,
		EncryptedDEK:  in.EncryptedDEK,
		UserKeyPairID: in.UserKeyPairID,
	}
	if err := h.sessions.AddSessionKey(ctx, key); err != nil {
		return nil, err
	}
	return &lexicon.AddUserResponse{SessionID: sessionID, RecipientDID: in.RecipientDID}, nil
}

// updateKeys synchronously migrates every envelope referencing the retired
// pair. Only the keystore calls it; the registry marks it service-only.
// The queued update-session-keys job covers the same ground when the
// keystore prefers asynchrony, so both paths share the recryptor.
func (h *Handlers) updateKeys(ctx context.Context, in *lexicon.UpdateKeysRequest) (*lexicon.UpdateKeysResponse, error) {
	defer recrypt.Zero(in.PrevPrivateKey)

	updated, err := h.recryptor.RecryptKeyPair(ctx, in.PrevKeyPairID, in.NewKeyPairID, in.PrevPrivateKey, in.NewPublicKey)
	if err != nil {
		return nil, err
	}
	return &lexicon.UpdateKeysResponse{Updated: updated}, nil
}

// getSession returns the caller's envelope for the author's newest active
// session. The caller is always the recipient; services have no envelope
// addressed to them.
func (h *Handlers) getSession(ctx context.Context, in *lexicon.GetSessionParams) (*lexicon.GetSessionResponse, error) {
	recipient, err := xrpc.RequireUser(xrpc.PrincipalFromContext(ctx))
	if err != nil {
		return nil, err
	}

	session, key, err := h.sessions.GetSessionForRecipient(ctx, in.AuthorDID, recipient)
	if err != nil {
		return nil, err
	}
	return &lexicon.GetSessionResponse{
		SessionID:     session.ID,
		AuthorDID:     session.AuthorDID,
		RecipientDID:  key.RecipientDID,
		EncryptedDEK:  key.EncryptedDEK,
		UserKeyPairID: key.UserKeyPairID,
		CreatedAt:     session.CreatedAt,
		ExpiresAt:     session.ExpiresAt,
		RevokedAt:     session.RevokedAt,
	}, nil
}
