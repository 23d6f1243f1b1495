// Package graph serves the trusted-users deployment: the directed trust
// graph whose mutations drive session key propagation.
package graph

import (
	"context"
	"errors"

	"github.com/spkeasy-social/spkeasy/pkg/lexicon"
	"github.com/spkeasy-social/spkeasy/pkg/models"
	"github.com/spkeasy-social/spkeasy/pkg/store"
	"github.com/spkeasy-social/spkeasy/pkg/xrpc"
)

// Handlers serves the trust graph methods.
type Handlers struct {
	trust *store.TrustStore
}

// New creates the handlers over a trust store.
func New(trust *store.TrustStore) *Handlers {
	return &Handlers{trust: trust}
}

// Register mounts every graph method on m.
func (h *Handlers) Register(m *xrpc.Mux) {
	xrpc.Handle(m, lexicon.GraphGetTrusted, h.getTrusted)
	xrpc.Handle(m, lexicon.GraphAddTrusted, h.addTrusted)
	xrpc.Handle(m, lexicon.GraphRemoveTrusted, h.removeTrusted)
	xrpc.Handle(m, lexicon.GraphBulkAddTrusted, h.bulkAddTrusted)
	xrpc.Handle(m, lexicon.GraphBulkRemoveTrusted, h.bulkRemoveTrusted)
}

// getTrusted lists the author's active edges. Users see only their own
// list; services name the author they are checking on behalf of. With a
// recipient filter the answer is that single edge or an empty list, so
// propagation re-checks don't have to treat absence as an error.
func (h *Handlers) getTrusted(ctx context.Context, in *lexicon.GetTrustedParams) (*lexicon.GetTrustedResponse, error) {
	author, err := xrpc.CallerAuthor(xrpc.PrincipalFromContext(ctx), in.AuthorDID)
	if err != nil {
		return nil, err
	}

	if in.RecipientDID != "" {
		edge, err := h.trust.GetTrusted(ctx, author, in.RecipientDID)
		if errors.Is(err, models.ErrTrustNotFound) {
			return &lexicon.GetTrustedResponse{Trusted: []lexicon.TrustedUser{}}, nil
		}
		if err != nil {
			return nil, err
		}
		return &lexicon.GetTrustedResponse{Trusted: []lexicon.TrustedUser{trustedUser(edge)}}, nil
	}

	edges, err := h.trust.ListTrusted(ctx, author)
	if err != nil {
		return nil, err
	}
	trusted := make([]lexicon.TrustedUser, 0, len(edges))
	for _, edge := range edges {
		trusted = append(trusted, trustedUser(edge))
	}
	return &lexicon.GetTrustedResponse{Trusted: trusted}, nil
}

func (h *Handlers) addTrusted(ctx context.Context, in *lexicon.AddTrustedRequest) (*lexicon.AddTrustedResponse, error) {
	author, err := xrpc.RequireUser(xrpc.PrincipalFromContext(ctx))
	if err != nil {
		return nil, err
	}
	edge, err := h.trust.AddTrusted(ctx, author, in.RecipientDID)
	if err != nil {
		return nil, err
	}
	return &lexicon.AddTrustedResponse{Trusted: trustedUser(edge)}, nil
}

func (h *Handlers) removeTrusted(ctx context.Context, in *lexicon.RemoveTrustedRequest) (*struct{}, error) {
	author, err := xrpc.RequireUser(xrpc.PrincipalFromContext(ctx))
	if err != nil {
		return nil, err
	}
	if err := h.trust.RemoveTrusted(ctx, author, in.RecipientDID); err != nil {
		return nil, err
	}
	return nil, nil
}

// bulkAddTrusted adds every novel recipient in one atomic batch. The
// response names only the recipients that gained an edge; an all-duplicate
// batch succeeds with an empty list.
func (h *Handlers) bulkAddTrusted(ctx context.Context, in *lexicon.BulkAddTrustedRequest) (*lexicon.BulkAddTrustedResponse, error) {
	author, err := xrpc.RequireUser(xrpc.PrincipalFromContext(ctx))
	if err != nil {
		return nil, err
	}
	added, err := h.trust.BulkAddTrusted(ctx, author, in.RecipientDIDs)
	if err != nil {
		return nil, err
	}
	if added == nil {
		added = []string{}
	}
	return &lexicon.BulkAddTrustedResponse{Added: added}, nil
}

func (h *Handlers) bulkRemoveTrusted(ctx context.Context, in *lexicon.BulkRemoveTrustedRequest) (*lexicon.BulkRemoveTrustedResponse, error) {
	author, err := xrpc.RequireUser(xrpc.PrincipalFromContext(ctx))
	if err != nil {
		return nil, err
	}
	removed, err := h.trust.BulkRemoveTrusted(ctx, author, in.RecipientDIDs)
	if err != nil {
		return nil, err
	}
	return &lexicon.BulkRemoveTrustedResponse{Removed: removed}, nil
}

func trustedUser(edge *models.TrustedUser) lexicon.TrustedUser {
	out := lexicon.TrustedUser{
		RecipientDID: edge.RecipientDID,
		CreatedAt:    edge.CreatedAt,
	}
	if edge.DeletedAt.Valid {
		deleted := edge.DeletedAt.Time
		out.DeletedAt = &deleted
	}
	return out
}
