// Package propagation implements the job handlers that converge trust graph
// and keypair changes into session key rows. One Handlers instance serves one
// session-owning service and drains only the queue names addressed to it.
//
// Every handler re-derives its target state from authoritative reads before
// touching anything, so late or duplicated deliveries cannot corrupt state.
package propagation

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spkeasy-social/spkeasy/internal/logger"
	"github.com/spkeasy-social/spkeasy/internal/telemetry"
	"github.com/spkeasy-social/spkeasy/pkg/lexicon"
	"github.com/spkeasy-social/spkeasy/pkg/models"
	"github.com/spkeasy-social/spkeasy/pkg/queue"
	"github.com/spkeasy-social/spkeasy/pkg/recrypt"
	"github.com/spkeasy-social/spkeasy/pkg/store"
)

// Per-service defaults.
const (
	// DefaultAddWindow bounds how far back add-recipient-to-sessions
	// reaches when granting a new recipient access to existing sessions.
	DefaultAddWindow = 30 * 24 * time.Hour

	// DefaultRotationBatch is the page size update-session-keys migrates
	// per query.
	DefaultRotationBatch = 100
)

// GraphClient is the slice of the graph service API the handlers re-check
// trust edges against before destructive or additive work.
type GraphClient interface {
	IsTrusted(ctx context.Context, authorDID, recipientDID string) (bool, error)
}

// KeyClient is the slice of the key service API the handlers fetch key
// material from.
type KeyClient interface {
	GetPublicKey(ctx context.Context, did string) (*lexicon.PublicKey, error)
	GetPrivateKeys(ctx context.Context, authorDID string, keyPairIDs []string) ([]lexicon.PrivateKey, error)
}

// Metrics receives propagation observations. A nil Metrics disables
// recording.
type Metrics interface {
	EnvelopesRecrypted(service, kind string, count int)
	SessionsRevoked(service string, count int64)
	SessionKeysDeleted(service string, count int64)
}

// Service describes the session-owning service a Handlers instance works
// for: the queue name prefix it drains, how recent a session must be for
// add-recipient to re-key it, and the rotation page size.
type Service struct {
	Name          string
	AddWindow     time.Duration
	RotationBatch int
}

// Handlers bundles the four propagation handlers for one session service.
type Handlers struct {
	svc      Service
	sessions *store.SessionStore
	graph    GraphClient
	keys     KeyClient
	metrics  Metrics
}

// New builds the handlers for svc. Zero Service fields fall back to the
// package defaults.
func New(svc Service, sessions *store.SessionStore, graph GraphClient, keys KeyClient, metrics Metrics) *Handlers {
	if svc.AddWindow <= 0 {
		svc.AddWindow = DefaultAddWindow
	}
	if svc.RotationBatch <= 0 {
		svc.RotationBatch = DefaultRotationBatch
	}
	return &Handlers{
		svc:      svc,
		sessions: sessions,
		graph:    graph,
		keys:     keys,
		metrics:  metrics,
	}
}

// Register attaches every handler to its queue name. Rotation runs one job
// at a time per service: concurrent workers would page over the same rows
// and recrypt them twice before the conditional swap discards one result.
func (h *Handlers) Register(q *queue.Queue) error {
	regs := []struct {
		kind    string
		handler queue.Handler
		opts    []queue.WorkOption
	}{
		{models.JobAddRecipient, h.AddRecipient, nil},
		{models.JobRevokeSession, h.RevokeSession, nil},
		{models.JobDeleteSessionKeys, h.DeleteSessionKeys, nil},
		{models.JobUpdateSessionKeys, h.UpdateSessionKeys, []queue.WorkOption{queue.Concurrency(1)}},
	}
	for _, r := range regs {
		if err := q.Work(models.JobName(h.svc.Name, r.kind), r.handler, r.opts...); err != nil {
			return err
		}
	}
	return nil
}

// AddRecipient grants a newly trusted recipient access to the author's
// recent sessions. The trust edge is re-checked first: bulk mutations are
// published with a delay exactly so an immediate undo lands here as an
// abort.
func (h *Handlers) AddRecipient(ctx context.Context, job *queue.Job) error {
	var payload models.AddRecipientJob
	if err := job.Unmarshal(&payload); err != nil {
		return err
	}

	trusted, err := h.graph.IsTrusted(ctx, payload.AuthorDID, payload.RecipientDID)
	if err != nil {
		return err
	}
	if !trusted {
		return queue.Abort("no longer trusted")
	}

	sessions, err := h.sessions.ListRecentWithAuthorKey(ctx, payload.AuthorDID, h.svc.AddWindow)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return nil
	}

	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.ID
	}

	// Sessions already keyed for the recipient need nothing; a concurrent
	// duplicate delivery converges to zero work here.
	existing, err := h.sessions.ListSessionKeys(ctx, ids, payload.RecipientDID)
	if err != nil {
		return err
	}
	keyed := make(map[string]bool, len(existing))
	for _, key := range existing {
		keyed[key.SessionID] = true
	}

	authorKeys, err := h.sessions.ListSessionKeys(ctx, ids, payload.AuthorDID)
	if err != nil {
		return err
	}

	sources := make([]*models.SessionKey, 0, len(authorKeys))
	pairIDs := make([]string, 0, 2)
	seen := make(map[string]bool, 2)
	for _, key := range authorKeys {
		if keyed[key.SessionID] {
			continue
		}
		sources = append(sources, key)
		if !seen[key.UserKeyPairID] {
			seen[key.UserKeyPairID] = true
			pairIDs = append(pairIDs, key.UserKeyPairID)
		}
	}
	if len(sources) == 0 {
		return nil
	}

	material, err := h.fetchMaterial(ctx, payload.AuthorDID, payload.RecipientDID, pairIDs)
	if err != nil {
		return err
	}
	defer material.wipe()

	rows := make([]*models.SessionKey, len(sources))
	for i, src := range sources {
		private, ok := material.private[src.UserKeyPairID]
		if !ok {
			return fmt.Errorf("key service omitted keypair %s for %s", src.UserKeyPairID, payload.AuthorDID)
		}
		envelope, err := recrypt.Recrypt(src.EncryptedDEK, private, material.recipient.PublicKey)
		if err != nil {
			return fmt.Errorf("recrypt session %s for recipient: %w", src.SessionID, err)
		}
		rows[i] = &models.SessionKey{
			SessionID:     src.SessionID,
			RecipientDID:  payload.RecipientDID,
			EncryptedDEK:  envelope,
			UserKeyPairID: material.recipient.KeyPairID,
		}
	}

	if err := h.sessions.AddSessionKeys(ctx, rows); err != nil {
		return err
	}

	telemetry.SetAttributes(ctx, telemetry.SessionCount(len(rows)))
	if h.metrics != nil {
		h.metrics.EnvelopesRecrypted(h.svc.Name, models.JobAddRecipient, len(rows))
	}
	logger.InfoCtx(ctx, "Granted recipient access to recent sessions",
		logger.Author(payload.AuthorDID),
		logger.Recipient(payload.RecipientDID),
		logger.Count(len(rows)))
	return nil
}

// RevokeSession revokes the author's active sessions. When the payload
// names a recipient, that recipient's keys across the author's sessions are
// deleted as well.
func (h *Handlers) RevokeSession(ctx context.Context, job *queue.Job) error {
	var payload models.RevokeSessionJob
	if err := job.Unmarshal(&payload); err != nil {
		return err
	}

	revoked, err := h.sessions.RevokeAllActive(ctx, payload.AuthorDID)
	if err != nil {
		return err
	}
	if h.metrics != nil && revoked > 0 {
		h.metrics.SessionsRevoked(h.svc.Name, revoked)
	}

	var deleted int64
	if payload.RecipientDID != "" {
		deleted, err = h.sessions.DeleteKeys(ctx, payload.RecipientDID, payload.AuthorDID)
		if err != nil {
			return err
		}
		if h.metrics != nil && deleted > 0 {
			h.metrics.SessionKeysDeleted(h.svc.Name, deleted)
		}
	}

	logger.InfoCtx(ctx, "Revoked sessions",
		logger.Author(payload.AuthorDID), "revoked", revoked, "keys_deleted", deleted)
	return nil
}

// DeleteSessionKeys deletes a recipient's keys across the author's sessions
// once the trust edge is confirmed gone. A restored edge aborts the job:
// the re-check is what lets a remove-then-re-add within the bulk delay keep
// the recipient's access intact.
func (h *Handlers) DeleteSessionKeys(ctx context.Context, job *queue.Job) error {
	var payload models.DeleteSessionKeysJob
	if err := job.Unmarshal(&payload); err != nil {
		return err
	}

	trusted, err := h.graph.IsTrusted(ctx, payload.AuthorDID, payload.RecipientDID)
	if err != nil {
		return err
	}
	if trusted {
		return queue.Abort("trust edge restored")
	}

	deleted, err := h.sessions.DeleteKeys(ctx, payload.RecipientDID, payload.AuthorDID)
	if err != nil {
		return err
	}

	if h.metrics != nil && deleted > 0 {
		h.metrics.SessionKeysDeleted(h.svc.Name, deleted)
	}
	logger.InfoCtx(ctx, "Deleted session keys",
		logger.Author(payload.AuthorDID),
		logger.Recipient(payload.RecipientDID),
		logger.Count(int(deleted)))
	return nil
}

// UpdateSessionKeys re-encrypts every envelope addressed under the retiring
// keypair onto the new one.
func (h *Handlers) UpdateSessionKeys(ctx context.Context, job *queue.Job) error {
	var payload models.UpdateSessionKeysJob
	if err := job.Unmarshal(&payload); err != nil {
		return err
	}
	defer recrypt.Zero(payload.PrevPrivateKey)

	migrated, err := h.RecryptKeyPair(ctx,
		payload.PrevKeyID, payload.NewKeyID, payload.PrevPrivateKey, payload.NewPublicKey)
	if err != nil {
		return err
	}

	telemetry.SetAttributes(ctx, telemetry.KeyPairID(payload.NewKeyID))
	logger.InfoCtx(ctx, "Migrated session keys to new pair",
		logger.KeyPairID(payload.NewKeyID), logger.Count(int(migrated)))
	return nil
}

// RecryptKeyPair pages through the session keys referencing prevKeyID and
// swaps each onto the new pair, returning how many rows it migrated.
//
// Progress is monotone: a successful swap removes the row from the driving
// query, and a failed conditional swap means another writer already moved
// it. A crash mid-migration resumes from whatever rows still reference the
// previous pair.
func (h *Handlers) RecryptKeyPair(ctx context.Context, prevKeyID, newKeyID string, prevPrivateKey, newPublicKey []byte) (int64, error) {
	var migrated int64
	for {
		batch, err := h.sessions.ListByKeyPair(ctx, prevKeyID, h.svc.RotationBatch)
		if err != nil {
			return migrated, err
		}
		if len(batch) == 0 {
			break
		}

		for _, key := range batch {
			envelope, err := recrypt.Recrypt(key.EncryptedDEK, prevPrivateKey, newPublicKey)
			if err != nil {
				return migrated, fmt.Errorf("recrypt session %s key: %w", key.SessionID, err)
			}
			swapped, err := h.sessions.UpdateKeyEnvelope(ctx,
				key.SessionID, key.RecipientDID, prevKeyID, envelope, newKeyID)
			if err != nil {
				return migrated, err
			}
			if swapped {
				migrated++
			}
		}
		logger.DebugCtx(ctx, "Migrated rotation batch",
			logger.KeyPairID(prevKeyID), logger.Batch(len(batch)))
	}

	if h.metrics != nil && migrated > 0 {
		h.metrics.EnvelopesRecrypted(h.svc.Name, models.JobUpdateSessionKeys, int(migrated))
	}
	return migrated, nil
}

// keyMaterial is what add-recipient fetches from the key service: the
// author's private keys by pair id and the recipient's current public key.
type keyMaterial struct {
	private   map[string][]byte
	recipient *lexicon.PublicKey
}

func (m *keyMaterial) wipe() {
	for _, key := range m.private {
		recrypt.Zero(key)
	}
}

// fetchMaterial retrieves both sides of the recryption in parallel. A
// private key owned by anyone but the author fails hard: that response can
// only come from a key service scoping fault, and retrying will not fix it.
func (h *Handlers) fetchMaterial(ctx context.Context, author, recipient string, pairIDs []string) (*keyMaterial, error) {
	material := &keyMaterial{}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pairs, err := h.keys.GetPrivateKeys(ctx, author, pairIDs)
		if err != nil {
			return fmt.Errorf("fetch author private keys: %w", err)
		}
		material.private = make(map[string][]byte, len(pairs))
		for _, pair := range pairs {
			if pair.AuthorDID != author {
				return fmt.Errorf("key service returned keypair %s owned by another author", pair.KeyPairID)
			}
			material.private[pair.KeyPairID] = pair.PrivateKey
		}
		return nil
	})
	g.Go(func() error {
		key, err := h.keys.GetPublicKey(ctx, recipient)
		if err != nil {
			return fmt.Errorf("fetch recipient public key: %w", err)
		}
		material.recipient = key
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return material, nil
}
