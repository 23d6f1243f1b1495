//go:build integration

package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spkeasy-social/spkeasy/pkg/identity"
	"github.com/spkeasy-social/spkeasy/pkg/lexicon"
	"github.com/spkeasy-social/spkeasy/pkg/models"
	"github.com/spkeasy-social/spkeasy/pkg/queue"
	"github.com/spkeasy-social/spkeasy/pkg/store"
	"github.com/spkeasy-social/spkeasy/pkg/xrpc"
)

// staticVerifier resolves fixed tokens to principals.
type staticVerifier map[string]*identity.Principal

func (v staticVerifier) Verify(_ context.Context, token string) (*identity.Principal, error) {
	p, ok := v[token]
	if !ok {
		return nil, identity.ErrTokenInvalid
	}
	return p, nil
}

func testMux(t *testing.T, quota store.TrustQuota) *xrpc.Mux {
	t.Helper()
	db, err := store.Open(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: ":memory:"},
	}, &queue.Job{}, &models.TrustedUser{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = store.Close(db) })

	q, err := queue.New(db, queue.Config{EncryptionKey: "test-encryption-key"}, nil)
	if err != nil {
		t.Fatalf("failed to create queue: %v", err)
	}

	m := xrpc.NewMux(xrpc.MuxConfig{
		Service: lexicon.ServiceTrust,
		Verifier: staticVerifier{
			"alice-token":   {Kind: identity.KindUser, DID: "did:plc:alice"},
			"bob-token":     {Kind: identity.KindUser, DID: "did:plc:bob"},
			"service-token": {Kind: identity.KindService, Service: lexicon.ServicePrivateSessions},
		},
	})
	trust := store.NewTrustStore(db, q, lexicon.SessionServices(), quota, time.Minute)
	New(trust).Register(m)
	return m
}

func doRequest(t *testing.T, h http.Handler, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) *T {
	t.Helper()
	out := new(T)
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return out
}

type errBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func addTrusted(t *testing.T, m *xrpc.Mux, token, recipient string) *httptest.ResponseRecorder {
	t.Helper()
	return doRequest(t, m, http.MethodPost, "/xrpc/"+lexicon.GraphAddTrusted, token,
		`{"recipientDid":"`+recipient+`"}`)
}

func listTrusted(t *testing.T, m *xrpc.Mux, token, query string) []lexicon.TrustedUser {
	t.Helper()
	rec := doRequest(t, m, http.MethodGet, "/xrpc/"+lexicon.GraphGetTrusted+query, token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing trusted, got %d: %s", rec.Code, rec.Body.String())
	}
	return decode[lexicon.GetTrustedResponse](t, rec).Trusted
}

func TestAddTrusted(t *testing.T) {
	m := testMux(t, store.TrustQuota{Limit: 10, Window: time.Hour})

	rec := addTrusted(t, m, "alice-token", "did:plc:bob")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[lexicon.AddTrustedResponse](t, rec)
	if resp.Trusted.RecipientDID != "did:plc:bob" {
		t.Errorf("expected bob in the response, got %q", resp.Trusted.RecipientDID)
	}
	if resp.Trusted.CreatedAt.IsZero() {
		t.Error("expected a creation timestamp")
	}

	t.Run("duplicate edge conflicts", func(t *testing.T) {
		rec := addTrusted(t, m, "alice-token", "did:plc:bob")
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
		}
		if body := decode[errBody](t, rec); body.Code != "DuplicateTrust" {
			t.Errorf("expected DuplicateTrust code, got %q", body.Code)
		}
	})

	t.Run("services cannot mutate the graph", func(t *testing.T) {
		rec := addTrusted(t, m, "service-token", "did:plc:carol")
		if rec.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", rec.Code)
		}
	})
}

func TestAddTrustedQuota(t *testing.T) {
	m := testMux(t, store.TrustQuota{Limit: 2, Window: time.Hour})

	for _, recipient := range []string{"did:plc:bob", "did:plc:carol"} {
		if rec := addTrusted(t, m, "alice-token", recipient); rec.Code != http.StatusOK {
			t.Fatalf("expected 200 within quota, got %d: %s", rec.Code, rec.Body.String())
		}
	}

	rec := addTrusted(t, m, "alice-token", "did:plc:dave")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 over quota, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := decode[errBody](t, rec); body.Code != "TrustQuotaExceeded" {
		t.Errorf("expected TrustQuotaExceeded code, got %q", body.Code)
	}

	if trusted := listTrusted(t, m, "alice-token", "?authorDid=did:plc:alice"); len(trusted) != 2 {
		t.Errorf("expected the rejected edge not to exist, got %d edges", len(trusted))
	}
}

func TestGetTrusted(t *testing.T) {
	m := testMux(t, store.TrustQuota{Limit: 10, Window: time.Hour})

	for _, recipient := range []string{"did:plc:bob", "did:plc:carol"} {
		if rec := addTrusted(t, m, "alice-token", recipient); rec.Code != http.StatusOK {
			t.Fatalf("failed to add %s: %d", recipient, rec.Code)
		}
	}

	t.Run("lists own edges", func(t *testing.T) {
		trusted := listTrusted(t, m, "alice-token", "?authorDid=did:plc:alice")
		if len(trusted) != 2 {
			t.Fatalf("expected 2 edges, got %d", len(trusted))
		}
	})

	t.Run("recipient filter narrows to one edge", func(t *testing.T) {
		trusted := listTrusted(t, m, "alice-token", "?authorDid=did:plc:alice&recipientDid=did:plc:bob")
		if len(trusted) != 1 || trusted[0].RecipientDID != "did:plc:bob" {
			t.Fatalf("expected exactly bob's edge, got %+v", trusted)
		}
	})

	t.Run("absent edge is an empty list", func(t *testing.T) {
		trusted := listTrusted(t, m, "alice-token", "?authorDid=did:plc:alice&recipientDid=did:plc:dave")
		if len(trusted) != 0 {
			t.Fatalf("expected no edges, got %d", len(trusted))
		}
	})

	t.Run("users cannot read another author's list", func(t *testing.T) {
		rec := doRequest(t, m, http.MethodGet,
			"/xrpc/"+lexicon.GraphGetTrusted+"?authorDid=did:plc:alice", "bob-token", "")
		if rec.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", rec.Code)
		}
	})

	t.Run("services name the author they check for", func(t *testing.T) {
		trusted := listTrusted(t, m, "service-token", "?authorDid=did:plc:alice&recipientDid=did:plc:carol")
		if len(trusted) != 1 {
			t.Fatalf("expected the edge the propagation re-check needs, got %d", len(trusted))
		}
	})
}

func TestRemoveTrusted(t *testing.T) {
	m := testMux(t, store.TrustQuota{Limit: 10, Window: time.Hour})

	if rec := addTrusted(t, m, "alice-token", "did:plc:bob"); rec.Code != http.StatusOK {
		t.Fatalf("failed to add edge: %d", rec.Code)
	}

	rec := doRequest(t, m, http.MethodPost, "/xrpc/"+lexicon.GraphRemoveTrusted, "alice-token",
		`{"recipientDid":"did:plc:bob"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if trusted := listTrusted(t, m, "alice-token", "?authorDid=did:plc:alice"); len(trusted) != 0 {
		t.Errorf("expected no active edges after removal, got %d", len(trusted))
	}

	t.Run("removing an absent edge is not found", func(t *testing.T) {
		rec := doRequest(t, m, http.MethodPost, "/xrpc/"+lexicon.GraphRemoveTrusted, "alice-token",
			`{"recipientDid":"did:plc:bob"}`)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d: %s", rec.Code, rec.Body.String())
		}
	})
}

func TestBulkAddTrusted(t *testing.T) {
	m := testMux(t, store.TrustQuota{Limit: 10, Window: time.Hour})

	body := `{"recipientDids":["did:plc:bob","did:plc:carol"]}`
	rec := doRequest(t, m, http.MethodPost, "/xrpc/"+lexicon.GraphBulkAddTrusted, "alice-token", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if added := decode[lexicon.BulkAddTrustedResponse](t, rec).Added; len(added) != 2 {
		t.Fatalf("expected both recipients added, got %v", added)
	}

	t.Run("repeat is empty, not an error", func(t *testing.T) {
		rec := doRequest(t, m, http.MethodPost, "/xrpc/"+lexicon.GraphBulkAddTrusted, "alice-token", body)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		resp := decode[lexicon.BulkAddTrustedResponse](t, rec)
		if resp.Added == nil || len(resp.Added) != 0 {
			t.Errorf("expected an empty added list, got %v", resp.Added)
		}
	})
}

func TestBulkAddTrustedQuotaAtomicity(t *testing.T) {
	m := testMux(t, store.TrustQuota{Limit: 2, Window: time.Hour})

	rec := doRequest(t, m, http.MethodPost, "/xrpc/"+lexicon.GraphBulkAddTrusted, "alice-token",
		`{"recipientDids":["did:plc:bob","did:plc:carol","did:plc:dave"]}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d: %s", rec.Code, rec.Body.String())
	}

	if trusted := listTrusted(t, m, "alice-token", "?authorDid=did:plc:alice"); len(trusted) != 0 {
		t.Errorf("expected nothing inserted when the batch exceeds quota, got %d edges", len(trusted))
	}
}

func TestBulkRemoveTrusted(t *testing.T) {
	m := testMux(t, store.TrustQuota{Limit: 10, Window: time.Hour})

	for _, recipient := range []string{"did:plc:bob", "did:plc:carol"} {
		if rec := addTrusted(t, m, "alice-token", recipient); rec.Code != http.StatusOK {
			t.Fatalf("failed to add %s: %d", recipient, rec.Code)
		}
	}

	rec := doRequest(t, m, http.MethodPost, "/xrpc/"+lexicon.GraphBulkRemoveTrusted, "alice-token",
		`{"recipientDids":["did:plc:bob","did:plc:carol","did:plc:dave"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if removed := decode[lexicon.BulkRemoveTrustedResponse](t, rec).Removed; len(removed) != 2 {
		t.Fatalf("expected the two existing edges removed, got %v", removed)
	}

	t.Run("removing nothing is not found", func(t *testing.T) {
		rec := doRequest(t, m, http.MethodPost, "/xrpc/"+lexicon.GraphBulkRemoveTrusted, "alice-token",
			`{"recipientDids":["did:plc:bob"]}`)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d: %s", rec.Code, rec.Body.String())
		}
	})
}
