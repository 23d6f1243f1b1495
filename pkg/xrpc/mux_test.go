package xrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spkeasy-social/spkeasy/pkg/identity"
	"github.com/spkeasy-social/spkeasy/pkg/lexicon"
	"github.com/spkeasy-social/spkeasy/pkg/models"
)

// fakeVerifier resolves static tokens.
type fakeVerifier struct {
	principals map[string]*identity.Principal
	err        error
}

func (f *fakeVerifier) Verify(_ context.Context, token string) (*identity.Principal, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.principals[token]
	if !ok {
		return nil, identity.ErrTokenInvalid
	}
	return p, nil
}

func testVerifier() *fakeVerifier {
	return &fakeVerifier{principals: map[string]*identity.Principal{
		"alice-token":   {Kind: identity.KindUser, DID: "did:plc:alice", Handle: "alice.test"},
		"service-token": {Kind: identity.KindService, Service: lexicon.ServiceKeys},
	}}
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

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestMuxHealthEndpoints(t *testing.T) {
	m := NewMux(MuxConfig{Service: lexicon.ServiceTrust, Verifier: testVerifier()})

	rec := doRequest(t, m, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, m, http.MethodGet, "/health/ready", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("db down") }

func TestMuxReadinessReportsStoreFailure(t *testing.T) {
	m := NewMux(MuxConfig{Service: lexicon.ServiceTrust, Verifier: testVerifier(), Health: failingPinger{}})

	rec := doRequest(t, m, http.MethodGet, "/health/ready", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMuxRequiresAuthentication(t *testing.T) {
	m := NewMux(MuxConfig{Service: lexicon.ServiceTrust, Verifier: testVerifier()})
	Handle(m, lexicon.GraphGetTrusted, func(ctx context.Context, in *lexicon.GetTrustedParams) (*lexicon.GetTrustedResponse, error) {
		return &lexicon.GetTrustedResponse{}, nil
	})

	t.Run("missing header", func(t *testing.T) {
		rec := doRequest(t, m, http.MethodGet, "/xrpc/"+lexicon.GraphGetTrusted+"?authorDid=did:plc:alice", "", "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, KindAuthentication, decodeErrorBody(t, rec).Error)
	})

	t.Run("bad token", func(t *testing.T) {
		rec := doRequest(t, m, http.MethodGet, "/xrpc/"+lexicon.GraphGetTrusted+"?authorDid=did:plc:alice", "nope", "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("identity host down maps to upstream", func(t *testing.T) {
		down := &fakeVerifier{err: fmt.Errorf("%w: dial", identity.ErrHostUnavailable)}
		m2 := NewMux(MuxConfig{Service: lexicon.ServiceTrust, Verifier: down})
		Handle(m2, lexicon.GraphGetTrusted, func(ctx context.Context, in *lexicon.GetTrustedParams) (*lexicon.GetTrustedResponse, error) {
			return &lexicon.GetTrustedResponse{}, nil
		})
		rec := doRequest(t, m2, http.MethodGet, "/xrpc/"+lexicon.GraphGetTrusted+"?authorDid=did:plc:alice", "any", "")
		require.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Equal(t, KindUpstream, decodeErrorBody(t, rec).Error)
	})
}

func TestMuxQueryDecodingAndPrincipal(t *testing.T) {
	m := NewMux(MuxConfig{Service: lexicon.ServiceTrust, Verifier: testVerifier()})

	var gotAuthor, gotCallerDID string
	Handle(m, lexicon.GraphGetTrusted, func(ctx context.Context, in *lexicon.GetTrustedParams) (*lexicon.GetTrustedResponse, error) {
		gotAuthor = in.AuthorDID
		gotCallerDID = PrincipalFromContext(ctx).DID
		return &lexicon.GetTrustedResponse{Trusted: []lexicon.TrustedUser{}}, nil
	})

	rec := doRequest(t, m, http.MethodGet, "/xrpc/"+lexicon.GraphGetTrusted+"?authorDid=did:plc:alice", "alice-token", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "did:plc:alice", gotAuthor)
	assert.Equal(t, "did:plc:alice", gotCallerDID)

	var resp lexicon.GetTrustedResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotNil(t, resp.Trusted)
}

func TestMuxValidationNamesOffendingField(t *testing.T) {
	m := NewMux(MuxConfig{Service: lexicon.ServiceTrust, Verifier: testVerifier()})
	Handle(m, lexicon.GraphGetTrusted, func(ctx context.Context, in *lexicon.GetTrustedParams) (*lexicon.GetTrustedResponse, error) {
		return &lexicon.GetTrustedResponse{}, nil
	})

	rec := doRequest(t, m, http.MethodGet, "/xrpc/"+lexicon.GraphGetTrusted, "alice-token", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeErrorBody(t, rec)
	assert.Equal(t, KindValidation, body.Error)
	assert.Contains(t, body.Message, "AuthorDID")
}

func TestMuxProcedureBodyDecoding(t *testing.T) {
	m := NewMux(MuxConfig{Service: lexicon.ServiceTrust, Verifier: testVerifier()})

	var got string
	Handle(m, lexicon.GraphAddTrusted, func(ctx context.Context, in *lexicon.AddTrustedRequest) (*lexicon.AddTrustedResponse, error) {
		got = in.RecipientDID
		return &lexicon.AddTrustedResponse{Trusted: lexicon.TrustedUser{RecipientDID: in.RecipientDID}}, nil
	})

	rec := doRequest(t, m, http.MethodPost, "/xrpc/"+lexicon.GraphAddTrusted, "alice-token", `{"recipientDid":"did:plc:bob"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "did:plc:bob", got)

	t.Run("invalid body", func(t *testing.T) {
		rec := doRequest(t, m, http.MethodPost, "/xrpc/"+lexicon.GraphAddTrusted, "alice-token", `{"recipientDid": 7}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("queries reject POST", func(t *testing.T) {
		rec := doRequest(t, m, http.MethodGet, "/xrpc/"+lexicon.GraphAddTrusted+"?recipientDid=did:plc:bob", "alice-token", "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestMuxServiceOnlyMethods(t *testing.T) {
	verifier := &fakeVerifier{principals: map[string]*identity.Principal{
		"alice-token":   {Kind: identity.KindUser, DID: "did:plc:alice"},
		"service-token": {Kind: identity.KindService, Service: lexicon.ServiceKeys},
	}}
	m := NewMux(MuxConfig{Service: lexicon.ServicePrivateSessions, Verifier: verifier})
	Handle(m, lexicon.PrivateSessionUpdateKeys, func(ctx context.Context, in *lexicon.UpdateKeysRequest) (*lexicon.UpdateKeysResponse, error) {
		return &lexicon.UpdateKeysResponse{Updated: 3}, nil
	})

	payload := `{"prevKeyPairId":"5f2b0d52-8b6a-4f8e-9d24-111111111111","newKeyPairId":"5f2b0d52-8b6a-4f8e-9d24-222222222222","prevPrivateKey":"AAAA","newPublicKey":"AAAA"}`

	t.Run("user forbidden", func(t *testing.T) {
		rec := doRequest(t, m, http.MethodPost, "/xrpc/"+lexicon.PrivateSessionUpdateKeys, "alice-token", payload)
		require.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, KindAuthorization, decodeErrorBody(t, rec).Error)
	})

	t.Run("service allowed", func(t *testing.T) {
		rec := doRequest(t, m, http.MethodPost, "/xrpc/"+lexicon.PrivateSessionUpdateKeys, "service-token", payload)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})
}

func TestMuxTranslatesStoreErrors(t *testing.T) {
	m := NewMux(MuxConfig{Service: lexicon.ServiceTrust, Verifier: testVerifier()})
	Handle(m, lexicon.GraphAddTrusted, func(ctx context.Context, in *lexicon.AddTrustedRequest) (*lexicon.AddTrustedResponse, error) {
		return nil, fmt.Errorf("add trusted: %w", models.ErrTrustQuota)
	})

	rec := doRequest(t, m, http.MethodPost, "/xrpc/"+lexicon.GraphAddTrusted, "alice-token", `{"recipientDid":"did:plc:bob"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)

	body := decodeErrorBody(t, rec)
	assert.Equal(t, KindRateLimit, body.Error)
	assert.Equal(t, CodeTrustQuota, body.Code)
}

func TestMuxInternalErrorsStayOpaque(t *testing.T) {
	m := NewMux(MuxConfig{Service: lexicon.ServiceTrust, Verifier: testVerifier()})
	Handle(m, lexicon.GraphAddTrusted, func(ctx context.Context, in *lexicon.AddTrustedRequest) (*lexicon.AddTrustedResponse, error) {
		return nil, errors.New("pq: ssl handshake to 10.1.2.3 failed")
	})

	rec := doRequest(t, m, http.MethodPost, "/xrpc/"+lexicon.GraphAddTrusted, "alice-token", `{"recipientDid":"did:plc:bob"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	body := decodeErrorBody(t, rec)
	assert.Equal(t, "internal error", body.Message)
	assert.NotContains(t, rec.Body.String(), "10.1.2.3")
}

func TestMuxRegistrationPanics(t *testing.T) {
	m := NewMux(MuxConfig{Service: lexicon.ServiceTrust, Verifier: testVerifier()})

	assert.Panics(t, func() {
		Handle(m, "social.spkeasy.graph.noSuchMethod", func(ctx context.Context, in *struct{}) (*struct{}, error) {
			return nil, nil
		})
	})
	assert.Panics(t, func() {
		Handle(m, lexicon.KeyRotate, func(ctx context.Context, in *lexicon.RotateRequest) (*lexicon.RotateResponse, error) {
			return nil, nil
		})
	}, "method of another service")
}

func TestCallerAuthor(t *testing.T) {
	user := &identity.Principal{Kind: identity.KindUser, DID: "did:plc:alice"}
	svc := &identity.Principal{Kind: identity.KindService, Service: lexicon.ServiceTrust}

	tests := []struct {
		name      string
		principal *identity.Principal
		requested string
		want      string
		wantKind  Kind
	}{
		{name: "user defaults to self", principal: user, want: "did:plc:alice"},
		{name: "user naming self", principal: user, requested: "did:plc:alice", want: "did:plc:alice"},
		{name: "user naming other", principal: user, requested: "did:plc:bob", wantKind: KindAuthorization},
		{name: "service with author", principal: svc, requested: "did:plc:bob", want: "did:plc:bob"},
		{name: "service without author", principal: svc, wantKind: KindValidation},
		{name: "unauthenticated", principal: nil, wantKind: KindAuthentication},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CallerAuthor(tt.principal, tt.requested)
			if tt.wantKind != "" {
				var xe *Error
				require.ErrorAs(t, err, &xe)
				assert.Equal(t, tt.wantKind, xe.Kind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequireUser(t *testing.T) {
	did, err := RequireUser(&identity.Principal{Kind: identity.KindUser, DID: "did:plc:alice"})
	require.NoError(t, err)
	assert.Equal(t, "did:plc:alice", did)

	_, err = RequireUser(&identity.Principal{Kind: identity.KindService, Service: "user-keys"})
	var xe *Error
	require.ErrorAs(t, err, &xe)
	assert.Equal(t, KindAuthorization, xe.Kind)

	_, err = RequireUser(nil)
	require.ErrorAs(t, err, &xe)
	assert.Equal(t, KindAuthentication, xe.Kind)
}
