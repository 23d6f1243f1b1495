package identity

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/spkeasy-social/spkeasy/internal/logger"
)

const (
	// apiKeyPrefix marks a service credential.
	apiKeyPrefix = "api-key:"

	// audiencePrefix is the aud claim prefix naming the issuing PDS.
	audiencePrefix = "did:web:"

	DefaultCacheTTL     = 5 * time.Minute
	DefaultCacheSize    = 10000
	DefaultFetchTimeout = 10 * time.Second
)

// Config configures a Verifier.
type Config struct {
	// ServiceKeys maps service names to the shared secrets accepted for
	// service principals.
	ServiceKeys map[string]string

	// AllowedHosts are PDS hosts trusted without a handle proof.
	AllowedHosts []string

	// CacheTTL bounds reuse of a verified token before the issuing host
	// is consulted again. Zero means DefaultCacheTTL.
	CacheTTL time.Duration

	// CacheSize is the maximum number of cached verifications. Zero
	// means DefaultCacheSize.
	CacheSize int

	// FetchTimeout bounds each outbound call to a PDS. Zero means
	// DefaultFetchTimeout.
	FetchTimeout time.Duration

	// HTTPClient overrides the client used for PDS calls.
	HTTPClient *http.Client
}

// Verifier authenticates bearer credentials.
//
// Verified user tokens are cached by digest for the configured TTL, so
// token revocation on the issuing host reconverges within one TTL.
// Safe for concurrent use.
type Verifier struct {
	serviceKeys  map[string]string
	mu           sync.RWMutex
	allowedHosts map[string]struct{}
	cache        *expirable.LRU[string, verifiedSession]
	client       *http.Client
	fetchTimeout time.Duration
	scheme       string
}

// verifiedSession is the (did, handle) binding confirmed by the issuer.
type verifiedSession struct {
	DID    string `json:"did"`
	Handle string `json:"handle"`
}

// NewVerifier creates a Verifier from config.
func NewVerifier(cfg Config) *Verifier {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedHosts))
	for _, host := range cfg.AllowedHosts {
		allowed[strings.ToLower(host)] = struct{}{}
	}

	return &Verifier{
		serviceKeys:  cfg.ServiceKeys,
		allowedHosts: allowed,
		cache:        expirable.NewLRU[string, verifiedSession](size, nil, ttl),
		client:       client,
		fetchTimeout: timeout,
		scheme:       "https",
	}
}

// SetAllowedHosts replaces the set of PDS hosts trusted without a handle
// proof. Lets a configuration reload apply allow-list changes without
// restarting; already-cached verifications stay valid until their TTL.
func (v *Verifier) SetAllowedHosts(hosts []string) {
	allowed := make(map[string]struct{}, len(hosts))
	for _, host := range hosts {
		allowed[strings.ToLower(host)] = struct{}{}
	}
	v.mu.Lock()
	v.allowedHosts = allowed
	v.mu.Unlock()
}

func (v *Verifier) hostAllowed(host string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.allowedHosts[host]
	return ok
}

// Verify authenticates a bearer credential and returns its principal.
//
// Credentials beginning with "api-key:" are validated as service
// principals against the configured shared secrets. Anything else is
// treated as a federated session token: claims are parsed without
// signature verification and the issuing host named by the aud claim is
// asked to confirm the session is live. Hosts outside the allow-list
// must additionally prove they serve the subject's handle.
func (v *Verifier) Verify(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty credential", ErrTokenInvalid)
	}
	if strings.HasPrefix(token, apiKeyPrefix) {
		return v.verifyServiceKey(token)
	}
	return v.verifyUserToken(ctx, token)
}

// verifyServiceKey validates an "api-key:<service>:<secret>" credential.
func (v *Verifier) verifyServiceKey(token string) (*Principal, error) {
	parts := strings.SplitN(token, ":", 3)
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return nil, fmt.Errorf("%w: malformed service credential", ErrTokenInvalid)
	}
	service, secret := parts[1], parts[2]

	want, known := v.serviceKeys[service]
	// Hash both sides so the comparison burns the same time for unknown
	// services and wrong-length secrets.
	wantSum := sha256.Sum256([]byte(want))
	gotSum := sha256.Sum256([]byte(secret))
	if subtle.ConstantTimeCompare(wantSum[:], gotSum[:]) != 1 || !known {
		logger.Debug("Rejected service credential", logger.Service(service))
		return nil, fmt.Errorf("%w: unknown service or bad secret", ErrTokenInvalid)
	}

	return &Principal{Kind: KindService, Service: service}, nil
}

// verifyUserToken validates a federated session token.
func (v *Verifier) verifyUserToken(ctx context.Context, token string) (*Principal, error) {
	digest := sha256.Sum256([]byte(token))
	cacheKey := hex.EncodeToString(digest[:])
	if sess, ok := v.cache.Get(cacheKey); ok {
		return &Principal{Kind: KindUser, DID: sess.DID, Handle: sess.Handle}, nil
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: parse session token: %v", ErrTokenInvalid, err)
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		return nil, fmt.Errorf("%w: token expired", ErrTokenInvalid)
	}

	sub := claims.Subject
	if !strings.HasPrefix(sub, "did:") {
		return nil, fmt.Errorf("%w: subject is not a DID", ErrTokenInvalid)
	}
	host, err := audienceHost(claims.Audience)
	if err != nil {
		return nil, err
	}

	if !v.hostAllowed(host) {
		if err := v.proveHandleHost(ctx, host, sub); err != nil {
			logger.Debug("Host failed handle proof", logger.Host(host), logger.DID(sub), logger.Err(err))
			return nil, err
		}
	}

	sess, err := v.fetchSession(ctx, host, token)
	if err != nil {
		return nil, err
	}
	if sess.DID != sub {
		return nil, fmt.Errorf("%w: session subject mismatch", ErrTokenInvalid)
	}

	v.cache.Add(cacheKey, sess)
	return &Principal{Kind: KindUser, DID: sess.DID, Handle: sess.Handle}, nil
}

// audienceHost extracts the PDS host from an aud claim of the form
// "did:web:<host>". Exactly one audience is expected.
func audienceHost(aud jwt.ClaimStrings) (string, error) {
	if len(aud) != 1 {
		return "", fmt.Errorf("%w: expected a single audience", ErrTokenInvalid)
	}
	if !strings.HasPrefix(aud[0], audiencePrefix) {
		return "", fmt.Errorf("%w: audience is not a did:web host", ErrTokenInvalid)
	}
	host := strings.ToLower(strings.TrimPrefix(aud[0], audiencePrefix))
	if host == "" || strings.ContainsAny(host, "/?#") {
		return "", fmt.Errorf("%w: malformed audience host", ErrTokenInvalid)
	}
	return host, nil
}

// proveHandleHost checks that the host publicly serves the subject's
// handle: the profile it returns for the DID must carry a handle equal
// to the host or a subdomain of it. Without this a hostile host could
// mint tokens for arbitrary subjects.
func (v *Verifier) proveHandleHost(ctx context.Context, host, did string) error {
	endpoint := fmt.Sprintf("%s://%s/xrpc/app.bsky.actor.getProfile?actor=%s", v.scheme, host, url.QueryEscape(did))

	var profile struct {
		DID    string `json:"did"`
		Handle string `json:"handle"`
	}
	if err := v.getJSON(ctx, endpoint, "", &profile); err != nil {
		return err
	}
	if profile.DID != did {
		return fmt.Errorf("%w: host serves a different DID for this subject", ErrTokenInvalid)
	}
	handle := strings.ToLower(profile.Handle)
	if handle != host && !strings.HasSuffix(handle, "."+host) {
		return fmt.Errorf("%w: handle %q is not served by host %q", ErrTokenInvalid, handle, host)
	}
	return nil
}

// fetchSession confirms token liveness with the issuing host and
// returns the session's (did, handle) binding.
func (v *Verifier) fetchSession(ctx context.Context, host, token string) (verifiedSession, error) {
	endpoint := fmt.Sprintf("%s://%s/xrpc/com.atproto.server.getSession", v.scheme, host)

	var sess verifiedSession
	if err := v.getJSON(ctx, endpoint, token, &sess); err != nil {
		return verifiedSession{}, err
	}
	if sess.DID == "" {
		return verifiedSession{}, fmt.Errorf("%w: session without a DID", ErrTokenInvalid)
	}
	return sess, nil
}

// getJSON performs one GET against a PDS endpoint. 4xx responses mean
// the host definitively rejected the request; transport errors and 5xx
// responses surface as ErrHostUnavailable.
func (v *Verifier) getJSON(ctx context.Context, endpoint, token string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, v.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHostUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHostUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: host returned %d", ErrHostUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("%w: host rejected request with %d", ErrTokenInvalid, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode host response: %v", ErrHostUnavailable, err)
	}
	return nil
}
