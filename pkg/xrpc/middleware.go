package xrpc

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/spkeasy-social/spkeasy/internal/logger"
	"github.com/spkeasy-social/spkeasy/pkg/identity"
)

// TokenVerifier authenticates a bearer credential. Implemented by
// identity.Verifier.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*identity.Principal, error)
}

// requestLogger seeds the request-scoped LogContext and logs completion
// with status and duration. DIDs reaching the log are anonymized by the
// field constructors.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lc := logger.NewLogContext(clientIP(r)).
			WithRequestID(middleware.GetReqID(r.Context()))
		ctx := logger.WithContext(r.Context(), lc)

		logger.DebugCtx(ctx, "Request started",
			"verb", r.Method,
			"path", r.URL.Path,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		logger.InfoCtx(ctx, "Request completed",
			"verb", r.Method,
			"path", r.URL.Path,
			logger.Status(ww.Status()),
			"bytes", ww.BytesWritten(),
			logger.DurationMs(lc.StartTime),
		)
	})
}

// clientIP strips the port middleware.RealIP may have left on RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Auth authenticates every request on the subtree. Missing or malformed
// headers and rejected credentials answer 401; an unreachable identity
// host answers 502 so clients can distinguish outage from rejection.
func Auth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				WriteError(r.Context(), w, NewError(KindAuthentication, "authorization header required"))
				return
			}

			principal, err := verifier.Verify(r.Context(), token)
			if err != nil {
				if errors.Is(err, identity.ErrHostUnavailable) {
					WriteError(r.Context(), w, NewError(KindUpstream, "identity host unavailable"))
					return
				}
				WriteError(r.Context(), w, NewError(KindAuthentication, "invalid credentials"))
				return
			}

			ctx := WithPrincipal(r.Context(), principal)
			if lc := logger.FromContext(ctx); lc != nil {
				ctx = logger.WithContext(ctx, lc.WithCaller(principal.DID, principal.Service))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the credential from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
