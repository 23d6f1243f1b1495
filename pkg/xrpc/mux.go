package xrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/spkeasy-social/spkeasy/internal/logger"
	"github.com/spkeasy-social/spkeasy/internal/telemetry"
	"github.com/spkeasy-social/spkeasy/pkg/lexicon"
)

// Metrics observes served requests. A nil Metrics disables observation.
type Metrics interface {
	RequestServed(method string, status int, duration time.Duration)
}

// HealthPinger reports backing store health for the readiness probe.
type HealthPinger interface {
	Ping(ctx context.Context) error
}

// MuxConfig configures a service mux.
type MuxConfig struct {
	// Service names the deployment; methods registered on the mux must
	// belong to it.
	Service string

	// Verifier authenticates every /xrpc request.
	Verifier TokenVerifier

	// Health backs /health/ready. Nil means always ready.
	Health HealthPinger

	// Metrics observes request outcomes. Optional.
	Metrics Metrics

	// RequestTimeout caps in-flight request time. Zero means 30s.
	RequestTimeout time.Duration
}

// Mux serves one service's methods under /xrpc/<nsid> plus the health
// endpoints. Queries are mounted on GET, procedures on POST; inputs are
// decoded, validated, and dispatched to typed handlers via Handle.
type Mux struct {
	cfg      MuxConfig
	router   chi.Router
	methods  chi.Router
	validate *validator.Validate
}

// NewMux builds the middleware stack and health routes.
func NewMux(cfg MuxConfig) *Mux {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	m := &Mux{
		cfg:      cfg,
		router:   r,
		validate: validator.New(),
	}

	r.Get("/health", m.liveness)
	r.Get("/health/ready", m.readiness)

	m.methods = r.Route("/xrpc", func(sub chi.Router) {
		sub.Use(Auth(cfg.Verifier))
	})

	return m
}

// ServeHTTP implements http.Handler.
func (m *Mux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.router.ServeHTTP(w, r)
}

// Handle mounts a typed handler for an XRPC method. The input is decoded
// from the query string (queries) or JSON body (procedures), validated,
// and passed to h; the output is written as JSON. Unknown method names
// and methods of other services are registration bugs and panic.
func Handle[I, O any](m *Mux, nsid string, h func(ctx context.Context, in *I) (*O, error)) {
	method, ok := lexicon.Methods[nsid]
	if !ok {
		panic(fmt.Sprintf("xrpc: unknown method %q", nsid))
	}
	if method.Service != m.cfg.Service {
		panic(fmt.Sprintf("xrpc: method %q belongs to service %q, mux serves %q", nsid, method.Service, m.cfg.Service))
	}

	handler := func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx, span := telemetry.StartRequestSpan(r.Context(), nsid, telemetry.Service(m.cfg.Service))
		defer span.End()

		if lc := logger.FromContext(ctx); lc != nil {
			ctx = logger.WithContext(ctx, lc.WithMethod(nsid))
		}

		principal := PrincipalFromContext(ctx)
		if principal != nil {
			telemetry.SetAttributes(ctx, telemetry.AuthKind(string(principal.Kind)))
		}
		if method.ServiceOnly && !principal.IsService() {
			m.fail(ctx, w, nsid, start, NewError(KindAuthorization, "service principal required"))
			return
		}

		in := new(I)
		if method.Input != nil {
			var err error
			if method.Kind == lexicon.KindQuery {
				err = decodeQuery(r, in)
			} else {
				err = decodeBody(r, in)
			}
			if err == nil {
				err = m.validateInput(in)
			}
			if err != nil {
				m.fail(ctx, w, nsid, start, err)
				return
			}
		}

		out, err := h(ctx, in)
		if err != nil {
			m.fail(ctx, w, nsid, start, err)
			return
		}

		var body any = out
		if method.Output == nil || out == nil {
			body = struct{}{}
		}
		telemetry.SetAttributes(ctx, telemetry.XRPCStatus(http.StatusOK))
		m.observe(nsid, http.StatusOK, start)
		WriteJSON(w, http.StatusOK, body)
	}

	switch method.Kind {
	case lexicon.KindQuery:
		m.methods.Get("/"+nsid, handler)
	case lexicon.KindProcedure:
		m.methods.Post("/"+nsid, handler)
	}
}

// fail records the classified failure on the span and metrics, then
// writes the error body.
func (m *Mux) fail(ctx context.Context, w http.ResponseWriter, nsid string, start time.Time, err error) {
	xe := classify(err)
	status := xe.Kind.HTTPStatus()
	telemetry.SetAttributes(ctx,
		telemetry.XRPCStatus(status),
		telemetry.XRPCErrorKind(string(xe.Kind)),
	)
	if status >= http.StatusInternalServerError {
		telemetry.RecordError(ctx, err)
	}
	m.observe(nsid, status, start)
	WriteError(ctx, w, err)
}

func (m *Mux) observe(nsid string, status int, start time.Time) {
	if m.cfg.Metrics != nil {
		m.cfg.Metrics.RequestServed(nsid, status, time.Since(start))
	}
}

// validateInput maps the first constraint violation to a ValidationError
// naming the offending field.
func (m *Mux) validateInput(v any) error {
	err := m.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return NewError(KindValidation, "invalid request: field %s fails %q", fe.Field(), fe.Tag())
	}
	return NewError(KindValidation, "invalid request")
}

// decodeQuery maps URL query parameters onto the input struct. Parameter
// names follow the JSON field names; every query input in the schema is
// flat strings, so a JSON round trip through a string map suffices.
func decodeQuery(r *http.Request, v any) error {
	params := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return NewError(KindValidation, "invalid query parameters")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return NewError(KindValidation, "invalid query parameters")
	}
	return nil
}

// decodeBody decodes a JSON procedure body.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return NewError(KindValidation, "invalid request body")
	}
	return nil
}

// liveness answers as long as the process serves requests.
func (m *Mux) liveness(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": m.cfg.Service})
}

// readiness answers 200 once the backing stores respond to a ping.
func (m *Mux) readiness(w http.ResponseWriter, r *http.Request) {
	if m.cfg.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := m.cfg.Health.Ping(ctx); err != nil {
			logger.WarnCtx(r.Context(), "Readiness probe failed", logger.Err(err))
			WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "service": m.cfg.Service})
			return
		}
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ready", "service": m.cfg.Service})
}
