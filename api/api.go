package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/jmcleod/ironrsa/issuance"
)

// API holds the dependencies needed by the REST handlers.
type API struct {
	manager *issuance.Manager
	tokens  *TokenAuthority
	audit   *auditLogger
	alertFn AlertFunc
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.audit = newAuditLogger(logger)
	}
}

// WithAlertFunc registers a callback for anomaly alerts such as spikes in
// authentication or command failures.
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) {
		a.alertFn = fn
	}
}

// New creates a new API instance.
func New(manager *issuance.Manager, tokens *TokenAuthority, opts ...Option) *API {
	a := &API{
		manager: manager,
		tokens:  tokens,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.audit == nil {
		a.audit = newAuditLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))
	}
	if a.alertFn != nil {
		a.audit.metrics = newMetricsCollector(a.alertFn)
	}
	return a
}

// Router returns a chi.Router with all API routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/v1/openapi.yaml",
		Path:    "api/v1/redoc",
	}, nil))

	r.Group(func(r chi.Router) {
		r.Use(a.AuthMiddleware)

		r.Post("/issuers", a.CreateIssuer)
		r.Get("/issuers", a.ListIssuers)

		r.Route("/issuers/{issuerID}", func(r chi.Router) {
			r.Get("/", a.GetIssuer)
			r.Put("/", a.UpdateIssuer)
			r.Delete("/", a.DeleteIssuer)
			r.Post("/init-pki", a.InitPKI)
			r.Post("/ca", a.GenerateCA)
			r.Post("/dh", a.GenerateDH)
			r.Post("/ta", a.GenerateTA)
			r.Post("/servers", a.GenerateServer)
			r.Post("/clients", a.GenerateClient)
			r.Get("/certificates", a.ListCertificates)
			r.Get("/log", a.GetIssuerLog)
		})

		r.Get("/certificates/{certificateID}", a.GetCertificate)
		r.Delete("/certificates/{certificateID}", a.DeleteCertificate)
	})

	return r
}
