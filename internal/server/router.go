package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/opsgate/opsgate/internal/config"
	"github.com/opsgate/opsgate/internal/gateway"
	"github.com/opsgate/opsgate/internal/identity"
	opsmiddleware "github.com/opsgate/opsgate/internal/middleware"
	"github.com/opsgate/opsgate/internal/services/iam"
)

// RouterOptions controls the construction of the HTTP router.
// The zero value is valid; sensible defaults are applied where fields are not set.
type RouterOptions struct {
	Cfg           *config.Config
	Resolver      *iam.Resolver
	Engine        *iam.Engine
	Policy        *iam.PolicyTable
	Provider      identity.Provider
	Factory       *gateway.Factory
	Results       *gateway.ResultCache
	Transport     *gateway.HTTPTransport
	History       DeployHistory
	CORSOptions   *cors.Options
	Middleware    []func(http.Handler) http.Handler
	HealthHandler http.HandlerFunc
	ExtraRoutes   func(chi.Router)
}

// DefaultCORSOptions returns the shared development CORS policy.
func DefaultCORSOptions() cors.Options {
	return cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173",
			"http://127.0.0.1:5173",
			"http://localhost:3000",
			"http://127.0.0.1:3000",
		},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{
			"Content-Type",
			"Accept",
			"Authorization",
			"Mcp-Session-Id",
			"MCP-Protocol-Version",
		},
		ExposedHeaders: []string{
			"Mcp-Session-Id",
		},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

// NewRouter assembles a chi.Router with shared middleware, CORS policy, and
// the operations handlers mounted. The router can be tailored via
// RouterOptions for CLI usage, tests, or other entrypoints.
func NewRouter(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	// Baseline middleware shared across entrypoints.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	corsCfg := DefaultCORSOptions()
	if opts.CORSOptions != nil {
		corsCfg = *opts.CORSOptions
	}
	r.Use(cors.Handler(corsCfg))

	// Apply custom middleware passed from the caller.
	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	healthHandler := opts.HealthHandler
	if healthHandler == nil {
		healthHandler = HandleHealth()
	}
	r.Get("/health", healthHandler)

	identityCfg := config.IdentityConfig{}
	if opts.Cfg != nil {
		identityCfg = opts.Cfg.Identity
	}

	// Login exchanges raw credentials for a principal and so sits outside
	// the authentication middleware.
	if opts.Factory != nil {
		r.Post("/api/v1/auth/login", HandleLogin(opts.Factory.Router()))
	}

	r.Group(func(r chi.Router) {
		if opts.Resolver != nil {
			r.Use(opsmiddleware.Authentication(opts.Resolver, identityCfg))
		}

		r.Get("/api/v1/auth/me", HandleWhoAmI())
		r.Post("/api/v1/auth/logout", HandleLogout(opts.Provider, identityCfg))

		if opts.Factory != nil {
			r.Get("/api/v1/logs", HandleLogs(opts.Factory))
			r.Get("/api/v1/metrics", HandleMetrics(opts.Factory))
			r.Post("/api/v1/deploy", HandleDeploy(opts.Factory))
			r.Post("/api/v1/rollback", HandleRollback(opts.Factory))
			r.Handle("/mcp", NewMCPHandler(opts.Factory))
		}
		if opts.Engine != nil && opts.History != nil {
			r.Get("/api/v1/deployments", HandleDeployments(opts.Engine, opts.History))
		}
		if opts.Results != nil {
			r.Get("/api/v1/results/{id}", HandleResult(opts.Results))
		}
		if opts.Policy != nil {
			gatewayCfg := config.GatewayConfig{}
			if opts.Cfg != nil {
				gatewayCfg = opts.Cfg.Gateway
			}
			r.Get("/api/v1/gateway/status", HandleGatewayStatus(gatewayCfg, opts.Transport, opts.Policy))
		}
	})

	if opts.ExtraRoutes != nil {
		opts.ExtraRoutes(r)
	}

	return r
}

// NewH2CHandler wraps the shared router with an h2c server to provide HTTP/2
// over cleartext for development clients.
func NewH2CHandler(opts RouterOptions) http.Handler {
	return h2c.NewHandler(NewRouter(opts), &http2.Server{})
}
