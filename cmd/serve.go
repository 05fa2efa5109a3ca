package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/opsgate/opsgate/internal/config"
	"github.com/opsgate/opsgate/internal/db/bunx"
	"github.com/opsgate/opsgate/internal/gateway"
	"github.com/opsgate/opsgate/internal/identity"
	"github.com/opsgate/opsgate/internal/repository"
	"github.com/opsgate/opsgate/internal/server"
	"github.com/opsgate/opsgate/internal/services/devops"
	"github.com/opsgate/opsgate/internal/services/iam"
	"github.com/opsgate/opsgate/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the operations API server",
	Long:  `Starts the HTTP server with the REST and MCP endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		shutdownTelemetry, err := telemetry.Init(cmd.Context(), cfg.Observability)
		if err != nil {
			return fmt.Errorf("initialize telemetry: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(ctx); err != nil {
				log.Printf("WARNING: telemetry shutdown: %v", err)
			}
		}()

		// Connect to database
		db, err := bunx.NewDB(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		deploymentRepo := repository.NewBunDeploymentRepository(db)
		if err := deploymentRepo.CreateSchema(cmd.Context()); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		log.Printf("INFO: connected to database (%s)", bunx.DetectDatabaseType(cfg.DatabaseURL))

		// Identity provider: remote when an IdP is configured, with
		// local JWKS validation layered on top when an issuer is known.
		var provider identity.Provider
		if cfg.Identity.BaseURL != "" {
			remote := identity.NewRemoteProvider(cfg.Identity)
			provider = remote
			if cfg.Identity.Issuer != "" {
				local, err := identity.NewLocalValidator(cfg.Identity, remote)
				if err != nil {
					return fmt.Errorf("configure local token validation: %w", err)
				}
				provider = local
				log.Printf("INFO: local token validation enabled for issuer %s", cfg.Identity.Issuer)
			}
		} else {
			log.Printf("WARNING: no identity provider configured, anonymous access only")
		}

		policy, err := iam.NewPolicyTable(cfg.Policy)
		if err != nil {
			return fmt.Errorf("load policy table: %w", err)
		}
		resolver := iam.NewResolver(provider, policy, cfg.Identity.AllowAnonymous)
		engine := iam.NewEngine(policy, provider)

		// Operation backends, simulated when no endpoint is configured.
		logService := devops.NewLogService(devops.NewLogsBackend(cfg.Backends))
		metricsService := devops.NewMetricsService(devops.NewMetricsBackend(cfg.Backends))
		cicd := devops.NewCICDBackend(cfg.Backends)
		deployService := devops.NewDeployService(cicd, deploymentRepo)
		rollbackService := devops.NewRollbackService(cicd, deploymentRepo)

		direct := gateway.NewDirectRouter(gateway.DirectRouterOptions{
			Engine:   engine,
			Resolver: resolver,
			Logs:     logService,
			Metrics:  metricsService,
			Deployer: deployService,
			Reverter: rollbackService,
		})

		results := gateway.NewResultCache(
			cfg.Gateway.ResultCacheSize,
			time.Duration(cfg.Gateway.ResultCacheTTLSeconds)*time.Second,
		)

		var transport *gateway.HTTPTransport
		var proxied *gateway.ProxiedRouter
		if cfg.Gateway.Enabled {
			transport = gateway.NewHTTPTransport(cfg.Gateway.URL)
			proxied = gateway.NewProxiedRouter(gateway.ProxiedRouterOptions{
				Engine:    engine,
				Resolver:  resolver,
				Transport: transport,
				Fallback:  direct,
				Results:   results,
			})
		}
		factory := gateway.NewFactory(cfg.Gateway, direct, proxied)

		var chiMiddleware []func(http.Handler) http.Handler
		serverMetrics, err := telemetry.NewServerMetrics()
		if err != nil {
			return fmt.Errorf("register server metrics: %w", err)
		}
		chiMiddleware = append(chiMiddleware, telemetry.Middleware(serverMetrics))

		r := server.NewRouter(server.RouterOptions{
			Cfg:        cfg,
			Resolver:   resolver,
			Engine:     engine,
			Policy:     policy,
			Provider:   provider,
			Factory:    factory,
			Results:    results,
			Transport:  transport,
			History:    deployService,
			Middleware: chiMiddleware,
		})

		// h2c lets HTTP/2 clients connect without TLS in development.
		h2cHandler := h2c.NewHandler(r, &http2.Server{})

		srv := &http.Server{
			Addr:         cfg.ServerAddr,
			Handler:      h2cHandler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			log.Printf("INFO: starting server on %s", cfg.ServerAddr)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		// SIGHUP reloads the role→permission table without a restart.
		policyReload := make(chan os.Signal, 1)
		signal.Notify(policyReload, syscall.SIGHUP)

		for {
			select {
			case err := <-serverErrors:
				return fmt.Errorf("server error: %w", err)

			case sig := <-policyReload:
				log.Printf("INFO: received signal %v, reloading policy table", sig)
				roles, err := cfg.ReloadPolicy()
				if err != nil {
					log.Printf("ERROR: policy reload failed: %v", err)
					continue
				}
				if err := policy.Reload(config.PolicyConfig{Path: cfg.Policy.Path, Roles: roles}); err != nil {
					log.Printf("ERROR: policy reload failed: %v", err)
					continue
				}
				snapshot := policy.Get()
				log.Printf("INFO: policy table reloaded (version=%d, roles=%d)",
					snapshot.Version, len(snapshot.Roles))

			case sig := <-shutdown:
				log.Printf("INFO: received signal %v, shutting down gracefully", sig)

				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := srv.Shutdown(ctx); err != nil {
					srv.Close()
					return fmt.Errorf("graceful shutdown failed: %w", err)
				}

				log.Printf("INFO: server stopped")
				return nil
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
