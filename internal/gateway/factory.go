package gateway

import (
	"log"
	"sync"

	"github.com/opsgate/opsgate/internal/config"
)

// Factory selects the active Router from configuration. It is built
// once at startup and injected into the HTTP layer; the selection is
// memoized so every request sees the same router instance, without any
// package-level state.
type Factory struct {
	cfg     config.GatewayConfig
	direct  *DirectRouter
	proxied *ProxiedRouter

	once   sync.Once
	router Router
}

func NewFactory(cfg config.GatewayConfig, direct *DirectRouter, proxied *ProxiedRouter) *Factory {
	return &Factory{cfg: cfg, direct: direct, proxied: proxied}
}

// Router returns the configured router: proxied when the external
// gateway is enabled, direct otherwise.
func (f *Factory) Router() Router {
	f.once.Do(func() {
		if f.cfg.Enabled && f.proxied != nil {
			log.Printf("INFO: routing through external gateway: %s", f.cfg.URL)
			f.router = f.proxied
			return
		}
		log.Printf("INFO: external gateway disabled, using direct mode")
		f.router = f.direct
	})
	return f.router
}

// Direct exposes the direct router for callers that must bypass the
// proxied path, such as the deployment history endpoint.
func (f *Factory) Direct() *DirectRouter {
	return f.direct
}
