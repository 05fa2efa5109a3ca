package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opsgate/opsgate/internal/auth"
	"github.com/opsgate/opsgate/internal/config"
	"github.com/opsgate/opsgate/internal/errs"
	"github.com/opsgate/opsgate/internal/gateway"
	"github.com/opsgate/opsgate/internal/identity"
	"github.com/opsgate/opsgate/internal/services/devops"
	"github.com/opsgate/opsgate/internal/services/iam"
)

// DeployHistory serves the deployment history endpoint.
type DeployHistory interface {
	RecentDeployments(ctx context.Context, limit int) ([]devops.Deployment, error)
}

// principalPayload is the client-visible projection of a principal.
// Scopes mirrors Permissions for older clients.
type principalPayload struct {
	UserID      string   `json:"user_id"`
	LoginID     string   `json:"login_id"`
	Email       string   `json:"email,omitempty"`
	Name        string   `json:"name,omitempty"`
	Tenant      string   `json:"tenant,omitempty"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	Scopes      []string `json:"scopes"`
	Anonymous   bool     `json:"anonymous,omitempty"`
}

func toPrincipalPayload(p *iam.Principal) principalPayload {
	return principalPayload{
		UserID:      p.UserID,
		LoginID:     p.LoginID,
		Email:       p.Email,
		Name:        p.Name,
		Tenant:      p.Tenant,
		Roles:       p.Roles,
		Permissions: p.Permissions,
		Scopes:      p.Scopes(),
		Anonymous:   p.IsAnonymous(),
	}
}

func forwardHeaders(r *http.Request) gateway.ForwardHeaders {
	return gateway.ForwardHeaders{
		Authorization: r.Header.Get("Authorization"),
		Cookie:        r.Header.Get("Cookie"),
	}
}

// requestPrincipal fetches the principal placed by the authentication
// middleware. Its absence means the route was mounted outside the
// authenticated group.
func requestPrincipal(w http.ResponseWriter, r *http.Request) (*iam.Principal, bool) {
	principal, ok := iam.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
		return nil, false
	}
	return principal, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

// HandleLogin validates the credentials carried in the request body and
// returns the resolved principal.
func HandleLogin(router gateway.Router) http.HandlerFunc {
	type loginRequest struct {
		SessionToken string `json:"session_token"`
		RefreshToken string `json:"refresh_token,omitempty"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if req.SessionToken == "" {
			writeError(w, r, errs.NewValidation("session_token", "must not be empty"))
			return
		}

		principal, err := router.Authenticate(r.Context(), req.SessionToken, req.RefreshToken)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toPrincipalPayload(principal))
	}
}

// HandleWhoAmI returns the authenticated principal.
func HandleWhoAmI() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requestPrincipal(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, toPrincipalPayload(principal))
	}
}

// HandleLogout terminates the provider-side session and clears the
// session cookies.
func HandleLogout(provider identity.Provider, cfg config.IdentityConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		refreshToken := ""
		if cookie, err := r.Cookie(cfg.RefreshCookieName); err == nil {
			refreshToken = cookie.Value
		}

		if provider != nil && refreshToken != "" {
			if err := provider.Logout(r.Context(), refreshToken); err != nil {
				writeError(w, r, err)
				return
			}
		}

		for _, name := range []string{cfg.SessionCookieName, cfg.RefreshCookieName} {
			http.SetCookie(w, &http.Cookie{
				Name:     name,
				Value:    "",
				Path:     "/",
				MaxAge:   -1,
				HttpOnly: true,
			})
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}

// HandleLogs serves the logs read through the active router. An
// optional filter expression is applied to the returned entries.
func HandleLogs(factory *gateway.Factory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requestPrincipal(w, r)
		if !ok {
			return
		}

		opts := gateway.LogOptions{
			Level: r.URL.Query().Get("level"),
			Limit: queryInt(r, "limit", 100),
			Since: r.URL.Query().Get("since"),
		}

		result, err := factory.Router().GetLogs(r.Context(), principal, forwardHeaders(r), opts)
		if err != nil {
			writeError(w, r, err)
			return
		}

		if expr := r.URL.Query().Get("filter"); expr != "" {
			filtered, err := devops.FilterLogs(result.Data, expr)
			if err != nil {
				writeError(w, r, err)
				return
			}
			result.Data = filtered
			result.Count = len(filtered)
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// HandleMetrics serves the metrics read through the active router.
func HandleMetrics(factory *gateway.Factory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requestPrincipal(w, r)
		if !ok {
			return
		}

		opts := gateway.MetricOptions{
			Limit:   queryInt(r, "limit", 50),
			Service: r.URL.Query().Get("service"),
		}

		result, err := factory.Router().GetMetrics(r.Context(), principal, forwardHeaders(r), opts)
		if err != nil {
			writeError(w, r, err)
			return
		}

		if expr := r.URL.Query().Get("filter"); expr != "" {
			filtered, err := devops.FilterMetrics(result.Data, expr)
			if err != nil {
				writeError(w, r, err)
				return
			}
			result.Data = filtered
			result.Count = len(filtered)
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// HandleDeploy triggers a deployment through the active router.
// In-progress outcomes report 202, completed ones 200.
func HandleDeploy(factory *gateway.Factory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requestPrincipal(w, r)
		if !ok {
			return
		}

		var req gateway.DeployRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		result, err := factory.Router().Deploy(r.Context(), principal, forwardHeaders(r), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, writeStatus(result), result)
	}
}

// HandleRollback reverts a deployment through the active router.
func HandleRollback(factory *gateway.Factory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requestPrincipal(w, r)
		if !ok {
			return
		}

		var req gateway.RollbackRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}

		result, err := factory.Router().Rollback(r.Context(), principal, forwardHeaders(r), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, writeStatus(result), result)
	}
}

// writeStatus picks the HTTP status for a write result: 202 while the
// pipeline is still running, 200 on completion, 500 on failure.
func writeStatus(result *gateway.WriteResult) int {
	if !result.Success {
		return http.StatusInternalServerError
	}
	if statusOf(result.Result) == devops.StatusInProgress {
		return http.StatusAccepted
	}
	return http.StatusOK
}

// statusOf digs the pipeline status out of the generic result payload,
// which nests it differently per tool.
func statusOf(result map[string]any) string {
	for _, key := range []string{"deployment", "rollback"} {
		if nested, ok := result[key].(map[string]any); ok {
			if status, ok := nested["status"].(string); ok {
				return status
			}
		}
	}
	if status, ok := result["status"].(string); ok {
		return status
	}
	return ""
}

// HandleDeployments returns recent deployment history.
func HandleDeployments(engine *iam.Engine, history DeployHistory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requestPrincipal(w, r)
		if !ok {
			return
		}
		if err := engine.Authorize(r.Context(), principal, []string{auth.ReadLogs}, iam.ModeAny); err != nil {
			writeError(w, r, err)
			return
		}

		deployments, err := history.RecentDeployments(r.Context(), queryInt(r, "limit", 20))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"deployments": deployments,
			"count":       len(deployments),
		})
	}
}

// HandleResult serves the poll endpoint for optimistic reads. A miss
// means the result expired or the id never existed; both are 404.
func HandleResult(results *gateway.ResultCache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requestPrincipal(w, r); !ok {
			return
		}

		requestID := chi.URLParam(r, "id")
		result, ok := results.Get(requestID)
		if !ok {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "result not found or expired"})
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// HandleGatewayStatus reports routing mode, handshake state, and the
// active policy snapshot version.
func HandleGatewayStatus(cfg config.GatewayConfig, transport *gateway.HTTPTransport, policy *iam.PolicyTable) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requestPrincipal(w, r); !ok {
			return
		}

		payload := map[string]any{
			"gateway_enabled": cfg.Enabled,
			"session_state":   gateway.SessionUninitialized.String(),
		}
		if transport != nil {
			state, sessionID := transport.State()
			payload["session_state"] = state.String()
			if sessionID != "" {
				payload["session_id"] = sessionID
			}
		}
		if snapshot := policy.Get(); snapshot != nil {
			payload["policy_version"] = snapshot.Version
			payload["policy_loaded_at"] = snapshot.CreatedAt.Format(time.RFC3339)
		}
		writeJSON(w, http.StatusOK, payload)
	}
}

// HandleHealth is the unauthenticated liveness probe.
func HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
