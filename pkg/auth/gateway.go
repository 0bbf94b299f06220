package auth

import (
	"net"
	"net/http"
	"strings"

	"huddle/pkg/logger"
	"huddle/pkg/telemetry"
	"huddle/pkg/utils"
)

func (role Role) String() string {
	switch role {
	case RoleFrontend:
		return "frontend"
	case RoleBackend:
		return "backend"
	case RoleAdmin:
		return "admin"
	}
	return "unauth"
}

// AuthenticateRequestMiddleware is the outer gateway: CORS, IP
// whitelist, API-key role resolution, frontend scoping and per-key
// rate limiting, in that order. The resolved role travels to handlers
// in the X-Role-Name header.
func AuthenticateRequestMiddleware(cfg SecConfig) func(http.Handler) http.Handler {
	limiters := newLimiterPool(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.LogRequest(r)

			if origin := r.Header.Get("Origin"); origin != "" && originAllowed(origin, cfg.AllowedOrigins) {
				writeCORSHeaders(w, origin)
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if len(cfg.IPWhitelist) > 0 {
				if ip := clientIP(r); !ipWhitelisted(ip, cfg.IPWhitelist) {
					logger.Warn("request_blocked", "reason", "ip_not_whitelisted", "ip", ip, "path", r.URL.Path)
					utils.JSONError(w, http.StatusForbidden, "forbidden")
					return
				}
			}

			// probes stay keyless
			if isProbe(r) {
				r.Header.Set("X-Role-Name", RoleUnauth.String())
				next.ServeHTTP(w, r)
				return
			}

			end := telemetry.StartSpan(r.Context(), "auth.authenticate")
			role, key := resolveAPIKey(r, cfg)
			end()
			if role == RoleUnauth {
				logger.Warn("request_unauthorized", "path", r.URL.Path, "remote", r.RemoteAddr)
				utils.JSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			r.Header.Set("X-Role-Name", role.String())

			if role == RoleFrontend && !frontendAllowed(r) {
				logger.Warn("request_forbidden", "reason", "frontend_not_allowed", "path", r.URL.Path)
				utils.JSONError(w, http.StatusForbidden, "forbidden")
				return
			}

			end = telemetry.StartSpan(r.Context(), "auth.rate_limit")
			allowed := limiters.Allow(key)
			end()
			if !allowed {
				logger.Warn("rate_limited", "role", role.String(), "path", r.URL.Path)
				utils.JSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			logger.Info("request_allowed", "method", r.Method, "path", r.URL.Path, "role", role.String())
			next.ServeHTTP(w, r)
		})
	}
}

func writeCORSHeaders(w http.ResponseWriter, origin string) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Vary", "Origin")
	h.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,PATCH,OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Authorization,Content-Type,X-API-Key,X-User-ID,X-User-Signature")
	h.Set("Access-Control-Expose-Headers", "X-Role-Name")
	h.Set("Access-Control-Max-Age", "600")
}

func isProbe(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return false
	}
	return r.URL.Path == "/healthz" || r.URL.Path == "/readyz"
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func ipWhitelisted(ip string, list []string) bool {
	for _, allowed := range list {
		if ip == allowed {
			return true
		}
	}
	return false
}

// resolveAPIKey maps the presented key to a role. The Authorization
// bearer form wins over X-API-Key when both are present.
func resolveAPIKey(r *http.Request, cfg SecConfig) (Role, string) {
	key := ""
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		key = strings.TrimSpace(auth[len("bearer "):])
	}
	if key == "" {
		key = r.Header.Get("X-API-Key")
	}
	if key == "" {
		return RoleUnauth, clientIP(r)
	}
	if _, ok := cfg.AdminKeys[key]; ok {
		return RoleAdmin, key
	}
	if _, ok := cfg.BackendKeys[key]; ok {
		return RoleBackend, key
	}
	if _, ok := cfg.FrontendKeys[key]; ok {
		return RoleFrontend, key
	}
	return RoleUnauth, key
}

// frontendAllowed scopes frontend keys to the chat surface: channel,
// DM and message reads/writes plus the per-user views. Per-message
// authorization (self-reaction, moderator-only pin, owner-or-mod
// delete) is enforced downstream. Admin and report listings stay
// backend-only, with report creation the one allowed write.
func frontendAllowed(r *http.Request) bool {
	p := r.URL.Path
	switch {
	case strings.HasPrefix(p, "/v1/channels"), strings.HasPrefix(p, "/v1/dms"):
		return true
	case strings.HasPrefix(p, "/v1/messages/"):
		return true
	case strings.HasPrefix(p, "/v1/users/"):
		return true
	case p == "/v1/reports" && r.Method == http.MethodPost:
		return true
	}
	return false
}
