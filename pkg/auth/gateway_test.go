package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func gatewayFor(cfg SecConfig) (http.Handler, *string) {
	var role string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role = r.Header.Get("X-Role-Name")
		w.WriteHeader(http.StatusOK)
	})
	return AuthenticateRequestMiddleware(cfg)(inner), &role
}

func testSecConfig() SecConfig {
	return SecConfig{
		BackendKeys:  map[string]struct{}{"bk": {}},
		FrontendKeys: map[string]struct{}{"fk": {}},
		AdminKeys:    map[string]struct{}{"ak": {}},
	}
}

func TestGatewayRejectsMissingAndUnknownKeys(t *testing.T) {
	h, _ := gatewayFor(testSecConfig())

	req := httptest.NewRequest(http.MethodGet, "/v1/channels", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("no key: status=%d", rr.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/channels", nil)
	req.Header.Set("X-API-Key", "bogus")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unknown key: status=%d", rr.Code)
	}
}

func TestGatewayRoleResolution(t *testing.T) {
	h, role := gatewayFor(testSecConfig())

	cases := []struct {
		key, want string
	}{
		{"bk", "backend"},
		{"fk", "frontend"},
		{"ak", "admin"},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodGet, "/v1/channels", nil)
		req.Header.Set("Authorization", "Bearer "+c.key)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("key %s: status=%d", c.key, rr.Code)
		}
		if *role != c.want {
			t.Fatalf("key %s: role=%q want %q", c.key, *role, c.want)
		}
	}
}

func TestGatewayFrontendScope(t *testing.T) {
	h, _ := gatewayFor(testSecConfig())

	allowed := []struct {
		method, path string
	}{
		{http.MethodGet, "/v1/channels"},
		{http.MethodGet, "/v1/channels/general/messages"},
		{http.MethodGet, "/v1/dms/a__b/messages"},
		{http.MethodGet, "/v1/users/alice/unread"},
		{http.MethodGet, "/v1/messages/m1"},
		{http.MethodPost, "/v1/messages/m1/reactions"},
		{http.MethodDelete, "/v1/messages/m1"},
	}
	for _, c := range allowed {
		req := httptest.NewRequest(c.method, c.path, nil)
		req.Header.Set("X-API-Key", "fk")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("frontend %s %s: status=%d", c.method, c.path, rr.Code)
		}
	}

	blocked := []string{"/v1/admin/stats", "/v1/reports"}
	for _, p := range blocked {
		req := httptest.NewRequest(http.MethodGet, p, nil)
		req.Header.Set("X-API-Key", "fk")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusForbidden {
			t.Fatalf("frontend %s: status=%d", p, rr.Code)
		}
	}

	// filing a report is the one frontend write outside the chat surface
	req := httptest.NewRequest(http.MethodPost, "/v1/reports", nil)
	req.Header.Set("X-API-Key", "fk")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("frontend POST /v1/reports: status=%d", rr.Code)
	}
}

func TestGatewayHealthzBypass(t *testing.T) {
	h, role := gatewayFor(testSecConfig())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("healthz: status=%d", rr.Code)
	}
	if *role != "unauth" {
		t.Fatalf("healthz role=%q", *role)
	}
}

func TestGatewayCORSPreflight(t *testing.T) {
	cfg := testSecConfig()
	cfg.AllowedOrigins = []string{"https://app.example.com"}
	h, _ := gatewayFor(cfg)

	req := httptest.NewRequest(http.MethodOptions, "/v1/channels", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("preflight: status=%d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Fatalf("missing CORS headers: %v", rr.Header())
	}

	// unknown origins get no CORS headers
	req = httptest.NewRequest(http.MethodOptions, "/v1/channels", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("CORS headers for disallowed origin")
	}
}

func TestGatewayRateLimit(t *testing.T) {
	cfg := testSecConfig()
	cfg.RPS = 1
	cfg.Burst = 2
	h, _ := gatewayFor(cfg)

	limited := false
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/v1/channels", nil)
		req.Header.Set("X-API-Key", "bk")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Fatalf("burst of requests was never rate limited")
	}
}
