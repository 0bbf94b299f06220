package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"huddle/pkg/config"
)

func signFor(key, userID string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(userID))
	return hex.EncodeToString(mac.Sum(nil))
}

func setSigningKeys(t *testing.T, keys ...string) {
	t.Helper()
	rc := &config.RuntimeConfig{BackendKeys: map[string]struct{}{}, SigningKeys: map[string]struct{}{}}
	for _, k := range keys {
		rc.BackendKeys[k] = struct{}{}
		rc.SigningKeys[k] = struct{}{}
	}
	config.SetRuntime(rc)
	t.Cleanup(func() {
		config.SetRuntime(&config.RuntimeConfig{BackendKeys: map[string]struct{}{}, SigningKeys: map[string]struct{}{}})
	})
}

func viewerEcho() (http.Handler, *string) {
	var got string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ViewerIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	return h, &got
}

func TestRequireSignedViewerValidSignature(t *testing.T) {
	setSigningKeys(t, "secret-key")
	inner, got := viewerEcho()
	h := RequireSignedViewer(inner)

	req := httptest.NewRequest(http.MethodGet, "/v1/channels", nil)
	req.Header.Set("X-User-ID", "alice")
	req.Header.Set("X-User-Signature", signFor("secret-key", "alice"))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rr.Code, rr.Body.String())
	}
	if *got != "alice" {
		t.Fatalf("viewer = %q", *got)
	}
}

func TestRequireSignedViewerRejects(t *testing.T) {
	setSigningKeys(t, "secret-key")
	inner, _ := viewerEcho()
	h := RequireSignedViewer(inner)

	// missing headers
	req := httptest.NewRequest(http.MethodGet, "/v1/channels", nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("missing headers: status = %d", rr.Code)
	}

	// wrong signature
	req = httptest.NewRequest(http.MethodGet, "/v1/channels", nil)
	req.Header.Set("X-User-ID", "alice")
	req.Header.Set("X-User-Signature", signFor("wrong-key", "alice"))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad signature: status = %d", rr.Code)
	}
}

func TestRequireSignedViewerBackendBypass(t *testing.T) {
	setSigningKeys(t, "secret-key")
	inner, got := viewerEcho()
	h := RequireSignedViewer(inner)

	req := httptest.NewRequest(http.MethodGet, "/v1/channels", nil)
	req.Header.Set("X-Role-Name", "backend")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("backend without signature: status = %d", rr.Code)
	}
	if *got != "" {
		t.Fatalf("backend bypass should not set a viewer, got %q", *got)
	}
}

func TestResolveViewerFromRequestSignatureAuthoritative(t *testing.T) {
	setSigningKeys(t, "secret-key")
	h := RequireSignedViewer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// a conflicting body user must 403 even with a valid signature
		if _, status, _ := ResolveViewerFromRequest(r, "bob"); status != http.StatusForbidden {
			t.Fatalf("conflicting body user: status = %d", status)
		}
		id, status, msg := ResolveViewerFromRequest(r, "alice")
		if status != 0 || id != "alice" {
			t.Fatalf("matching body user: id=%q status=%d msg=%q", id, status, msg)
		}
		id, status, _ = ResolveViewerFromRequest(r, "")
		if status != 0 || id != "alice" {
			t.Fatalf("no body user: id=%q status=%d", id, status)
		}
	}))
	req := httptest.NewRequest(http.MethodPost, "/v1/channels/general/messages", nil)
	req.Header.Set("X-User-ID", "alice")
	req.Header.Set("X-User-Signature", signFor("secret-key", "alice"))
	h.ServeHTTP(httptest.NewRecorder(), req)
}

func TestResolveViewerFromRequestBackendSupply(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/channels/general/messages", nil)
	req.Header.Set("X-Role-Name", "backend")
	id, status, _ := ResolveViewerFromRequest(req, "carol")
	if status != 0 || id != "carol" {
		t.Fatalf("backend body user: id=%q status=%d", id, status)
	}

	// backend with no user anywhere is a 400, not a silent fallback
	req = httptest.NewRequest(http.MethodPost, "/v1/channels/general/messages", nil)
	req.Header.Set("X-Role-Name", "backend")
	if _, status, _ := ResolveViewerFromRequest(req, ""); status != http.StatusBadRequest {
		t.Fatalf("backend without user: status = %d", status)
	}

	// frontend without a signature is a 401
	req = httptest.NewRequest(http.MethodPost, "/v1/channels/general/messages", nil)
	req.Header.Set("X-Role-Name", "frontend")
	if _, status, _ := ResolveViewerFromRequest(req, "mallory"); status != http.StatusUnauthorized {
		t.Fatalf("frontend without signature: status = %d", status)
	}
}
