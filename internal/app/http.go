package app

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"huddle/pkg/api"
	"huddle/pkg/auth"
	"huddle/pkg/banner"
	"huddle/pkg/store"
	"huddle/pkg/telemetry"
)

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "none" && a.commit != "" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "unknown" && a.buildDate != "" {
		verStr += " @ " + a.buildDate
	}
	banner.PrintWithEff(a.eff, verStr)
}

func writeProbe(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// buildHandler assembles the full HTTP surface: probes and metrics
// outside the signature check, the API subtree behind it, everything
// behind the auth gateway and telemetry.
func (a *App) buildHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeProbe(w, http.StatusOK, `{"status":"ok"}`)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !store.Ready() {
			writeProbe(w, http.StatusServiceUnavailable, `{"status":"not ready"}`)
			return
		}
		// include the running version so ops can verify the active binary
		ver := a.version
		if ver == "" {
			ver = "dev"
		}
		writeProbe(w, http.StatusOK, `{"status":"ok","version":"`+ver+`"}`)
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", auth.RequireSignedViewer(api.Handler(a.eff.Config)))

	wrapped := auth.AuthenticateRequestMiddleware(a.secConfig())(mux)
	return telemetry.Middleware(wrapped)
}

func keySet(keys []string) map[string]struct{} {
	out := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		out[k] = struct{}{}
	}
	return out
}

func (a *App) secConfig() auth.SecConfig {
	sec := a.eff.Config.Security
	return auth.SecConfig{
		AllowedOrigins: append([]string{}, sec.CORS.AllowedOrigins...),
		RPS:            sec.RateLimit.RPS,
		Burst:          sec.RateLimit.Burst,
		IPWhitelist:    append([]string{}, sec.IPWhitelist...),
		BackendKeys:    keySet(sec.APIKeys.Backend),
		FrontendKeys:   keySet(sec.APIKeys.Frontend),
		AdminKeys:      keySet(sec.APIKeys.Admin),
	}
}

// startHTTP starts the HTTP server in a goroutine and returns a channel
// carrying any server error.
func (a *App) startHTTP(_ context.Context) <-chan error {
	a.srv = &http.Server{Addr: a.eff.Addr, Handler: a.buildHandler()}

	errCh := make(chan error, 1)
	go func() {
		tls := a.eff.Config.Server.TLS
		if tls.CertFile != "" && tls.KeyFile != "" {
			errCh <- a.srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
			return
		}
		errCh <- a.srv.ListenAndServe()
	}()
	return errCh
}
