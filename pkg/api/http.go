package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"huddle/pkg/api/handlers"
	"huddle/pkg/config"
)

// Handler assembles the /v1 router. Authentication, CORS and rate
// limiting are applied by the gateway middleware in front of this
// handler; signature verification runs on the v1 subtree.
func Handler(cfg *config.Config) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	handlers.SetConfig(cfg)
	handlers.RegisterChannels(v1)
	handlers.RegisterMessages(v1)
	handlers.RegisterDMs(v1)
	handlers.RegisterUsers(v1)
	handlers.RegisterReports(v1)
	handlers.RegisterSigning(v1)

	admin := v1.PathPrefix("/admin").Subrouter()
	handlers.RegisterAdmin(admin)

	return r
}
