package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"

	"huddle/pkg/logger"
	"huddle/pkg/store"
	"huddle/pkg/utils"
)

// RegisterAdmin registers admin-only routes onto the admin subrouter.
func RegisterAdmin(r *mux.Router) {
	r.HandleFunc("/health", adminHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", adminStats).Methods(http.MethodGet)
	r.HandleFunc("/keys", adminListKeys).Methods(http.MethodGet)
	r.HandleFunc("/keys/{key}", adminGetKey).Methods(http.MethodGet)
	r.HandleFunc("/timeout", adminTimeoutUser).Methods(http.MethodPost)
	logger.Info("admin_routes_registered")
}

func adminHealth(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok","service":"huddle"}`))
}

func adminStats(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	var msgCount int64
	pinned := 0
	for _, ch := range cfg.Chat.Channels {
		msgs, err := store.ListMessages(store.Channel(ch.ID), 0)
		if err != nil {
			continue
		}
		msgCount += int64(len(msgs))
		for _, m := range msgs {
			if m.Pinned {
				pinned++
			}
		}
	}
	out := struct {
		Channels    int    `json:"channels"`
		Messages    int64  `json:"messages"`
		Pinned      int    `json:"pinned"`
		DBSizeBytes uint64 `json:"db_size_bytes"`
	}{
		Channels:    len(cfg.Chat.Channels),
		Messages:    msgCount,
		Pinned:      pinned,
		DBSizeBytes: store.DBSizeBytes(),
	}
	_ = json.NewEncoder(w).Encode(out)
}

// adminListKeys lists raw store keys. Optional query param `prefix`
// limits the scan.
func adminListKeys(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	keys, err := store.ListKeys(r.URL.Query().Get("prefix"))
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = json.NewEncoder(w).Encode(struct {
		Keys []string `json:"keys"`
	}{Keys: keys})
}

// adminGetKey returns the raw value for a given key. The key path
// variable is URL-unescaped before lookup because gorilla/mux does not
// unescape path variables.
func adminGetKey(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	keyEnc, ok := mux.Vars(r)["key"]
	if !ok {
		utils.JSONError(w, http.StatusBadRequest, "missing key")
		return
	}
	key, err := url.PathUnescape(keyEnc)
	if err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid key encoding")
		return
	}
	v, err := store.GetKey(key)
	if err != nil {
		utils.JSONError(w, http.StatusNotFound, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(v)
}

// adminTimeoutUser places (or lifts) a chat timeout on a user. A timed
// out user's sends are rejected until the deadline passes.
func adminTimeoutUser(w http.ResponseWriter, r *http.Request) {
	if !isAdmin(r) {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	var req struct {
		User    string `json:"user"`
		Minutes int    `json:"minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.User == "" {
		utils.JSONError(w, http.StatusBadRequest, "invalid request")
		return
	}
	u, err := store.GetUser(req.User)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if req.Minutes <= 0 {
		u.TimeoutUntil = 0
	} else {
		u.TimeoutUntil = time.Now().UTC().Add(time.Duration(req.Minutes) * time.Minute).UnixNano()
	}
	if err := store.SaveUser(u); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.AuditInfo("user_timeout_set", "user", req.User, "minutes", req.Minutes)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"user": req.User, "timeoutUntil": u.TimeoutUntil})
}

// isAdmin checks if the request is from an admin or backend.
func isAdmin(r *http.Request) bool {
	role := r.Header.Get("X-Role-Name")
	return role == "admin" || role == "backend"
}
