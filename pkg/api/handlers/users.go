package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"huddle/pkg/auth"
	"huddle/pkg/badges"
	"huddle/pkg/logger"
	"huddle/pkg/models"
	"huddle/pkg/store"
	"huddle/pkg/unread"
	"huddle/pkg/utils"
)

// RegisterUsers registers profile, badge, split and unread endpoints.
func RegisterUsers(r *mux.Router) {
	r.HandleFunc("/users/{uid}", getUser).Methods(http.MethodGet)
	r.HandleFunc("/users/{uid}", putUser).Methods(http.MethodPut)
	r.HandleFunc("/users/{uid}/badges", getBadges).Methods(http.MethodGet)
	r.HandleFunc("/users/{uid}/badges/selected", putSelectedBadges).Methods(http.MethodPut)
	r.HandleFunc("/users/{uid}/splits", getSplits).Methods(http.MethodGet)
	r.HandleFunc("/users/{uid}/splits", putSplits).Methods(http.MethodPut)
	r.HandleFunc("/users/{uid}/unread", getUnread).Methods(http.MethodGet)
	r.HandleFunc("/users/{uid}/unread/stream", streamUnread).Methods(http.MethodGet)
}

// viewerFor resolves the acting viewer and checks it matches the path uid.
// Backend callers may act on any user.
func viewerFor(w http.ResponseWriter, r *http.Request) (string, bool) {
	uid := mux.Vars(r)["uid"]
	viewer, status, msg := auth.ResolveViewerFromRequest(r, "")
	if status != 0 {
		utils.JSONError(w, status, msg)
		return "", false
	}
	if viewer != uid && !isBackend(r) {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return "", false
	}
	return uid, true
}

func getUser(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	uid, ok := viewerFor(w, r)
	if !ok {
		return
	}
	u, err := store.GetUser(uid)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// a badge revoked since selection must never display
	u.SelectedBadges = badges.EnforceSelected(u.SelectedBadges, u)
	_ = json.NewEncoder(w).Encode(u)
}

// putUser upserts a profile document. Backend only; frontends mutate
// through the dedicated badge/split endpoints.
func putUser(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !isBackend(r) {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	uid := mux.Vars(r)["uid"]
	var u models.User
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	u.ID = uid
	u.SelectedBadges = badges.EnforceSelected(u.SelectedBadges, u)
	if err := store.SaveUser(u); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Info("user_saved", "user", uid)
	_ = json.NewEncoder(w).Encode(u)
}

func getBadges(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	uid, ok := viewerFor(w, r)
	if !ok {
		return
	}
	u, err := store.GetUser(uid)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = json.NewEncoder(w).Encode(struct {
		Unlocked []string `json:"unlocked"`
		Selected []string `json:"selected"`
	}{
		Unlocked: badges.Unlocked(u),
		Selected: badges.EnforceSelected(u.SelectedBadges, u),
	})
}

// putSelectedBadges persists a badge selection. The enforcement pass runs
// before the write, so the stored selection is always valid.
func putSelectedBadges(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	uid, ok := viewerFor(w, r)
	if !ok {
		return
	}
	var body struct {
		Selected []string `json:"selected"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	u, err := store.GetUser(uid)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	u.SelectedBadges = badges.EnforceSelected(body.Selected, u)
	if err := store.SaveUser(u); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Info("badges_selected", "user", uid, "count", len(u.SelectedBadges))
	_ = json.NewEncoder(w).Encode(map[string][]string{"selected": u.SelectedBadges})
}

func getSplits(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	uid, ok := viewerFor(w, r)
	if !ok {
		return
	}
	splits, err := store.ListSplits(uid)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = json.NewEncoder(w).Encode(struct {
		Splits []models.Split `json:"splits"`
	}{Splits: splits})
}

// putSplits replaces the user's shared-splits list wholesale in one
// batched write.
func putSplits(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	uid, ok := viewerFor(w, r)
	if !ok {
		return
	}
	var body struct {
		Splits []models.Split `json:"splits"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := store.ReplaceSplits(uid, body.Splits); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = json.NewEncoder(w).Encode(body)
}

// visibleChannels lists the channel ids the unread map tracks for a user:
// every configured channel, minus mod-only ones for non-moderators.
func visibleChannels(uid string) []string {
	out := make([]string, 0, len(cfg.Chat.Channels))
	for _, ch := range cfg.Chat.Channels {
		if ch.ModOnly && !cfg.Chat.IsModerator(uid) {
			continue
		}
		out = append(out, ch.ID)
	}
	return out
}

// getUnread computes the unread map once from stored state: the newest
// message past the cursor, authored by someone else, with the active
// channel forced to read.
func getUnread(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	uid, ok := viewerFor(w, r)
	if !ok {
		return
	}
	active := r.URL.Query().Get("active")
	out := map[string]bool{}
	for _, ch := range visibleChannels(uid) {
		ref := store.Channel(ch)
		var meta models.LatestMeta
		if m, found, err := store.LatestMessage(ref); err == nil && found {
			meta = m
		}
		var cursorTS int64
		if c, err := store.GetCursor(uid, ref); err == nil {
			cursorTS = c.TS
		}
		out[ch] = unread.Compute(meta, cursorTS, uid, ch, active)
	}
	_ = json.NewEncoder(w).Encode(struct {
		Active string          `json:"active,omitempty"`
		Unread map[string]bool `json:"unread"`
	}{Active: active, Unread: out})
}

// streamUnread delivers live unread-map snapshots over SSE. The active
// channel can be switched mid-stream by reconnecting with a new query
// value; each connection owns one aggregator.
func streamUnread(w http.ResponseWriter, r *http.Request) {
	uid, ok := viewerFor(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.JSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	agg := unread.New(visibleChannels(uid))
	defer agg.Close()
	agg.SetUser(uid)
	if active := r.URL.Query().Get("active"); active != "" {
		agg.SetActive(active)
	}

	send := func(snap map[string]bool) bool {
		b, err := json.Marshal(snap)
		if err != nil {
			return false
		}
		if _, err := w.Write([]byte("event: unread\ndata: ")); err != nil {
			return false
		}
		if _, err := w.Write(append(b, '\n', '\n')); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !send(agg.Snapshot()) {
		return
	}

	keepalive := time.NewTicker(25 * time.Second)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case snap, ok := <-agg.Updates():
			if !ok {
				return
			}
			if !send(snap) {
				return
			}
		}
	}
}
