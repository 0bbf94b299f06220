package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"huddle/pkg/auth"
	"huddle/pkg/chatview"
	"huddle/pkg/logger"
	"huddle/pkg/models"
	"huddle/pkg/store"
	"huddle/pkg/telemetry"
	"huddle/pkg/utils"
	"huddle/pkg/validation"
)

// RegisterChannels registers channel-scoped endpoints.
func RegisterChannels(r *mux.Router) {
	r.HandleFunc("/channels", listChannels).Methods(http.MethodGet)
	r.HandleFunc("/channels/{ch}/messages", listChannelMessages).Methods(http.MethodGet)
	r.HandleFunc("/channels/{ch}/messages", sendChannelMessage).Methods(http.MethodPost)
	r.HandleFunc("/channels/{ch}/splits", shareSplit).Methods(http.MethodPost)
	r.HandleFunc("/channels/{ch}/stream", streamChannel).Methods(http.MethodGet)
	r.HandleFunc("/channels/{ch}/read", markChannelRead).Methods(http.MethodPut)
}

// listChannels returns the configured channel list. Mod-only channels are
// hidden from viewers who are not moderators; backend callers see all.
func listChannels(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	viewer := auth.ViewerIDFromContext(r.Context())
	out := make([]models.Channel, 0, len(cfg.Chat.Channels))
	for _, ch := range cfg.Chat.Channels {
		if ch.ModOnly && !isBackend(r) && !cfg.Chat.IsModerator(viewer) {
			continue
		}
		out = append(out, ch)
	}
	_ = json.NewEncoder(w).Encode(struct {
		Channels []models.Channel `json:"channels"`
	}{Channels: out})
}

func channelRef(r *http.Request) (store.StreamRef, bool) {
	id := mux.Vars(r)["ch"]
	if id == "" {
		return store.StreamRef{}, false
	}
	if _, ok := cfg.Chat.Channel(id); !ok {
		return store.StreamRef{}, false
	}
	return store.Channel(id), true
}

func listChannelMessages(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	ref, ok := channelRef(r)
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "unknown channel")
		return
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	span := telemetry.StartSpan(r.Context(), "store.list_messages")
	msgs, err := store.ListMessages(ref, limit)
	span()
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Info("messages_list", "channel", ref.ID, "count", len(msgs))
	_ = json.NewEncoder(w).Encode(struct {
		Channel  string           `json:"channel"`
		Messages []models.Message `json:"messages"`
	}{Channel: ref.ID, Messages: msgs})
}

func sendChannelMessage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	telemetry.SetRequestOp(r.Context(), "send_message")
	ref, ok := channelRef(r)
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "unknown channel")
		return
	}
	var body struct {
		Text     string `json:"text"`
		User     string `json:"user,omitempty"`
		MediaURL string `json:"mediaUrl,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	viewer, status, msg := auth.ResolveViewerFromRequest(r, body.User)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	if err := validation.ValidateMessage(models.Message{Author: viewer, Text: body.Text}); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	span := telemetry.StartSpan(r.Context(), "chat.send_message")
	saved, err := chatview.NewActions(chatCfg(), viewer, ref).Send(body.Text)
	span()
	if err != nil {
		writeActionError(w, err)
		return
	}
	if body.MediaURL != "" {
		if m, key, gerr := store.GetMessage(saved.ID); gerr == nil {
			m.MediaURL = body.MediaURL
			if uerr := store.UpdateMessage(ref, key, m); uerr == nil {
				saved = m
			}
		}
	}
	logger.Info("message_created", "channel", ref.ID, "id", saved.ID)
	_ = json.NewEncoder(w).Encode(saved)
}

// shareSplit posts a workout split through the split-sharing flow, the one
// write path allowed in read-only channels.
func shareSplit(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	ref, ok := channelRef(r)
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "unknown channel")
		return
	}
	var body struct {
		Split   models.Split `json:"split"`
		Caption string       `json:"caption,omitempty"`
		User    string       `json:"user,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	viewer, status, msg := auth.ResolveViewerFromRequest(r, body.User)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	if body.Split.Title == "" {
		utils.JSONError(w, http.StatusBadRequest, "split title required")
		return
	}
	saved, err := chatview.NewActions(chatCfg(), viewer, ref).ShareSplit(body.Split, body.Caption)
	if err != nil {
		writeActionError(w, err)
		return
	}
	logger.Info("split_shared", "channel", ref.ID, "user", viewer, "id", saved.ID)
	_ = json.NewEncoder(w).Encode(saved)
}

// markChannelRead upserts the viewer's read cursor. Without a body the
// cursor advances to the newest message.
func markChannelRead(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	ref, ok := channelRef(r)
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "unknown channel")
		return
	}
	markRead(w, r, ref)
}

// markRead is shared between the channel and DM read endpoints.
func markRead(w http.ResponseWriter, r *http.Request, ref store.StreamRef) {
	var body struct {
		MessageID string `json:"messageId,omitempty"`
		TS        int64  `json:"ts,omitempty"`
		User      string `json:"user,omitempty"`
	}
	// body is optional
	_ = json.NewDecoder(r.Body).Decode(&body)
	viewer, status, msg := auth.ResolveViewerFromRequest(r, body.User)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	cur := models.ReadCursor{MessageID: body.MessageID, TS: body.TS}
	if cur.MessageID == "" {
		meta, ok, err := store.LatestMessage(ref)
		if err != nil {
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !ok {
			// empty stream: nothing to mark
			w.WriteHeader(http.StatusNoContent)
			return
		}
		cur = models.ReadCursor{MessageID: meta.ID, TS: meta.TS}
	}
	if err := store.SaveCursor(viewer, ref, cur); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = json.NewEncoder(w).Encode(cur)
}

// streamChannel delivers full message-list snapshots over SSE. Every
// mutation republishes the complete list; clients replace, never merge.
func streamChannel(w http.ResponseWriter, r *http.Request) {
	ref, ok := channelRef(r)
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "unknown channel")
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

	sub := store.WatchMessages(ref)
	defer sub.Cancel()

	send := func(msgs []models.Message) bool {
		b, err := json.Marshal(msgs)
		if err != nil {
			return false
		}
		if _, err := w.Write([]byte("event: snapshot\ndata: ")); err != nil {
			return false
		}
		if _, err := w.Write(append(b, '\n', '\n')); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	// initial snapshot so the client renders before the first mutation
	if msgs, err := store.ListMessages(ref, 0); err == nil {
		if !send(msgs) {
			return
		}
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
		case v, ok := <-sub.C:
			if !ok {
				return
			}
			msgs, ok2 := v.([]models.Message)
			if !ok2 {
				continue
			}
			if !send(msgs) {
				return
			}
		}
	}
}
