package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"huddle/pkg/auth"
	"huddle/pkg/chatview"
	"huddle/pkg/logger"
	"huddle/pkg/models"
	"huddle/pkg/store"
	"huddle/pkg/utils"
	"huddle/pkg/validation"
)

// RegisterDMs registers direct-message endpoints. A DM thread id is
// derived from the two participant ids, so the same pair always lands on
// the same thread.
func RegisterDMs(r *mux.Router) {
	r.HandleFunc("/dms/with/{peer}", resolveThread).Methods(http.MethodGet)
	r.HandleFunc("/dms/{thread}/messages", listDMMessages).Methods(http.MethodGet)
	r.HandleFunc("/dms/{thread}/messages", sendDMMessage).Methods(http.MethodPost)
	r.HandleFunc("/dms/{thread}/read", markDMRead).Methods(http.MethodPut)
}

// resolveThread returns the canonical thread id for the viewer and a peer.
func resolveThread(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	peer := mux.Vars(r)["peer"]
	viewer, status, msg := auth.ResolveViewerFromRequest(r, "")
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	if peer == "" || peer == viewer {
		utils.JSONError(w, http.StatusBadRequest, "invalid peer")
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"thread": utils.DMThreadID(viewer, peer)})
}

// threadAllowed checks the viewer participates in the thread. Backend
// callers bypass the check.
func threadAllowed(r *http.Request, viewer, thread string) bool {
	if isBackend(r) {
		return true
	}
	return utils.DMThreadHasParticipant(thread, viewer)
}

func listDMMessages(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	thread := mux.Vars(r)["thread"]
	viewer, status, msg := auth.ResolveViewerFromRequest(r, "")
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	if !threadAllowed(r, viewer, thread) {
		utils.JSONError(w, http.StatusForbidden, "not a participant")
		return
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	msgs, err := store.ListMessages(store.DM(thread), limit)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Info("dm_messages_list", "thread", thread, "count", len(msgs))
	_ = json.NewEncoder(w).Encode(struct {
		Thread   string           `json:"thread"`
		Messages []models.Message `json:"messages"`
	}{Thread: thread, Messages: msgs})
}

func sendDMMessage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	thread := mux.Vars(r)["thread"]
	var body struct {
		Text string `json:"text"`
		User string `json:"user,omitempty"`
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
	if !threadAllowed(r, viewer, thread) {
		utils.JSONError(w, http.StatusForbidden, "not a participant")
		return
	}
	if err := validation.ValidateMessage(models.Message{Author: viewer, Text: body.Text}); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	saved, err := chatview.NewActions(chatCfg(), viewer, store.DM(thread)).Send(body.Text)
	if err != nil {
		writeActionError(w, err)
		return
	}
	logger.Info("dm_message_created", "thread", thread, "id", saved.ID)
	_ = json.NewEncoder(w).Encode(saved)
}

func markDMRead(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	thread := mux.Vars(r)["thread"]
	viewer := auth.ViewerIDFromContext(r.Context())
	if viewer != "" && !threadAllowed(r, viewer, thread) {
		utils.JSONError(w, http.StatusForbidden, "not a participant")
		return
	}
	markRead(w, r, store.DM(thread))
}
