package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"huddle/pkg/auth"
	"huddle/pkg/chatview"
	"huddle/pkg/logger"
	"huddle/pkg/store"
	"huddle/pkg/utils"
	"huddle/pkg/validation"
)

// RegisterMessages registers message-scoped endpoints. Reactions, pins
// and deletes address messages directly by id, whichever stream they
// belong to.
func RegisterMessages(r *mux.Router) {
	r.HandleFunc("/messages/{id}", getMessage).Methods(http.MethodGet)
	r.HandleFunc("/messages/{id}", deleteMessage).Methods(http.MethodDelete)
	r.HandleFunc("/messages/{id}/reactions", toggleReaction).Methods(http.MethodPost)
	r.HandleFunc("/messages/{id}/pin", pinMessage).Methods(http.MethodPost)
	r.HandleFunc("/messages/{id}/pin", unpinMessage).Methods(http.MethodDelete)
}

// messageRef locates a message and recovers its stream.
func messageRef(id string) (store.StreamRef, bool) {
	_, key, err := store.GetMessage(id)
	if err != nil {
		return store.StreamRef{}, false
	}
	return store.RefOfKey(key)
}

func getMessage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := mux.Vars(r)["id"]
	m, _, err := store.GetMessage(id)
	if err != nil {
		utils.JSONError(w, http.StatusNotFound, "message not found")
		return
	}
	_ = json.NewEncoder(w).Encode(m)
}

// toggleReaction applies toggle semantics for the viewer: append when
// absent, remove on the same emoji, replace on a different one.
func toggleReaction(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := mux.Vars(r)["id"]
	var body struct {
		Emoji string `json:"emoji"`
		User  string `json:"user,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := validation.ValidateEmoji(body.Emoji); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	viewer, status, msg := auth.ResolveViewerFromRequest(r, body.User)
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	ref, ok := messageRef(id)
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "message not found")
		return
	}
	if err := chatview.NewActions(chatCfg(), viewer, ref).ToggleReaction(id, body.Emoji); err != nil {
		writeActionError(w, err)
		return
	}
	m, _, err := store.GetMessage(id)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Info("reaction_toggled", "id", id, "user", viewer)
	_ = json.NewEncoder(w).Encode(m)
}

func pinMessage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := mux.Vars(r)["id"]
	viewer, status, msg := auth.ResolveViewerFromRequest(r, "")
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	ref, ok := messageRef(id)
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "message not found")
		return
	}
	ctrl := chatview.NewActions(chatCfg(), viewer, ref)
	if err := ctrl.Pin(id); err != nil {
		writeActionError(w, err)
		return
	}
	// hitting the pin cap is not an error, it surfaces as a notice
	if n := ctrl.Notice(); n != "" {
		_ = json.NewEncoder(w).Encode(map[string]string{"notice": n})
		return
	}
	m, _, err := store.GetMessage(id)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Info("message_pinned", "id", id, "user", viewer)
	_ = json.NewEncoder(w).Encode(m)
}

func unpinMessage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := mux.Vars(r)["id"]
	viewer, status, msg := auth.ResolveViewerFromRequest(r, "")
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	ref, ok := messageRef(id)
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "message not found")
		return
	}
	if err := chatview.NewActions(chatCfg(), viewer, ref).Unpin(id); err != nil {
		writeActionError(w, err)
		return
	}
	logger.Info("message_unpinned", "id", id, "user", viewer)
	w.WriteHeader(http.StatusNoContent)
}

// deleteMessage physically removes a message. Owner or moderator only.
func deleteMessage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id := mux.Vars(r)["id"]
	viewer, status, msg := auth.ResolveViewerFromRequest(r, "")
	if status != 0 {
		utils.JSONError(w, status, msg)
		return
	}
	ref, ok := messageRef(id)
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "message not found")
		return
	}
	if err := chatview.NewActions(chatCfg(), viewer, ref).Delete(id); err != nil {
		writeActionError(w, err)
		return
	}
	logger.Info("message_deleted", "id", id, "user", viewer)
	w.WriteHeader(http.StatusNoContent)
}
