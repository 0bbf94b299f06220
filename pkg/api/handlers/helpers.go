package handlers

import (
	"errors"
	"net/http"

	"huddle/pkg/chatview"
	"huddle/pkg/config"
	"huddle/pkg/utils"
)

var cfg *config.Config

// SetConfig hands the resolved server configuration to the handler set.
// Must be called before registering routes.
func SetConfig(c *config.Config) { cfg = c }

func chatCfg() *config.ChatConfig { return &cfg.Chat }

// isBackend reports whether the caller holds a backend or admin key.
func isBackend(r *http.Request) bool {
	role := r.Header.Get("X-Role-Name")
	return role == "admin" || role == "backend"
}

// writeActionError maps chat action failures onto HTTP statuses. The
// validation failures are terminal: the caller sees them immediately and
// nothing is retried.
func writeActionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chatview.ErrNoUser):
		utils.JSONError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, chatview.ErrEmptyMessage),
		errors.Is(err, chatview.ErrNoStream):
		utils.JSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, chatview.ErrTimedOut),
		errors.Is(err, chatview.ErrReadOnly),
		errors.Is(err, chatview.ErrSelfReaction),
		errors.Is(err, chatview.ErrNotAllowed):
		utils.JSONError(w, http.StatusForbidden, err.Error())
	default:
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
	}
}
