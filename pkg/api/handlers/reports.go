package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"huddle/pkg/auth"
	"huddle/pkg/logger"
	"huddle/pkg/models"
	"huddle/pkg/store"
	"huddle/pkg/utils"
	"huddle/pkg/validation"
)

// RegisterReports registers moderation report endpoints. Anyone may file a
// report; only moderators and backend callers may list them.
func RegisterReports(r *mux.Router) {
	r.HandleFunc("/reports", createReport).Methods(http.MethodPost)
	r.HandleFunc("/reports", listReports).Methods(http.MethodGet)
}

func createReport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var body struct {
		Message string `json:"message"`
		Reason  string `json:"reason"`
		User    string `json:"user,omitempty"`
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
	if err := validation.ValidateReportReason(body.Reason); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	m, key, err := store.GetMessage(body.Message)
	if err != nil {
		utils.JSONError(w, http.StatusNotFound, "message not found")
		return
	}
	ref, _ := store.RefOfKey(key)
	rep, err := store.SaveReport(models.Report{
		Reporter: viewer,
		Message:  m.ID,
		Stream:   ref.ID,
		Reason:   body.Reason,
	})
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Info("report_created", "report", rep.ID, "message", m.ID, "reporter", viewer)
	_ = json.NewEncoder(w).Encode(rep)
}

func listReports(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	viewer := auth.ViewerIDFromContext(r.Context())
	if !isBackend(r) && !cfg.Chat.IsModerator(viewer) {
		utils.JSONError(w, http.StatusForbidden, "forbidden")
		return
	}
	reps, err := store.ListReports()
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = json.NewEncoder(w).Encode(struct {
		Reports []models.Report `json:"reports"`
	}{Reports: reps})
}
