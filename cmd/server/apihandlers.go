package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"example.com/postfeed/internal/middleware"
	"example.com/postfeed/internal/models"
)

// activityHandler returns the caller's journal entries, newest first.
// Query parameters: ?limit=20
func (s *Server) activityHandler(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		http.Error(w, "activity journal unavailable", http.StatusServiceUnavailable)
		return
	}
	principal := middleware.PrincipalFromContext(r.Context())

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := s.journal.Recent(r.Context(), principal.UserID, limit)
	if err != nil {
		logg.Error("http/activity", "Failed to read activity", err, "user_id", principal.UserID)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []models.Event{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"user_id": principal.UserID,
		"events":  events,
	})
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}
