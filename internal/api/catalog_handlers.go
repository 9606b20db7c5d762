package api

import (
	"net/http"

	"github.com/terra-clan/koi-prep/internal/models"
)

// Catalog handlers, the choices offered by the setup screen

func (s *Server) handleListLanguages(w http.ResponseWriter, r *http.Request) {
	languages := s.languages.List()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"languages": languages,
		"total":     len(languages),
	})
}

func (s *Server) handleListLevels(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"levels":            models.Levels(),
		"min_problem_count": models.MinProblemCount,
		"max_problem_count": models.MaxProblemCount,
	})
}
