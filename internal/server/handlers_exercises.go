package server

import (
	"net/http"
	"strings"

	"github.com/claude/ironlog/internal/catalog"
	"github.com/claude/ironlog/internal/models"
	"github.com/claude/ironlog/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (s *Server) handleListExercises(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := s.catalog.List(r.Context(), storage.ExerciseFilter{
		Query:       strings.TrimSpace(q.Get("q")),
		MuscleGroup: q.Get("muscle_group"),
		Equipment:   q.Get("equipment"),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetExercise(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "id")
	if models.IsCustomExerciseID(ref) {
		if s.catalog.Custom() == nil {
			s.writeError(w, catalog.ErrNotFound)
			return
		}
		ex, err := s.catalog.Custom().Get(r.Context(), ref)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ex)
		return
	}

	id, err := uuid.Parse(ref)
	if err != nil {
		s.writeError(w, badRequest("invalid id"))
		return
	}
	ex, err := s.catalog.Exercise(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

func (s *Server) handleExerciseHistory(w http.ResponseWriter, r *http.Request) {
	ref, err := exerciseRefParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	history, err := s.db.ExerciseHistory(r.Context(), ref, userIDFromContext(r), queryInt(r, "limit", 20))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, r, http.StatusOK, history)
}

func (s *Server) handlePersonalRecords(w http.ResponseWriter, r *http.Request) {
	ref, err := exerciseRefParam(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	prs, err := s.db.PersonalRecords(r.Context(), ref, userIDFromContext(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, r, http.StatusOK, prs)
}

func (s *Server) handleListCustomExercises(w http.ResponseWriter, r *http.Request) {
	if s.catalog.Custom() == nil {
		writeJSON(w, http.StatusOK, []models.CustomExercise{})
		return
	}
	list, err := s.catalog.Custom().List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type customExerciseRequest struct {
	Name        string `json:"name"`
	MuscleGroup string `json:"muscle_group"`
	Equipment   string `json:"equipment"`
}

func (s *Server) handleCreateCustomExercise(w http.ResponseWriter, r *http.Request) {
	if s.catalog.Custom() == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "custom exercises are disabled"})
		return
	}

	var req customExerciseRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		s.writeError(w, badRequest("name is required"))
		return
	}

	ex, err := s.catalog.Custom().Add(r.Context(), req.Name, req.MuscleGroup, req.Equipment)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ex)
}

func (s *Server) handleDeleteCustomExercise(w http.ResponseWriter, r *http.Request) {
	if s.catalog.Custom() == nil {
		s.writeError(w, catalog.ErrNotFound)
		return
	}
	if err := s.catalog.Custom().Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// exerciseRefParam returns the {id} path parameter as stored on workout
// exercises. Deleted custom exercises still have history, so the reference
// is only checked for shape.
func exerciseRefParam(r *http.Request) (string, error) {
	ref := chi.URLParam(r, "id")
	if models.IsCustomExerciseID(ref) {
		return ref, nil
	}
	id, err := uuid.Parse(ref)
	if err != nil {
		return "", badRequest("invalid id")
	}
	return id.String(), nil
}
