package server

import (
	"errors"
	"net/http"

	"github.com/claude/ironlog/internal/models"
	"github.com/claude/ironlog/internal/session"
	"github.com/claude/ironlog/internal/units"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// sessionResponse carries the id of a newly created element next to the
// updated session.
type sessionResponse struct {
	ID      string             `json:"id,omitempty"`
	Session models.SessionView `json:"session"`
}

func (s *Server) sessionFor(r *http.Request) *session.Store {
	return s.sessions.For(userIDFromContext(r))
}

// writeView responds with the current state of st after a mutation.
func (s *Server) writeView(w http.ResponseWriter, r *http.Request, st *session.Store, status int, id string) {
	view, err := st.View()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, r, status, sessionResponse{ID: id, Session: view})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.sessionFor(r).View()
	if errors.Is(err, session.ErrNoActiveSession) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, r, http.StatusOK, sessionResponse{Session: view})
}

type startSessionRequest struct {
	Name      string     `json:"name"`
	RoutineID *uuid.UUID `json:"routine_id"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
	}

	st := s.sessionFor(r)
	var (
		sess *models.Session
		err  error
	)
	if req.RoutineID != nil {
		var routine *models.Routine
		routine, err = s.db.GetRoutine(r.Context(), *req.RoutineID, userIDFromContext(r))
		if err != nil {
			s.writeError(w, err)
			return
		}
		sess, err = st.StartFromRoutine(routine)
		if err == nil && req.Name != "" {
			err = st.Rename(req.Name)
		}
	} else {
		sess, err = st.Start(req.Name)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeView(w, r, st, http.StatusCreated, sess.ID.String())
}

type updateSessionRequest struct {
	Name  *string `json:"name"`
	Notes *string `json:"notes"`
}

func (s *Server) handleUpdateSession(w http.ResponseWriter, r *http.Request) {
	var req updateSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	st := s.sessionFor(r)
	if req.Name != nil {
		if err := st.Rename(*req.Name); err != nil {
			s.writeError(w, err)
			return
		}
	}
	if req.Notes != nil {
		if err := st.SetNotes(*req.Notes); err != nil {
			s.writeError(w, err)
			return
		}
	}
	s.writeView(w, r, st, http.StatusOK, "")
}

func (s *Server) handleDiscardSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessionFor(r).Discard(); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePauseSession(w http.ResponseWriter, r *http.Request) {
	st := s.sessionFor(r)
	if err := st.Pause(); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeView(w, r, st, http.StatusOK, "")
}

func (s *Server) handleResumeSession(w http.ResponseWriter, r *http.Request) {
	st := s.sessionFor(r)
	if err := st.Resume(); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeView(w, r, st, http.StatusOK, "")
}

func (s *Server) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	workout, err := s.sessionFor(r).Save(r.Context(), userIDFromContext(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.respond(w, r, http.StatusCreated, workout)
}

type addExerciseRequest struct {
	ExerciseID string `json:"exercise_id"`
}

func (s *Server) handleAddExercise(w http.ResponseWriter, r *http.Request) {
	var req addExerciseRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	ref, err := s.catalog.Resolve(r.Context(), req.ExerciseID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	st := s.sessionFor(r)
	id, err := st.AddExercise(ref)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeView(w, r, st, http.StatusCreated, id)
}

type updateExerciseRequest struct {
	Notes string `json:"notes"`
}

func (s *Server) handleUpdateExercise(w http.ResponseWriter, r *http.Request) {
	var req updateExerciseRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	st := s.sessionFor(r)
	if err := st.SetExerciseNotes(chi.URLParam(r, "eid"), req.Notes); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeView(w, r, st, http.StatusOK, "")
}

func (s *Server) handleRemoveExercise(w http.ResponseWriter, r *http.Request) {
	st := s.sessionFor(r)
	if err := st.RemoveExercise(chi.URLParam(r, "eid")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeView(w, r, st, http.StatusOK, "")
}

type moveExerciseRequest struct {
	Index *int `json:"index"`
}

func (s *Server) handleMoveExercise(w http.ResponseWriter, r *http.Request) {
	var req moveExerciseRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Index == nil {
		s.writeError(w, badRequest("index is required"))
		return
	}

	st := s.sessionFor(r)
	if err := st.MoveExercise(chi.URLParam(r, "eid"), *req.Index); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeView(w, r, st, http.StatusOK, "")
}

func (s *Server) handleAddSet(w http.ResponseWriter, r *http.Request) {
	st := s.sessionFor(r)
	id, err := st.AddSet(chi.URLParam(r, "eid"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeView(w, r, st, http.StatusCreated, id)
}

// setPatchRequest accepts the weight in either unit; weight_lb wins when both
// are present.
type setPatchRequest struct {
	models.SetPatch
	WeightLb *float64 `json:"weight_lb,omitempty"`
}

func (s *Server) handleUpdateSet(w http.ResponseWriter, r *http.Request) {
	var req setPatchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	patch := req.SetPatch
	if req.WeightLb != nil {
		kg := units.Pounds.ToKg(*req.WeightLb)
		patch.WeightKg = &kg
	}

	st := s.sessionFor(r)
	if err := st.UpdateSet(chi.URLParam(r, "eid"), chi.URLParam(r, "sid"), patch); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeView(w, r, st, http.StatusOK, "")
}

func (s *Server) handleToggleSet(w http.ResponseWriter, r *http.Request) {
	st := s.sessionFor(r)
	if err := st.ToggleSet(chi.URLParam(r, "eid"), chi.URLParam(r, "sid")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeView(w, r, st, http.StatusOK, "")
}

func (s *Server) handleRemoveSet(w http.ResponseWriter, r *http.Request) {
	st := s.sessionFor(r)
	if err := st.RemoveSet(chi.URLParam(r, "eid"), chi.URLParam(r, "sid")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeView(w, r, st, http.StatusOK, "")
}

type groupSupersetRequest struct {
	ExerciseIDs []string `json:"exercise_ids"`
}

func (s *Server) handleGroupSuperset(w http.ResponseWriter, r *http.Request) {
	var req groupSupersetRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	st := s.sessionFor(r)
	id, err := st.GroupSuperset(req.ExerciseIDs...)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeView(w, r, st, http.StatusCreated, id)
}

func (s *Server) handleUngroup(w http.ResponseWriter, r *http.Request) {
	st := s.sessionFor(r)
	if err := st.Ungroup(chi.URLParam(r, "eid")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeView(w, r, st, http.StatusOK, "")
}
