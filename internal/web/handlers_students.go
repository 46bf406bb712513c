package web

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/gradebook/internal/core"
	"github.com/JonMunkholm/gradebook/internal/logging"
)

// handleListStudents returns one page of the filtered, sorted table.
func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	state, err := s.parseViewQuery(r)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, s.service.View(state))
}

func (s *Server) handleGetStudent(w http.ResponseWriter, r *http.Request) {
	rec, err := s.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleCreateStudent validates the raw form values, then creates the
// student. Field errors come back as 400 with fieldErrors.
func (s *Server) handleCreateStudent(w http.ResponseWriter, r *http.Request) {
	fields, ok := s.readCandidate(w, r)
	if !ok {
		return
	}
	rec, err := s.service.Create(r.Context(), fields)
	s.respondMutation(w, r, http.StatusCreated, rec, err)
}

func (s *Server) handleUpdateStudent(w http.ResponseWriter, r *http.Request) {
	fields, ok := s.readCandidate(w, r)
	if !ok {
		return
	}
	rec, err := s.service.Update(r.Context(), chi.URLParam(r, "id"), fields)
	s.respondMutation(w, r, http.StatusOK, rec, err)
}

func (s *Server) handleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.service.Delete(r.Context(), id)
	if err == nil || errors.Is(err, core.ErrStaleWorkingSet) {
		logging.FromContext(r.Context()).Info("student deleted", "id", id)
	}
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	n, err := s.service.BulkDelete(r.Context())
	if err == nil || errors.Is(err, core.ErrStaleWorkingSet) {
		logging.FromContext(r.Context()).Warn("all students deleted", "count", n)
	}
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deletedCount": n})
}

// handleValidate checks a single field or a whole candidate without saving.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	if err := checkStruct(s.validate, req); err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	errs := make(core.FieldErrors)
	if req.Field != "" {
		var fe core.FieldError
		if err := s.service.ValidateField(core.Field(req.Field), req.Value); errors.As(err, &fe) {
			errs.Add(fe.Field, fe.Message)
		}
	} else {
		c := make(core.Candidate, len(req.Candidate))
		for k, v := range req.Candidate {
			c[core.Field(k)] = v
		}
		errs = s.service.ValidateCandidate(c)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":       len(errs) == 0,
		"fieldErrors": errs,
	})
}

// readCandidate decodes and validates a student body. On failure the
// response is already written.
func (s *Server) readCandidate(w http.ResponseWriter, r *http.Request) (core.StudentFields, bool) {
	c, err := decodeCandidate(r)
	if err != nil {
		s.respondError(w, r, err, 0)
		return core.StudentFields{}, false
	}
	if errs := s.service.ValidateCandidate(c); len(errs) > 0 {
		s.respondError(w, r, &core.ValidationFailedError{Errors: errs}, http.StatusBadRequest)
		return core.StudentFields{}, false
	}
	return core.CandidateFields(c), true
}

// respondMutation writes the saved record. A stale working set still
// returns the record, with 503 and the error so the client reloads.
func (s *Server) respondMutation(w http.ResponseWriter, r *http.Request, status int, rec core.StudentRecord, err error) {
	switch {
	case err == nil:
		writeJSON(w, status, rec)
	case errors.Is(err, core.ErrStaleWorkingSet):
		msg := core.MapError(err)
		logging.FromContext(r.Context()).Error("working set refresh failed after write", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"student": rec,
			"error":   ErrorResponse{Error: msg.Message, Message: msg.Message, Action: msg.Action, Code: msg.Code},
		})
	default:
		s.respondError(w, r, err, 0)
	}
}
