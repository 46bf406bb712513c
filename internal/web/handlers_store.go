package web

// handlers_store.go exposes the configured persistence backend as the
// student store contract, so another gradebook instance or studentctl can
// use it through the http backend:
//
//	GET    /store/students?page=N   {"items":[...],"hasNext":bool}
//	GET    /store/students/{id}
//	POST   /store/students
//	PUT    /store/students/{id}
//	DELETE /store/students/{id}
//	DELETE /store/students          {"deletedCount":n}
//
// Rejected fields come back as {"errors":[{"field","message"}]} with the
// store's status (400 or 409).

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/gradebook/internal/core"
	"github.com/JonMunkholm/gradebook/internal/logging"
)

type storeFieldErrors struct {
	Errors []core.FieldError `json:"errors"`
}

type storeError struct {
	Error string `json:"error"`
}

func (s *Server) handleStoreList(w http.ResponseWriter, r *http.Request) {
	page := 1
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, storeError{Error: "page must be a positive integer"})
			return
		}
		page = n
	}
	p, err := s.store.List(r.Context(), page)
	if err != nil {
		s.storeFailed(w, r, err)
		return
	}
	if p.Items == nil {
		p.Items = []core.StudentRecord{}
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleStoreGet(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storeFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleStoreCreate(w http.ResponseWriter, r *http.Request) {
	var f core.StudentFields
	if err := decodeJSON(r, &f); err != nil {
		writeJSON(w, http.StatusBadRequest, storeError{Error: err.Error()})
		return
	}
	rec, err := s.store.Create(r.Context(), f)
	if err != nil {
		s.storeFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleStoreUpdate(w http.ResponseWriter, r *http.Request) {
	var f core.StudentFields
	if err := decodeJSON(r, &f); err != nil {
		writeJSON(w, http.StatusBadRequest, storeError{Error: err.Error()})
		return
	}
	rec, err := s.store.Update(r.Context(), chi.URLParam(r, "id"), f)
	if err != nil {
		s.storeFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleStoreDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.storeFailed(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStoreBulkDelete(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.BulkDelete(r.Context())
	if err != nil {
		s.storeFailed(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deletedCount": n})
}

// storeFailed writes a contract error body. Field rejections keep the
// backend's status; anything else is a 404 or a 500.
func (s *Server) storeFailed(w http.ResponseWriter, r *http.Request, err error) {
	var remote *core.RemoteError
	switch {
	case errors.As(err, &remote) && len(remote.Fields) > 0:
		status := remote.StatusCode
		if status < 400 || status >= 500 {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, storeFieldErrors{Errors: remote.Fields})
	case errors.Is(err, core.ErrNotFound):
		writeJSON(w, http.StatusNotFound, storeError{Error: "not found"})
	default:
		logging.FromContext(r.Context()).Error("store request failed", "path", r.URL.Path, "error", err)
		writeJSON(w, http.StatusInternalServerError, storeError{Error: "internal error"})
	}
}
