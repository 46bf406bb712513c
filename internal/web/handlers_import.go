package web

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/gradebook/internal/logging"
)

// recentImportsLimit caps GET /api/import.
const recentImportsLimit = 20

// handleImport runs an import from a multipart upload and returns its report.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	name, text, opts, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	report, err := s.service.Import(withClient(r), name, text, opts)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	logging.FromContext(r.Context()).Info("import finished",
		"import_id", report.ID,
		"blocked", report.Blocked,
		"created", report.Result.Created,
		"updated", report.Result.Updated,
		"skipped", report.Result.Skipped,
		"errors", len(report.Result.Errors),
	)

	status := http.StatusOK
	if report.Blocked {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, report)
}

// handlePreviewImport reports what an import would do, without writing.
func (s *Server) handlePreviewImport(w http.ResponseWriter, r *http.Request) {
	_, text, opts, err := s.readUpload(w, r)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	preview, err := s.service.PreviewImport(text, opts)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (s *Server) handleImportReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "importID")
	report, ok := s.service.ImportReport(id)
	if !ok {
		s.respondError(w, r, fmt.Errorf("%w: %s", errImportNotFound, id), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRecentImports(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 1 || n > recentImportsLimit {
		n = recentImportsLimit
	}
	writeJSON(w, http.StatusOK, s.service.RecentImports(n))
}

// handleExport downloads every record matching the view filters, in the
// view's sort order.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	state, err := s.parseViewQuery(r)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	name := fmt.Sprintf("students_%s.csv", time.Now().Format("2006-01-02"))
	writeCSV(w, name, s.service.Export(state))
}

func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	writeCSV(w, "student_import_template.csv", s.service.Template())
}

func writeCSV(w http.ResponseWriter, filename, body string) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
