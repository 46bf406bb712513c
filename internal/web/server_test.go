package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/gradebook/internal/config"
	"github.com/JonMunkholm/gradebook/internal/core"
	"github.com/JonMunkholm/gradebook/internal/memstore"
	"github.com/JonMunkholm/gradebook/internal/metrics"
	"github.com/JonMunkholm/gradebook/internal/remote"
)

const importHeader = "Mã số sinh viên,Họ tên,Email,Ngày sinh,Quê quán,Điểm Toán,Điểm Văn,Điểm Anh"

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 5 * time.Second},
		Import: config.ImportConfig{MaxFileSize: 1 << 16, SkipInvalid: true},
		View:   config.ViewConfig{DefaultPageSize: 10, MaxPageSize: 50},
		Rate:   config.RateLimitConfig{Enabled: false},
	}
}

func newTestServer(t *testing.T) (*Server, *memstore.Store) {
	t.Helper()
	store := memstore.New(3)
	svc := core.NewService(store, core.ServiceConfig{HistorySize: 5})
	if _, err := svc.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	return NewServer(testConfig(), svc, store, metrics.New()), store
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func student(code, name string, math float64) map[string]any {
	first, last := core.SplitFullName(name)
	return map[string]any{
		"studentCode": code,
		"firstName":   first,
		"lastName":    last,
		"email":       strings.ToLower(code) + "@example.com",
		"hometown":    "Huế",
		"mathScore":   math,
	}
}

func upload(t *testing.T, s *Server, path, csv string, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "students.csv")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(csv))
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

// ============================================================================
// Students API
// ============================================================================

func TestStudents_CreateListGet(t *testing.T) {
	s, _ := newTestServer(t)

	for _, st := range []map[string]any{
		student("SV000003", "Lê Văn Cường", 4),
		student("SV000001", "Nguyễn Thị An", 9),
		student("SV000002", "Trần Bình", 7),
	} {
		if rec := do(t, s, http.MethodPost, "/api/students", st); rec.Code != http.StatusCreated {
			t.Fatalf("create = %d %s", rec.Code, rec.Body)
		}
	}

	rec := do(t, s, http.MethodGet, "/api/students?sort=mathScore&dir=desc&pageSize=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list = %d %s", rec.Code, rec.Body)
	}
	view := decode[core.View](t, rec)
	if view.Meta.TotalItems != 3 || len(view.Items) != 2 {
		t.Fatalf("meta = %+v items = %d", view.Meta, len(view.Items))
	}
	if view.Items[0].StudentCode != "SV000001" || view.Items[0].Grade != core.GradeA {
		t.Errorf("first = %+v", view.Items[0])
	}

	rec = do(t, s, http.MethodGet, "/api/students/"+view.Items[1].ID, nil)
	if got := decode[core.StudentRecord](t, rec); got.StudentCode != "SV000002" {
		t.Errorf("get = %+v", got)
	}
}

func TestStudents_ListQueryErrors(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name     string
		query    string
		wantCode string
		field    string
	}{
		{name: "unknown sort key", query: "sort=shoeSize", wantCode: "VAL003"},
		{name: "bad direction", query: "dir=sideways", wantCode: "VAL001", field: "dir"},
		{name: "bad grade", query: "grade=E", wantCode: "VAL001", field: "grade"},
		{name: "page not a number", query: "page=two", wantCode: "VAL001", field: "page"},
		{name: "negative page size", query: "pageSize=-1", wantCode: "VAL001", field: "pageSize"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, "/api/students?"+tt.query, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			resp := decode[ErrorResponse](t, rec)
			if resp.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", resp.Code, tt.wantCode)
			}
			if tt.field != "" && resp.FieldErrors[core.Field(tt.field)] == "" {
				t.Errorf("fieldErrors = %v, want %s", resp.FieldErrors, tt.field)
			}
		})
	}
}

func TestStudents_PageSizeCapped(t *testing.T) {
	s, _ := newTestServer(t)
	view := decode[core.View](t, do(t, s, http.MethodGet, "/api/students?pageSize=1000", nil))
	if view.State.PageSize != 50 {
		t.Errorf("PageSize = %d, want capped at 50", view.State.PageSize)
	}
}

func TestStudents_CreateValidation(t *testing.T) {
	s, store := newTestServer(t)

	body := map[string]any{
		"studentCode": "x",
		"firstName":   "",
		"lastName":    "Lê",
		"mathScore":   "ten",
		"email":       "nope",
	}
	rec := do(t, s, http.MethodPost, "/api/students", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decode[ErrorResponse](t, rec)
	for _, f := range []core.Field{core.FieldStudentCode, core.FieldFirstName, core.FieldMathScore, core.FieldEmail} {
		if resp.FieldErrors[f] == "" {
			t.Errorf("missing field error for %s: %v", f, resp.FieldErrors)
		}
	}
	if store.Len() != 0 {
		t.Error("invalid student reached the store")
	}

	rec = do(t, s, http.MethodPost, "/api/students", map[string]any{"studentCode": true})
	if resp := decode[ErrorResponse](t, rec); resp.FieldErrors[core.FieldStudentCode] == "" {
		t.Errorf("non-text value accepted: %s", rec.Body)
	}
}

func TestStudents_DuplicateCode(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, http.MethodPost, "/api/students", student("SV000001", "An Lê", 8))

	rec := do(t, s, http.MethodPost, "/api/students", student("SV000001", "Bình Trần", 6))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	resp := decode[ErrorResponse](t, rec)
	if resp.Code != "VAL002" || resp.FieldErrors[core.FieldStudentCode] != "already exists" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestStudents_UpdateDelete(t *testing.T) {
	s, _ := newTestServer(t)
	created := decode[core.StudentRecord](t, do(t, s, http.MethodPost, "/api/students", student("SV000001", "An Lê", 8)))

	upd := student("SV000001", "An Lê", 3)
	rec := do(t, s, http.MethodPut, "/api/students/"+created.ID, upd)
	if got := decode[core.StudentRecord](t, rec); got.Grade != core.GradeF {
		t.Errorf("updated = %+v", got)
	}

	if rec := do(t, s, http.MethodDelete, "/api/students/"+created.ID, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", rec.Code)
	}
	rec = do(t, s, http.MethodGet, "/api/students/"+created.ID, nil)
	if rec.Code != http.StatusNotFound || decode[ErrorResponse](t, rec).Code != "REM004" {
		t.Errorf("get deleted = %d %s", rec.Code, rec.Body)
	}
	if rec := do(t, s, http.MethodDelete, "/api/students/"+created.ID, nil); rec.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", rec.Code)
	}
}

func TestStudents_BulkDelete(t *testing.T) {
	s, store := newTestServer(t)
	for _, code := range []string{"SV000001", "SV000002"} {
		do(t, s, http.MethodPost, "/api/students", student(code, "An Lê", 8))
	}

	rec := do(t, s, http.MethodDelete, "/api/students", nil)
	if got := decode[map[string]int64](t, rec); got["deletedCount"] != 2 {
		t.Errorf("deletedCount = %v", got)
	}
	if store.Len() != 0 || s.service.Store().Len() != 0 {
		t.Error("records remain after bulk delete")
	}
}

func TestValidateEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name      string
		body      any
		wantValid bool
		wantField core.Field
		wantCode  int
	}{
		{name: "one good field", body: map[string]string{"field": "email", "value": "a@b.co"}, wantValid: true, wantCode: 200},
		{name: "one bad field", body: map[string]string{"field": "mathScore", "value": "11"}, wantField: core.FieldMathScore, wantCode: 200},
		{name: "unknown field", body: map[string]string{"field": "shoeSize", "value": "42"}, wantCode: 400},
		{
			name:      "whole candidate",
			body:      map[string]any{"candidate": map[string]string{"studentCode": "SV000001", "firstName": "An"}},
			wantField: core.FieldLastName,
			wantCode:  200,
		},
		{name: "nothing to check", body: map[string]string{}, wantCode: 400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodPost, "/api/validate", tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body)
			}
			if tt.wantCode != 200 {
				return
			}
			got := decode[struct {
				Valid       bool             `json:"valid"`
				FieldErrors core.FieldErrors `json:"fieldErrors"`
			}](t, rec)
			if got.Valid != tt.wantValid {
				t.Errorf("valid = %v", got.Valid)
			}
			if tt.wantField != "" && got.FieldErrors[tt.wantField] == "" {
				t.Errorf("fieldErrors = %v, want %s", got.FieldErrors, tt.wantField)
			}
		})
	}
}

// ============================================================================
// Import / export
// ============================================================================

func TestImport_CreatesAndReports(t *testing.T) {
	s, _ := newTestServer(t)
	csv := importHeader + "\n" +
		"SV000001,Nguyễn Văn An,an@example.com,2004-03-15,Hà Nội,8,9,7\n" +
		"SV000002,Trần Bình,,,Huế,5,5,5\n" +
		"bad,X,,,,,,\n"

	rec := upload(t, s, "/api/import", csv, map[string]string{"skipInvalid": "true"})
	if rec.Code != http.StatusOK {
		t.Fatalf("import = %d %s", rec.Code, rec.Body)
	}
	report := decode[core.ImportReport](t, rec)
	if report.Result.Created != 2 || len(report.Result.Errors) != 1 || report.Result.Errors[0].Line != 4 {
		t.Errorf("result = %+v", report.Result)
	}
	if report.ClientIP != "192.0.2.1" {
		t.Errorf("ClientIP = %q", report.ClientIP)
	}

	rec = do(t, s, http.MethodGet, "/api/import/"+report.ID, nil)
	if got := decode[core.ImportReport](t, rec); got.ID != report.ID {
		t.Errorf("report lookup = %+v", got)
	}
	recent := decode[[]core.ImportReport](t, do(t, s, http.MethodGet, "/api/import", nil))
	if len(recent) != 1 {
		t.Errorf("recent = %d", len(recent))
	}

	summary := decode[core.Summary](t, do(t, s, http.MethodGet, "/api/analytics", nil))
	if summary.Overview.Total != 2 {
		t.Errorf("analytics total = %d", summary.Overview.Total)
	}
}

func TestImport_BlockedWithoutSkipInvalid(t *testing.T) {
	s, store := newTestServer(t)
	csv := importHeader + "\nSV000001,An Lê,,,,8,8,8\n,Missing Code,,,,,,\n"

	rec := upload(t, s, "/api/import", csv, map[string]string{"skipInvalid": "false"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if report := decode[core.ImportReport](t, rec); !report.Blocked {
		t.Errorf("report = %+v", report)
	}
	if store.Len() != 0 {
		t.Error("blocked import wrote records")
	}
}

func TestImport_RequestErrors(t *testing.T) {
	s, _ := newTestServer(t)

	tests := []struct {
		name       string
		csv        string
		fields     map[string]string
		wantStatus int
		wantCode   string
	}{
		{name: "missing column", csv: "Họ tên,Email\nAn,\n", wantStatus: 400, wantCode: "IMP001"},
		{name: "empty file", csv: "", wantStatus: 400, wantCode: "FILE002"},
		{name: "bad switch", csv: importHeader + "\n", fields: map[string]string{"updateExisting": "maybe"}, wantStatus: 400, wantCode: "VAL001"},
		{name: "too large", csv: importHeader + "\n" + strings.Repeat("x", 1<<16), wantStatus: 413, wantCode: "FILE001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := upload(t, s, "/api/import", tt.csv, tt.fields)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body)
			}
			if got := decode[ErrorResponse](t, rec).Code; got != tt.wantCode {
				t.Errorf("code = %q, want %q", got, tt.wantCode)
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader("plain"))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if got := decode[ErrorResponse](t, rec).Code; got != "FILE003" {
		t.Errorf("no multipart body code = %q, want FILE003", got)
	}

	if rec := do(t, s, http.MethodGet, "/api/import/nope", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown report = %d", rec.Code)
	}
}

func TestImport_Preview(t *testing.T) {
	s, store := newTestServer(t)
	do(t, s, http.MethodPost, "/api/students", student("SV000001", "An Lê", 5))

	csv := importHeader + "\nSV000001,An Lê,,,,9,9,9\nSV000002,Bình Trần,,,,6,6,6\n"
	rec := upload(t, s, "/api/import/preview", csv, map[string]string{"updateExisting": "true"})
	preview := decode[core.ImportPreview](t, rec)
	if preview.Summary.NewRows != 1 || preview.Summary.UpdateRows != 1 {
		t.Errorf("summary = %+v", preview.Summary)
	}
	if store.Len() != 1 {
		t.Error("preview wrote to the store")
	}
}

func TestExportAndTemplate(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, http.MethodPost, "/api/students", student("SV000001", "An Lê", 9))
	do(t, s, http.MethodPost, "/api/students", student("SV000002", "Bình Trần", 3))

	rec := do(t, s, http.MethodGet, "/api/export?grade=A", nil)
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("Content-Type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "\ufeff") {
		t.Error("export missing BOM")
	}
	if !strings.Contains(body, "SV000001") || strings.Contains(body, "SV000002") {
		t.Errorf("export ignored the grade filter: %s", body)
	}

	rec = do(t, s, http.MethodGet, "/api/template", nil)
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "student_import_template.csv") {
		t.Errorf("Content-Disposition = %q", rec.Header().Get("Content-Disposition"))
	}
}

// ============================================================================
// Infrastructure
// ============================================================================

func TestHTMXErrorFragment(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/students/missing", nil)
	req.Header.Set("HX-Request", "true")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "REM004") {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, ImportLimit: 1}
	store := memstore.New(10)
	s := NewServer(cfg, core.NewService(store, core.ServiceConfig{}), store, nil)

	var last *httptest.ResponseRecorder
	for range 3 {
		last = do(t, s, http.MethodGet, "/healthz", nil)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", last.Code)
	}
	if got := decode[ErrorResponse](t, last).Code; got != "RATE001" {
		t.Errorf("code = %q", got)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, http.MethodPost, "/api/students", student("SV000001", "An Lê", 9))

	health := decode[map[string]any](t, do(t, s, http.MethodGet, "/healthz", nil))
	if health["status"] != "ok" || health["records"] != float64(1) {
		t.Errorf("health = %v", health)
	}
	rec := do(t, s, http.MethodGet, "/metrics", nil)
	if !strings.Contains(rec.Body.String(), `gradebook_http_requests_total{route="/api/students"`) {
		t.Errorf("metrics missing route counter:\n%s", rec.Body)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
}

// ============================================================================
// Store contract
// ============================================================================

// The remote client and the /store endpoints implement the same contract
// from both ends.
func TestStoreContract_RemoteClient(t *testing.T) {
	s, backend := newTestServer(t)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	client, err := remote.New(remote.Config{
		BaseURL: ts.URL + "/store",
		Retry:   remote.RetryConfig{MaxRetries: 0},
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for i, code := range []string{"SV000001", "SV000002", "SV000003", "SV000004"} {
		f := core.StudentFields{StudentCode: code, FirstName: "An", LastName: "Lê", MathScore: core.Float(float64(i + 5))}
		if _, err := client.Create(ctx, f); err != nil {
			t.Fatalf("Create %s: %v", code, err)
		}
	}
	all, err := core.LoadAll(ctx, client)
	if err != nil || len(all) != 4 {
		t.Fatalf("LoadAll = %d, %v (page size 3 forces two pages)", len(all), err)
	}

	_, err = client.Create(ctx, core.StudentFields{StudentCode: "SV000001", FirstName: "B", LastName: "C"})
	if fe := core.FieldErrorsOf(err); fe[core.FieldStudentCode] != "already exists" {
		t.Errorf("duplicate err = %v", err)
	}

	got, err := client.Get(ctx, all[0].ID)
	if err != nil || got.StudentCode != all[0].StudentCode {
		t.Errorf("Get = %+v, %v", got, err)
	}
	if err := client.Delete(ctx, all[0].ID); err != nil {
		t.Fatal(err)
	}
	if _, err := client.Get(ctx, all[0].ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Get deleted = %v", err)
	}

	n, err := client.BulkDelete(ctx)
	if err != nil || n != 3 || backend.Len() != 0 {
		t.Errorf("BulkDelete = %d, %v", n, err)
	}
}
