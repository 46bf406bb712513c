package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/gradebook/internal/config"
	"github.com/JonMunkholm/gradebook/internal/core"
	"github.com/JonMunkholm/gradebook/internal/memstore"
	"github.com/JonMunkholm/gradebook/internal/web"
)

// ============================================================================
// TEST HELPERS
// ============================================================================

// newBackend serves the store contract over a memory store seeded with
// three students.
func newBackend(t *testing.T) (*httptest.Server, *memstore.Store) {
	t.Helper()
	store := memstore.New(2)
	ctx := context.Background()
	seed := []core.StudentFields{
		{StudentCode: "SV000001", FirstName: "An", LastName: "Lê", Hometown: "Hà Nội", MathScore: core.Float(9), LiteratureScore: core.Float(9)},
		{StudentCode: "SV000002", FirstName: "Bình", LastName: "Trần", Hometown: "Huế", MathScore: core.Float(4)},
		{StudentCode: "SV000003", FirstName: "Chi", LastName: "Phạm", Hometown: "Hà Nội", MathScore: core.Float(7)},
	}
	for _, f := range seed {
		if _, err := store.Create(ctx, f); err != nil {
			t.Fatalf("seed %s: %v", f.StudentCode, err)
		}
	}

	cfg := &config.Config{
		Server: config.ServerConfig{RequestTimeout: 5 * time.Second},
		View:   config.ViewConfig{DefaultPageSize: 10, MaxPageSize: 50},
	}
	svc := core.NewService(store, core.ServiceConfig{})
	ts := httptest.NewServer(web.NewServer(cfg, svc, store, nil).Router())
	t.Cleanup(ts.Close)
	return ts, store
}

func run(t *testing.T, baseURL string, stdin string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--base-url", baseURL, "--max-retries", "0"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

// ============================================================================
// READ COMMANDS
// ============================================================================

func TestList(t *testing.T) {
	ts, _ := newBackend(t)

	out, err := run(t, ts.URL+"/store", "", "list", "--hometown", "Hà Nội", "--sort", "mathScore", "--dir", "desc")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var view core.View
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if view.Meta.TotalItems != 2 {
		t.Fatalf("TotalItems = %d, want 2", view.Meta.TotalItems)
	}
	if view.Items[0].StudentCode != "SV000001" || view.Items[1].StudentCode != "SV000003" {
		t.Errorf("order = %s, %s", view.Items[0].StudentCode, view.Items[1].StudentCode)
	}
}

func TestList_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown sort key", args: []string{"list", "--sort", "shoeSize"}},
		{name: "bad direction", args: []string{"list", "--dir", "sideways"}},
		{name: "bad grade", args: []string{"list", "--grade", "E"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Flags are checked before the store is contacted.
			_, err := run(t, "http://127.0.0.1:1", "", tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := exitCode(err); got != exitUsage {
				t.Errorf("exit code = %d, want %d", got, exitUsage)
			}
		})
	}
}

func TestMissingBaseURL(t *testing.T) {
	t.Setenv("STUDENT_STORE_URL", "")
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"stats"})

	err := cmd.ExecuteContext(context.Background())
	if exitCode(err) != exitUsage {
		t.Errorf("err = %v, want usage error", err)
	}
}

func TestStats(t *testing.T) {
	ts, _ := newBackend(t)

	out, err := run(t, ts.URL+"/store", "", "stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	var summary core.Summary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if summary.Overview.Total != 3 || summary.Overview.WithScores != 3 {
		t.Errorf("Overview = %+v", summary.Overview)
	}
}

func TestStoreUnreachable(t *testing.T) {
	ts, _ := newBackend(t)
	ts.Close()

	_, err := run(t, ts.URL+"/store", "", "stats")
	if got := exitCode(err); got != exitStore {
		t.Errorf("exit code = %d, want %d (err %v)", got, exitStore, err)
	}
}

// ============================================================================
// FILES
// ============================================================================

func TestExport(t *testing.T) {
	ts, _ := newBackend(t)
	path := filepath.Join(t.TempDir(), "students.csv")

	if _, err := run(t, ts.URL+"/store", "", "export", "--grade", "A", "--out", path); err != nil {
		t.Fatalf("export: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if !strings.HasPrefix(lines[0], "\ufeff") {
		t.Error("export should start with a byte order mark")
	}
	if len(lines) != 2 || !strings.HasPrefix(lines[1], `"SV000001",`) {
		t.Errorf("export = %q", lines)
	}
}

func TestTemplate(t *testing.T) {
	out, err := run(t, "", "", "template")
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	if out != core.TemplateCSV() {
		t.Error("template output differs from TemplateCSV")
	}
}

func TestImport(t *testing.T) {
	header := strings.Join(core.Columns, ",")
	csv := header + "\n" +
		"SV000002,Bình Trần,binh@example.com,2004-02-03,Huế,8,8,8\n" +
		"SV000004,Dũng Võ,dung@example.com,2004-06-07,Đà Nẵng,6,7,5\n" +
		"SV000005,,bad-email,,,11,,\n"

	tests := []struct {
		name        string
		args        []string
		wantCode    int
		wantLen     int
		wantCreated int
		wantUpdated int
	}{
		{name: "skip invalid rows", args: []string{"import", "-"}, wantLen: 4, wantCreated: 1},
		{name: "update existing", args: []string{"import", "--update-existing", "-"}, wantLen: 4, wantCreated: 1, wantUpdated: 1},
		{name: "invalid rows block", args: []string{"import", "--skip-invalid=false", "-"}, wantCode: exitValidation, wantLen: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, store := newBackend(t)

			out, err := run(t, ts.URL+"/store", csv, tt.args...)
			if tt.wantCode != 0 {
				if exitCode(err) != tt.wantCode {
					t.Fatalf("err = %v, want exit code %d", err, tt.wantCode)
				}
			} else if err != nil {
				t.Fatalf("import: %v", err)
			}

			var report core.ImportReport
			if err := json.Unmarshal([]byte(out), &report); err != nil {
				t.Fatalf("decode: %v\n%s", err, out)
			}
			if report.Result.Created != tt.wantCreated || report.Result.Updated != tt.wantUpdated {
				t.Errorf("Result = %+v", report.Result)
			}
			if len(report.Result.Errors) == 0 {
				t.Error("invalid row should be reported")
			}
			if got := store.Len(); got != tt.wantLen {
				t.Errorf("store has %d students, want %d", got, tt.wantLen)
			}
		})
	}
}

func TestImport_DryRun(t *testing.T) {
	ts, store := newBackend(t)
	csv := strings.Join(core.Columns, ",") + "\nSV000009,Em Đỗ,em@example.com,,,5,5,5\n"

	out, err := run(t, ts.URL+"/store", csv, "import", "--dry-run", "-")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	var preview core.ImportPreview
	if err := json.Unmarshal([]byte(out), &preview); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if preview.Summary.NewRows != 1 {
		t.Errorf("Summary = %+v", preview.Summary)
	}
	if store.Len() != 3 {
		t.Error("dry run must not write")
	}
}

func TestImport_MissingColumns(t *testing.T) {
	ts, _ := newBackend(t)

	_, err := run(t, ts.URL+"/store", "Mã số sinh viên,Ghi chú\nSV000009,x\n", "import", "-")
	var structure *core.DocumentStructureError
	if !errors.As(err, &structure) || exitCode(err) != exitValidation {
		t.Errorf("err = %v, want structure error with validation exit code", err)
	}
}
