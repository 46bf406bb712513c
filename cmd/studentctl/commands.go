package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/gradebook/internal/core"
	"github.com/JonMunkholm/gradebook/internal/logging"
	"github.com/JonMunkholm/gradebook/internal/remote"
)

type rootOptions struct {
	baseURL    string
	timeout    time.Duration
	maxRetries int
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "studentctl",
		Short:         "Query, export and import student records",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logging.SetupWriter(cmd.ErrOrStderr(), opts.logLevel, "text")
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", os.Getenv("STUDENT_STORE_URL"), "Student store base URL")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Per-request timeout")
	cmd.PersistentFlags().IntVar(&opts.maxRetries, "max-retries", 3, "Retries for transient store failures")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	cmd.AddCommand(
		newListCmd(opts),
		newStatsCmd(opts),
		newExportCmd(opts),
		newTemplateCmd(),
		newImportCmd(opts),
	)
	return cmd
}

// service connects to the store and loads the working set.
func (o *rootOptions) service(cmd *cobra.Command) (*core.Service, error) {
	if strings.TrimSpace(o.baseURL) == "" {
		return nil, withCode(exitUsage, errors.New("--base-url is required (or set STUDENT_STORE_URL)"))
	}
	retry := remote.DefaultRetryConfig()
	retry.MaxRetries = o.maxRetries

	client, err := remote.New(remote.Config{
		BaseURL: o.baseURL,
		Timeout: o.timeout,
		Retry:   retry,
	})
	if err != nil {
		return nil, withCode(exitUsage, err)
	}

	svc := core.NewService(client, core.ServiceConfig{})
	start := time.Now()
	n, err := svc.Reload(cmd.Context())
	if err != nil {
		return nil, withCode(exitStore, fmt.Errorf("load students: %w", err))
	}
	slog.Debug("working set loaded", "records", n, "duration", time.Since(start))
	return svc, nil
}

// ----------------------------------------------------------------------------
// Commands
// ----------------------------------------------------------------------------

type listOptions struct {
	search   string
	hometown string
	grade    string
	sortKey  string
	dir      string
	page     int
	pageSize int
}

func (o listOptions) state() (core.ViewState, error) {
	state := core.DefaultViewState()

	criteria := core.FilterCriteria{Search: o.search, Hometown: o.hometown}
	if strings.TrimSpace(o.grade) != "" {
		g, ok := core.ParseGrade(o.grade)
		if !ok {
			return state, fmt.Errorf("invalid --grade %q: want one of A, B, C, D, F", o.grade)
		}
		criteria.Grade = g
	}
	state = state.WithCriteria(criteria)

	if o.sortKey != "" || o.dir != "" {
		key := o.sortKey
		if key == "" {
			key = string(core.DefaultSort.Key)
		}
		spec, err := core.NewSortSpec(key, o.dir)
		if err != nil {
			return state, err
		}
		state = state.WithSort(spec)
	}

	if o.pageSize > 0 {
		state = state.WithPageSize(o.pageSize)
	}
	if o.page > 0 {
		state = state.WithPage(o.page)
	}
	return state, nil
}

func (o *listOptions) bindFilters(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.search, "search", "", "Match code, name or email")
	cmd.Flags().StringVar(&o.hometown, "hometown", "", "Exact hometown")
	cmd.Flags().StringVar(&o.grade, "grade", "", "Letter grade: A, B, C, D or F")
	cmd.Flags().StringVar(&o.sortKey, "sort", "", "Sort key")
	cmd.Flags().StringVar(&o.dir, "dir", "", "Sort direction: asc or desc")
}

func newListCmd(root *rootOptions) *cobra.Command {
	var opts listOptions

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print one page of the filtered, sorted student table",
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := opts.state()
			if err != nil {
				return withCode(exitUsage, err)
			}
			svc, err := root.service(cmd)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), svc.View(state))
		},
	}

	opts.bindFilters(cmd)
	cmd.Flags().IntVar(&opts.page, "page", 1, "Page number (1-based)")
	cmd.Flags().IntVar(&opts.pageSize, "page-size", core.DefaultPageSize, "Rows per page")
	return cmd
}

func newStatsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the analytics summary of every student",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := root.service(cmd)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), svc.Analytics())
		},
	}
}

func newExportCmd(root *rootOptions) *cobra.Command {
	var opts listOptions
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the filtered, sorted students as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := opts.state()
			if err != nil {
				return withCode(exitUsage, err)
			}
			svc, err := root.service(cmd)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), out, svc.Export(state))
		},
	}

	opts.bindFilters(cmd)
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default: stdout)")
	return cmd
}

func newTemplateCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write the import template CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeOutput(cmd.OutOrStdout(), out, core.TemplateCSV())
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default: stdout)")
	return cmd
}

func newImportCmd(root *rootOptions) *cobra.Command {
	var (
		opts   core.ImportOptions
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import students from a CSV file (use - for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, text, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return withCode(exitUsage, err)
			}
			svc, err := root.service(cmd)
			if err != nil {
				return err
			}

			if dryRun {
				preview, err := svc.PreviewImport(text, opts)
				if err != nil {
					return withCode(exitValidation, err)
				}
				return printJSON(cmd.OutOrStdout(), preview)
			}

			report, err := svc.Import(cmd.Context(), name, text, opts)
			var structure *core.DocumentStructureError
			switch {
			case errors.As(err, &structure):
				return withCode(exitValidation, err)
			case err != nil && report.ID != "":
				// Written, but the reload afterwards failed.
				_ = printJSON(cmd.OutOrStdout(), report)
				return withCode(exitStore, err)
			case err != nil:
				return withCode(exitStore, err)
			}
			if err := printJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if report.Blocked {
				return withCode(exitValidation, fmt.Errorf("import blocked: %d invalid rows", len(report.Result.Errors)))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.UpdateExisting, "update-existing", false, "Update students whose code already exists")
	cmd.Flags().BoolVar(&opts.SkipInvalid, "skip-invalid", true, "Import valid rows when some rows are invalid")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the preview without writing")
	return cmd
}

// ----------------------------------------------------------------------------
// Output
// ----------------------------------------------------------------------------

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeOutput(stdout io.Writer, path, content string) error {
	if path == "" {
		_, err := io.WriteString(stdout, content)
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	slog.Info("file written", "path", path, "bytes", len(content))
	return nil
}

func readInput(stdin io.Reader, path string) (string, string, error) {
	if path == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", "", fmt.Errorf("read stdin: %w", err)
		}
		return "stdin.csv", string(b), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("read %s: %w", path, err)
	}
	return filepath.Base(path), string(b), nil
}
