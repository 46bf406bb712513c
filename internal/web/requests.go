package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/JonMunkholm/gradebook/internal/core"
)

// maxJSONBody bounds request bodies other than uploads.
const maxJSONBody = 1 << 20

// newValidator returns a validator that reports fields by their query or
// json name and knows the student field names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"query", "form", "json"} {
			if name, _, _ := strings.Cut(f.Tag.Get(tag), ","); name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	_ = v.RegisterValidation("studentfield", func(fl validator.FieldLevel) bool {
		return core.Field(fl.Field().String()).IsKnown()
	})
	return v
}

// checkStruct runs v over req and converts failures to field errors.
func checkStruct(v *validator.Validate, req any) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(core.FieldErrors, len(verrs))
	for _, fe := range verrs {
		fields.Add(core.Field(fe.Field()), describe(fe))
	}
	return &core.ValidationFailedError{Errors: fields}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without":
		return "is required"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "gte", "min":
		return "must be at least " + fe.Param()
	case "boolean":
		return "must be true or false"
	case "studentfield":
		return "is not a student field"
	}
	return "is invalid"
}

// ----------------------------------------------------------------------------
// Table view query
// ----------------------------------------------------------------------------

// viewQuery is the query string of the list and export endpoints.
type viewQuery struct {
	Search   string `query:"search" validate:"max=200"`
	Hometown string `query:"hometown" validate:"max=200"`
	Grade    string `query:"grade" validate:"omitempty,oneof=A B C D F"`
	Sort     string `query:"sort"`
	Dir      string `query:"dir" validate:"omitempty,oneof=asc desc"`
	Page     int    `query:"page" validate:"gte=0"`
	PageSize int    `query:"pageSize" validate:"gte=0"`
}

// parseViewQuery reads and checks the table view parameters. Page size is
// capped at the configured maximum.
func (s *Server) parseViewQuery(r *http.Request) (core.ViewState, error) {
	q := r.URL.Query()
	req := viewQuery{
		Search:   q.Get("search"),
		Hometown: q.Get("hometown"),
		Grade:    strings.ToUpper(strings.TrimSpace(q.Get("grade"))),
		Sort:     strings.TrimSpace(q.Get("sort")),
		Dir:      strings.ToLower(strings.TrimSpace(q.Get("dir"))),
	}
	intErrs := make(core.FieldErrors)
	req.Page = queryInt(q.Get("page"), "page", intErrs)
	req.PageSize = queryInt(q.Get("pageSize"), "pageSize", intErrs)
	if len(intErrs) > 0 {
		return core.ViewState{}, &core.ValidationFailedError{Errors: intErrs}
	}
	if err := checkStruct(s.validate, req); err != nil {
		return core.ViewState{}, err
	}

	state := core.DefaultViewState().WithPageSize(s.cfg.View.DefaultPageSize)
	state = state.WithCriteria(core.FilterCriteria{
		Search:   req.Search,
		Hometown: req.Hometown,
		Grade:    core.Grade(req.Grade),
	})
	if req.Sort != "" || req.Dir != "" {
		key := req.Sort
		if key == "" {
			key = string(core.DefaultSort.Key)
		}
		spec, err := core.NewSortSpec(key, req.Dir)
		if err != nil {
			return core.ViewState{}, err
		}
		state = state.WithSort(spec)
	}
	if req.PageSize > 0 {
		state = state.WithPageSize(min(req.PageSize, s.cfg.View.MaxPageSize))
	}
	if req.Page > 0 {
		state = state.WithPage(req.Page)
	}
	return state, nil
}

func queryInt(raw, name string, errs core.FieldErrors) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		errs.Add(core.Field(name), "must be a whole number")
	}
	return n
}

// ----------------------------------------------------------------------------
// Import form
// ----------------------------------------------------------------------------

// importForm holds the optional switches sent with an upload.
type importForm struct {
	UpdateExisting string `form:"updateExisting" validate:"omitempty,boolean"`
	SkipInvalid    string `form:"skipInvalid" validate:"omitempty,boolean"`
}

// options resolves the switches against the configured defaults.
func (f importForm) options(def core.ImportOptions) core.ImportOptions {
	opts := def
	if b, err := strconv.ParseBool(f.UpdateExisting); err == nil {
		opts.UpdateExisting = b
	}
	if b, err := strconv.ParseBool(f.SkipInvalid); err == nil {
		opts.SkipInvalid = b
	}
	return opts
}

// readUpload reads the multipart "file" part and the import switches.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (string, string, core.ImportOptions, error) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+1<<16)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", "", core.ImportOptions{}, fmt.Errorf("%w: limit is %d bytes", errFileTooLarge, maxSize)
		}
		return "", "", core.ImportOptions{}, fmt.Errorf("%w: %w", errNoFile, err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return "", "", core.ImportOptions{}, errNoFile
	}
	defer file.Close()

	if header.Size > maxSize {
		return "", "", core.ImportOptions{}, fmt.Errorf("%w: %d bytes exceeds limit of %d", errFileTooLarge, header.Size, maxSize)
	}
	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		return "", "", core.ImportOptions{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > maxSize {
		return "", "", core.ImportOptions{}, fmt.Errorf("%w: limit is %d bytes", errFileTooLarge, maxSize)
	}

	form := importForm{
		UpdateExisting: r.FormValue("updateExisting"),
		SkipInvalid:    r.FormValue("skipInvalid"),
	}
	if err := checkStruct(s.validate, form); err != nil {
		return "", "", core.ImportOptions{}, err
	}
	defaults := core.ImportOptions{
		UpdateExisting: s.cfg.Import.UpdateExisting,
		SkipInvalid:    s.cfg.Import.SkipInvalid,
	}
	return header.Filename, string(data), form.options(defaults), nil
}

// ----------------------------------------------------------------------------
// Student bodies
// ----------------------------------------------------------------------------

// decodeCandidate reads a JSON object of raw field values. Numbers are
// accepted for scores; null and missing keys mean empty. Unknown keys are
// ignored.
func decodeCandidate(r *http.Request) (core.Candidate, error) {
	var raw map[string]any
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, invalidBody(err)
	}

	c := make(core.Candidate, len(core.Fields))
	bad := make(core.FieldErrors)
	for _, f := range core.Fields {
		switch v := raw[string(f)].(type) {
		case nil:
		case string:
			c[f] = v
		case json.Number:
			c[f] = v.String()
		default:
			bad.Add(f, "must be text or a number")
		}
	}
	if len(bad) > 0 {
		return nil, &core.ValidationFailedError{Errors: bad}
	}
	return c, nil
}

// validateRequest checks one field when Field is set, otherwise the whole
// candidate.
type validateRequest struct {
	Field     string            `json:"field" validate:"omitempty,studentfield"`
	Value     string            `json:"value"`
	Candidate map[string]string `json:"candidate" validate:"required_without=Field"`
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		return invalidBody(err)
	}
	return nil
}

func invalidBody(err error) error {
	return &core.ValidationFailedError{Errors: core.FieldErrors{"body": "must be a JSON object: " + err.Error()}}
}
