// Package templates renders the HTML fragments returned to HTMX clients.
package templates

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// ErrorAlert renders a dismissible error box with an optional suggested
// action and the error code.
func ErrorAlert(message, action, code string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<div class="alert alert-error" role="alert"><p class="alert-message">`+
			templ.EscapeString(message)+`</p>`)
		if err != nil {
			return err
		}
		if action != "" {
			if _, err := io.WriteString(w, `<p class="alert-action">`+templ.EscapeString(action)+`</p>`); err != nil {
				return err
			}
		}
		_, err = io.WriteString(w, `<span class="alert-code">`+templ.EscapeString(code)+`</span></div>`)
		return err
	})
}

// FieldErrorList renders one list item per field error, in the given order.
func FieldErrorList(fields, messages []string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if len(fields) == 0 {
			return nil
		}
		if _, err := io.WriteString(w, `<ul class="field-errors">`); err != nil {
			return err
		}
		for i, f := range fields {
			item := `<li data-field="` + templ.EscapeString(f) + `">` + templ.EscapeString(messages[i]) + `</li>`
			if _, err := io.WriteString(w, item); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</ul>`)
		return err
	})
}
