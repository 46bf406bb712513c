// Command studentctl works against a student store from the terminal. Every
// command loads the full working set first, then filters, summarises, exports
// or imports the same way the web service does.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/gradebook/internal/core"
)

const (
	exitFailure    = 1
	exitUsage      = 2
	exitStore      = 3
	exitValidation = 4
)

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitFailure
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		msg := err.Error()
		if core.IsUserFacing(err) {
			msg = core.FormatUserError(err)
		}
		fmt.Fprintln(os.Stderr, "error:", msg)
		stop()
		os.Exit(exitCode(err))
	}
}
