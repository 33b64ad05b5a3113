// vectordb-ingest runs batch ingestion against the landmark vector
// index: it streams landmarks from the catalog or an explicit list,
// processes each through the PDF or Wikipedia pipeline, and reports a
// run summary.
//
// Exit codes: 0 when at least one landmark succeeded (or there was
// nothing to do), 1 when every attempted landmark failed or the run
// aborted, 2 on configuration or usage errors.
package main

import (
	"errors"
	"fmt"
	"os"
)

// exitError carries a process exit code up to main.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageErr(format string, args ...any) error {
	return &exitError{code: 2, err: fmt.Errorf(format, args...)}
}

func configErr(err error) error {
	return &exitError{code: 2, err: err}
}

func runErr(err error) error {
	return &exitError{code: 1, err: err}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		code := 1
		var ee *exitError
		if errors.As(err, &ee) {
			code = ee.code
		}
		os.Exit(code)
	}
}
