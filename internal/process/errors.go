// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package process

import (
	"errors"
	"fmt"

	"github.com/acarl005/stripansi"
)

var (
	ErrProcessNotFound = errors.New("process not found")
	ErrNotPty          = errors.New("process is not attached to a pty")
	ErrStdinClosed     = errors.New("stdin already closed")
)

// Category is the error category of process failures.
const Category = "process"

// ExitError reports a child which exited with a non-zero status.
type ExitError struct {
	Path   string
	Args   []string
	Result Result
}

func (e *ExitError) Error() string {
	if e.Result.ExitStatus == ExitTerminated {
		return fmt.Sprintf("%s %q was terminated\nstdout: %q\nstderr: %q",
			e.Path, e.Args,
			stripansi.Strip(e.Result.StdOut),
			stripansi.Strip(e.Result.StdErr))
	}
	return fmt.Sprintf("%s %q exited (code %d)\nstdout: %q\nstderr: %q",
		e.Path, e.Args, e.Result.ExitStatus,
		stripansi.Strip(e.Result.StdOut),
		stripansi.Strip(e.Result.StdErr))
}

func (e *ExitError) Category() string {
	return Category
}

func (e *ExitError) ErrorCode() int {
	return e.Result.ExitStatus
}

func (e *ExitError) Properties() map[string]any {
	return map[string]any{
		"stdout": stripansi.Strip(e.Result.StdOut),
		"stderr": stripansi.Strip(e.Result.StdErr),
	}
}

func (e *ExitError) Terminated() bool {
	return e.Result.ExitStatus == ExitTerminated
}

// SpawnError reports a child which could not be started.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start %s: %s", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}
