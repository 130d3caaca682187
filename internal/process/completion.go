// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package process

import (
	"strings"
)

// Result is the outcome of a child run to completion.
type Result struct {
	StdOut     string
	StdErr     string
	ExitStatus int
}

// Err returns an *ExitError for non-zero exit statuses.
func (r Result) Err(path string, args []string) error {
	if r.ExitStatus == ExitSuccess {
		return nil
	}
	return &ExitError{Path: path, Args: args, Result: r}
}

type CompletedFunc func(Result)

// RunProgramResult runs exe, writing input to its stdin, and calls
// onCompleted exactly once with the collected output.
func (s *Supervisor) RunProgramResult(exe string, args []string, input string, opts Options, onCompleted CompletedFunc) (ChildID, error) {
	return s.RunProgram(exe, args, opts, s.completionCallbacks(input, onCompleted))
}

// RunCommandResult is RunProgramResult for a shell command.
func (s *Supervisor) RunCommandResult(command string, input string, opts Options, onCompleted CompletedFunc) (ChildID, error) {
	return s.RunCommand(command, opts, s.completionCallbacks(input, onCompleted))
}

// completionCallbacks collects output for onCompleted. All callbacks
// run on the polling goroutine, so the builders need no locking.
func (s *Supervisor) completionCallbacks(input string, onCompleted CompletedFunc) Callbacks {
	var stdout, stderr strings.Builder
	completed := false

	return Callbacks{
		OnStarted: func(ops Operations) {
			if input == "" {
				return
			}
			if err := ops.WriteInput(input, true); err != nil {
				s.logger.Printf("child %d: failed to write input: %s", ops.ID(), err)
			}
		},
		OnStdout: func(_ Operations, output string) {
			stdout.WriteString(output)
		},
		OnStderr: func(_ Operations, output string) {
			stderr.WriteString(output)
		},
		OnExit: func(exitStatus int) {
			if completed {
				return
			}
			completed = true
			onCompleted(Result{
				StdOut:     stdout.String(),
				StdErr:     stderr.String(),
				ExitStatus: exitStatus,
			})
		},
	}
}
