// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/hashicorp/go-multierror"
)

const (
	ExitSuccess = 0
	// ExitTerminated is reported for children terminated
	// by the supervisor
	ExitTerminated = 15
	// ExitUnknown is reported when the status cannot be determined
	ExitUnknown = -1

	// children killed by a signal the supervisor did not send report
	// exitSignalBase plus the signal number, as shells do
	exitSignalBase = 128

	snapshotTailSize = 2048
)

// Supervisor runs child processes and reports on them through
// callbacks. It makes progress only when Poll is called.
type Supervisor struct {
	logger *log.Logger

	mu       sync.Mutex
	children map[ChildID]*child
	nextID   ChildID

	// pollMu serializes polls so that callbacks of one child
	// never run concurrently
	pollMu sync.Mutex

	subprocsFunc SubprocsFunc
}

var discardLogs = log.New(io.Discard, "", 0)

func NewSupervisor() *Supervisor {
	return &Supervisor{
		logger:       discardLogs,
		children:     make(map[ChildID]*child),
		subprocsFunc: hasSubprocesses,
	}
}

func (s *Supervisor) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// SetSubprocsFunc replaces the subprocess detection, mainly for tests.
func (s *Supervisor) SetSubprocsFunc(fn SubprocsFunc) {
	s.subprocsFunc = fn
}

// RunProgram starts exe with args. Callbacks fire from subsequent
// calls to Poll, starting with OnStarted.
func (s *Supervisor) RunProgram(exe string, args []string, opts Options, cb Callbacks) (ChildID, error) {
	if exe == "" {
		return 0, errors.New("no executable given")
	}
	if err := opts.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.mu.Unlock()

	c := newChild(id, exe, args, opts, cb)
	if err := c.start(); err != nil {
		return 0, &SpawnError{Path: exe, Err: err}
	}

	s.mu.Lock()
	s.children[id] = c
	s.mu.Unlock()

	s.logger.Printf("started %s %q (pid %d) as child %d", exe, args, c.pid(), id)

	return id, nil
}

// RunCommand runs command with the shell from opts (default /bin/sh).
func (s *Supervisor) RunCommand(command string, opts Options, cb Callbacks) (ChildID, error) {
	shell := opts.Shell
	if shell == "" {
		shell = defaultShell
	}
	return s.RunProgram(shell, []string{"-c", command}, opts, cb)
}

// RunTerminal starts an interactive shell attached to a pty.
func (s *Supervisor) RunTerminal(opts Options, cb Callbacks) (ChildID, error) {
	if opts.Pty == nil {
		opts.Pty = &PtyOptions{Cols: 80, Rows: 25}
	}
	return s.RunProgram(terminalShell(opts.Shell), []string{"-i"}, opts, cb)
}

func terminalShell(shell string) string {
	if shell != "" {
		return shell
	}
	if env := os.Getenv("SHELL"); env != "" {
		return env
	}
	if path, err := exec.LookPath("bash"); err == nil {
		return path
	}
	return defaultShell
}

// Operations returns the handle of a supervised child.
func (s *Supervisor) Operations(id ChildID) (Operations, error) {
	if _, err := s.lookup(id); err != nil {
		return Operations{}, err
	}
	return Operations{sup: s, id: id}, nil
}

func (s *Supervisor) lookup(id ChildID) (*child, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.children[id]
	if !ok {
		return nil, fmt.Errorf("child %d: %w", id, ErrProcessNotFound)
	}
	return c, nil
}

func (s *Supervisor) snapshot() []*child {
	s.mu.Lock()
	defer s.mu.Unlock()

	children := make([]*child, 0, len(s.children))
	for _, c := range s.children {
		children = append(children, c)
	}
	sort.Slice(children, func(i, j int) bool {
		return children[i].id < children[j].id
	})
	return children
}

func (s *Supervisor) remove(id ChildID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.children, id)
}

// Poll delivers output, exit and subprocess notifications of all
// children. It returns whether any child is still supervised.
func (s *Supervisor) Poll() bool {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	for _, c := range s.snapshot() {
		if s.pollChild(c) {
			s.remove(c.id)
		}
	}

	return s.HasRunningChildren()
}

// pollChild returns true once the child has exited and been reported.
func (s *Supervisor) pollChild(c *child) bool {
	ops := Operations{sup: s, id: c.id}

	if !c.started {
		c.started = true
		if c.cb.OnStarted != nil {
			c.cb.OnStarted(ops)
		}
	}

	d := c.drain()
	if d.stdout != "" && c.cb.OnStdout != nil {
		c.cb.OnStdout(ops, d.stdout)
	}
	if d.stderr != "" && c.cb.OnStderr != nil {
		c.cb.OnStderr(ops, d.stderr)
	}

	if d.readErr != nil && !d.exited {
		if c.cb.OnError != nil {
			c.cb.OnError(ops, d.readErr)
		} else {
			s.logger.Printf("child %d (%s): I/O error: %s", c.id, c.path, d.readErr)
			s.logSnapshot(c)
			if err := c.terminate(); err != nil {
				s.logger.Printf("child %d: failed to terminate: %s", c.id, err)
			}
		}
	}

	if d.exited {
		s.logger.Printf("child %d (%s) exited with status %d", c.id, c.path, d.exitStatus)
		if c.cb.OnExit != nil {
			c.cb.OnExit(d.exitStatus)
		}
		return true
	}

	if c.cb.OnContinue != nil && !c.cb.OnContinue(ops) {
		if err := c.terminate(); err != nil {
			s.logger.Printf("child %d: failed to terminate: %s", c.id, err)
		}
	}

	if c.opts.ReportHasSubprocs && c.cb.OnHasSubprocs != nil {
		s.checkSubprocs(c)
	}

	return false
}

func (s *Supervisor) checkSubprocs(c *child) {
	now := time.Now()
	if c.subprocsKnown && now.Sub(c.lastSubprocCheck) < c.opts.subprocPollInterval() {
		return
	}
	c.lastSubprocCheck = now

	has, err := s.subprocsFunc(c.pid())
	if err != nil {
		s.logger.Printf("child %d: failed to check subprocesses: %s", c.id, err)
		return
	}
	if c.subprocsKnown && has == c.hasSubprocs {
		return
	}
	c.subprocsKnown = true
	c.hasSubprocs = has
	c.cb.OnHasSubprocs(has)
}

func (s *Supervisor) logSnapshot(c *child) {
	if c.cb.OnConsoleOutputSnapshot == nil {
		return
	}
	out := stripansi.Strip(c.cb.OnConsoleOutputSnapshot())
	if len(out) > snapshotTailSize {
		out = out[len(out)-snapshotTailSize:]
	}
	s.logger.Printf("child %d: recent console output:\n%s", c.id, strings.TrimSpace(out))
}

func (s *Supervisor) HasRunningChildren() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.children) > 0
}

// TerminateAll terminates every supervised child.
func (s *Supervisor) TerminateAll() error {
	var result *multierror.Error
	for _, c := range s.snapshot() {
		if err := c.terminate(); err != nil {
			result = multierror.Append(result, fmt.Errorf("child %d: %w", c.id, err))
		}
	}
	return result.ErrorOrNil()
}

// Wait polls every interval until no children remain, returning
// false if that takes longer than maxWait or ctx is cancelled.
func (s *Supervisor) Wait(ctx context.Context, interval, maxWait time.Duration) bool {
	deadline := time.Now().Add(maxWait)
	for {
		if !s.Poll() {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(interval):
		}
	}
}

// Run polls every interval until ctx is done.
func (s *Supervisor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Poll()
		}
	}
}
