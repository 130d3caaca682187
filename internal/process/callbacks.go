// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package process

// ChildID identifies a supervised child for its whole lifetime.
// IDs are never reused by a supervisor.
type ChildID uint64

// Callbacks are invoked from Poll. Every field is optional.
//
// For a single child the order is OnStarted, then any number of
// OnStdout, OnStderr, OnContinue and OnHasSubprocs, then exactly
// one OnExit.
type Callbacks struct {
	OnStarted func(ops Operations)

	// OnContinue is asked on every poll whether the child should keep
	// running. Returning false terminates it.
	OnContinue func(ops Operations) bool

	OnStdout func(ops Operations, output string)
	OnStderr func(ops Operations, output string)

	// OnConsoleOutputSnapshot returns recent console output for
	// diagnostics when a terminal fails
	OnConsoleOutputSnapshot func() string

	// OnError is called on I/O errors. Without it the error is
	// logged and the child terminated.
	OnError func(ops Operations, err error)

	OnExit func(exitStatus int)

	// OnHasSubprocs is called when the child starts or stops having
	// subprocesses. It requires Options.ReportHasSubprocs.
	OnHasSubprocs func(hasSubprocs bool)
}

// Operations act on one supervised child. They stay safe to use after
// the child is gone, returning ErrProcessNotFound.
type Operations struct {
	sup *Supervisor
	id  ChildID
}

func (o Operations) ID() ChildID {
	return o.id
}

// WriteInput writes input to the child's stdin. With eof set stdin
// is closed afterwards (or ^D sent on a pty).
func (o Operations) WriteInput(input string, eof bool) error {
	c, err := o.sup.lookup(o.id)
	if err != nil {
		return err
	}
	return c.writeInput(input, eof)
}

func (o Operations) PtyResize(cols, rows int) error {
	c, err := o.sup.lookup(o.id)
	if err != nil {
		return err
	}
	if err := ValidatePtySize(cols, rows); err != nil {
		return err
	}
	return c.resize(cols, rows)
}

// PtyInterrupt sends ^C to a pty child and SIGINT to any other.
func (o Operations) PtyInterrupt() error {
	c, err := o.sup.lookup(o.id)
	if err != nil {
		return err
	}
	return c.interrupt()
}

func (o Operations) Terminate() error {
	c, err := o.sup.lookup(o.id)
	if err != nil {
		return err
	}
	return c.terminate()
}

func (o Operations) PID() (int, error) {
	c, err := o.sup.lookup(o.id)
	if err != nil {
		return 0, err
	}
	return c.pid(), nil
}

// Alive reports whether the child is supervised and has not exited.
func (o Operations) Alive() bool {
	c, err := o.sup.lookup(o.id)
	if err != nil {
		return false
	}
	return !c.hasExited()
}
