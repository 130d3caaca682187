// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package process

import (
	"bytes"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/creack/pty"
)

const (
	// drainTimeout bounds how long output is collected after the child
	// exited, since grandchildren may keep its streams open
	drainTimeout = 500 * time.Millisecond

	readBufferSize = 32 * 1024
)

type child struct {
	id   ChildID
	path string
	args []string
	cmd  *exec.Cmd
	opts Options
	cb   Callbacks

	// poll goroutine only
	started          bool
	hasSubprocs      bool
	subprocsKnown    bool
	lastSubprocCheck time.Time

	// stdin is written by writeStdin only; writeInput queues chunks
	stdinMu      sync.Mutex
	stdinCond    *sync.Cond
	stdin        io.WriteCloser
	stdinQueue   []stdinChunk
	stdinClosed  bool
	stdinStopped bool
	stdinErr     error
	ptmx         *os.File

	pumps   sync.WaitGroup
	closers []io.Closer

	mu         sync.Mutex
	stdout     bytes.Buffer
	stderr     bytes.Buffer
	readErr    error
	exited     bool
	exitStatus int

	terminated atomic.Bool
	done       chan struct{}
}

type stdinChunk struct {
	input string
	eof   bool
}

func newChild(id ChildID, path string, args []string, opts Options, cb Callbacks) *child {
	c := &child{
		id:   id,
		path: path,
		args: args,
		opts: opts,
		cb:   cb,
		done: make(chan struct{}),
	}
	c.stdinCond = sync.NewCond(&c.stdinMu)
	return c
}

func (c *child) start() error {
	cmd := exec.Command(c.path, c.args...)
	cmd.Env = c.opts.environ()
	dir, err := c.opts.workingDir()
	if err != nil {
		return err
	}
	cmd.Dir = dir
	cmd.SysProcAttr = sysProcAttr(c.opts)

	if c.opts.PreStart != nil {
		if err := c.opts.PreStart(cmd); err != nil {
			return err
		}
	}
	c.cmd = cmd

	if c.opts.Pty != nil {
		err = c.startPty()
	} else {
		err = c.startPipes()
	}
	if err != nil {
		return err
	}

	go c.writeStdin()
	go c.wait()
	return nil
}

func (c *child) startPty() error {
	ptmx, err := pty.StartWithSize(c.cmd, &pty.Winsize{
		Cols: uint16(c.opts.Pty.Cols),
		Rows: uint16(c.opts.Pty.Rows),
	})
	if err != nil {
		return err
	}
	c.ptmx = ptmx
	c.stdin = ptmx

	c.pumps.Add(1)
	go c.pump(ptmx, &c.stdout)
	return nil
}

func (c *child) startPipes() error {
	stdin, err := c.cmd.StdinPipe()
	if err != nil {
		return err
	}
	c.stdin = stdin

	// write ends belong to the child once it started
	var parentEnds []io.Closer
	closeAll := func(files []io.Closer) {
		for _, f := range files {
			f.Close()
		}
	}

	type stream struct {
		file string
		buf  *bytes.Buffer
		set  func(w *os.File)
	}
	streams := []stream{
		{c.opts.StdoutFile, &c.stdout, func(w *os.File) { c.cmd.Stdout = w }},
	}
	if !c.opts.RedirectStderrToStdout {
		streams = append(streams, stream{c.opts.StderrFile, &c.stderr, func(w *os.File) { c.cmd.Stderr = w }})
	}

	readers := make(map[*os.File]*bytes.Buffer)
	for _, s := range streams {
		if s.file != "" {
			path, err := expandPath(s.file)
			if err != nil {
				closeAll(parentEnds)
				return err
			}
			f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
			if err != nil {
				closeAll(parentEnds)
				return err
			}
			s.set(f)
			parentEnds = append(parentEnds, f)
			continue
		}

		r, w, err := os.Pipe()
		if err != nil {
			closeAll(parentEnds)
			return err
		}
		s.set(w)
		parentEnds = append(parentEnds, w)
		readers[r] = s.buf
		c.closers = append(c.closers, r)
	}
	if c.opts.RedirectStderrToStdout {
		c.cmd.Stderr = c.cmd.Stdout
	}

	err = c.cmd.Start()
	closeAll(parentEnds)
	if err != nil {
		closeAll(c.closers)
		return err
	}

	for r, buf := range readers {
		c.pumps.Add(1)
		go c.pump(r, buf)
	}
	return nil
}

func (c *child) pump(r io.Reader, buf *bytes.Buffer) {
	defer c.pumps.Done()

	b := make([]byte, readBufferSize)
	for {
		n, err := r.Read(b)
		if n > 0 {
			c.mu.Lock()
			buf.Write(b[:n])
			c.mu.Unlock()
		}
		if err != nil {
			if !isEndOfStream(err) {
				c.setReadErr(err)
			}
			return
		}
	}
}

// setReadErr records the first error reading the child's output.
func (c *child) setReadErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr == nil {
		c.readErr = err
	}
}

func isEndOfStream(err error) bool {
	// reading a pty fails with EIO once the terminal side is gone
	return errors.Is(err, io.EOF) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, syscall.EIO)
}

func (c *child) wait() {
	c.cmd.Wait()
	status := exitStatus(c.cmd.ProcessState, c.terminated.Load())
	c.stopStdin()

	drained := make(chan struct{})
	go func() {
		c.pumps.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(drainTimeout):
	}

	if c.ptmx != nil {
		c.ptmx.Close()
	}
	for _, cl := range c.closers {
		cl.Close()
	}

	c.mu.Lock()
	c.exited = true
	c.exitStatus = status
	c.mu.Unlock()

	close(c.done)
}

func exitStatus(ps *os.ProcessState, terminated bool) int {
	if ps == nil {
		return ExitUnknown
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		if terminated {
			return ExitTerminated
		}
		return exitSignalBase + int(ws.Signal())
	}
	if code := ps.ExitCode(); code >= 0 {
		return code
	}
	return ExitUnknown
}

type drained struct {
	stdout     string
	stderr     string
	readErr    error
	exited     bool
	exitStatus int
}

// drain takes buffered output. Exit is only reported once all output
// collected before it has been taken.
func (c *child) drain() drained {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := drained{
		stdout:     c.stdout.String(),
		stderr:     c.stderr.String(),
		readErr:    c.readErr,
		exited:     c.exited,
		exitStatus: c.exitStatus,
	}
	c.stdout.Reset()
	c.stderr.Reset()
	c.readErr = nil

	return d
}

func (c *child) hasExited() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exited
}

func (c *child) pid() int {
	return c.cmd.Process.Pid
}

// writeInput queues input for the child's stdin and returns without
// waiting for the child to read it. Errors of earlier writes are
// returned by later calls.
func (c *child) writeInput(input string, eof bool) error {
	c.stdinMu.Lock()
	defer c.stdinMu.Unlock()

	if c.stdinErr != nil {
		return c.stdinErr
	}
	if c.stdinClosed || c.stdinStopped {
		return ErrStdinClosed
	}
	if input == "" && !eof {
		return nil
	}

	c.stdinQueue = append(c.stdinQueue, stdinChunk{input: input, eof: eof})
	c.stdinClosed = eof
	c.stdinCond.Signal()
	return nil
}

// writeStdin feeds queued input to the child until eof is written or
// the child exited.
func (c *child) writeStdin() {
	for {
		c.stdinMu.Lock()
		for len(c.stdinQueue) == 0 && !c.stdinStopped {
			c.stdinCond.Wait()
		}
		if c.stdinStopped {
			c.stdinQueue = nil
			c.stdinMu.Unlock()
			return
		}
		chunk := c.stdinQueue[0]
		c.stdinQueue = c.stdinQueue[1:]
		c.stdinMu.Unlock()

		err := c.writeChunk(chunk)
		if err != nil {
			c.stdinMu.Lock()
			c.stdinErr = err
			c.stdinQueue = nil
			c.stdinMu.Unlock()
			return
		}
		if chunk.eof {
			return
		}
	}
}

func (c *child) writeChunk(chunk stdinChunk) error {
	if chunk.input != "" {
		if _, err := io.WriteString(c.stdin, chunk.input); err != nil {
			return err
		}
	}
	if !chunk.eof {
		return nil
	}
	if c.ptmx != nil {
		_, err := io.WriteString(c.stdin, "\x04")
		return err
	}
	return c.stdin.Close()
}

// stopStdin discards pending input once the child exited. A write
// blocked on a full pipe or pty fails once wait closes it.
func (c *child) stopStdin() {
	c.stdinMu.Lock()
	defer c.stdinMu.Unlock()
	c.stdinStopped = true
	c.stdinCond.Broadcast()
}

func (c *child) resize(cols, rows int) error {
	if c.ptmx == nil {
		return ErrNotPty
	}
	return pty.Setsize(c.ptmx, &pty.Winsize{
		Cols: uint16(cols),
		Rows: uint16(rows),
	})
}

func (c *child) interrupt() error {
	if c.ptmx != nil {
		_, err := io.WriteString(c.ptmx, "\x03")
		return err
	}
	return interruptChild(c.pid(), c.opts.ownGroup())
}

func (c *child) terminate() error {
	if c.hasExited() {
		return nil
	}
	c.terminated.Store(true)
	return terminateChild(c.pid(), c.opts.TerminateChildren, c.opts.Pty != nil)
}
