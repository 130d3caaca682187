// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package handlers

import (
	"strings"
	"sync"

	"github.com/hashicorp/sessionrpc/internal/process"
)

const consoleTailSize = 4096

type processOutput struct {
	stdout     strings.Builder
	stderr     strings.Builder
	tail       string
	exited     bool
	exitStatus int
}

// outputStore buffers output of started processes until it is
// fetched by process_output.
type outputStore struct {
	mu      sync.Mutex
	entries map[process.ChildID]*processOutput
}

func newOutputStore() *outputStore {
	return &outputStore{
		entries: make(map[process.ChildID]*processOutput),
	}
}

func (s *outputStore) entry(id process.ChildID) *processOutput {
	e, ok := s.entries[id]
	if !ok {
		e = &processOutput{}
		s.entries[id] = e
	}
	return e
}

func (s *outputStore) track(id process.ChildID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry(id)
}

func (s *outputStore) appendStdout(id process.ChildID, output string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(id)
	e.stdout.WriteString(output)
	e.tail = tail(e.tail + output)
}

func (s *outputStore) appendStderr(id process.ChildID, output string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(id)
	e.stderr.WriteString(output)
	e.tail = tail(e.tail + output)
}

func (s *outputStore) exit(id process.ChildID, exitStatus int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entry(id)
	e.exited = true
	e.exitStatus = exitStatus
}

func (s *outputStore) consoleTail(id process.ChildID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		return e.tail
	}
	return ""
}

// take returns and clears buffered output. Entries of exited
// processes are dropped once taken.
func (s *outputStore) take(id process.ChildID) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	out := map[string]any{
		"stdout": e.stdout.String(),
		"stderr": e.stderr.String(),
		"exited": e.exited,
	}
	if e.exited {
		out["exit_status"] = e.exitStatus
		delete(s.entries, id)
	}
	e.stdout.Reset()
	e.stderr.Reset()

	return out, true
}

func tail(s string) string {
	if len(s) > consoleTailSize {
		return s[len(s)-consoleTailSize:]
	}
	return s
}

// callbacks buffer output of the process in s.
func (s *outputStore) callbacks() process.Callbacks {
	return process.Callbacks{
		OnStdout: func(ops process.Operations, output string) {
			s.appendStdout(ops.ID(), output)
		},
		OnStderr: func(ops process.Operations, output string) {
			s.appendStderr(ops.ID(), output)
		},
	}
}
