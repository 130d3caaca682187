// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package rpc

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrRegistryFrozen = errors.New("registry is frozen")

type DuplicateMethodErr struct {
	Name string
}

func (e *DuplicateMethodErr) Error() string {
	return fmt.Sprintf("method %q is already registered", e.Name)
}

// Registry maps method names to handlers. It is populated at startup
// and frozen before any request is dispatched.
type Registry struct {
	mu      sync.RWMutex
	methods map[string]Method
	frozen  bool
}

func NewRegistry() *Registry {
	return &Registry{
		methods: make(map[string]Method),
	}
}

func (r *Registry) Register(name string, m Method) error {
	if name == "" {
		return errors.New("method name must not be empty")
	}
	if !m.valid() {
		return fmt.Errorf("method %q: missing handler", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("%w: cannot register %q", ErrRegistryFrozen, name)
	}
	if _, ok := r.methods[name]; ok {
		return &DuplicateMethodErr{Name: name}
	}
	r.methods[name] = m

	return nil
}

func (r *Registry) RegisterSync(name string, fn Func) error {
	return r.Register(name, Sync(fn))
}

// RegisterAsync registers fn with direct or indirect return.
func (r *Registry) RegisterAsync(name string, direct bool, fn AsyncFunc) error {
	if direct {
		return r.Register(name, AsyncDirect(fn))
	}
	return r.Register(name, AsyncIndirect(fn))
}

func (r *Registry) Lookup(name string) (Method, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.methods[name]
	return m, ok
}

// Names returns the sorted names of all registered methods.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}
