// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package rpc

import (
	"context"

	"github.com/hashicorp/sessionrpc/internal/jsonrpc"
)

// Func is a synchronous method. It populates resp on success
// and returns an error otherwise.
type Func func(ctx context.Context, req *jsonrpc.Request, resp *jsonrpc.Response) error

// AsyncFunc is an asynchronous method. It may return before the work
// is finished but must eventually complete cont.
type AsyncFunc func(ctx context.Context, req *jsonrpc.Request, cont *Continuation)

type Kind int

const (
	KindSync Kind = iota
	// KindAsyncDirect holds the transport until the continuation fires
	KindAsyncDirect
	// KindAsyncIndirect replies with an async handle straight away
	KindAsyncIndirect
)

func (k Kind) String() string {
	switch k {
	case KindSync:
		return "sync"
	case KindAsyncDirect:
		return "async-direct"
	case KindAsyncIndirect:
		return "async-indirect"
	}
	return "<unknown>"
}

// Method is a registered method handler of one of the three kinds.
type Method struct {
	kind  Kind
	sync  Func
	async AsyncFunc
}

func Sync(fn Func) Method {
	return Method{kind: KindSync, sync: fn}
}

func AsyncDirect(fn AsyncFunc) Method {
	return Method{kind: KindAsyncDirect, async: fn}
}

func AsyncIndirect(fn AsyncFunc) Method {
	return Method{kind: KindAsyncIndirect, async: fn}
}

func (m Method) Kind() Kind {
	return m.kind
}

func (m Method) IsAsync() bool {
	return m.kind != KindSync
}

func (m Method) valid() bool {
	if m.kind == KindSync {
		return m.sync != nil
	}
	return m.async != nil
}

// AsyncFunc returns the method as an AsyncFunc, adapting
// synchronous methods.
func (m Method) AsyncFunc() AsyncFunc {
	if m.kind == KindSync {
		return AdaptToAsync(m.sync)
	}
	return m.async
}

// AdaptToAsync runs fn inline and completes the continuation
// with its outcome.
func AdaptToAsync(fn Func) AsyncFunc {
	return func(ctx context.Context, req *jsonrpc.Request, cont *Continuation) {
		resp := jsonrpc.NewResponse()
		err := fn(ctx, req, resp)
		cont.Complete(err, resp)
	}
}

// AdaptMethodToAsync turns a synchronous method into a direct
// asynchronous one. Asynchronous methods are returned as they are.
func AdaptMethodToAsync(m Method) Method {
	if m.kind != KindSync {
		return m
	}
	return AsyncDirect(AdaptToAsync(m.sync))
}
