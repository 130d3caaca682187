// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package rpc

import (
	"context"
	"fmt"
	"io"
	"log"

	lsctx "github.com/hashicorp/sessionrpc/internal/context"
	"github.com/hashicorp/sessionrpc/internal/jsonrpc"
	"github.com/hashicorp/sessionrpc/internal/state"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/hashicorp/sessionrpc/internal/rpc"

// ReplyFunc receives the response of a dispatched request.
type ReplyFunc func(resp *jsonrpc.Response)

// Dispatcher routes requests to the methods of a registry.
type Dispatcher struct {
	registry *Registry
	calls    *state.AsyncCallStore
	logger   *log.Logger
}

var discardLogs = log.New(io.Discard, "", 0)

// NewDispatcher returns a dispatcher for registry. calls records the
// outcome of methods with indirect return and may be nil if there
// are none.
func NewDispatcher(registry *Registry, calls *state.AsyncCallStore) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		calls:    calls,
		logger:   discardLogs,
	}
}

func (d *Dispatcher) SetLogger(logger *log.Logger) {
	d.logger = logger
}

func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch invokes the method named by req. reply is called exactly
// once: with the method's response for sync and direct async methods,
// or with an async handle for methods with indirect return, whose
// eventual response is stored under that handle.
func (d *Dispatcher) Dispatch(ctx context.Context, req *jsonrpc.Request, reply ReplyFunc) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "rpc:"+req.Method,
		trace.WithAttributes(attribute.KeyValue{
			Key:   attribute.Key("Method"),
			Value: attribute.StringValue(req.Method),
		}, attribute.KeyValue{
			Key:   attribute.Key("Background"),
			Value: attribute.BoolValue(req.IsBackgroundConnection),
		}))
	ctx = lsctx.WithRPCMethod(ctx, req.Method)
	ctx = lsctx.WithSourceWindow(ctx, req.SourceWindow)

	m, ok := d.registry.Lookup(req.Method)
	if !ok {
		d.logger.Printf("method not found: %q", req.Method)
		resp := jsonrpc.NewResponse()
		resp.SetCodeError(jsonrpc.MethodNotFound, nil)
		d.finish(span, req, resp)
		reply(resp)
		return
	}
	span.SetAttributes(attribute.String("Kind", m.Kind().String()))

	switch m.kind {
	case KindSync:
		resp := jsonrpc.NewResponse()
		err := m.sync(ctx, req, resp)
		if err != nil {
			resp.SetError(err, jsonrpc.ErrorOptions{})
		}
		d.finish(span, req, resp)
		reply(resp)

	case KindAsyncDirect:
		cont := d.newContinuation(req.Method, func(resp *jsonrpc.Response) {
			d.finish(span, req, resp)
			reply(resp)
		})
		m.async(ctx, req, cont)

	case KindAsyncIndirect:
		resp := jsonrpc.NewResponse()
		if d.calls == nil {
			resp.SetCodeError(jsonrpc.Unavailable, nil)
			d.finish(span, req, resp)
			reply(resp)
			return
		}
		handle, err := d.calls.Begin(req.Method)
		if err != nil {
			resp.SetError(err, jsonrpc.ErrorOptions{})
			d.finish(span, req, resp)
			reply(resp)
			return
		}
		span.SetAttributes(attribute.String("AsyncHandle", handle))

		cont := d.newContinuation(req.Method, func(resp *jsonrpc.Response) {
			d.finish(span, req, resp)
			err := d.calls.Complete(handle, resp.Raw())
			if err != nil {
				d.logger.Printf("failed to store response of %q (%s): %s",
					req.Method, handle, err)
			}
			// the stored response is as far as indirect delivery goes
			resp.RunAfterResponse()
		})

		resp.SetAsyncHandle(handle)
		resp.SetSuppressDetectChanges(req.IsBackgroundConnection)
		reply(resp)

		// the transport may cancel ctx as soon as it has replied
		m.async(context.WithoutCancel(ctx), req, cont)
	}
}

// Call dispatches req and waits for the reply. If ctx is done first
// a TransmissionError response is returned, since it is unknown how
// far the method got.
func (d *Dispatcher) Call(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	ch := make(chan *jsonrpc.Response, 1)
	d.Dispatch(ctx, req, func(resp *jsonrpc.Response) {
		ch <- resp
	})

	select {
	case resp := <-ch:
		return resp
	case <-ctx.Done():
		resp := jsonrpc.NewResponse()
		resp.SetError(jsonrpc.NewError(jsonrpc.TransmissionError, ctx.Err()),
			jsonrpc.ErrorOptions{})
		return resp
	}
}

func (d *Dispatcher) newContinuation(method string, deliver ReplyFunc) *Continuation {
	cont := NewContinuation(func(err error, resp *jsonrpc.Response) {
		if err != nil {
			resp.SetError(err, jsonrpc.ErrorOptions{})
		}
		deliver(resp)
	})
	cont.method = method
	cont.logger = d.logger
	return cont
}

func (d *Dispatcher) finish(span trace.Span, req *jsonrpc.Request, resp *jsonrpc.Response) {
	resp.SetSuppressDetectChanges(req.IsBackgroundConnection)

	if obj, ok := resp.ErrorObject(); ok {
		span.SetStatus(codes.Error, fmt.Sprintf("%v", obj["message"]))
	} else {
		span.SetStatus(codes.Ok, "ok")
	}
	span.End()
}
