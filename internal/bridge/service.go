// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"

	"github.com/creachadair/jrpc2"
	rpch "github.com/creachadair/jrpc2/handler"
	lsctx "github.com/hashicorp/sessionrpc/internal/context"
	"github.com/hashicorp/sessionrpc/internal/jsonrpc"
	"github.com/hashicorp/sessionrpc/internal/rpc"
)

type service struct {
	logger *log.Logger

	sessCtx     context.Context
	stopSession context.CancelFunc

	dispatcher *rpc.Dispatcher
}

var discardLogs = log.New(io.Discard, "", 0)

func newService(srvCtx context.Context, d *rpc.Dispatcher, logger *log.Logger) *service {
	sessCtx, stopSession := context.WithCancel(srvCtx)
	return &service{
		logger:      logger,
		sessCtx:     sessCtx,
		stopSession: stopSession,
		dispatcher:  d,
	}
}

// Assigner maps every registered method to the dispatcher.
// Unknown methods are rejected by jrpc2 itself.
func (svc *service) Assigner() (jrpc2.Assigner, error) {
	svc.logger.Println("Preparing new bridge session ...")

	names := svc.dispatcher.Registry().Names()
	m := make(map[string]rpch.Func, len(names))
	for _, name := range names {
		m[name] = svc.handle
	}

	return convertMap(m), nil
}

func convertMap(m map[string]rpch.Func) rpch.Map {
	hm := make(rpch.Map, len(m))

	for method, fun := range m {
		hm[method] = rpch.New(fun)
	}

	return hm
}

func (svc *service) Finish(_ jrpc2.Assigner, status jrpc2.ServerStatus) {
	if status.Closed || status.Err != nil {
		svc.logger.Printf("bridge session stopped unexpectedly (err: %v)", status.Err)
	}
	svc.stopSession()
}

func (svc *service) handle(ctx context.Context, req *jrpc2.Request) (interface{}, error) {
	r, err := toRequest(req)
	if err != nil {
		resp := jsonrpc.NewResponse()
		resp.SetError(err, jsonrpc.ErrorOptions{})
		return fromResponse(resp)
	}

	resp := svc.dispatcher.Call(svc.withServerValues(ctx), r)
	// jrpc2 writes the reply once this returns
	defer resp.RunAfterResponse()

	return fromResponse(resp)
}

// withServerValues carries values of the server context over to
// the request context, which jrpc2 derives on its own.
func (svc *service) withServerValues(ctx context.Context) context.Context {
	if quit, err := lsctx.QuitFunc(svc.sessCtx); err == nil {
		ctx = lsctx.WithQuitFunc(ctx, quit)
	}
	if v, ok := lsctx.ServerVersion(svc.sessCtx); ok {
		ctx = lsctx.WithServerVersion(ctx, v)
	}
	return ctx
}

// toRequest maps positional params to params and named params
// to kwparams.
func toRequest(req *jrpc2.Request) (*jsonrpc.Request, error) {
	envelope := map[string]any{
		"method": req.Method(),
	}

	if req.HasParams() {
		var raw json.RawMessage
		err := req.UnmarshalParams(&raw)
		if err != nil {
			return nil, jsonrpc.NewError(jsonrpc.ParseError, err)
		}

		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var params any
		err = dec.Decode(&params)
		if err != nil {
			return nil, jsonrpc.NewError(jsonrpc.ParseError, err)
		}

		if kwparams, ok := params.(map[string]any); ok {
			envelope["kwparams"] = kwparams
		} else {
			envelope["params"] = params
		}
	}

	return jsonrpc.ParseRequestValue(envelope)
}

// fromResponse returns the result of resp, or a jrpc2 error with the
// code of the response and its error object as data.
func fromResponse(resp *jsonrpc.Response) (interface{}, error) {
	if obj, ok := resp.ErrorObject(); ok {
		var rpcErr *jsonrpc.Error
		if !errors.As(resp.Err(), &rpcErr) {
			return nil, resp.Err()
		}
		data, err := json.Marshal(obj)
		if err != nil {
			return nil, err
		}
		return nil, &jrpc2.Error{
			Code:    jrpc2.Code(rpcErr.Code),
			Message: rpcErr.Message,
			Data:    data,
		}
	}

	if handle, ok := resp.AsyncHandle(); ok {
		return map[string]any{"asyncHandle": handle}, nil
	}

	return resp.Result(), nil
}
