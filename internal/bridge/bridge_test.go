// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/creachadair/jrpc2/server"
	"github.com/hashicorp/sessionrpc/internal/jsonrpc"
	"github.com/hashicorp/sessionrpc/internal/rpc"
	"github.com/hashicorp/sessionrpc/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T) *rpc.Dispatcher {
	t.Helper()
	ss, err := state.NewStateStore()
	require.NoError(t, err)

	r := rpc.NewRegistry()
	require.NoError(t, r.RegisterSync("echo", func(ctx context.Context, req *jsonrpc.Request, resp *jsonrpc.Response) error {
		v, err := jsonrpc.ReadParamAs[any](req.Params, 0)
		if err != nil {
			return err
		}
		resp.SetResult(v)
		return nil
	}))
	require.NoError(t, r.RegisterSync("greet", func(ctx context.Context, req *jsonrpc.Request, resp *jsonrpc.Response) error {
		var name string
		if err := jsonrpc.ReadObject(req.KWParams, "name", &name); err != nil {
			return err
		}
		resp.SetResult("hello " + name)
		return nil
	}))
	require.NoError(t, r.RegisterAsync("later", false, func(ctx context.Context, req *jsonrpc.Request, cont *rpc.Continuation) {
		go cont.Result("done")
	}))
	r.Freeze()

	return rpc.NewDispatcher(r, ss.AsyncCalls)
}

func newLocal(t *testing.T) server.Local {
	t.Helper()
	svc := newService(context.Background(), newTestDispatcher(t), discardLogs)
	assigner, err := svc.Assigner()
	require.NoError(t, err)

	loc := server.NewLocal(assigner, nil)
	t.Cleanup(func() {
		loc.Close()
	})
	return loc
}

func TestBridge_positionalParams(t *testing.T) {
	loc := newLocal(t)

	rsp, err := loc.Client.Call(context.Background(), "echo", []any{"hi"})
	require.NoError(t, err)

	var result string
	require.NoError(t, rsp.UnmarshalResult(&result))
	assert.Equal(t, "hi", result)
}

func TestBridge_namedParams(t *testing.T) {
	loc := newLocal(t)

	rsp, err := loc.Client.Call(context.Background(), "greet", map[string]any{"name": "world"})
	require.NoError(t, err)

	var result string
	require.NoError(t, rsp.UnmarshalResult(&result))
	assert.Equal(t, "hello world", result)
}

func TestBridge_methodError(t *testing.T) {
	loc := newLocal(t)

	_, err := loc.Client.Call(context.Background(), "echo", []any{})
	require.Error(t, err)

	var rpcErr *jrpc2.Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, jrpc2.Code(jsonrpc.ParamMissing), rpcErr.Code)

	var data map[string]any
	require.NoError(t, json.Unmarshal(rpcErr.Data, &data))
	assert.Equal(t, float64(jsonrpc.ParamMissing), data["code"])
	assert.Equal(t, jsonrpc.ParamMissing.Message(), data["message"])
}

func TestBridge_unknownMethod(t *testing.T) {
	loc := newLocal(t)

	_, err := loc.Client.Call(context.Background(), "no_such_method", nil)
	require.Error(t, err)

	var rpcErr *jrpc2.Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, jrpc2.MethodNotFound, rpcErr.Code)
}

func TestBridge_asyncIndirect(t *testing.T) {
	loc := newLocal(t)

	rsp, err := loc.Client.Call(context.Background(), "later", nil)
	require.NoError(t, err)

	var result map[string]string
	require.NoError(t, rsp.UnmarshalResult(&result))
	assert.NotEmpty(t, result["asyncHandle"])
}

func TestBridge_serveTCP(t *testing.T) {
	lst, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	b := NewBridge(ctx, newTestDispatcher(t))

	done := make(chan error, 1)
	go func() {
		done <- b.serve(lst)
	}()

	conn, err := net.Dial("tcp", lst.Addr().String())
	require.NoError(t, err)
	cli := jrpc2.NewClient(channel.LSP(conn, conn), nil)

	callCtx, callCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer callCancel()
	rsp, err := cli.Call(callCtx, "echo", []any{"over tcp"})
	require.NoError(t, err)

	var result string
	require.NoError(t, rsp.UnmarshalResult(&result))
	assert.Equal(t, "over tcp", result)

	cli.Close()
	cancel()
	assert.NoError(t, <-done)
}
