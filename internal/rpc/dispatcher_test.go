// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/hashicorp/sessionrpc/internal/jsonrpc"
	"github.com/hashicorp/sessionrpc/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type commandError struct {
	code int
}

func (e *commandError) Error() string    { return fmt.Sprintf("command failed with %d", e.code) }
func (e *commandError) Category() string { return "process" }
func (e *commandError) ErrorCode() int   { return e.code }

func echo(ctx context.Context, req *jsonrpc.Request, resp *jsonrpc.Response) error {
	v, err := jsonrpc.ReadParamAs[any](req.Params, 0)
	if err != nil {
		return err
	}
	resp.SetResult(v)
	return nil
}

func failing(ctx context.Context, req *jsonrpc.Request, resp *jsonrpc.Response) error {
	return &commandError{code: 2}
}

func parseRequest(t *testing.T, input string) *jsonrpc.Request {
	t.Helper()
	req, err := jsonrpc.ParseRequest([]byte(input))
	require.NoError(t, err)
	return req
}

func responseJSON(t *testing.T, resp *jsonrpc.Response) string {
	t.Helper()
	b, err := json.Marshal(resp)
	require.NoError(t, err)
	return string(b)
}

func newTestDispatcher(t *testing.T, register func(r *Registry)) (*Dispatcher, *state.AsyncCallStore) {
	t.Helper()
	ss, err := state.NewStateStore()
	require.NoError(t, err)

	r := NewRegistry()
	register(r)
	r.Freeze()

	return NewDispatcher(r, ss.AsyncCalls), ss.AsyncCalls
}

func TestDispatcher_sync(t *testing.T) {
	d, _ := newTestDispatcher(t, func(r *Registry) {
		require.NoError(t, r.RegisterSync("echo", echo))
	})

	resp := d.Call(context.Background(), parseRequest(t, `{"method":"echo","params":["hi"]}`))
	assert.JSONEq(t, `{"result":"hi"}`, responseJSON(t, resp))
}

func TestDispatcher_methodNotFound(t *testing.T) {
	d, _ := newTestDispatcher(t, func(r *Registry) {
		require.NoError(t, r.RegisterSync("echo", echo))
	})

	resp := d.Call(context.Background(), parseRequest(t, `{"method":"missing"}`))
	obj, ok := resp.ErrorObject()
	require.True(t, ok)
	assert.Equal(t, 7, obj["code"])
}

func TestDispatcher_paramMissing(t *testing.T) {
	d, _ := newTestDispatcher(t, func(r *Registry) {
		require.NoError(t, r.RegisterSync("echo", echo))
	})

	resp := d.Call(context.Background(), parseRequest(t, `{"method":"echo"}`))
	assert.JSONEq(t, `{"error":{"code":8,"message":"Parameter missing"}}`, responseJSON(t, resp))
}

func TestDispatcher_executionError(t *testing.T) {
	d, _ := newTestDispatcher(t, func(r *Registry) {
		require.NoError(t, r.RegisterSync("fail", failing))
	})

	resp := d.Call(context.Background(), parseRequest(t, `{"method":"fail"}`))
	expected := `{"error":{
		"code": 100,
		"message": "Error occurred while executing method",
		"error": {"code": 2, "category": "process", "message": "command failed with 2"}
	}}`
	assert.JSONEq(t, expected, responseJSON(t, resp))
}

func TestDispatcher_adapterEquivalence(t *testing.T) {
	for _, input := range []string{
		`{"method":"echo","params":[{"a":[1,2]}]}`,
		`{"method":"echo","params":[]}`,
		`{"method":"echo","params":[1,2,3]}`,
	} {
		req := parseRequest(t, input)

		direct := jsonrpc.NewResponse()
		directErr := echo(context.Background(), req, direct)

		var adaptedErr error
		var adapted *jsonrpc.Response
		cont := NewContinuation(func(err error, resp *jsonrpc.Response) {
			adaptedErr = err
			adapted = resp
		})
		AdaptToAsync(echo)(context.Background(), req, cont)

		require.True(t, cont.Completed())
		assert.Equal(t, directErr, adaptedErr)
		if diff := cmp.Diff(direct.Raw(), adapted.Raw()); diff != "" {
			t.Fatalf("%s: response mismatch: %s", input, diff)
		}
	}
}

func TestDispatcher_asyncDirect(t *testing.T) {
	d, _ := newTestDispatcher(t, func(r *Registry) {
		require.NoError(t, r.RegisterAsync("later", true,
			func(ctx context.Context, req *jsonrpc.Request, cont *Continuation) {
				go func() {
					time.Sleep(20 * time.Millisecond)
					cont.Result("done")
				}()
			}))
	})

	resp := d.Call(context.Background(), parseRequest(t, `{"method":"later"}`))
	assert.JSONEq(t, `{"result":"done"}`, responseJSON(t, resp))
}

func TestDispatcher_asyncDirect_error(t *testing.T) {
	d, _ := newTestDispatcher(t, func(r *Registry) {
		require.NoError(t, r.RegisterAsync("later", true,
			func(ctx context.Context, req *jsonrpc.Request, cont *Continuation) {
				cont.Fail(jsonrpc.ParamInvalid.Err())
			}))
	})

	resp := d.Call(context.Background(), parseRequest(t, `{"method":"later"}`))
	assert.JSONEq(t, `{"error":{"code":10,"message":"Parameter value invalid"}}`, responseJSON(t, resp))
}

func TestDispatcher_asyncIndirect(t *testing.T) {
	release := make(chan struct{})
	d, calls := newTestDispatcher(t, func(r *Registry) {
		require.NoError(t, r.RegisterAsync("long", false,
			func(ctx context.Context, req *jsonrpc.Request, cont *Continuation) {
				go func() {
					<-release
					cont.Result(42)
				}()
			}))
	})

	resp := d.Call(context.Background(), parseRequest(t, `{"method":"long"}`))
	handle, ok := resp.AsyncHandle()
	require.True(t, ok, "expected async handle, got %s", responseJSON(t, resp))

	call, err := calls.Get(handle)
	require.NoError(t, err)
	assert.Equal(t, state.CallPending, call.State)
	assert.Equal(t, "long", call.Method)

	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	call, err = calls.Await(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"result": 42}, call.Response)
}

func TestDispatcher_asyncIndirect_afterResponse(t *testing.T) {
	ran := make(chan struct{})
	d, calls := newTestDispatcher(t, func(r *Registry) {
		require.NoError(t, r.RegisterAsync("long", false,
			func(ctx context.Context, req *jsonrpc.Request, cont *Continuation) {
				go func() {
					resp := jsonrpc.NewResponse()
					resp.SetResult("done")
					resp.SetAfterResponse(func() { close(ran) })
					cont.Complete(nil, resp)
				}()
			}))
	})

	resp := d.Call(context.Background(), parseRequest(t, `{"method":"long"}`))
	handle, ok := resp.AsyncHandle()
	require.True(t, ok, "expected async handle, got %s", responseJSON(t, resp))

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("after-response callback did not run")
	}

	call, err := calls.Get(handle)
	require.NoError(t, err)
	assert.Equal(t, state.CallDone, call.State)
	assert.Equal(t, map[string]any{"result": "done"}, call.Response)
}

func TestDispatcher_asyncIndirect_noStore(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterAsync("long", false, noopAsync))
	d := NewDispatcher(r, nil)

	resp := d.Call(context.Background(), parseRequest(t, `{"method":"long"}`))
	obj, ok := resp.ErrorObject()
	require.True(t, ok)
	assert.Equal(t, int(jsonrpc.Unavailable), obj["code"])
}

func TestDispatcher_Call_cancelled(t *testing.T) {
	d, _ := newTestDispatcher(t, func(r *Registry) {
		require.NoError(t, r.RegisterAsync("never", true,
			func(ctx context.Context, req *jsonrpc.Request, cont *Continuation) {}))
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	resp := d.Call(ctx, parseRequest(t, `{"method":"never"}`))
	err := resp.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, jsonrpc.TransmissionError.Err()), "unexpected error: %s", err)
}

func TestDispatcher_backgroundConnection(t *testing.T) {
	d, _ := newTestDispatcher(t, func(r *Registry) {
		require.NoError(t, r.RegisterSync("echo", echo))
	})

	req := parseRequest(t, `{"method":"echo","params":[1]}`)
	req.IsBackgroundConnection = true
	resp := d.Call(context.Background(), req)
	assert.True(t, resp.SuppressDetectChanges())
}
