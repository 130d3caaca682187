// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	lsctx "github.com/hashicorp/sessionrpc/internal/context"
	"github.com/hashicorp/sessionrpc/internal/jsonrpc"
	"github.com/hashicorp/sessionrpc/internal/process"
	"github.com/hashicorp/sessionrpc/internal/rpc"
	"github.com/hashicorp/sessionrpc/internal/session"
	"github.com/hashicorp/sessionrpc/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	dispatcher *rpc.Dispatcher
	calls      *state.AsyncCallStore
	session    *session.Session
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ss, err := state.NewStateStore()
	require.NoError(t, err)

	sup := process.NewSupervisor()
	sup.SetSubprocsFunc(func(pid int) (bool, error) {
		return false, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	go sup.Run(ctx, 10*time.Millisecond)
	t.Cleanup(func() {
		cancel()
		sup.TerminateAll()
	})

	sess := session.NewSession(nil)
	require.NoError(t, sess.Activate())

	reg := rpc.NewRegistry()
	require.NoError(t, Register(reg, Deps{Supervisor: sup, Session: sess}))
	reg.Freeze()

	return &testServer{
		dispatcher: rpc.NewDispatcher(reg, ss.AsyncCalls),
		calls:      ss.AsyncCalls,
		session:    sess,
	}
}

func (ts *testServer) call(t *testing.T, ctx context.Context, input string) *jsonrpc.Response {
	t.Helper()
	req, err := jsonrpc.ParseRequest([]byte(input))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return ts.dispatcher.Call(ctx, req)
}

func errorCode(t *testing.T, resp *jsonrpc.Response) jsonrpc.Code {
	t.Helper()
	var rpcErr *jsonrpc.Error
	require.True(t, errors.As(resp.Err(), &rpcErr), "expected error response")
	return rpcErr.Code
}

func TestRegister_duplicate(t *testing.T) {
	reg := rpc.NewRegistry()
	require.NoError(t, reg.RegisterSync("echo", Echo))

	err := Register(reg, Deps{Supervisor: process.NewSupervisor()})
	var dupErr *rpc.DuplicateMethodErr
	assert.True(t, errors.As(err, &dupErr))
}

func TestEcho(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.call(t, context.Background(), `{"method":"echo","params":[{"a":1}]}`)
	b, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":{"a":1}}`, string(b))
}

func TestListMethods(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.call(t, context.Background(), `{"method":"list_methods"}`)

	var names []string
	require.NoError(t, resp.UnmarshalResult(&names))
	assert.Contains(t, names, "system_command")
	assert.Contains(t, names, "terminal_start")
}

func TestServerInfo(t *testing.T) {
	ts := newTestServer(t)

	ctx := lsctx.WithServerVersion(context.Background(), "1.2.3")
	resp := ts.call(t, ctx, `{"method":"server_info"}`)

	var info struct {
		Version string `json:"version"`
		PID     int    `json:"pid"`
	}
	require.NoError(t, resp.UnmarshalResult(&info))
	assert.Equal(t, "1.2.3", info.Version)
	assert.NotZero(t, info.PID)
}

func TestSystemCommand(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.call(t, context.Background(),
		`{"method":"system_command","params":["cat; exit 4"],"kwparams":{"input":"from stdin"}}`)

	var result struct {
		StdOut     string `json:"stdout"`
		ExitStatus int    `json:"exit_status"`
	}
	require.NoError(t, resp.UnmarshalResult(&result))
	assert.Equal(t, "from stdin", result.StdOut)
	assert.Equal(t, 4, result.ExitStatus)
}

func TestSystemCommand_invalidOptions(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.call(t, context.Background(),
		`{"method":"system_command","params":["true"],"kwparams":{"options":{"bogus":1}}}`)
	assert.Equal(t, jsonrpc.ParamInvalid, errorCode(t, resp))
}

func TestSystemCommandAsync(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.call(t, context.Background(),
		`{"method":"system_command_async","params":["echo async"]}`)
	handle, ok := resp.AsyncHandle()
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	call, err := ts.calls.Await(ctx, handle)
	require.NoError(t, err)

	done, err := jsonrpc.ParseResponseValue(call.Response)
	require.NoError(t, err)
	var result map[string]any
	require.NoError(t, done.UnmarshalResult(&result))
	assert.Equal(t, "async\n", result["stdout"])
}

func TestProcessLifecycle(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.call(t, context.Background(), `{"method":"process_start","params":["cat"]}`)
	var started struct {
		ID int `json:"id"`
	}
	require.NoError(t, resp.UnmarshalResult(&started))
	require.NotZero(t, started.ID)

	id, err := json.Marshal(started.ID)
	require.NoError(t, err)

	resp = ts.call(t, context.Background(),
		`{"method":"process_write_stdin","params":[`+string(id)+`,"line\n"],"kwparams":{"eof":true}}`)
	require.False(t, resp.HasError())

	var output struct {
		StdOut     string `json:"stdout"`
		Exited     bool   `json:"exited"`
		ExitStatus int    `json:"exit_status"`
	}
	collected := ""
	require.Eventually(t, func() bool {
		resp := ts.call(t, context.Background(), `{"method":"process_output","params":[`+string(id)+`]}`)
		if resp.HasError() {
			return false
		}
		if err := resp.UnmarshalResult(&output); err != nil {
			return false
		}
		collected += output.StdOut
		return output.Exited
	}, 10*time.Second, 20*time.Millisecond)

	assert.Equal(t, "line\n", collected)
	assert.Equal(t, 0, output.ExitStatus)

	resp = ts.call(t, context.Background(), `{"method":"process_output","params":[`+string(id)+`]}`)
	assert.Equal(t, jsonrpc.ParamInvalid, errorCode(t, resp))

	resp = ts.call(t, context.Background(), `{"method":"process_terminate","params":[`+string(id)+`]}`)
	assert.Equal(t, jsonrpc.ParamInvalid, errorCode(t, resp))
}

func TestProcessTerminate(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.call(t, context.Background(),
		`{"method":"process_start","params":["sleep 30"],"kwparams":{"options":{"terminate_children":true}}}`)
	var started struct {
		ID int `json:"id"`
	}
	require.NoError(t, resp.UnmarshalResult(&started))
	id, _ := json.Marshal(started.ID)

	resp = ts.call(t, context.Background(), `{"method":"process_terminate","params":[`+string(id)+`]}`)
	require.False(t, resp.HasError())

	var output struct {
		Exited     bool `json:"exited"`
		ExitStatus int  `json:"exit_status"`
	}
	require.Eventually(t, func() bool {
		resp := ts.call(t, context.Background(), `{"method":"process_output","params":[`+string(id)+`]}`)
		if err := resp.UnmarshalResult(&output); err != nil {
			return false
		}
		return output.Exited
	}, 10*time.Second, 20*time.Millisecond)
	assert.Equal(t, process.ExitTerminated, output.ExitStatus)
}

func TestProcessID_invalid(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.call(t, context.Background(), `{"method":"process_interrupt","params":[-1]}`)
	assert.Equal(t, jsonrpc.ParamInvalid, errorCode(t, resp))

	resp = ts.call(t, context.Background(), `{"method":"process_interrupt","params":["one"]}`)
	assert.Equal(t, jsonrpc.ParamTypeMismatch, errorCode(t, resp))

	resp = ts.call(t, context.Background(), `{"method":"process_interrupt"}`)
	assert.Equal(t, jsonrpc.ParamMissing, errorCode(t, resp))
}

func TestTerminal(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.call(t, context.Background(),
		`{"method":"terminal_start","kwparams":{"cols":100,"rows":30,"shell":"/bin/sh"}}`)
	var started struct {
		ID int `json:"id"`
	}
	require.NoError(t, resp.UnmarshalResult(&started))
	id, _ := json.Marshal(started.ID)

	resp = ts.call(t, context.Background(), `{"method":"terminal_resize","params":[`+string(id)+`,70000,40]}`)
	assert.Equal(t, jsonrpc.ParamInvalid, errorCode(t, resp))

	resp = ts.call(t, context.Background(), `{"method":"terminal_resize","params":[`+string(id)+`,120,40]}`)
	require.False(t, resp.HasError())

	resp = ts.call(t, context.Background(),
		`{"method":"process_write_stdin","params":[`+string(id)+`,"stty size; exit\n"]}`)
	require.False(t, resp.HasError())

	collected := ""
	require.Eventually(t, func() bool {
		resp := ts.call(t, context.Background(), `{"method":"process_output","params":[`+string(id)+`]}`)
		if resp.HasError() {
			return false
		}
		var output struct {
			StdOut string `json:"stdout"`
			Exited bool   `json:"exited"`
		}
		if err := resp.UnmarshalResult(&output); err != nil {
			return false
		}
		collected += output.StdOut
		return output.Exited
	}, 10*time.Second, 20*time.Millisecond)

	assert.Contains(t, collected, "40 120")
}

func TestQuitSession(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.call(t, context.Background(), `{"method":"quit_session"}`)
	assert.Equal(t, jsonrpc.Unavailable, errorCode(t, resp))

	quitCalled := false
	ctx := lsctx.WithQuitFunc(context.Background(), func() {
		quitCalled = true
	})
	resp = ts.call(t, ctx, `{"method":"quit_session"}`)
	require.False(t, resp.HasError())
	assert.False(t, quitCalled)

	resp.RunAfterResponse()
	assert.True(t, quitCalled)
	assert.Equal(t, "down", ts.session.State())
}

func TestSystemCommand_stdoutFile(t *testing.T) {
	ts := newTestServer(t)
	dir := t.TempDir()

	input, err := json.Marshal(map[string]any{
		"method": "system_command",
		"params": []any{"echo to file"},
		"kwparams": map[string]any{
			"options": map[string]any{
				"stdout_file": filepath.Join(dir, "{{ method }}.out"),
			},
		},
	})
	require.NoError(t, err)

	resp := ts.call(t, context.Background(), string(input))
	require.False(t, resp.HasError())

	b, err := os.ReadFile(filepath.Join(dir, "system_command.out"))
	require.NoError(t, err)
	assert.Equal(t, "to file\n", string(b))
}
