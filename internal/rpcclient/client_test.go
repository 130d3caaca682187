// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package rpcclient

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hashicorp/sessionrpc/internal/jsonrpc"
	"github.com/hashicorp/sessionrpc/internal/rpc"
	"github.com/hashicorp/sessionrpc/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ss, err := state.NewStateStore()
	require.NoError(t, err)

	r := rpc.NewRegistry()
	require.NoError(t, r.RegisterSync("echo", func(ctx context.Context, req *jsonrpc.Request, resp *jsonrpc.Response) error {
		v, err := jsonrpc.ReadParamAs[any](req.Params, 0)
		if err != nil {
			return err
		}
		resp.SetResult(map[string]any{
			"value":      v,
			"client_id":  req.ClientID,
			"background": req.IsBackgroundConnection,
		})
		return nil
	}))
	require.NoError(t, r.RegisterAsync("slow", false, func(ctx context.Context, req *jsonrpc.Request, cont *rpc.Continuation) {
		go func() {
			time.Sleep(50 * time.Millisecond)
			cont.Result("finally")
		}()
	}))
	r.Freeze()

	h := rpc.NewHTTPHandler(rpc.NewDispatcher(r, ss.AsyncCalls), ss.AsyncCalls)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Call(t *testing.T) {
	srv := newTestServer(t)

	c := NewClient(srv.URL + "/")
	c.ClientID = "client-1"
	c.Background = true

	resp, err := c.Call(context.Background(), "echo", []any{"ping"}, nil)
	require.NoError(t, err)
	require.NoError(t, resp.Err())

	var result struct {
		Value      string `json:"value"`
		ClientID   string `json:"client_id"`
		Background bool   `json:"background"`
	}
	require.NoError(t, resp.UnmarshalResult(&result))
	assert.Equal(t, "ping", result.Value)
	assert.Equal(t, "client-1", result.ClientID)
	assert.True(t, result.Background)
}

func TestClient_Call_methodError(t *testing.T) {
	srv := newTestServer(t)

	resp, err := NewClient(srv.URL).Call(context.Background(), "missing", nil, nil)
	require.NoError(t, err)

	var rpcErr *jsonrpc.Error
	require.True(t, errors.As(resp.Err(), &rpcErr))
	assert.Equal(t, jsonrpc.MethodNotFound, rpcErr.Code)
}

func TestClient_Await(t *testing.T) {
	srv := newTestServer(t)

	c := NewClient(srv.URL)
	c.PollWait = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := c.Await(ctx, "slow", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "finally", resp.Result())
}

func TestClient_connectionError(t *testing.T) {
	// reserve a port nobody listens on
	lst, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lst.Addr().String()
	lst.Close()

	_, err = NewClient("http://"+addr).Call(context.Background(), "echo", nil, nil)

	var rpcErr *jsonrpc.Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, jsonrpc.ConnectionError, rpcErr.Code)
}

func TestClient_notAnEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Call(context.Background(), "echo", nil, nil)

	var rpcErr *jsonrpc.Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, jsonrpc.TransmissionError, rpcErr.Code)

	var clientErr ClientError
	require.True(t, errors.As(err, &clientErr))
	assert.Equal(t, http.StatusBadGateway, clientErr.StatusCode)
}
