// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/sessionrpc/internal/jsonrpc"
	"github.com/hashicorp/sessionrpc/internal/rpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultTimeout  = 2 * time.Minute
	defaultPollWait = 30 * time.Second
	maxResponseSize = 10 << 20
)

// Client calls methods of a session over HTTP.
type Client struct {
	BaseURL string

	ClientID      string
	ClientVersion string
	SourceWindow  string

	// Background marks requests as sent on a background connection
	Background bool

	// PollWait is how long a single poll for an async result may block
	PollWait time.Duration

	httpClient *http.Client
}

type ClientError struct {
	StatusCode int
	Body       string
}

func (ce ClientError) Error() string {
	return fmt.Sprintf("%d: %s", ce.StatusCode, ce.Body)
}

func NewClient(baseURL string) Client {
	client := cleanhttp.DefaultClient()
	client.Timeout = defaultTimeout
	client.Transport = otelhttp.NewTransport(client.Transport)

	return Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		PollWait:   defaultPollWait,
		httpClient: client,
	}
}

// Call invokes method and returns its response. Method failures are
// reported in the response (see Response.Err), while failing to
// reach the server is reported as ConnectionError and any other
// transport failure as TransmissionError.
func (c Client) Call(ctx context.Context, method string, params []any, kwparams map[string]any) (*jsonrpc.Response, error) {
	req := &jsonrpc.Request{
		Method:        method,
		Params:        params,
		KWParams:      kwparams,
		ClientID:      c.ClientID,
		ClientVersion: c.ClientVersion,
		SourceWindow:  c.SourceWindow,
	}
	return c.CallRequest(ctx, req)
}

func (c Client) CallRequest(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BaseURL+rpc.RPCPathPrefix+url.PathEscape(req.Method), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", jsonrpc.ContentType)
	if c.Background {
		httpReq.Header.Set(rpc.BackgroundHeader, "1")
	}

	resp, _, err := c.do(httpReq)
	return resp, err
}

// AwaitAsync polls for the response stored under handle until it is
// available or ctx is done.
func (c Client) AwaitAsync(ctx context.Context, handle string) (*jsonrpc.Response, error) {
	wait := c.PollWait
	if wait <= 0 {
		wait = defaultPollWait
	}

	for {
		u := fmt.Sprintf("%s%s%s?wait=%s", c.BaseURL, rpc.AsyncPathPrefix,
			url.PathEscape(handle), wait)
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}

		resp, status, err := c.do(httpReq)
		if err != nil {
			return nil, err
		}
		if status != http.StatusAccepted {
			return resp, nil
		}

		select {
		case <-ctx.Done():
			return nil, jsonrpc.NewError(jsonrpc.TransmissionError, ctx.Err())
		default:
		}
	}
}

// Await calls method and, if it returns an async handle, waits
// for the eventual response.
func (c Client) Await(ctx context.Context, method string, params []any, kwparams map[string]any) (*jsonrpc.Response, error) {
	resp, err := c.Call(ctx, method, params, kwparams)
	if err != nil {
		return nil, err
	}
	if handle, ok := resp.AsyncHandle(); ok {
		return c.AwaitAsync(ctx, handle)
	}
	return resp, nil
}

func (c Client) do(req *http.Request) (*jsonrpc.Response, int, error) {
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, transportError(err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, 0, jsonrpc.NewError(jsonrpc.TransmissionError, err)
	}

	resp, err := jsonrpc.ParseResponse(body)
	if err != nil {
		// not a response envelope, e.g. from a proxy
		return nil, httpResp.StatusCode, jsonrpc.NewError(jsonrpc.TransmissionError,
			ClientError{StatusCode: httpResp.StatusCode, Body: string(body)})
	}

	return resp, httpResp.StatusCode, nil
}

func transportError(err error) error {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return jsonrpc.NewError(jsonrpc.ConnectionError, err)
	}
	return jsonrpc.NewError(jsonrpc.TransmissionError, err)
}
