// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package rpc

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/sessionrpc/internal/jsonrpc"
	"github.com/hashicorp/sessionrpc/internal/state"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	RPCPathPrefix   = "/rpc/"
	AsyncPathPrefix = "/async/"

	// BackgroundHeader marks requests sent on a background connection
	BackgroundHeader = "X-Session-Background"

	maxRequestSize = 10 << 20
	maxAsyncWait   = time.Minute
)

// Validator checks that a request may be dispatched in the
// current session.
type Validator interface {
	Validate(req *jsonrpc.Request) error
}

// HTTPHandler serves methods at POST /rpc/<method> and results of
// methods with indirect return at GET /async/<handle>.
type HTTPHandler struct {
	dispatcher *Dispatcher
	calls      *state.AsyncCallStore
	validator  Validator
	logger     *log.Logger
}

func NewHTTPHandler(d *Dispatcher, calls *state.AsyncCallStore) *HTTPHandler {
	return &HTTPHandler{
		dispatcher: d,
		calls:      calls,
		logger:     discardLogs,
	}
}

func (h *HTTPHandler) SetLogger(logger *log.Logger) {
	h.logger = logger
}

func (h *HTTPHandler) SetValidator(v Validator) {
	h.validator = v
}

// Instrumented returns h wrapped with OpenTelemetry instrumentation.
func (h *HTTPHandler) Instrumented() http.Handler {
	return otelhttp.NewHandler(h, "sessionrpc")
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case strings.HasPrefix(r.URL.Path, RPCPathPrefix):
		h.serveRPC(w, r)
	case strings.HasPrefix(r.URL.Path, AsyncPathPrefix):
		h.serveAsync(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *HTTPHandler) serveRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize))
	if err != nil {
		h.writeError(w, jsonrpc.NewError(jsonrpc.TransmissionError, err))
		return
	}

	var req *jsonrpc.Request
	method := strings.TrimPrefix(r.URL.Path, RPCPathPrefix)
	if method != "" {
		var ok bool
		req, ok = jsonrpc.ParseRequestForMethod(body, method, w)
		if !ok {
			h.logger.Printf("invalid request for %q", method)
			return
		}
	} else {
		req, err = jsonrpc.ParseRequest(body)
		if err != nil {
			h.logger.Printf("invalid request: %s", err)
			h.writeError(w, err)
			return
		}
	}
	req.IsBackgroundConnection = isTrue(r.Header.Get(BackgroundHeader))

	if h.validator != nil {
		err = h.validator.Validate(req)
		if err != nil {
			h.logger.Printf("rejecting %q: %s", req.Method, err)
			h.writeError(w, err)
			return
		}
	}

	h.logger.Printf("Incoming request for %q", req.Method)
	start := time.Now()

	resp := h.dispatcher.Call(r.Context(), req)

	err = resp.WriteHTTP(w)
	if err != nil {
		h.logger.Printf("failed to write response to %q: %s", req.Method, err)
	}
	h.logger.Printf("Response to %q sent in %s", req.Method, time.Since(start))

	resp.RunAfterResponse()
}

// serveAsync returns the response stored under the handle. While the
// call is pending the handle is echoed back with 202 Accepted. The
// "wait" query parameter (a duration) makes the request block until
// the call completes or the duration elapses.
func (h *HTTPHandler) serveAsync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.calls == nil {
		h.writeError(w, jsonrpc.Unavailable.Err())
		return
	}

	handle := strings.TrimPrefix(r.URL.Path, AsyncPathPrefix)

	call, err := h.calls.Get(handle)
	if err != nil {
		h.writeNotFound(w, handle, err)
		return
	}

	if call.State != state.CallDone {
		if wait := r.URL.Query().Get("wait"); wait != "" {
			d, err := time.ParseDuration(wait)
			if err != nil {
				h.writeError(w, jsonrpc.NewError(jsonrpc.ParamInvalid,
					fmt.Errorf("invalid wait duration: %w", err)))
				return
			}
			if d > maxAsyncWait {
				d = maxAsyncWait
			}

			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			awaited, err := h.calls.Await(ctx, handle)
			if err == nil {
				call = awaited
			}
		}
	}

	if call.State != state.CallDone {
		resp := jsonrpc.NewResponse()
		resp.SetAsyncHandle(handle)
		resp.WriteHTTPStatus(w, http.StatusAccepted)
		return
	}

	resp, err := jsonrpc.ParseResponseValue(call.Response)
	if err != nil {
		h.writeError(w, err)
		return
	}
	err = resp.WriteHTTP(w)
	if err != nil {
		h.logger.Printf("failed to deliver async response %q: %s", handle, err)
		return
	}

	err = h.calls.Remove(handle)
	if err != nil {
		h.logger.Printf("failed to remove async call %q: %s", handle, err)
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	resp := jsonrpc.NewResponse()
	resp.SetError(err, jsonrpc.ErrorOptions{})
	resp.WriteHTTP(w)
}

func (h *HTTPHandler) writeNotFound(w http.ResponseWriter, handle string, err error) {
	rpcErr := jsonrpc.NewError(jsonrpc.ParamInvalid, err)
	rpcErr.WithProperty(jsonrpc.DescriptionProperty,
		fmt.Sprintf("unknown async handle %q", handle))

	resp := jsonrpc.NewResponse()
	resp.SetError(rpcErr, jsonrpc.ErrorOptions{IncludeProperties: true})
	resp.WriteHTTPStatus(w, http.StatusNotFound)
}

func isTrue(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes":
		return true
	}
	return false
}
