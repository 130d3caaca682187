// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const (
	fieldMethod        = "method"
	fieldParams        = "params"
	fieldKWParams      = "kwparams"
	fieldSourceWindow  = "sourceWnd"
	fieldClientID      = "clientId"
	fieldVersion       = "version"
	fieldClientVersion = "clientVersion"
)

// Request is an inbound RPC request.
type Request struct {
	Method   string
	Params   []any
	KWParams map[string]any

	SourceWindow  string
	ClientID      string
	Version       float64
	ClientVersion string

	// IsBackgroundConnection is not part of the wire format,
	// it is set by the transport.
	IsBackgroundConnection bool
}

// Empty reports whether the request has no method.
func (r *Request) Empty() bool {
	return r.Method == ""
}

func (r *Request) Clear() {
	*r = Request{}
}

// ParseRequest parses the JSON request envelope in input.
//
// Unknown top level fields are ignored.
func ParseRequest(input []byte) (*Request, error) {
	v, err := decodeJSON(input)
	if err != nil {
		return nil, NewError(ParseError, err)
	}
	return ParseRequestValue(v)
}

// ParseRequestValue parses an already decoded JSON value.
func ParseRequestValue(v any) (*Request, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, NewError(InvalidRequest,
			fmt.Errorf("expected object, got %s", typeName(v)))
	}

	req := &Request{
		KWParams: make(map[string]any),
	}

	method, ok := obj[fieldMethod].(string)
	if !ok || method == "" {
		return nil, NewError(InvalidRequest, errors.New("missing method"))
	}
	req.Method = method

	if p, found := obj[fieldParams]; found {
		params, ok := p.([]any)
		if !ok {
			return nil, typeMismatch("array", p)
		}
		req.Params = params
	}

	if kw, found := obj[fieldKWParams]; found {
		kwparams, ok := kw.(map[string]any)
		if !ok {
			return nil, typeMismatch("object", kw)
		}
		req.KWParams = kwparams
	}

	if s, ok := obj[fieldSourceWindow].(string); ok {
		req.SourceWindow = s
	}
	if s, ok := obj[fieldClientID].(string); ok {
		req.ClientID = s
	}
	if n, ok := toFloat(obj[fieldVersion]); ok {
		req.Version = n
	}
	if s, ok := obj[fieldClientVersion].(string); ok {
		req.ClientVersion = s
	}

	return req, nil
}

// ParseRequestForMethod parses input and verifies that it is a request
// for method. On failure an error response is written to w and
// false is returned.
func ParseRequestForMethod(input []byte, method string, w http.ResponseWriter) (*Request, bool) {
	req, err := ParseRequest(input)
	if err == nil && req.Method != method {
		err = NewError(InvalidRequest,
			fmt.Errorf("expected method %q, got %q", method, req.Method))
	}
	if err != nil {
		resp := NewResponse()
		resp.SetError(err, ErrorOptions{})
		resp.WriteHTTP(w)
		return nil, false
	}
	return req, true
}

// Value returns the request as a JSON compatible value.
func (r *Request) Value() map[string]any {
	params := r.Params
	if params == nil {
		params = []any{}
	}
	kwparams := r.KWParams
	if kwparams == nil {
		kwparams = map[string]any{}
	}
	v := map[string]any{
		fieldMethod:   r.Method,
		fieldParams:   params,
		fieldKWParams: kwparams,
	}
	if r.SourceWindow != "" {
		v[fieldSourceWindow] = r.SourceWindow
	}
	if r.ClientID != "" {
		v[fieldClientID] = r.ClientID
	}
	if r.Version != 0 {
		v[fieldVersion] = r.Version
	}
	if r.ClientVersion != "" {
		v[fieldClientVersion] = r.ClientVersion
	}
	return v
}

func (r *Request) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Value())
}

func decodeJSON(input []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(input))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after top-level value")
	}
	return v, nil
}

func typeMismatch(expected string, got any) *Error {
	err := &Error{
		Code:     ParamTypeMismatch,
		Location: callerLocation(2),
	}
	return err.WithProperty(DescriptionProperty,
		fmt.Sprintf("expected '%s'; got '%s'", expected, typeName(got)))
}
