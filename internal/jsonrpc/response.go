// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jsonrpc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

const (
	keyResult      = "result"
	keyError       = "error"
	keyAsyncHandle = "asyncHandle"

	keyCode        = "code"
	keyMessage     = "message"
	keyCategory    = "category"
	keyLocation    = "location"
	keyClientInfo  = "client_info"
	keyProperties  = "properties"
	keyRedirectURL = "redirect_url"
)

// ContentType is the default content type of responses.
const ContentType = "application/json"

// ErrorOptions controls how SetError renders an error.
type ErrorOptions struct {
	// ClientInfo is attached as "client_info" when non-nil
	ClientInfo any

	// IncludeProperties attaches the error's property bag
	// as "properties"
	IncludeProperties bool
}

// Response is an outbound RPC response. Exactly one of the keys
// "result", "error" and "asyncHandle" is present at any time.
type Response struct {
	fields map[string]any

	contentType           string
	suppressDetectChanges bool

	afterResponse func()
	afterOnce     sync.Once
}

// NewResponse returns a response with a null result.
func NewResponse() *Response {
	return &Response{
		fields: map[string]any{
			keyResult: nil,
		},
	}
}

func (r *Response) clearReserved() {
	delete(r.fields, keyResult)
	delete(r.fields, keyError)
	delete(r.fields, keyAsyncHandle)
}

// SetResult stores value as the result, replacing any error or
// async handle.
func (r *Response) SetResult(value any) {
	r.clearReserved()
	r.fields[keyResult] = value
}

// SetError stores err as the error of the response.
//
// Errors of the RPC category are rendered as code and message only.
// Any other error is wrapped as an ExecutionError with a nested
// object describing the original error. A nil err is ignored.
func (r *Response) SetError(err error, opts ErrorOptions) {
	if err == nil {
		return
	}
	info := describe(err)

	var obj map[string]any
	if info.category == Category {
		obj = errorObject(Code(info.code), info.message, opts.ClientInfo)
	} else {
		obj = errorObject(ExecutionError, ExecutionError.Message(), opts.ClientInfo)
		sub := map[string]any{
			keyCode:     info.code,
			keyCategory: info.category,
			keyMessage:  info.message,
		}
		if info.location != "" {
			sub[keyLocation] = info.location
		}
		obj[keyError] = sub
	}

	if opts.IncludeProperties && len(info.properties) > 0 {
		props := make(map[string]any, len(info.properties))
		for k, v := range info.properties {
			props[k] = v
		}
		obj[keyProperties] = props
	}

	r.clearReserved()
	r.fields[keyError] = obj
}

// SetCodeError stores a protocol level error consisting of the code
// and its message only.
func (r *Response) SetCodeError(code Code, clientInfo any) {
	r.clearReserved()
	r.fields[keyError] = errorObject(code, code.Message(), clientInfo)
}

// SetRedirectError stores err and asks the client to retry
// against url.
func (r *Response) SetRedirectError(err error, url string) {
	if err == nil {
		return
	}
	r.SetError(err, ErrorOptions{})
	if obj, ok := r.fields[keyError].(map[string]any); ok {
		obj[keyRedirectURL] = url
	}
}

// SetAsyncHandle tells the client to expect the result later
// under handle.
func (r *Response) SetAsyncHandle(handle string) {
	r.clearReserved()
	r.fields[keyAsyncHandle] = handle
}

// SetField sets an additional top level field. Reserved keys are
// refused and false is returned.
func (r *Response) SetField(name string, value any) bool {
	switch name {
	case keyResult, keyError, keyAsyncHandle:
		return false
	}
	r.fields[name] = value
	return true
}

func (r *Response) Field(name string) (any, bool) {
	v, ok := r.fields[name]
	return v, ok
}

func (r *Response) Result() any {
	return r.fields[keyResult]
}

// UnmarshalResult decodes the result into v.
func (r *Response) UnmarshalResult(v any) error {
	b, err := json.Marshal(r.fields[keyResult])
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func (r *Response) HasError() bool {
	_, ok := r.fields[keyError]
	return ok
}

func (r *Response) ErrorObject() (map[string]any, bool) {
	obj, ok := r.fields[keyError].(map[string]any)
	return obj, ok
}

func (r *Response) AsyncHandle() (string, bool) {
	h, ok := r.fields[keyAsyncHandle].(string)
	return h, ok
}

// Err converts the error object of the response, if any, into an *Error.
func (r *Response) Err() error {
	obj, ok := r.ErrorObject()
	if !ok {
		return nil
	}
	code, _ := toInt(obj[keyCode])
	msg, _ := obj[keyMessage].(string)

	err := &Error{
		Code:    Code(code),
		Message: msg,
	}
	for _, key := range []string{keyError, keyClientInfo, keyProperties, keyRedirectURL} {
		if v, ok := obj[key]; ok {
			err.WithProperty(key, v)
		}
	}
	return err
}

func (r *Response) SetContentType(ct string) {
	r.contentType = ct
}

func (r *Response) ContentType() string {
	if r.contentType == "" {
		return ContentType
	}
	return r.contentType
}

func (r *Response) SetSuppressDetectChanges(suppress bool) {
	r.suppressDetectChanges = suppress
}

func (r *Response) SuppressDetectChanges() bool {
	return r.suppressDetectChanges
}

// SetAfterResponse registers fn to be run once the response
// has been handed to the transport.
func (r *Response) SetAfterResponse(fn func()) {
	r.afterResponse = fn
}

func (r *Response) HasAfterResponse() bool {
	return r.afterResponse != nil
}

// RunAfterResponse runs the after-response callback. It runs at
// most once no matter how often it is called.
func (r *Response) RunAfterResponse() {
	r.afterOnce.Do(func() {
		if r.afterResponse != nil {
			r.afterResponse()
		}
	})
}

// Raw returns the underlying JSON object.
func (r *Response) Raw() map[string]any {
	return r.fields
}

func (r *Response) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.fields)
}

// WriteHTTP writes the response with status 200.
func (r *Response) WriteHTTP(w http.ResponseWriter) error {
	return r.WriteHTTPStatus(w, http.StatusOK)
}

// WriteHTTPStatus writes the response body and headers. Caching is
// always disabled and the content type defaults to ContentType unless
// set on the response or already present on w.
func (r *Response) WriteHTTPStatus(w http.ResponseWriter, status int) error {
	body, err := json.Marshal(r.fields)
	if err != nil {
		return err
	}

	h := w.Header()
	if r.contentType != "" {
		h.Set("Content-Type", r.contentType)
	} else if h.Get("Content-Type") == "" {
		h.Set("Content-Type", ContentType)
	}
	setNoCacheHeaders(h)

	w.WriteHeader(status)
	_, err = w.Write(body)
	return err
}

func setNoCacheHeaders(h http.Header) {
	h.Set("Expires", "Fri, 01 Jan 1990 00:00:00 GMT")
	h.Set("Pragma", "no-cache")
	h.Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
}

// ParseResponse parses a response received from another RPC endpoint.
func ParseResponse(input []byte) (*Response, error) {
	v, err := decodeJSON(input)
	if err != nil {
		return nil, NewError(ParseError, err)
	}
	return ParseResponseValue(v)
}

func ParseResponseValue(v any) (*Response, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, NewError(ParseError,
			fmt.Errorf("expected object, got %s", typeName(v)))
	}
	return &Response{fields: obj}, nil
}

func errorObject(code Code, message string, clientInfo any) map[string]any {
	obj := map[string]any{
		keyCode:    int(code),
		keyMessage: message,
	}
	if clientInfo != nil {
		obj[keyClientInfo] = clientInfo
	}
	return obj
}
