// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package jsonrpc

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"syscall"
)

// Categorized is implemented by errors which belong to a category
// other than the RPC one, e.g. process failures. Errors not implementing
// it are reported under the "system" category.
type Categorized interface {
	error
	Category() string
	ErrorCode() int
}

// propertied is implemented by errors carrying diagnostic key/value
// metadata.
type propertied interface {
	Properties() map[string]any
}

const SystemCategory = "system"

// Error is an error with an RPC error code.
type Error struct {
	Code Code

	// Message overrides the default message of Code when non-empty
	Message string

	Props    map[string]any
	Location string
	Err      error
}

// NewError wraps err (which may be nil) with code.
func NewError(code Code, err error) *Error {
	return &Error{
		Code:     code,
		Err:      err,
		Location: callerLocation(2),
	}
}

func (e *Error) Error() string {
	msg := e.message()
	if d, ok := e.Props[DescriptionProperty]; ok {
		msg = fmt.Sprintf("%s (%v)", msg, d)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", msg, e.Err)
	}
	return msg
}

func (e *Error) message() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code.Message()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func (e *Error) Category() string {
	return Category
}

func (e *Error) ErrorCode() int {
	return int(e.Code)
}

func (e *Error) Properties() map[string]any {
	return e.Props
}

// WithProperty attaches a diagnostic property and returns e.
func (e *Error) WithProperty(key string, value any) *Error {
	if e.Props == nil {
		e.Props = make(map[string]any)
	}
	e.Props[key] = value
	return e
}

const DescriptionProperty = "description"

// Description returns the "description" property, if any.
func (e *Error) Description() string {
	d, ok := e.Props[DescriptionProperty].(string)
	if !ok {
		return ""
	}
	return d
}

// errorInfo is the flattened view of an arbitrary error used when
// building error envelopes.
type errorInfo struct {
	code       int
	category   string
	message    string
	location   string
	properties map[string]any
}

func describe(err error) errorInfo {
	info := errorInfo{
		code:     -1,
		category: SystemCategory,
		message:  err.Error(),
	}

	var ce Categorized
	if errors.As(err, &ce) {
		info.code = ce.ErrorCode()
		info.category = ce.Category()
		if p, ok := ce.(propertied); ok {
			info.properties = p.Properties()
		}
		if re, ok := ce.(*Error); ok {
			info.location = re.Location
			info.message = re.message()
		}
		return info
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		info.code = int(errno)
	}
	return info
}

func callerLocation(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s:%d",
		filepath.Join(filepath.Base(filepath.Dir(file)), filepath.Base(file)), line)
}
