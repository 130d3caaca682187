// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package rpc

import (
	"errors"
	"log"
	"sync/atomic"

	"github.com/hashicorp/sessionrpc/internal/jsonrpc"
)

var ErrContinuationReused = errors.New("continuation already completed")

// CompletionFunc receives the outcome of an asynchronous method.
type CompletionFunc func(err error, resp *jsonrpc.Response)

// Continuation completes an asynchronous method call. Only the first
// call to Complete has any effect.
type Continuation struct {
	done atomic.Bool
	fn   CompletionFunc

	method string
	logger *log.Logger
}

func NewContinuation(fn CompletionFunc) *Continuation {
	return &Continuation{fn: fn}
}

// Complete delivers the outcome of the call. A nil resp is replaced
// with an empty response. Calling Complete more than once returns
// ErrContinuationReused.
func (c *Continuation) Complete(err error, resp *jsonrpc.Response) error {
	if !c.done.CompareAndSwap(false, true) {
		if c.logger != nil {
			c.logger.Printf("ignoring repeated completion of %q", c.method)
		}
		return ErrContinuationReused
	}
	if resp == nil {
		resp = jsonrpc.NewResponse()
	}
	c.fn(err, resp)
	return nil
}

// Result completes the call successfully with result.
func (c *Continuation) Result(result any) error {
	resp := jsonrpc.NewResponse()
	resp.SetResult(result)
	return c.Complete(nil, resp)
}

// Fail completes the call with err.
func (c *Continuation) Fail(err error) error {
	return c.Complete(err, nil)
}

func (c *Continuation) Completed() bool {
	return c.done.Load()
}
