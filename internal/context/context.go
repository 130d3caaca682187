// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package context

import (
	"context"
)

type contextKey struct {
	Name string
}

func (k *contextKey) String() string {
	return k.Name
}

var (
	ctxRPCMethod     = &contextKey{"rpc method"}
	ctxSourceWindow  = &contextKey{"source window"}
	ctxServerVersion = &contextKey{"server version"}
	ctxQuitFunc      = &contextKey{"quit func"}
)

func missingContextErr(ctxKey *contextKey) *MissingContextErr {
	return &MissingContextErr{ctxKey}
}

func WithRPCMethod(ctx context.Context, method string) context.Context {
	return context.WithValue(ctx, ctxRPCMethod, method)
}

func RPCMethod(ctx context.Context) (string, bool) {
	method, ok := ctx.Value(ctxRPCMethod).(string)
	return method, ok
}

func WithSourceWindow(ctx context.Context, wnd string) context.Context {
	return context.WithValue(ctx, ctxSourceWindow, wnd)
}

func SourceWindow(ctx context.Context) (string, bool) {
	wnd, ok := ctx.Value(ctxSourceWindow).(string)
	return wnd, ok
}

func WithServerVersion(ctx context.Context, version string) context.Context {
	return context.WithValue(ctx, ctxServerVersion, version)
}

func ServerVersion(ctx context.Context) (string, bool) {
	version, ok := ctx.Value(ctxServerVersion).(string)
	if !ok {
		return "", false
	}
	return version, true
}

// WithQuitFunc stores the function which shuts the server down.
func WithQuitFunc(ctx context.Context, quit context.CancelFunc) context.Context {
	return context.WithValue(ctx, ctxQuitFunc, quit)
}

func QuitFunc(ctx context.Context) (context.CancelFunc, error) {
	quit, ok := ctx.Value(ctxQuitFunc).(context.CancelFunc)
	if !ok {
		return nil, missingContextErr(ctxQuitFunc)
	}
	return quit, nil
}
