// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package handlers

import (
	"context"
	"os"

	lsctx "github.com/hashicorp/sessionrpc/internal/context"
	"github.com/hashicorp/sessionrpc/internal/jsonrpc"
)

// Echo returns its first parameter.
func Echo(ctx context.Context, req *jsonrpc.Request, resp *jsonrpc.Response) error {
	v, err := jsonrpc.ReadParamAs[any](req.Params, 0)
	if err != nil {
		return err
	}
	resp.SetResult(v)
	return nil
}

func (svc *service) ListMethods(ctx context.Context, req *jsonrpc.Request, resp *jsonrpc.Response) error {
	resp.SetResult(svc.registry.Names())
	return nil
}

func ServerInfo(ctx context.Context, req *jsonrpc.Request, resp *jsonrpc.Response) error {
	version, ok := lsctx.ServerVersion(ctx)
	if !ok {
		version = "unknown"
	}
	resp.SetResult(map[string]any{
		"version": version,
		"pid":     os.Getpid(),
	})
	return nil
}
