// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package handlers

import (
	"context"

	"github.com/hashicorp/sessionrpc/internal/jsonrpc"
	"github.com/hashicorp/sessionrpc/internal/process"
)

const (
	defaultTerminalCols = 80
	defaultTerminalRows = 25
)

// TerminalStart starts an interactive shell on a pty. kwparams may
// set "cols", "rows" and "shell".
func (svc *service) TerminalStart(ctx context.Context, req *jsonrpc.Request, resp *jsonrpc.Response) error {
	var cols, rows int
	var shell string
	err := jsonrpc.ReadObjectOptional(req.KWParams, "cols", defaultTerminalCols, &cols)
	if err != nil {
		return err
	}
	err = jsonrpc.ReadObjectOptional(req.KWParams, "rows", defaultTerminalRows, &rows)
	if err != nil {
		return err
	}
	err = jsonrpc.ReadObjectOptional(req.KWParams, "shell", "", &shell)
	if err != nil {
		return err
	}

	opts := process.Options{
		Pty:               &process.PtyOptions{Cols: cols, Rows: rows},
		Shell:             shell,
		ReportHasSubprocs: true,
	}
	if err := opts.Validate(); err != nil {
		return jsonrpc.NewError(jsonrpc.ParamInvalid, err)
	}

	id, err := svc.start(func(cb process.Callbacks) (process.ChildID, error) {
		cb.OnHasSubprocs = func(busy bool) {
			svc.logger.Printf("terminal busy: %t", busy)
		}
		return svc.sup.RunTerminal(opts, cb)
	})
	if err != nil {
		return err
	}

	resp.SetResult(map[string]any{"id": id})
	return nil
}

func (svc *service) TerminalResize(ctx context.Context, req *jsonrpc.Request, resp *jsonrpc.Response) error {
	ops, err := svc.operations(req.Params)
	if err != nil {
		return err
	}
	var cols, rows int
	err = jsonrpc.ReadParams(req.Params[1:], &cols, &rows)
	if err != nil {
		return err
	}
	if err := process.ValidatePtySize(cols, rows); err != nil {
		rpcErr := jsonrpc.NewError(jsonrpc.ParamInvalid, err)
		return rpcErr.WithProperty(jsonrpc.DescriptionProperty, err.Error())
	}

	return ops.PtyResize(cols, rows)
}
