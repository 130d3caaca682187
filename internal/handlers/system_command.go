// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package handlers

import (
	"context"

	lsctx "github.com/hashicorp/sessionrpc/internal/context"
	"github.com/hashicorp/sessionrpc/internal/jsonrpc"
	"github.com/hashicorp/sessionrpc/internal/logging"
	"github.com/hashicorp/sessionrpc/internal/process"
	"github.com/hashicorp/sessionrpc/internal/rpc"
)

// SystemCommand runs params[0] with the shell and completes with its
// output and exit status. kwparams may carry "input" for stdin and
// process "options".
func (svc *service) SystemCommand(ctx context.Context, req *jsonrpc.Request, cont *rpc.Continuation) {
	var command string
	err := jsonrpc.ReadParam(req.Params, 0, &command)
	if err != nil {
		cont.Fail(err)
		return
	}

	var input string
	err = jsonrpc.ReadObjectOptional(req.KWParams, "input", "", &input)
	if err != nil {
		cont.Fail(err)
		return
	}

	opts, err := readOptions(ctx, req.KWParams)
	if err != nil {
		cont.Fail(err)
		return
	}

	_, err = svc.sup.RunCommandResult(command, input, opts, func(r process.Result) {
		cont.Result(resultValue(r))
	})
	if err != nil {
		cont.Fail(err)
	}
}

func resultValue(r process.Result) map[string]any {
	return map[string]any{
		"stdout":      r.StdOut,
		"stderr":      r.StdErr,
		"exit_status": r.ExitStatus,
	}
}

// readOptions decodes the "options" object of kwparams. Output
// file paths are templates which may refer to the {{ method }}.
func readOptions(ctx context.Context, kwparams map[string]any) (process.Options, error) {
	var raw map[string]any
	err := jsonrpc.ReadObjectOptional(kwparams, "options", map[string]any(nil), &raw)
	if err != nil {
		return process.Options{}, err
	}
	if raw == nil {
		return process.Options{}, nil
	}

	opts, err := process.DecodeOptions(raw)
	if err != nil {
		rpcErr := jsonrpc.NewError(jsonrpc.ParamInvalid, err)
		return opts, rpcErr.WithProperty(jsonrpc.DescriptionProperty, err.Error())
	}

	method, _ := lsctx.RPCMethod(ctx)
	for _, path := range []*string{&opts.StdoutFile, &opts.StderrFile} {
		if *path == "" {
			continue
		}
		*path, err = logging.ParseOutputPath(method, *path)
		if err != nil {
			return opts, jsonrpc.NewError(jsonrpc.ParamInvalid, err)
		}
	}
	return opts, nil
}
