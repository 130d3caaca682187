// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package handlers

import (
	"context"
	"fmt"

	"github.com/hashicorp/sessionrpc/internal/jsonrpc"
	"github.com/hashicorp/sessionrpc/internal/process"
)

// ProcessStart starts params[0] with the shell and returns the id of
// the process. Its output is collected with process_output.
func (svc *service) ProcessStart(ctx context.Context, req *jsonrpc.Request, resp *jsonrpc.Response) error {
	var command string
	err := jsonrpc.ReadParam(req.Params, 0, &command)
	if err != nil {
		return err
	}
	opts, err := readOptions(ctx, req.KWParams)
	if err != nil {
		return err
	}

	id, err := svc.start(func(cb process.Callbacks) (process.ChildID, error) {
		return svc.sup.RunCommand(command, opts, cb)
	})
	if err != nil {
		return err
	}

	resp.SetResult(map[string]any{"id": id})
	return nil
}

// start runs a process whose output and exit are buffered
// in the output store.
func (svc *service) start(run func(process.Callbacks) (process.ChildID, error)) (process.ChildID, error) {
	cb := svc.outputs.callbacks()

	// callbacks run on the polling goroutine, OnStarted first
	var id process.ChildID
	cb.OnStarted = func(ops process.Operations) {
		id = ops.ID()
		svc.logger.Printf("process %d started", id)
	}
	cb.OnConsoleOutputSnapshot = func() string {
		return svc.outputs.consoleTail(id)
	}
	cb.OnExit = func(exitStatus int) {
		svc.outputs.exit(id, exitStatus)
	}

	childID, err := run(cb)
	if err != nil {
		return 0, err
	}
	svc.outputs.track(childID)

	return childID, nil
}

func (svc *service) ProcessWriteStdin(ctx context.Context, req *jsonrpc.Request, resp *jsonrpc.Response) error {
	ops, err := svc.operations(req.Params)
	if err != nil {
		return err
	}
	var input string
	err = jsonrpc.ReadParam(req.Params, 1, &input)
	if err != nil {
		return err
	}
	var eof bool
	err = jsonrpc.ReadObjectOptional(req.KWParams, "eof", false, &eof)
	if err != nil {
		return err
	}

	return ops.WriteInput(input, eof)
}

// ProcessInterrupt sends ^C to terminals and SIGINT to
// other processes.
func (svc *service) ProcessInterrupt(ctx context.Context, req *jsonrpc.Request, resp *jsonrpc.Response) error {
	ops, err := svc.operations(req.Params)
	if err != nil {
		return err
	}
	return ops.PtyInterrupt()
}

func (svc *service) ProcessTerminate(ctx context.Context, req *jsonrpc.Request, resp *jsonrpc.Response) error {
	ops, err := svc.operations(req.Params)
	if err != nil {
		return err
	}
	return ops.Terminate()
}

// ProcessOutput returns output buffered since the last call. Once
// "exited" is reported the process is forgotten.
func (svc *service) ProcessOutput(ctx context.Context, req *jsonrpc.Request, resp *jsonrpc.Response) error {
	id, err := readChildID(req.Params, 0)
	if err != nil {
		return err
	}

	out, ok := svc.outputs.take(id)
	if !ok {
		return unknownProcessErr(id, process.ErrProcessNotFound)
	}
	resp.SetResult(out)
	return nil
}

func (svc *service) operations(params []any) (process.Operations, error) {
	id, err := readChildID(params, 0)
	if err != nil {
		return process.Operations{}, err
	}
	ops, err := svc.sup.Operations(id)
	if err != nil {
		return ops, unknownProcessErr(id, err)
	}
	return ops, nil
}

func readChildID(params []any, index int) (process.ChildID, error) {
	var id int64
	err := jsonrpc.ReadParam(params, index, &id)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		rpcErr := jsonrpc.NewError(jsonrpc.ParamInvalid, nil)
		return 0, rpcErr.WithProperty(jsonrpc.DescriptionProperty,
			fmt.Sprintf("invalid process id %d", id))
	}
	return process.ChildID(id), nil
}

func unknownProcessErr(id process.ChildID, err error) error {
	rpcErr := jsonrpc.NewError(jsonrpc.ParamInvalid, err)
	return rpcErr.WithProperty(jsonrpc.DescriptionProperty,
		fmt.Sprintf("unknown process %d", id))
}
