// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package handlers

import (
	"fmt"
	"io"
	"log"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/sessionrpc/internal/process"
	"github.com/hashicorp/sessionrpc/internal/rpc"
	"github.com/hashicorp/sessionrpc/internal/session"
)

// Deps are the collaborators of the built-in methods.
type Deps struct {
	Logger     *log.Logger
	Supervisor *process.Supervisor

	// Session is shut down by quit_session, if set
	Session *session.Session
}

type service struct {
	logger   *log.Logger
	sup      *process.Supervisor
	sess     *session.Session
	registry *rpc.Registry
	outputs  *outputStore
}

var discardLogs = log.New(io.Discard, "", 0)

// Register adds the built-in methods to reg.
func Register(reg *rpc.Registry, deps Deps) error {
	if deps.Supervisor == nil {
		return fmt.Errorf("no process supervisor given")
	}
	svc := &service{
		logger:   deps.Logger,
		sup:      deps.Supervisor,
		sess:     deps.Session,
		registry: reg,
		outputs:  newOutputStore(),
	}
	if svc.logger == nil {
		svc.logger = discardLogs
	}

	var result *multierror.Error
	register := func(name string, m rpc.Method) {
		if err := reg.Register(name, m); err != nil {
			result = multierror.Append(result, err)
		}
	}

	register("echo", rpc.Sync(Echo))
	register("list_methods", rpc.Sync(svc.ListMethods))
	register("server_info", rpc.Sync(ServerInfo))
	register("quit_session", rpc.Sync(svc.QuitSession))

	register("system_command", rpc.AsyncDirect(svc.SystemCommand))
	register("system_command_async", rpc.AsyncIndirect(svc.SystemCommand))

	register("process_start", rpc.Sync(svc.ProcessStart))
	register("process_write_stdin", rpc.Sync(svc.ProcessWriteStdin))
	register("process_interrupt", rpc.Sync(svc.ProcessInterrupt))
	register("process_terminate", rpc.Sync(svc.ProcessTerminate))
	register("process_output", rpc.Sync(svc.ProcessOutput))

	register("terminal_start", rpc.Sync(svc.TerminalStart))
	register("terminal_resize", rpc.Sync(svc.TerminalResize))

	return result.ErrorOrNil()
}
