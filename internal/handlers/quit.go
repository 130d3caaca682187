// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package handlers

import (
	"context"

	lsctx "github.com/hashicorp/sessionrpc/internal/context"
	"github.com/hashicorp/sessionrpc/internal/jsonrpc"
)

// QuitSession shuts the session down and stops the server once
// the response has been delivered.
func (svc *service) QuitSession(ctx context.Context, req *jsonrpc.Request, resp *jsonrpc.Response) error {
	quit, err := lsctx.QuitFunc(ctx)
	if err != nil {
		return err
	}

	if svc.sess != nil {
		err = svc.sess.Shutdown("quit requested")
		if err != nil {
			return err
		}
	}

	err = svc.sup.TerminateAll()
	if err != nil {
		svc.logger.Printf("failed to terminate processes on quit: %s", err)
	}

	resp.SetResult(true)
	resp.SetAfterResponse(quit)
	return nil
}
