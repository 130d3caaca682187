// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/creachadair/jrpc2"
	"github.com/hashicorp/sessionrpc/internal/jsonrpc"
)

// maxLoggedBody caps how much of params and results ends up in the
// log, as process output can be large.
const maxLoggedBody = 1024

type rpcLogger struct {
	logger *log.Logger
}

func (rl *rpcLogger) LogRequest(ctx context.Context, req *jrpc2.Request) {
	var params json.RawMessage
	req.UnmarshalParams(&params)

	kind := "params"
	if len(params) > 0 && params[0] == '{' {
		kind = "kwparams"
	}

	rl.logger.Printf("BRIDGE: %q%s %s: %s", req.Method(), idSuffix(req.ID()),
		kind, truncate(params))
}

func (rl *rpcLogger) LogResponse(ctx context.Context, rsp *jrpc2.Response) {
	req := jrpc2.InboundRequest(ctx)
	method := "<unknown>"
	if req != nil {
		method = req.Method()
	}

	if rerr := rsp.Error(); rerr != nil {
		rl.logger.Printf("BRIDGE: %q%s failed (%s): %s", method, idSuffix(rsp.ID()),
			codeName(rerr.Code), rerr.Message)
		return
	}

	var body json.RawMessage
	rsp.UnmarshalResult(&body)
	rl.logger.Printf("BRIDGE: %q%s returned: %s", method, idSuffix(rsp.ID()), truncate(body))
}

func idSuffix(id string) string {
	if id == "" {
		return " (notification)"
	}
	return fmt.Sprintf(" (ID %s)", id)
}

// codeName names codes of the envelope taxonomy and falls back to
// jrpc2's names for the standard JSON-RPC 2.0 ones.
func codeName(code jrpc2.Code) string {
	if code >= 0 {
		return fmt.Sprintf("%d %s", code, jsonrpc.Code(code).Message())
	}
	return fmt.Sprintf("%d %s", code, code.String())
}

func truncate(body []byte) string {
	if len(body) <= maxLoggedBody {
		return string(body)
	}
	return fmt.Sprintf("%s... (%d bytes)", body[:maxLoggedBody], len(body))
}
