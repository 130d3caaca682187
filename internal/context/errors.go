// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package context

import (
	"fmt"

	"github.com/hashicorp/sessionrpc/internal/jsonrpc"
)

// MissingContextErr reports server state which was never attached
// to the request context. Callers see it as Unavailable.
type MissingContextErr struct {
	CtxKey *contextKey
}

func (e *MissingContextErr) Error() string {
	return fmt.Sprintf("missing context: %s", e.CtxKey)
}

func (e *MissingContextErr) Category() string {
	return jsonrpc.Category
}

func (e *MissingContextErr) ErrorCode() int {
	return int(jsonrpc.Unavailable)
}

func (e *MissingContextErr) Properties() map[string]any {
	return map[string]any{
		jsonrpc.DescriptionProperty: fmt.Sprintf("%s is not available in this server", e.CtxKey),
	}
}
