// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"fmt"

	"github.com/hashicorp/sessionrpc/internal/jsonrpc"
)

type unexpectedSessionState struct {
	ExpectedState sessionState
	CurrentState  sessionState
}

func (e *unexpectedSessionState) Error() string {
	return fmt.Sprintf("session is not %s, current state: %s",
		e.ExpectedState, e.CurrentState)
}

// SessionNotActiveErr maps the current state to the error code
// clients act upon.
func SessionNotActiveErr(state sessionState) error {
	uss := &unexpectedSessionState{
		ExpectedState: stateActive,
		CurrentState:  state,
	}
	switch state {
	case stateDown, stateStarting:
		return jsonrpc.NewError(jsonrpc.ServerOffline, uss)
	case stateSuspended:
		return jsonrpc.NewError(jsonrpc.InvalidSession, uss)
	}
	return uss
}

func SessionAlreadyDownErr(reason string) error {
	return jsonrpc.NewError(jsonrpc.ServerOffline,
		fmt.Errorf("session was already shut down: %s", reason))
}

func InvalidClientIDErr(clientID string) error {
	err := jsonrpc.NewError(jsonrpc.InvalidClientId, nil)
	err.WithProperty(jsonrpc.DescriptionProperty,
		fmt.Sprintf("unknown client id %q", clientID))
	return err
}

func InvalidClientVersionErr(got, expected string) error {
	err := jsonrpc.NewError(jsonrpc.InvalidClientVersion, nil)
	err.WithProperty(jsonrpc.DescriptionProperty,
		fmt.Sprintf("client version %q does not match %q", got, expected))
	return err
}
