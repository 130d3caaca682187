// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

// sessionState represents state of the session
// with respect to incoming requests
type sessionState int

const (
	// Before the session accepts requests
	stateStarting sessionState = 0
	// Serving requests
	stateActive sessionState = 1
	// Suspended, e.g. while its state is being saved
	stateSuspended sessionState = 2
	// After shutdown
	stateDown sessionState = 3
)

func (ss sessionState) String() string {
	switch ss {
	case stateStarting:
		return "starting"
	case stateActive:
		return "active"
	case stateSuspended:
		return "suspended"
	case stateDown:
		return "down"
	}
	return "<unknown>"
}
