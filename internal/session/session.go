// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-version"
	"github.com/hashicorp/sessionrpc/internal/jsonrpc"
)

// Session tracks the client bound to this server and whether
// requests are currently accepted. It implements rpc.Validator.
type Session struct {
	mu sync.RWMutex

	clientID         string
	serverVersion    float64
	clientVersion    string
	minClientVersion *version.Version

	// exempt methods skip client checks, e.g. to establish a client
	exempt map[string]bool

	activeTime time.Time

	downReason string
	downTime   time.Time

	state    sessionState
	exitFunc context.CancelFunc
}

func NewSession(exitFunc context.CancelFunc) *Session {
	return &Session{
		state:    stateStarting,
		exempt:   make(map[string]bool),
		exitFunc: exitFunc,
	}
}

// SetClientID binds the session to clientID. An empty ID accepts
// any client.
func (s *Session) SetClientID(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientID = clientID
}

func (s *Session) ClientID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientID
}

// SetServerVersion sets the protocol version requests of legacy
// clients are compared against.
func (s *Session) SetServerVersion(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serverVersion = v
}

// SetClientVersion sets the exact client build expected.
func (s *Session) SetClientVersion(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientVersion = v
}

func (s *Session) SetMinClientVersion(v *version.Version) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.minClientVersion = v
}

// Exempt excludes methods from client checks.
func (s *Session) Exempt(methods ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range methods {
		s.exempt[m] = true
	}
}

func (s *Session) Activate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateStarting {
		return &unexpectedSessionState{
			ExpectedState: stateStarting,
			CurrentState:  s.state,
		}
	}
	s.state = stateActive
	s.activeTime = time.Now()
	return nil
}

func (s *Session) Suspend() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateActive {
		return SessionNotActiveErr(s.state)
	}
	s.state = stateSuspended
	return nil
}

func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != stateSuspended {
		return &unexpectedSessionState{
			ExpectedState: stateSuspended,
			CurrentState:  s.state,
		}
	}
	s.state = stateActive
	return nil
}

// Shutdown stops accepting requests. Requests received afterwards
// fail with ServerOffline.
func (s *Session) Shutdown(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateDown {
		return SessionAlreadyDownErr(s.downReason)
	}
	s.downReason = reason
	s.downTime = time.Now()
	s.state = stateDown
	return nil
}

// Exit ends the session, which must be down or not yet started.
func (s *Session) Exit() error {
	s.mu.RLock()
	state := s.state
	s.mu.RUnlock()

	if state != stateDown && state != stateStarting {
		return fmt.Errorf("cannot exit as session is %s", state)
	}
	if s.exitFunc != nil {
		s.exitFunc()
	}
	return nil
}

func (s *Session) State() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.String()
}

func (s *Session) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == stateActive
}

// Validate checks req against the bound client and the state of
// the session.
func (s *Session) Validate(req *jsonrpc.Request) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.exempt[req.Method] {
		if s.clientID != "" && req.ClientID != s.clientID {
			return InvalidClientIDErr(req.ClientID)
		}
		if err := s.validateVersion(req); err != nil {
			return err
		}
	}

	if s.state != stateActive {
		return SessionNotActiveErr(s.state)
	}
	return nil
}

func (s *Session) validateVersion(req *jsonrpc.Request) error {
	// legacy clients only send a numeric protocol version
	if req.Version > 0 && s.serverVersion > req.Version {
		err := jsonrpc.NewError(jsonrpc.InvalidClientVersion, nil)
		err.WithProperty(jsonrpc.DescriptionProperty,
			fmt.Sprintf("protocol version %v is older than %v", req.Version, s.serverVersion))
		return err
	}

	if req.ClientVersion == "" {
		return nil
	}
	if s.clientVersion != "" && req.ClientVersion != s.clientVersion {
		return InvalidClientVersionErr(req.ClientVersion, s.clientVersion)
	}
	if s.minClientVersion != nil {
		v, err := version.NewVersion(req.ClientVersion)
		if err != nil {
			return jsonrpc.NewError(jsonrpc.InvalidClientVersion, err)
		}
		if v.LessThan(s.minClientVersion) {
			return InvalidClientVersionErr(req.ClientVersion, ">= "+s.minClientVersion.String())
		}
	}
	return nil
}
