// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package state

import (
	"context"
	"log"
	"time"

	"github.com/hashicorp/go-memdb"
	"github.com/hashicorp/go-uuid"
)

// AsyncCallStore tracks methods which replied with an async handle
// and delivers their eventual responses.
type AsyncCallStore struct {
	db        *memdb.MemDB
	tableName string
	logger    *log.Logger

	TimeProvider func() time.Time
}

type CallState uint

const (
	CallPending CallState = iota
	CallDone
)

func (cs CallState) String() string {
	switch cs {
	case CallPending:
		return "pending"
	case CallDone:
		return "done"
	}
	return "<unknown>"
}

type AsyncCall struct {
	Handle string
	Method string
	State  CallState

	// Response is the serialized response once State is CallDone
	Response map[string]any

	StartTime  time.Time
	FinishTime time.Time
}

func (ac *AsyncCall) Copy() *AsyncCall {
	return &AsyncCall{
		Handle:     ac.Handle,
		Method:     ac.Method,
		State:      ac.State,
		Response:   ac.Response,
		StartTime:  ac.StartTime,
		FinishTime: ac.FinishTime,
	}
}

// Begin records a new pending call of method and returns its handle.
func (s *AsyncCallStore) Begin(method string) (string, error) {
	handle, err := uuid.GenerateUUID()
	if err != nil {
		return "", err
	}

	txn := s.db.Txn(true)
	defer txn.Abort()

	obj, err := txn.First(s.tableName, "id", handle)
	if err != nil {
		return "", err
	}
	if obj != nil {
		return "", &AlreadyExistsError{Idx: handle}
	}

	err = txn.Insert(s.tableName, &AsyncCall{
		Handle:    handle,
		Method:    method,
		State:     CallPending,
		StartTime: s.TimeProvider(),
	})
	if err != nil {
		return "", err
	}

	s.logger.Printf("ASYNC: Began call %q of %q", handle, method)

	txn.Commit()

	return handle, nil
}

// Complete stores the response of a pending call.
func (s *AsyncCallStore) Complete(handle string, response map[string]any) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	call, err := copyCall(txn, handle)
	if err != nil {
		return err
	}
	if call.State == CallDone {
		return callAlreadyDone{Handle: handle}
	}

	call.State = CallDone
	call.Response = response
	call.FinishTime = s.TimeProvider()

	err = txn.Insert(s.tableName, call)
	if err != nil {
		return err
	}

	s.logger.Printf("ASYNC: Completed call %q of %q in %s",
		handle, call.Method, call.FinishTime.Sub(call.StartTime))

	txn.Commit()

	return nil
}

func (s *AsyncCallStore) Get(handle string) (*AsyncCall, error) {
	txn := s.db.Txn(false)
	return copyCall(txn, handle)
}

// Await blocks until the call identified by handle is done
// or ctx is cancelled.
func (s *AsyncCallStore) Await(ctx context.Context, handle string) (*AsyncCall, error) {
	txn := s.db.Txn(false)

	wCh, obj, err := txn.FirstWatch(s.tableName, "id", handle)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, &RecordNotFoundError{Source: handle}
	}

	call := obj.(*AsyncCall)
	if call.State == CallDone {
		return call.Copy(), nil
	}

	select {
	case <-wCh:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return s.Await(ctx, handle)
}

// Remove forgets the call, typically after its response
// was delivered.
func (s *AsyncCallStore) Remove(handle string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	obj, err := txn.First(s.tableName, "id", handle)
	if err != nil {
		return err
	}
	if obj == nil {
		return &RecordNotFoundError{Source: handle}
	}

	err = txn.Delete(s.tableName, obj)
	if err != nil {
		return err
	}

	txn.Commit()
	return nil
}

// ListPending returns handles of calls which have not completed yet.
func (s *AsyncCallStore) ListPending() ([]string, error) {
	txn := s.db.Txn(false)

	it, err := txn.Get(s.tableName, "state", CallPending)
	if err != nil {
		return nil, err
	}

	handles := make([]string, 0)
	for obj := it.Next(); obj != nil; obj = it.Next() {
		handles = append(handles, obj.(*AsyncCall).Handle)
	}

	return handles, nil
}

// PruneDone removes completed calls finished before the given time
// and returns how many were removed.
func (s *AsyncCallStore) PruneDone(before time.Time) (int, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	// pending calls carry a zero FinishTime and sort first
	it, err := txn.ReverseLowerBound(s.tableName, "finish_time", before)
	if err != nil {
		return 0, err
	}

	stale := make([]*AsyncCall, 0)
	for obj := it.Next(); obj != nil; obj = it.Next() {
		call := obj.(*AsyncCall)
		if call.State == CallDone && call.FinishTime.Before(before) {
			stale = append(stale, call)
		}
	}

	for _, call := range stale {
		err = txn.Delete(s.tableName, call)
		if err != nil {
			return 0, err
		}
	}

	txn.Commit()

	if len(stale) > 0 {
		s.logger.Printf("ASYNC: Pruned %d completed calls", len(stale))
	}
	return len(stale), nil
}

func copyCall(txn *memdb.Txn, handle string) (*AsyncCall, error) {
	obj, err := txn.First(asyncCallsTableName, "id", handle)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, &RecordNotFoundError{Source: handle}
	}
	return obj.(*AsyncCall).Copy(), nil
}
