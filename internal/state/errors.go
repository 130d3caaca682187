// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package state

import (
	"errors"
	"fmt"
)

type AlreadyExistsError struct {
	Idx string
}

func (e *AlreadyExistsError) Error() string {
	if e.Idx != "" {
		return fmt.Sprintf("%s already exists", e.Idx)
	}
	return "already exists"
}

type RecordNotFoundError struct {
	Source string
}

func (e *RecordNotFoundError) Error() string {
	msg := "record not found"
	if e.Source != "" {
		return fmt.Sprintf("%s: %s", e.Source, msg)
	}

	return msg
}

func IsRecordNotFound(err error) bool {
	var rnfErr *RecordNotFoundError
	return errors.As(err, &rnfErr)
}

type callAlreadyDone struct {
	Handle string
}

func (e callAlreadyDone) Error() string {
	if e.Handle != "" {
		return fmt.Sprintf("async call %q is already done", e.Handle)
	}
	return "async call is already done"
}
