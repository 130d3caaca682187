// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package process

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupervisor_RunProgramResult(t *testing.T) {
	s := NewSupervisor()

	var results []Result
	_, err := s.RunProgramResult("cat", nil, "some input", Options{}, func(r Result) {
		results = append(results, r)
	})
	require.NoError(t, err)

	waitForChildren(t, s)

	require.Len(t, results, 1)
	assert.Equal(t, Result{StdOut: "some input", ExitStatus: 0}, results[0])
	assert.NoError(t, results[0].Err("cat", nil))
}

func TestSupervisor_RunCommandResult_failure(t *testing.T) {
	s := NewSupervisor()

	var result Result
	_, err := s.RunCommandResult("echo partial; echo broken >&2; exit 2", "", Options{}, func(r Result) {
		result = r
	})
	require.NoError(t, err)

	waitForChildren(t, s)

	assert.Equal(t, "partial\n", result.StdOut)
	assert.Equal(t, "broken\n", result.StdErr)
	assert.Equal(t, 2, result.ExitStatus)

	err = result.Err("/bin/sh", []string{"-c", "exit 2"})
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, Category, exitErr.Category())
	assert.Equal(t, 2, exitErr.ErrorCode())
	assert.False(t, exitErr.Terminated())
	assert.Equal(t, "broken\n", exitErr.Properties()["stderr"])
}
