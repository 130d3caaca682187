// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package process

import (
	"errors"

	"github.com/shirou/gopsutil/v4/process"
)

// SubprocsFunc reports whether the process with the given pid
// has child processes.
type SubprocsFunc func(pid int) (bool, error)

func hasSubprocesses(pid int) (bool, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return false, err
	}

	children, err := p.Children()
	if err != nil {
		if errors.Is(err, process.ErrorNoChildren) {
			return false, nil
		}
		return false, err
	}

	return len(children) > 0, nil
}
