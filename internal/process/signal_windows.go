// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

//go:build windows

package process

import (
	"errors"
	"os"
	"syscall"
)

func sysProcAttr(opts Options) *syscall.SysProcAttr {
	return &syscall.SysProcAttr{}
}

func terminateChild(pid int, group, pty bool) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	err = p.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func interruptChild(pid int, group bool) error {
	return errors.New("interrupt is not supported on windows")
}
