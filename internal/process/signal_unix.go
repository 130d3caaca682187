// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package process

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"
)

func sysProcAttr(opts Options) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{}
	switch {
	case opts.Detach, opts.Pty != nil:
		attr.Setsid = true
	case opts.TerminateChildren:
		attr.Setpgid = true
	}
	return attr
}

func signalChild(pid int, group bool, sig syscall.Signal) error {
	target := pid
	if group {
		target = -pid
	}
	err := unix.Kill(target, sig)
	if errors.Is(err, unix.ESRCH) {
		return nil
	}
	return err
}

func terminateChild(pid int, group, pty bool) error {
	if pty {
		// interactive shells ignore SIGTERM but exit on hangup
		if err := signalChild(pid, group, unix.SIGHUP); err != nil {
			return err
		}
	}
	return signalChild(pid, group, unix.SIGTERM)
}

func interruptChild(pid int, group bool) error {
	return signalChild(pid, group, unix.SIGINT)
}
