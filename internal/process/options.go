// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package process

import (
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/mitchellh/mapstructure"
)

const (
	defaultShell               = "/bin/sh"
	defaultSubprocPollInterval = time.Second
	defaultTerm                = "xterm-256color"
)

// Options control how a child process is launched.
type Options struct {
	// Environment overrides entries of the inherited environment
	Environment map[string]string `mapstructure:"environment"`
	WorkingDir  string            `mapstructure:"working_dir"`

	// Pty attaches the child to a pseudo-terminal of the given size
	Pty *PtyOptions `mapstructure:"pty"`

	// TerminateChildren places the child in its own process group
	// and makes termination target the whole group
	TerminateChildren bool `mapstructure:"terminate_children"`

	// Detach starts the child in a new session
	Detach bool `mapstructure:"detach"`

	StdoutFile             string `mapstructure:"stdout_file"`
	StderrFile             string `mapstructure:"stderr_file"`
	RedirectStderrToStdout bool   `mapstructure:"redirect_stderr_to_stdout"`

	ReportHasSubprocs   bool          `mapstructure:"report_has_subprocs"`
	SubprocPollInterval time.Duration `mapstructure:"subproc_poll_interval"`

	// Shell runs commands and terminals, defaults to /bin/sh
	// and $SHELL respectively
	Shell string `mapstructure:"shell"`

	// PreStart is called with the prepared command right before
	// it is started, e.g. to adjust SysProcAttr
	PreStart func(cmd *exec.Cmd) error `mapstructure:"-"`
}

type PtyOptions struct {
	Cols int `mapstructure:"cols"`
	Rows int `mapstructure:"rows"`
}

// DecodeOptions decodes options from a JSON-like map, as received
// in the kwparams of a request. Unknown keys are rejected.
func DecodeOptions(input map[string]any) (Options, error) {
	var opts Options

	config := &mapstructure.DecoderConfig{
		Result:      &opts,
		ErrorUnused: true,
		DecodeHook:  mapstructure.StringToTimeDurationHookFunc(),
	}
	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return opts, err
	}
	if err := decoder.Decode(input); err != nil {
		return opts, err
	}

	return opts, opts.Validate()
}

// ValidatePtySize checks that a terminal size fits a pty window.
func ValidatePtySize(cols, rows int) error {
	if cols <= 0 || rows <= 0 || cols > math.MaxUint16 || rows > math.MaxUint16 {
		return fmt.Errorf("invalid pty size %dx%d", cols, rows)
	}
	return nil
}

func (o Options) Validate() error {
	if o.Pty != nil {
		if err := ValidatePtySize(o.Pty.Cols, o.Pty.Rows); err != nil {
			return err
		}
		if o.StdoutFile != "" || o.StderrFile != "" {
			return errors.New("output redirection is not supported with a pty")
		}
	}
	if o.RedirectStderrToStdout && o.StderrFile != "" {
		return errors.New("stderr cannot be redirected to both stdout and a file")
	}
	if o.SubprocPollInterval < 0 {
		return fmt.Errorf("negative subprocess poll interval: %s", o.SubprocPollInterval)
	}
	return nil
}

func (o Options) subprocPollInterval() time.Duration {
	if o.SubprocPollInterval == 0 {
		return defaultSubprocPollInterval
	}
	return o.SubprocPollInterval
}

// ownGroup reports whether the child leads its own process group.
func (o Options) ownGroup() bool {
	return o.Pty != nil || o.Detach || o.TerminateChildren
}

func (o Options) workingDir() (string, error) {
	if o.WorkingDir == "" {
		return "", nil
	}
	return homedir.Expand(o.WorkingDir)
}

func (o Options) environ() []string {
	base := os.Environ()
	if len(o.Environment) == 0 && o.Pty == nil {
		return base
	}

	env := make(map[string]string, len(base))
	for _, kv := range base {
		k, v, _ := strings.Cut(kv, "=")
		env[k] = v
	}
	if o.Pty != nil {
		if _, ok := env["TERM"]; !ok {
			env["TERM"] = defaultTerm
		}
	}
	for k, v := range o.Environment {
		env[k] = v
	}

	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func expandPath(path string) (string, error) {
	return homedir.Expand(path)
}
