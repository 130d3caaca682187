// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package process

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestDecodeOptions(t *testing.T) {
	input := map[string]any{
		"environment":           map[string]any{"FOO": "bar"},
		"working_dir":           "/tmp",
		"pty":                   map[string]any{"cols": json.Number("120"), "rows": json.Number("40")},
		"terminate_children":    true,
		"report_has_subprocs":   true,
		"subproc_poll_interval": "250ms",
	}

	opts, err := DecodeOptions(input)
	if err != nil {
		t.Fatal(err)
	}

	expected := Options{
		Environment:         map[string]string{"FOO": "bar"},
		WorkingDir:          "/tmp",
		Pty:                 &PtyOptions{Cols: 120, Rows: 40},
		TerminateChildren:   true,
		ReportHasSubprocs:   true,
		SubprocPollInterval: 250 * time.Millisecond,
	}
	if diff := cmp.Diff(expected, opts, cmpopts.IgnoreFields(Options{}, "PreStart")); diff != "" {
		t.Fatalf("unexpected options: %s", diff)
	}
}

func TestDecodeOptions_unknownKey(t *testing.T) {
	_, err := DecodeOptions(map[string]any{"unknown_option": true})
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	if !strings.Contains(err.Error(), "unknown_option") {
		t.Fatalf("unexpected error: %s", err)
	}
}

func TestOptions_Validate(t *testing.T) {
	testCases := []struct {
		name  string
		opts  Options
		valid bool
	}{
		{"empty", Options{}, true},
		{"pty", Options{Pty: &PtyOptions{Cols: 80, Rows: 25}}, true},
		{"zero pty size", Options{Pty: &PtyOptions{}}, false},
		{"max pty size", Options{Pty: &PtyOptions{Cols: 65535, Rows: 65535}}, true},
		{"pty cols overflow", Options{Pty: &PtyOptions{Cols: 70000, Rows: 25}}, false},
		{"pty rows overflow", Options{Pty: &PtyOptions{Cols: 80, Rows: 65536}}, false},
		{"pty with stdout file", Options{Pty: &PtyOptions{Cols: 80, Rows: 25}, StdoutFile: "out.log"}, false},
		{"stderr twice", Options{RedirectStderrToStdout: true, StderrFile: "err.log"}, false},
		{"negative poll interval", Options{SubprocPollInterval: -time.Second}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.opts.Validate()
			if tc.valid && err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if !tc.valid && err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestOptions_environ(t *testing.T) {
	t.Setenv("TERM", "")
	t.Setenv("SESSIONRPC_BASE", "base")

	opts := Options{
		Environment: map[string]string{"SESSIONRPC_BASE": "override"},
		Pty:         &PtyOptions{Cols: 80, Rows: 25},
	}
	env := opts.environ()

	if !contains(env, "SESSIONRPC_BASE=override") {
		t.Fatalf("expected override in environment: %q", env)
	}
	// an inherited TERM wins over the default, even if empty
	if !contains(env, "TERM=") {
		t.Fatalf("expected TERM to be kept: %q", env)
	}
}

func contains(env []string, kv string) bool {
	for _, e := range env {
		if e == kv {
			return true
		}
	}
	return false
}
