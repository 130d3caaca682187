// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestDecodeOptions_nil(t *testing.T) {
	out, err := DecodeOptions(nil)
	if err != nil {
		t.Fatal(err)
	}
	opts := out.Options

	if opts.ExemptMethods != nil {
		t.Fatalf("expected no options for nil, %#v given", opts.ExemptMethods)
	}
}

func TestDecodeOptions_wrongType(t *testing.T) {
	_, err := DecodeOptions(map[string]interface{}{
		"exemptMethods": "client_init",
	})
	if err == nil {
		t.Fatal("expected decoding of wrong type to result in error")
	}
}

func TestDecodeOptions_success(t *testing.T) {
	out, err := DecodeOptions(map[string]interface{}{
		"clientId":      "abc",
		"exemptMethods": []string{"client_init"},
		"pollInterval":  "50ms",
		"unknown":       true,
	})
	if err != nil {
		t.Fatal(err)
	}

	expected := &Options{
		ClientID:      "abc",
		ExemptMethods: []string{"client_init"},
		PollInterval:  50 * time.Millisecond,
	}
	if diff := cmp.Diff(expected, out.Options); diff != "" {
		t.Fatalf("options mismatch: %s", diff)
	}
	if diff := cmp.Diff([]string{"unknown"}, out.UnusedKeys); diff != "" {
		t.Fatalf("unused keys mismatch: %s", diff)
	}
}

func TestOptions_Validate(t *testing.T) {
	testCases := []struct {
		name  string
		opts  *Options
		valid bool
	}{
		{"empty", &Options{}, true},
		{"min version", &Options{MinClientVersion: "1.2.0"}, true},
		{"invalid min version", &Options{MinClientVersion: "one"}, false},
		{"negative protocol version", &Options{ProtocolVersion: -1}, false},
		{"negative poll interval", &Options{PollInterval: -time.Second}, false},
		{"relative working dir", &Options{WorkingDir: "./relative/path"}, false},
		{"working dir", &Options{WorkingDir: t.TempDir()}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.opts.Validate()
			if tc.valid && err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
			if !tc.valid && err == nil {
				t.Fatal("expected validation to fail")
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	err := os.WriteFile(path, []byte(`{"clientVersion": "2.0.1", "asyncRetention": "10m"}`), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	out, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if out.Options.ClientVersion != "2.0.1" {
		t.Fatalf("unexpected client version: %q", out.Options.ClientVersion)
	}
	if out.Options.AsyncRetention != 10*time.Minute {
		t.Fatalf("unexpected retention: %s", out.Options.AsyncRetention)
	}
}
