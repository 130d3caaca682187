// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server-{{ pid }}.log")

	fl, err := NewFileLogger(path)
	if err != nil {
		t.Fatal(err)
	}
	fl.Logger().Printf("hello")
	if err := fl.Close(); err != nil {
		t.Fatal(err)
	}

	matches, err := filepath.Glob(filepath.Join(filepath.Dir(path), "server-*.log"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one log file, got %q", matches)
	}
	b, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "hello") {
		t.Fatalf("unexpected log content: %q", b)
	}
}

func TestNewFileLogger_relative(t *testing.T) {
	_, err := NewFileLogger("relative.log")
	if err == nil {
		t.Fatal("expected relative path to be rejected")
	}
}

func TestParseOutputPath(t *testing.T) {
	path, err := ParseOutputPath("system_command", "/tmp/{{ method }}.out")
	if err != nil {
		t.Fatal(err)
	}
	if path != "/tmp/system_command.out" {
		t.Fatalf("unexpected path: %q", path)
	}

	if err := ValidateOutputPath("/tmp/{{ method"); err == nil {
		t.Fatal("expected invalid template to fail")
	}
}
