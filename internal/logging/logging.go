// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"text/template"

	"github.com/hashicorp/sessionrpc/internal/pathtpl"
)

func NewLogger(w io.Writer) *log.Logger {
	return log.New(w, "", log.LstdFlags|log.Lshortfile)
}

type fileLogger struct {
	l *log.Logger
	f *os.File
}

func NewFileLogger(rawPath string) (*fileLogger, error) {
	path, err := parseLogPath(rawPath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse path: %w", err)
	}

	if !filepath.IsAbs(path) {
		return nil, fmt.Errorf("please provide absolute log path to prevent ambiguity (given: %q)",
			path)
	}

	mode := os.O_TRUNC | os.O_CREATE | os.O_WRONLY
	file, err := os.OpenFile(path, mode, 0600)
	if err != nil {
		return nil, err
	}

	return &fileLogger{
		l: NewLogger(file),
		f: file,
	}, nil
}

func parseLogPath(rawPath string) (string, error) {
	return pathtpl.ParseRawPath("log-file", rawPath)
}

func ValidateOutputPath(rawPath string) error {
	_, err := ParseOutputPath("", rawPath)
	return err
}

// ParseOutputPath expands the path process output is redirected to.
// Besides the common functions it may use {{ method }}, the RPC
// method which started the process.
func ParseOutputPath(method string, rawPath string) (string, error) {
	return pathtpl.ParseRawPathFuncs("output-file", rawPath, template.FuncMap{
		"method": func() string {
			return method
		},
	})
}

func (fl *fileLogger) Logger() *log.Logger {
	return fl.l
}

func (fl *fileLogger) Close() error {
	return fl.f.Close()
}
