// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package pathtpl

import (
	"io"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/mitchellh/go-homedir"
)

type TemplatedPath interface {
	Parse(text string) (*template.Template, error)
	Funcs(funcMap template.FuncMap) *template.Template
	Execute(wr io.Writer, data interface{}) error
}

func NewPath(name string) TemplatedPath {
	tpl := template.New(name)
	tpl = tpl.Funcs(template.FuncMap{
		"timestamp": time.Now().Local().Unix,
		"pid":       os.Getpid,
		"ppid":      os.Getppid,
		"home":      homedir.Dir,
	})

	return tpl
}

// ParseRawPath executes rawPath as a template and expands
// a leading ~ of the result.
func ParseRawPath(name string, rawPath string) (string, error) {
	tpl, err := NewPath(name).Parse(rawPath)
	if err != nil {
		return "", err
	}

	return execute(tpl)
}

// ParseRawPathFuncs is ParseRawPath with additional functions.
func ParseRawPathFuncs(name string, rawPath string, funcs template.FuncMap) (string, error) {
	tpl, err := NewPath(name).Funcs(funcs).Parse(rawPath)
	if err != nil {
		return "", err
	}

	return execute(tpl)
}

func execute(tpl *template.Template) (string, error) {
	buf := &strings.Builder{}
	err := tpl.Execute(buf, nil)
	if err != nil {
		return "", err
	}

	return homedir.Expand(buf.String())
}
