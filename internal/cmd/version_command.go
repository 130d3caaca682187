// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/hashicorp/sessionrpc/internal/handlers"
	"github.com/hashicorp/sessionrpc/internal/process"
	"github.com/hashicorp/sessionrpc/internal/rpc"
	"github.com/mitchellh/cli"
)

type VersionOutput struct {
	Version string `json:"version"`

	BuildGoVersion string `json:"go_version,omitempty"`
	BuildGoOS      string `json:"go_os,omitempty"`
	BuildGoArch    string `json:"go_arch,omitempty"`

	// Methods are the built-in RPC methods, listed with -methods
	Methods []string `json:"methods,omitempty"`
}

type VersionCommand struct {
	Ui        cli.Ui
	Version   string
	BuildInfo *BuildInfo

	jsonOutput  bool
	listMethods bool
}

type BuildInfo struct {
	GoVersion string
	GoOS      string
	GoArch    string
}

func (c *VersionCommand) flags() *flag.FlagSet {
	fs := defaultFlagSet("version")

	fs.BoolVar(&c.jsonOutput, "json", false, "output the version information as a JSON object")
	fs.BoolVar(&c.listMethods, "methods", false, "also list the built-in RPC methods")

	fs.Usage = func() { c.Ui.Error(c.Help()) }

	return fs
}

func (c *VersionCommand) Run(args []string) int {
	f := c.flags()
	if err := f.Parse(args); err != nil {
		c.Ui.Error(fmt.Sprintf("Error parsing command-line flags: %s", err))
		return 1
	}

	output := VersionOutput{Version: c.Version}
	if c.BuildInfo != nil {
		output.BuildGoVersion = c.BuildInfo.GoVersion
		output.BuildGoOS = c.BuildInfo.GoOS
		output.BuildGoArch = c.BuildInfo.GoArch
	}

	if c.listMethods {
		methods, err := builtinMethods()
		if err != nil {
			c.Ui.Error(fmt.Sprintf("Failed to list methods: %s", err))
			return 1
		}
		output.Methods = methods
	}

	if c.jsonOutput {
		jsonOutput, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			c.Ui.Error(fmt.Sprintf("\nError marshalling JSON: %s", err))
			return 1
		}
		c.Ui.Output(string(jsonOutput))
		return 0
	}

	ver := c.Version
	if output.BuildGoVersion != "" && output.BuildGoOS != "" && output.BuildGoArch != "" {
		ver = fmt.Sprintf("%s\ngo%s %s/%s", c.Version, output.BuildGoVersion, output.BuildGoOS, output.BuildGoArch)
	}
	if len(output.Methods) > 0 {
		ver += "\n\nMethods:\n  " + strings.Join(output.Methods, "\n  ")
	}

	c.Ui.Output(ver)
	return 0
}

// builtinMethods registers the built-in methods on a scratch registry.
// Nothing is started by registration.
func builtinMethods() ([]string, error) {
	reg := rpc.NewRegistry()
	err := handlers.Register(reg, handlers.Deps{
		Logger:     log.New(io.Discard, "", 0),
		Supervisor: process.NewSupervisor(),
	})
	if err != nil {
		return nil, err
	}
	return reg.Names(), nil
}

func (c *VersionCommand) Help() string {
	helpText := `
Usage: sessionrpc version [-json] [-methods]

` + c.Synopsis() + "\n\n" + helpForFlags(c.flags())

	return strings.TrimSpace(helpText)
}

func (c *VersionCommand) Synopsis() string {
	return "Displays the version of the session RPC server"
}
