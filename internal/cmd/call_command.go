// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/sessionrpc/internal/rpcclient"
	"github.com/mitchellh/cli"
)

type CallCommand struct {
	Ui cli.Ui

	// flags
	url           string
	clientID      string
	clientVersion string
	kwparams      string
	background    bool
	timeout       time.Duration
}

func (c *CallCommand) flags() *flag.FlagSet {
	fs := defaultFlagSet("call")

	fs.StringVar(&c.url, "url", "http://"+defaultHTTPAddress, "base URL of the server")
	fs.StringVar(&c.clientID, "client-id", "", "client ID to send with the request")
	fs.StringVar(&c.clientVersion, "client-version", "", "client version to send with the request")
	fs.StringVar(&c.kwparams, "kwparams", "", "named parameters as a JSON object")
	fs.BoolVar(&c.background, "background", false, "send the request as a background request")
	fs.DurationVar(&c.timeout, "timeout", 5*time.Minute, "how long to wait for the response")

	fs.Usage = func() { c.Ui.Error(c.Help()) }

	return fs
}

func (c *CallCommand) Run(args []string) int {
	f := c.flags()
	if err := f.Parse(args); err != nil {
		c.Ui.Error(fmt.Sprintf("Error parsing command-line flags: %s", err))
		return 1
	}

	if f.NArg() < 1 || f.NArg() > 2 {
		c.Ui.Error(fmt.Sprintf("expected method and optional params, %d arguments given", f.NArg()))
		return 1
	}
	method := f.Arg(0)

	var params []any
	if f.NArg() == 2 {
		err := decodeJSON(f.Arg(1), &params)
		if err != nil {
			c.Ui.Error(fmt.Sprintf("Failed to parse params: %s", err))
			return 1
		}
	}

	var kwparams map[string]any
	if c.kwparams != "" {
		err := decodeJSON(c.kwparams, &kwparams)
		if err != nil {
			c.Ui.Error(fmt.Sprintf("Failed to parse kwparams: %s", err))
			return 1
		}
	}

	client := rpcclient.NewClient(c.url)
	client.ClientID = c.clientID
	client.ClientVersion = c.clientVersion
	client.Background = c.background

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	resp, err := client.Await(ctx, method, params, kwparams)
	if err != nil {
		c.Ui.Error(err.Error())
		return 1
	}

	if errObj, ok := resp.ErrorObject(); ok {
		out, err := json.MarshalIndent(errObj, "", "  ")
		if err != nil {
			c.Ui.Error(fmt.Sprintf("Error marshalling JSON: %s", err))
			return 1
		}
		c.Ui.Error(string(out))
		return 1
	}

	out, err := json.MarshalIndent(resp.Result(), "", "  ")
	if err != nil {
		c.Ui.Error(fmt.Sprintf("Error marshalling JSON: %s", err))
		return 1
	}
	c.Ui.Output(string(out))

	return 0
}

func decodeJSON(input string, v any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(input)))
	dec.UseNumber()
	return dec.Decode(v)
}

func (c *CallCommand) Help() string {
	helpText := `
Usage: sessionrpc call [options] method [params]

` + c.Synopsis() + `

  params is an optional JSON array of positional parameters.

` + helpForFlags(c.flags())

	return strings.TrimSpace(helpText)
}

func (c *CallCommand) Synopsis() string {
	return "Calls a method of a running server"
}
