// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-version"
	"github.com/mitchellh/go-homedir"
	"github.com/mitchellh/mapstructure"
)

type Options struct {
	// ClientID binds the session to a single client
	ClientID string `mapstructure:"clientId"`

	// ClientVersion is the exact client build expected, while
	// MinClientVersion rejects older clients
	ClientVersion    string  `mapstructure:"clientVersion"`
	MinClientVersion string  `mapstructure:"minClientVersion"`
	ProtocolVersion  float64 `mapstructure:"protocolVersion"`

	// ExemptMethods skip client checks
	ExemptMethods []string `mapstructure:"exemptMethods"`

	PollInterval   time.Duration `mapstructure:"pollInterval"`
	AsyncRetention time.Duration `mapstructure:"asyncRetention"`
	ShutdownWait   time.Duration `mapstructure:"shutdownWait"`

	WorkingDir string `mapstructure:"workingDir"`
}

func (o *Options) Validate() error {
	if o.MinClientVersion != "" {
		if _, err := version.NewVersion(o.MinClientVersion); err != nil {
			return fmt.Errorf("invalid `minClientVersion` %q: %s", o.MinClientVersion, err)
		}
	}

	if o.ProtocolVersion < 0 {
		return fmt.Errorf("expected non-negative `protocolVersion`, got %v", o.ProtocolVersion)
	}

	for name, d := range map[string]time.Duration{
		"pollInterval":   o.PollInterval,
		"asyncRetention": o.AsyncRetention,
		"shutdownWait":   o.ShutdownWait,
	} {
		if d < 0 {
			return fmt.Errorf("expected non-negative `%s`, got %s", name, d)
		}
	}

	if o.WorkingDir != "" {
		path, err := homedir.Expand(o.WorkingDir)
		if err != nil {
			return err
		}
		if !filepath.IsAbs(path) {
			return fmt.Errorf("expected absolute path for working directory, got %q", path)
		}
		stat, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("unable to find working directory: %s", err)
		}
		if !stat.IsDir() {
			return fmt.Errorf("expected a directory, got a file: %q", path)
		}
	}

	return nil
}

// MinVersion returns the parsed MinClientVersion, if any.
func (o *Options) MinVersion() *version.Version {
	if o.MinClientVersion == "" {
		return nil
	}
	v, err := version.NewVersion(o.MinClientVersion)
	if err != nil {
		return nil
	}
	return v
}

type DecodedOptions struct {
	Options    *Options
	UnusedKeys []string
}

func DecodeOptions(input interface{}) (*DecodedOptions, error) {
	var md mapstructure.Metadata
	var options Options

	config := &mapstructure.DecoderConfig{
		Metadata:   &md,
		Result:     &options,
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
	}
	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		panic(err)
	}

	if err := decoder.Decode(input); err != nil {
		return nil, err
	}

	return &DecodedOptions{
		Options:    &options,
		UnusedKeys: md.Unused,
	}, nil
}

// LoadFile decodes options from a JSON file.
func LoadFile(path string) (*DecodedOptions, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var input map[string]interface{}
	if err := json.Unmarshal(b, &input); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return DecodeOptions(input)
}
