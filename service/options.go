// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package service

import (
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/gomlx/hlo/types/status"
)

// Options configures a Service.
type Options struct {
	// Backend configuration, in the "<backend_name>:<backend_config>" format accepted by backends.NewWithConfig.
	// If empty, the default backend is used: see backends.New.
	Backend string `yaml:"backend"`

	// NumberOfReplicas each computation is run with.
	NumberOfReplicas int `yaml:"number_of_replicas" validate:"min=1"`

	// MaxStreamsPerDevice limits the number of streams running concurrently in each device.
	MaxStreamsPerDevice int `yaml:"max_streams_per_device" validate:"min=1"`

	// DumpDirectory, if set, is where a session module of every execution is written. It can be overridden
	// per execution with hlo.DebugOptions.DumpExecutionsTo.
	DumpDirectory string `yaml:"dump_directory"`

	// SnapshotStore, if set, is the directory of a badger database where session modules are also stored.
	// Use session.InMemory (":memory:") for a store that is not persisted.
	SnapshotStore string `yaml:"snapshot_store"`
}

var optionsValidate = validator.New()

// DefaultOptions returns the options used when none are given: one replica and the default backend.
func DefaultOptions() Options {
	return Options{
		NumberOfReplicas:    1,
		MaxStreamsPerDevice: 4,
	}
}

// Validate checks the options are valid. Errors are InvalidArgument.
func (o Options) Validate() error {
	if err := optionsValidate.Struct(o); err != nil {
		return status.InvalidArgumentf("invalid service options: %v", err)
	}
	return nil
}

// ParseOptions parses yaml options. Fields not given take their values from DefaultOptions.
func ParseOptions(data []byte) (Options, error) {
	opts := DefaultOptions()
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, status.InvalidArgumentf("parsing service options: %v", err)
	}
	return opts, opts.Validate()
}

// LoadOptions reads the options from a yaml file.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultOptions(), errors.Wrapf(err, "reading service options from %q", path)
	}
	opts, err := ParseOptions(data)
	if err != nil {
		return opts, errors.WithMessagef(err, "service options in %q", path)
	}
	return opts, nil
}
