// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package backends defines the interfaces the execution service uses to compile and run hlo modules on devices:
// a Backend provides a Compiler, one StreamExecutor per device and a TransferManager to move literals to and
// from device memory.
//
// Backends register themselves (usually during package initialization) with Register, and are created
// with New or NewWithConfig.
//
// Unlike the evaluator, all methods return errors: nothing is expected to panic across this interface.
package backends

import (
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"

	"github.com/gomlx/hlo/types/status"
)

// Backend is the API that needs to be implemented by an execution backend.
type Backend interface {
	// Name returns the short name of the backend. E.g.: "interpreter".
	Name() string

	// Description is a longer description of the Backend that can be used to pretty-print.
	Description() string

	// DeviceCount returns the number of devices available for this Backend.
	DeviceCount() int

	// DeviceOrdinalSupported returns whether the device with the given ordinal can be used.
	DeviceOrdinalSupported(ordinal int) bool

	// Executor returns the StreamExecutor for the device with the given ordinal.
	Executor(ordinal int) (StreamExecutor, error)

	// Compiler used to compile modules into executables for this backend.
	Compiler() Compiler

	// TransferManager moves literals to and from the devices of this backend.
	TransferManager() TransferManager

	// Finalize releases all the associated resources immediately, and makes the backend invalid.
	Finalize()
}

// Constructor takes a config string (optionally empty) and returns a Backend.
type Constructor func(config string) (Backend, error)

var (
	muRegistry             sync.Mutex
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register backend with the given name, and a default constructor that takes as input a configuration string that is
// passed along to the backend constructor.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	muRegistry.Lock()
	defer muRegistry.Unlock()
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// List returns the names of the registered backends, sorted.
func List() []string {
	muRegistry.Lock()
	defer muRegistry.Unlock()
	names := maps.Keys(registeredConstructors)
	slices.Sort(names)
	return names
}

// DefaultConfig is the name of the default backend configuration to use if specified.
//
// See NewWithConfig for the format of the configuration string.
var DefaultConfig string

// HLO_BACKEND is the environment variable with the default backend configuration to use.
//
// The format of config is "<backend_name>:<backend_configuration>".
// The "<backend_name>" is the name of a registered backend (e.g.: "interpreter") and
// "<backend_configuration>" is backend specific (e.g.: for the interpreter, "devices=4").
//
//nolint:revive // Named after the environment variable.
const HLO_BACKEND = "HLO_BACKEND"

// New returns a new default Backend.
//
// The default is:
//
// 1. The environment HLO_BACKEND is used as a configuration if defined.
// 2. Next the variable DefaultConfig is used as a configuration if defined.
// 3. The first registered backend is used with an empty configuration.
func New() (Backend, error) {
	config, found := os.LookupEnv(HLO_BACKEND)
	if found {
		return NewWithConfig(config)
	}
	if DefaultConfig != "" {
		return NewWithConfig(DefaultConfig)
	}
	return NewWithConfig("")
}

// NewWithConfig takes a configurations string formatted as "<backend_name>:<backend_configuration>".
//
// The "<backend_name>" is the name of a registered backend (e.g.: "interpreter") and
// "<backend_configuration>" is backend specific. If there is no ":", config is taken as the name of the
// backend, or as the configuration of the first registered backend if no backend has that name.
func NewWithConfig(config string) (Backend, error) {
	muRegistry.Lock()
	if len(registeredConstructors) == 0 {
		muRegistry.Unlock()
		return nil, status.FailedPreconditionf(
			`no registered backends -- maybe import the default one with import _ "github.com/gomlx/hlo/backends/interpreter"?`)
	}
	backendName := firstRegistered
	backendConfig := config
	if idx := strings.Index(config, ":"); idx != -1 {
		backendName = config[:idx]
		backendConfig = config[idx+1:]
	} else if _, found := registeredConstructors[config]; found {
		backendName = config
		backendConfig = ""
	}
	constructor, found := registeredConstructors[backendName]
	muRegistry.Unlock()
	if !found {
		return nil, status.NotFoundf("can't find backend %q for configuration %q given", backendName, config)
	}
	backend, err := constructor(backendConfig)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create backend %q with configuration %q", backendName, backendConfig)
	}
	return backend, nil
}
