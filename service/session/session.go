// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package session defines the session module: a snapshot of one execution, made of the computation that
// was executed and the arguments and result recorded.
//
// Session modules are written with gob, to a dump directory (see DumpToDirectory) or to a Store, and are
// meant for offline inspection and replay.
package session

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/hlo/service/computation"
	"github.com/gomlx/hlo/types/literal"
)

// Module is the snapshot of one execution of a computation.
type Module struct {
	ID          uuid.UUID
	Computation *computation.Snapshot
	Version     int64

	// Arguments and Result are recorded on execution. They are nil until then.
	Arguments []*literal.Literal
	Result    *literal.Literal

	// Platform is the name of the backend that executed the computation.
	Platform  string
	CreatedAt time.Time
}

// New returns a session module for the given snapshot, with a new ID.
func New(snapshot *computation.Snapshot, version int64, platform string) *Module {
	return &Module{
		ID:          uuid.New(),
		Computation: snapshot,
		Version:     version,
		Platform:    platform,
		CreatedAt:   time.Now(),
	}
}

// Name returns the name of the entry computation.
func (m *Module) Name() string {
	if m.Computation == nil {
		return ""
	}
	return m.Computation.Entry.Name
}

// Handle returns the handle of the entry computation when the module was created.
func (m *Module) Handle() computation.Handle {
	if m.Computation == nil {
		return 0
	}
	return m.Computation.Entry.Handle
}

// Key returns the key of the module in a Store, also used as its file name in a dump directory:
// "computation_<handle>__<name>__version_<version>".
func (m *Module) Key() string {
	return fmt.Sprintf("computation_%d__%s__version_%d", m.Handle(), sanitize(m.Name()), m.Version)
}

// sanitize replaces characters not safe for file names.
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, name)
}

// Encode serializes the module with gob.
func (m *Module) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return nil, errors.Wrapf(err, "encoding session module %q", m.Key())
	}
	return buf.Bytes(), nil
}

// Decode a module serialized with Encode.
func Decode(data []byte) (*Module, error) {
	m := &Module{}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(m); err != nil {
		return nil, errors.Wrap(err, "decoding session module")
	}
	return m, nil
}

// DumpToDirectory writes the module to dir, creating it if needed, and returns the path of the file written.
// An existing dump of the same computation version is overwritten.
func DumpToDirectory(m *Module, dir string) (string, error) {
	data, err := m.Encode()
	if err != nil {
		return "", err
	}
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "creating dump directory %q", dir)
	}
	path := filepath.Join(dir, m.Key())
	if err = os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrapf(err, "dumping session module to %q", path)
	}
	klog.V(1).Infof("session module %s dumped to %s", m.ID, path)
	return path, nil
}

// LoadFromFile reads a module written by DumpToDirectory.
func LoadFromFile(path string) (*Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading session module from %q", path)
	}
	return Decode(data)
}
