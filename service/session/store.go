// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package session

import (
	"fmt"
	"os"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/hlo/types/status"
)

// InMemory is the path that opens a Store that is not persisted.
const InMemory = ":memory:"

// Store persists session modules in a badger database, keyed by Module.Key.
type Store struct {
	db *badger.DB
}

// klogAdapter routes badger logs to klog.
type klogAdapter struct{}

func (klogAdapter) Errorf(format string, args ...any) { klog.ErrorDepth(1, fmt.Sprintf(format, args...)) }
func (klogAdapter) Warningf(format string, args ...any) {
	klog.WarningDepth(1, fmt.Sprintf(format, args...))
}
func (klogAdapter) Infof(format string, args ...any)  { klog.V(2).InfoDepth(1, fmt.Sprintf(format, args...)) }
func (klogAdapter) Debugf(format string, args ...any) { klog.V(3).InfoDepth(1, fmt.Sprintf(format, args...)) }

// OpenStore opens (or creates) the store at the given directory. Use InMemory for a store that is
// discarded when closed.
func OpenStore(path string) (*Store, error) {
	var opts badger.Options
	if path == InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if path == "" {
			return nil, status.InvalidArgumentf("session store requires a path, or %q", InMemory)
		}
		if err := os.MkdirAll(path, 0o750); err != nil {
			return nil, errors.Wrapf(err, "creating session store directory %q", path)
		}
		opts = badger.DefaultOptions(path)
	}
	opts = opts.WithLogger(klogAdapter{}).WithNumVersionsToKeep(1)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening session store at %q", path)
	}
	return &Store{db: db}, nil
}

// Close the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores the module, replacing any previous module with the same key.
func (s *Store) Put(m *Module) error {
	data, err := m.Encode()
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(m.Key()), data)
	})
	return errors.Wrapf(err, "storing session module %q", m.Key())
}

// Get returns the module with the given key. It returns a NotFound error if there is none.
func (s *Store) Get(key string) (*Module, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, status.NotFoundf("session module %q not found", key)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading session module %q", key)
	}
	return Decode(data)
}

// List returns the sorted keys of the stored modules that start with prefix.
func (s *Store) List(prefix string) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "listing session modules with prefix %q", prefix)
	}
	slices.Sort(keys)
	return keys, nil
}
