// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package computation

import (
	"github.com/pkg/errors"

	"github.com/gomlx/hlo/types/status"
)

// SessionComputation is the recorded history of one computation.
type SessionComputation struct {
	Name     string
	Handle   Handle
	Requests []*OpRequest
}

// Snapshot holds a computation and all the computations it embeds (directly or indirectly), as the
// requests that built them. It can be gob encoded, and loaded back in another Tracker.
type Snapshot struct {
	Entry SessionComputation

	// Embedded computations, ordered so that each one comes after the ones it embeds.
	Embedded []SessionComputation
}

// Snapshot returns the snapshot of the current version of the computation.
func (t *Tracker) Snapshot(handle Handle) (*Snapshot, error) {
	uc, err := t.Resolve(handle)
	if err != nil {
		return nil, err
	}
	return t.SnapshotVersion(uc.VersionedHandle())
}

// SnapshotVersion returns the snapshot of the given version of the computation. Embedded computations are
// recorded up to the largest version referred to.
func (t *Tracker) SnapshotVersion(vh VersionedHandle) (*Snapshot, error) {
	entry, err := t.Resolve(vh.Handle)
	if err != nil {
		return nil, err
	}
	if vh.Version <= 0 || vh.Version > entry.Version() {
		return nil, status.InvalidArgumentf("cannot snapshot %s: computation %q has version %d",
			vh, entry.Name(), entry.Version())
	}
	snapshot := &Snapshot{
		Entry: SessionComputation{Name: entry.Name(), Handle: entry.Handle(), Requests: entry.Requests(vh.Version)},
	}

	// Largest version of each embedded computation, and a post-order so callees come first.
	versions := make(map[Handle]int64)
	var order []Handle
	visiting := make(map[Handle]bool)
	var visit func(requests []*OpRequest) error
	visit = func(requests []*OpRequest) error {
		for _, req := range requests {
			for _, callee := range req.Computations {
				if callee.Version > versions[callee.Handle] {
					versions[callee.Handle] = callee.Version
				}
			}
		}
		for _, req := range requests {
			for _, callee := range req.Computations {
				if visiting[callee.Handle] {
					continue
				}
				visiting[callee.Handle] = true
				uc, err := t.Resolve(callee.Handle)
				if err != nil {
					return err
				}
				if err := visit(uc.Requests(uc.Version())); err != nil {
					return err
				}
				order = append(order, callee.Handle)
			}
		}
		return nil
	}
	if err = visit(snapshot.Entry.Requests); err != nil {
		return nil, errors.WithMessagef(err, "snapshotting %s", vh)
	}
	for _, handle := range order {
		uc, err := t.Resolve(handle)
		if err != nil {
			return nil, err
		}
		snapshot.Embedded = append(snapshot.Embedded, SessionComputation{
			Name:     uc.Name(),
			Handle:   handle,
			Requests: uc.Requests(versions[handle]),
		})
	}
	return snapshot, nil
}

// LoadSnapshot registers the computations of the snapshot as new computations, and returns the handle
// of the entry computation. Handles referring to embedded computations are remapped to the new ones.
func (t *Tracker) LoadSnapshot(snapshot *Snapshot) (Handle, error) {
	newHandles := make(map[Handle]Handle, len(snapshot.Embedded))
	load := func(sc SessionComputation) (Handle, error) {
		handle := t.NewComputation(sc.Name)
		for ii, req := range sc.Requests {
			remapped := *req
			remapped.Computations = make([]VersionedHandle, len(req.Computations))
			for jj, callee := range req.Computations {
				newHandle, found := newHandles[callee.Handle]
				if !found {
					return 0, status.InvalidArgumentf("snapshot of %q: request %d refers to computation %d, which is not in the snapshot",
						sc.Name, ii, callee.Handle)
				}
				remapped.Computations[jj] = VersionedHandle{Handle: newHandle, Version: callee.Version}
			}
			if _, _, err := t.Op(handle, &remapped); err != nil {
				return 0, errors.WithMessagef(err, "loading request %d of %q", ii, sc.Name)
			}
		}
		return handle, nil
	}
	for _, sc := range snapshot.Embedded {
		handle, err := load(sc)
		if err != nil {
			return 0, err
		}
		newHandles[sc.Handle] = handle
	}
	return load(snapshot.Entry)
}
