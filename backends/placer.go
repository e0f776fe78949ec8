// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"fmt"
	"strings"

	"github.com/gomlx/hlo/types/status"
)

// DeviceAssignment holds the device ordinal for each (replica, computation) pair.
type DeviceAssignment struct {
	replicaCount, computationCount int
	devices                        []int // Indexed by replica*computationCount + computation.
}

// NewDeviceAssignment returns an assignment with all devices set to 0.
func NewDeviceAssignment(replicaCount, computationCount int) *DeviceAssignment {
	return &DeviceAssignment{
		replicaCount:     replicaCount,
		computationCount: computationCount,
		devices:          make([]int, replicaCount*computationCount),
	}
}

// ReplicaCount is the number of rows of the assignment.
func (a *DeviceAssignment) ReplicaCount() int { return a.replicaCount }

// ComputationCount is the number of columns of the assignment.
func (a *DeviceAssignment) ComputationCount() int { return a.computationCount }

// Device returns the device ordinal assigned to the replica of the computation.
func (a *DeviceAssignment) Device(replica, computation int) int {
	return a.devices[replica*a.computationCount+computation]
}

// Set the device ordinal of the replica of the computation.
func (a *DeviceAssignment) Set(replica, computation, device int) {
	a.devices[replica*a.computationCount+computation] = device
}

// String implements fmt.Stringer.
func (a *DeviceAssignment) String() string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "DeviceAssignment{replicas=%d, computations=%d", a.replicaCount, a.computationCount)
	for replica := range a.replicaCount {
		_, _ = fmt.Fprintf(&sb, ", replica#%d:", replica)
		for computation := range a.computationCount {
			_, _ = fmt.Fprintf(&sb, " %d", a.Device(replica, computation))
		}
	}
	sb.WriteString("}")
	return sb.String()
}

// ComputationPlacer decides which device runs each replica of each computation.
//
// The placement is the trivial one: replicas of the same computation use consecutive devices.
type ComputationPlacer struct{}

// DeviceID returns the device ordinal for the replica of the computation, given the total number of replicas
// and computations.
func (ComputationPlacer) DeviceID(replica, computation, replicaCount, computationCount int) (int, error) {
	if replicaCount <= 0 || computationCount <= 0 {
		return 0, status.FailedPreconditionf("replica count (%d) and computation count (%d) must be positive",
			replicaCount, computationCount)
	}
	if replica < 0 || replica >= replicaCount || computation < 0 || computation >= computationCount {
		return 0, status.FailedPreconditionf("replica %d of computation %d out of range for %d replicas and %d computations",
			replica, computation, replicaCount, computationCount)
	}
	return computation*replicaCount + replica, nil
}

// AssignDevices returns the assignment of devices for replicaCount replicas of computationCount computations.
func (p ComputationPlacer) AssignDevices(replicaCount, computationCount int) (*DeviceAssignment, error) {
	if replicaCount <= 0 || computationCount <= 0 {
		return nil, status.FailedPreconditionf("replica count (%d) and computation count (%d) must be positive",
			replicaCount, computationCount)
	}
	assignment := NewDeviceAssignment(replicaCount, computationCount)
	for replica := range replicaCount {
		for computation := range computationCount {
			device, err := p.DeviceID(replica, computation, replicaCount, computationCount)
			if err != nil {
				return nil, err
			}
			assignment.Set(replica, computation, device)
		}
	}
	return assignment, nil
}
