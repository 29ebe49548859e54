// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package vm is the C4 capability: it drives a single VM through its
// lifecycle states by spawning supervised child processes, and holds
// the consistency-recovery logic that runs at engine start and at the
// top of every scheduling pass.
package vm

import "github.com/cobaltcore-dev/winevm-scheduler/api"

// legalNext lists, for each non-administrative status, the statuses a
// VM may transition to directly. maintenance/offline are reachable
// from anywhere (administrative side-transitions) and are not listed
// here; ValidTransition special-cases them.
var legalNext = map[api.VMStatus][]api.VMStatus{
	api.StatusOff:       {api.StatusReverting},
	api.StatusReverting: {api.StatusSleeping, api.StatusDirty},
	api.StatusSleeping:  {api.StatusIdle, api.StatusDirty},
	api.StatusIdle:      {api.StatusRunning, api.StatusDirty},
	api.StatusRunning:   {api.StatusDirty},
	api.StatusDirty:     {api.StatusOff},
}

// ValidTransition reports whether from -> to is a legal transition per
// the lifecycle diagram, or an administrative side-transition (to/from
// maintenance or offline, always allowed). Violations are what the
// recorder flags as mispredicts during reconstruction.
func ValidTransition(from, to api.VMStatus) bool {
	if from == to {
		return true
	}
	if to == api.StatusMaintenance || to == api.StatusOffline {
		return true
	}
	if from == api.StatusMaintenance || from == api.StatusOffline {
		return true
	}
	for _, next := range legalNext[from] {
		if next == to {
			return true
		}
	}
	return false
}
