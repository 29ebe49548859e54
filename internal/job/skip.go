// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package job

import "github.com/cobaltcore-dev/winevm-scheduler/api"

// PropagateSkips implements §4.2's skip propagation: once a build or
// reconfig Step ends in a non-completed terminal state, every later
// Step's still-queued Tasks are marked skipped without ever running.
// This is the only source of Task.Status == skipped outside a user
// cancel (P5). Steps are assumed ordered by No, as internal/store
// returns them.
func PropagateSkips(agg *Aggregate) bool {
	changed := false
	triggered := false

	for i := range agg.Steps {
		s := &agg.Steps[i]
		if triggered {
			for j := range agg.Tasks {
				t := &agg.Tasks[j]
				if t.StepNo == s.No && t.Status == api.TaskQueued {
					t.Status = api.TaskSkipped
					changed = true
				}
			}
			continue
		}
		if s.Type.SkipsDownstream() && s.Status.Terminal() && s.Status != api.JobCompleted {
			triggered = true
		}
	}

	return changed
}
