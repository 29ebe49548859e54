// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"fmt"

	"github.com/cobaltcore-dev/winevm-scheduler/api"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/job"
)

// TaskCounters is the 3-tuple §4.3's "Counters recorded" step writes
// once per pass.
type TaskCounters struct {
	Runnable int
	Queued   int
	Blocked  int
}

// String renders the counters the way they are persisted in a
// Record's Value ("runnable queued blocked").
func (c TaskCounters) String() string {
	return fmt.Sprintf("%d %d %d", c.Runnable, c.Queued, c.Blocked)
}

// vmUnusable reports whether a Task targeting this VM can never run:
// the VM's role has been retired or deleted, or its status is a
// standing administrative hold.
func vmUnusable(v api.VM) bool {
	return !v.Role.HasEnabledRole() || v.Status == api.StatusOffline || v.Status == api.StatusMaintenance
}

// ComputeTaskCounters walks every Job aggregate and classifies its
// queued Tasks: Blocked counts tasks whose target VM is retired,
// deleted, offline or under maintenance; Runnable is the subset of
// queued Tasks sitting in their Job's current step with a usable VM
// (these are the ones schedule_tasks can actually start, modulo host
// capacity); Queued is every queued Task, blocked or not.
func ComputeTaskCounters(fleet map[string]api.VM, aggs []*job.Aggregate) TaskCounters {
	var c TaskCounters

	for _, agg := range aggs {
		cur := agg.FirstNonCompletedStep()
		for _, t := range agg.Tasks {
			if t.Status != api.TaskQueued {
				continue
			}
			c.Queued++

			v, ok := fleet[t.VM]
			blocked := !ok || vmUnusable(v)
			if blocked {
				c.Blocked++
				continue
			}
			if cur != nil && t.StepNo == cur.No {
				c.Runnable++
			}
		}
	}

	return c
}

// CountersRecord builds the "tasks counters" Record for this pass,
// returning nil if the rendered string matches lastCounters (§4.3:
// "the record is written only if the counter string differs from the
// last one persisted").
func CountersRecord(counters TaskCounters, lastCounters string) *api.Record {
	value := counters.String()
	if value == lastCounters {
		return nil
	}
	return &api.Record{Type: api.RecordTasks, Name: "counters", Value: &value}
}
