// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/cobaltcore-dev/winevm-scheduler/api"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/config"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/job"
)

// ScheduleTasks is stage 2 of the pass (§4.3 "Starting a runnable
// task"): for every Job's current Step, a queued Task sitting on an
// idle VM is started immediately if the VM's host has room under
// MaxRunningVMs. Even when the host is full, the VM is pulled out of
// the lamb set so power_off_dirty and SacrificeVM never reclaim a VM
// that is about to be used. Starting a task spawns a supervised child
// via rv.RunTask exactly like a revert or power-off does, so
// ChildPid/ChildDeadline are committed atomically with Status=running
// (§4.1 P2); the Task only flips to running once that child exists.
func ScheduleTasks(ctx context.Context, now time.Time, cls *Classification, hostLimits func(string) config.HostLimits, rv VMRunner, aggs []*job.Aggregate) ([]api.Record, error) {
	var records []api.Record

	for _, agg := range aggs {
		step := agg.FirstNonCompletedStep()
		if step == nil {
			continue
		}
		for i := range agg.Tasks {
			t := &agg.Tasks[i]
			if t.StepNo != step.No || t.Status != api.TaskQueued {
				continue
			}
			v, ok := cls.Fleet[t.VM]
			if !ok || v.Status != api.StatusIdle {
				continue
			}

			delete(cls.Lamb, v.Name)

			limits := hostLimits(v.Hostname)
			host := cls.hostCounters(v.Hostname)
			if host.Running >= limits.EffectiveMaxRunningVMs() {
				continue
			}

			v, err := rv.RunTask(ctx, v, *t)
			if err != nil {
				return records, err
			}

			started := now
			t.Status = api.TaskRunning
			t.Started = &started
			job.RollUp(now, agg)

			cls.Fleet[v.Name] = v
			cls.Busy[v.Name] = true
			host.Running++

			name := fmt.Sprintf("%s %s", v.Name, v.Hostname)
			value := fmt.Sprintf("running %d %d %d", agg.Job.ID, step.No, t.No)
			records = append(records, api.Record{Type: api.RecordVMStatus, Name: name, Value: &value})
		}
	}

	return records, nil
}
