// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package scheduler is the C6 capability: the single, non-reentrant
// pass that decides which Tasks start, which VMs get reverted or
// powered off, and when the engine should next wake up (§4.3). It is
// organized as one file per pass stage, mirroring the "Pass layout"
// list one-to-one: classify.go, needed.go, start.go, revert.go,
// sacrifice.go, poweroff.go, record.go, arm.go.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/cobaltcore-dev/winevm-scheduler/api"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/config"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/job"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/obslog"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/recorder"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/store"
)

// VMRecoverer runs the C4 consistency-recovery pass; satisfied by
// *internal/vm.Manager.
type VMRecoverer interface {
	Recover(ctx context.Context, now time.Time) ([]string, []api.Record, error)
}

// Deps bundles everything one pass needs from the rest of the engine.
type Deps struct {
	Store     store.Store
	VM        VMRecoverer
	Runner    VMRunner
	GetConfig func() config.Config
}

// Result is what a single pass produced, for logging and for the
// event loop to re-arm itself with.
type Result struct {
	Touched      []string
	NextTick     time.Duration
	TaskRecords  []api.Record
	VMRecords    []api.Record
	LastCounters string
	Counters     TaskCounters
}

func (d Deps) hostLimits() func(string) config.HostLimits {
	cfg := d.GetConfig()
	return func(hostname string) config.HostLimits {
		return cfg.Hosts[hostname]
	}
}

// Run executes exactly one scheduling pass (§4.3): classify_and_check,
// schedule_tasks, revert_vms, power_off_dirty, record_vm_states,
// arm_next_tick. lastCounters is the counters string from the
// previous pass's tasks-counters Record, if any (record_vm_states
// writes a fresh one only when it changes). The pass is not
// reentrant: callers must serialize calls to Run against the same
// Deps.
func Run(ctx context.Context, now time.Time, d Deps, lastCounters string) (*Result, error) {
	log := obslog.FromContext(ctx, "component", "scheduler")

	touched, recoverRecords, err := d.VM.Recover(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("scheduler: recovery: %w", err)
	}

	fleet, err := d.Store.LoadFleet(ctx)
	if err != nil {
		return nil, fmt.Errorf("scheduler: loading fleet: %w", err)
	}
	jobs, err := d.Store.LoadQueue(ctx)
	if err != nil {
		return nil, fmt.Errorf("scheduler: loading queue: %w", err)
	}

	aggs := make([]*job.Aggregate, 0, len(jobs))
	for _, j := range jobs {
		steps, tasks, err := d.Store.LoadStepsAndTasks(ctx, j.ID)
		if err != nil {
			return nil, fmt.Errorf("scheduler: loading job %d: %w", j.ID, err)
		}
		aggs = append(aggs, &job.Aggregate{Job: j, Steps: steps, Tasks: tasks})
	}

	cls := Classify(fleet)
	limits := d.hostLimits()

	taskRecords, err := ScheduleTasks(ctx, now, cls, limits, d.Runner, aggs)
	if err != nil {
		return nil, fmt.Errorf("scheduler: scheduling tasks: %w", err)
	}

	buildTimeout := time.Duration(d.GetConfig().BuildTimeout) * time.Second
	needed := BuildNeeded(cls.Fleet, aggs, buildTimeout)
	demandHosts := make(map[string]bool, len(needed))
	for _, n := range needed {
		demandHosts[n.Host] = true
	}
	for host, counters := range cls.Hosts {
		if demandHosts[host] || counters.Active > 0 {
			continue
		}
		for _, n := range BuildFutureCandidates(hostFleet(cls.Fleet, host)) {
			needed = append(needed, n)
		}
	}

	vmRecords, err := RevertVMs(ctx, cls, limits, d.Runner, needed)
	if err != nil {
		return nil, fmt.Errorf("scheduler: reverting: %w", err)
	}

	poweroffRecords, err := PowerOffDirty(ctx, cls, d.Runner)
	if err != nil {
		return nil, fmt.Errorf("scheduler: powering off dirty VMs: %w", err)
	}
	vmRecords = append(vmRecords, poweroffRecords...)
	vmRecords = append(vmRecords, recoverRecords...)

	for _, agg := range aggs {
		job.PropagateSkips(agg)
		// Always rolled up, not just when PropagateSkips fires: a
		// Task's terminal status may have been persisted directly by
		// its own child process (runChildTask) between passes, and
		// the Job/Step aggregates this pass just reloaded from the
		// store need to reflect that regardless of whether any skip
		// propagation happened this pass too.
		job.RollUp(now, agg)
	}

	counters := ComputeTaskCounters(cls.Fleet, aggs)
	countersRec := CountersRecord(counters, lastCounters)

	group := recorder.NewGroup(now)
	for _, r := range taskRecords {
		group.Append(r)
	}
	for _, r := range vmRecords {
		group.Append(r)
	}
	if countersRec != nil {
		group.Append(*countersRec)
	}

	var groupID int64
	if !group.Empty() {
		groupID, err = d.Store.NextRecordGroupID(ctx)
		if err != nil {
			return nil, fmt.Errorf("scheduler: allocating record group id: %w", err)
		}
	}

	if err := d.Store.WithTx(ctx, func(tx store.Tx) error {
		for _, agg := range aggs {
			if err := tx.SaveJob(ctx, agg.Job); err != nil {
				return err
			}
			for _, s := range agg.Steps {
				if err := tx.SaveStep(ctx, s); err != nil {
					return err
				}
			}
			for _, t := range agg.Tasks {
				if err := tx.SaveTask(ctx, t); err != nil {
					return err
				}
			}
		}
		for _, v := range cls.Fleet {
			if err := tx.SaveVM(ctx, v); err != nil {
				return err
			}
		}
		return recorder.Persist(ctx, tx, groupID, group)
	}); err != nil {
		return nil, fmt.Errorf("scheduler: persisting pass: %w", err)
	}

	next := ArmNextTick(now, fleetValues(cls.Fleet))
	log.Info("pass complete", "touched", len(touched), "tasks_started", len(taskRecords),
		"vm_records", len(vmRecords), "next_tick", next)

	result := &Result{
		Touched:     touched,
		NextTick:    next,
		TaskRecords: taskRecords,
		VMRecords:   vmRecords,
		Counters:    counters,
	}
	if countersRec != nil {
		result.LastCounters = *countersRec.Value
	} else {
		result.LastCounters = lastCounters
	}
	return result, nil
}

func hostFleet(fleet map[string]api.VM, hostname string) map[string]api.VM {
	out := make(map[string]api.VM)
	for name, v := range fleet {
		if v.Hostname == hostname {
			out[name] = v
		}
	}
	return out
}

func fleetValues(fleet map[string]api.VM) []api.VM {
	out := make([]api.VM, 0, len(fleet))
	for _, v := range fleet {
		out = append(out, v)
	}
	return out
}
