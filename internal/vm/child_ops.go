// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package vm

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/cobaltcore-dev/winevm-scheduler/api"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/config"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/hypervisor"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/obslog"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/store"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/vmagent"
)

// runChildRevert is the body of the re-exec'd child for opRevert. It
// runs past the handshake in its own process, using its own store
// connection (§5: "every child uses an independent database
// connection"). A breaker is not consulted here: breaker state is
// process-local and this process exits after one attempt, so the
// manager's synchronous probes (RunCheckIdle/RunCheckOff/RunMonitor)
// are where repeated-call protection actually pays off.
func runChildRevert(ctx context.Context, st store.Store, hv hypervisor.Interface, agent vmagent.Interface, cfg config.Config, v api.VM) int {
	log := obslog.FromContext(ctx, "component", "vm-child", "vm", v.Name, "op", "revert")

	fail := func(cause error) int {
		log.Error(cause, "revert failed")
		return finishFailedOp(ctx, st, v, cfg, log)
	}

	if err := hv.Connect(v.VirtURI); err != nil {
		return fail(err)
	}
	if err := hv.Revert(v.VirtURI, v.VirtDomain, v.IdleSnapshot); err != nil {
		return fail(err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.WaitForToolsInVM)*time.Second)
	pingErr := agent.Ping(pingCtx, v.Name, time.Duration(cfg.WaitForToolsInVM)*time.Second)
	cancel()
	if pingErr != nil {
		return fail(pingErr)
	}

	v.Status = api.StatusSleeping
	if err := persistVM(ctx, st, v); err != nil {
		return fail(err)
	}

	select {
	case <-time.After(time.Duration(cfg.SleepAfterRevert) * time.Second):
	case <-ctx.Done():
		return fail(ctx.Err())
	}

	v.Status = api.StatusIdle
	v.ChildPid = nil
	v.ChildDeadline = nil
	if err := persistVM(ctx, st, v); err != nil {
		log.Error(err, "could not persist successful revert, recovery will clean up")
		return 1
	}
	log.Info("revert succeeded")
	return 0
}

// runChildPowerOff is the body of the re-exec'd child for opPowerOff.
func runChildPowerOff(ctx context.Context, st store.Store, hv hypervisor.Interface, v api.VM) int {
	log := obslog.FromContext(ctx, "component", "vm-child", "vm", v.Name, "op", "poweroff")

	if err := hv.Connect(v.VirtURI); err != nil {
		log.Error(err, "connect failed before poweroff")
	} else if err := hv.PowerOff(v.VirtURI, v.VirtDomain); err != nil {
		log.Error(err, "poweroff failed")
	}

	// PowerOff is unconditional (§4.1: "forcibly transition to off from
	// any state"); even a failed hypervisor call still clears the child
	// bookkeeping since there is no further action to retry here.
	v.Status = api.StatusOff
	v.ChildPid = nil
	v.ChildDeadline = nil
	if err := persistVM(ctx, st, v); err != nil {
		log.Error(err, "could not persist poweroff, recovery will clean up")
		return 1
	}
	return 0
}

// runChildTask is the body of the re-exec'd child for opRunTask: it
// runs the task's command line over the VM agent, classifies the
// result into the TaskStatus outcomes job/rollup.go's taskOutcome
// expects, and applies §7's retry rule ("does not consume a retry if
// the VM host is unreachable; otherwise consume one and requeue if
// budget remains, else finalize as boterror") before persisting the
// Task, the VM (always left dirty: it ran a test and needs a revert
// before reuse either way) and its own vmresult record in one
// transaction, exactly the way runChildRevert/runChildPowerOff persist
// their own outcome.
func runChildTask(ctx context.Context, st store.Store, agent vmagent.Interface, cfg config.Config, v api.VM, jobID int64, stepNo, no int) int {
	log := obslog.FromContext(ctx, "component", "vm-child", "vm", v.Name, "op", "runtask",
		"job", jobID, "step", stepNo, "task", no)

	_, tasks, err := st.LoadStepsAndTasks(ctx, jobID)
	if err != nil {
		log.Error(err, "could not reload job for task")
		return 1
	}
	var task *api.Task
	for i := range tasks {
		if tasks[i].StepNo == stepNo && tasks[i].No == no {
			task = &tasks[i]
			break
		}
	}
	if task == nil {
		log.Error(nil, "task vanished from its job")
		return 1
	}

	execCtx, cancel := context.WithTimeout(ctx, task.Timeout)
	exitCode, execErr := agent.Exec(execCtx, v.Name, task.CmdLineArg)
	cancel()

	var result string
	var retryable bool
	var free bool
	switch {
	case execErr != nil && execCtx.Err() == context.DeadlineExceeded:
		// The task ran past its own Timeout: terminal for the task.
		log.Error(execErr, "task timed out")
		task.Status = api.TaskTimeout
		result = "timeout"
	case execErr != nil:
		// The call itself never completed: an external fault (VM host
		// unreachable), not the task's own doing. §7: this requeues for
		// free and never consumes MaxTaskTries.
		log.Error(execErr, "exec call failed")
		result = "boterror"
		free = true
	case exitCode == 0:
		task.Status = api.TaskCompleted
		result = "completed"
	case exitCode == 2:
		task.Status = api.TaskBadPatch
		result = "badpatch"
	case exitCode == 3:
		task.Status = api.TaskBadBuild
		result = "badbuild"
	default:
		result = "boterror"
		retryable = true
	}

	tries := task.TestFailures
	switch {
	case free:
		task.Status = api.TaskQueued
		task.Started = nil
	case retryable:
		tries++
		if cfg.MaxTaskTries <= 0 || tries < cfg.MaxTaskTries {
			task.TestFailures = tries
			task.Status = api.TaskQueued
			task.Started = nil
		} else {
			task.Status = api.TaskBotError
		}
	}

	if task.Status != api.TaskQueued {
		ended := time.Now()
		task.Ended = &ended
	}

	v.Status = api.StatusDirty
	v.ChildPid = nil
	v.ChildDeadline = nil

	value := result
	if free {
		value = fmt.Sprintf("%s 0 %d", result, cfg.MaxTaskTries)
	} else if retryable && task.Status == api.TaskQueued {
		value = fmt.Sprintf("%s %d %d", result, tries, cfg.MaxTaskTries)
	}

	groupID, err := st.NextRecordGroupID(ctx)
	if err != nil {
		log.Error(err, "allocating record group id")
		return 1
	}
	group := api.RecordGroup{ID: groupID, Timestamp: time.Now(), Records: []api.Record{{
		Type: api.RecordVMResult, Name: fmt.Sprintf("%s %s", v.Name, v.Hostname), Value: &value,
	}}}

	if err := st.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.SaveTask(ctx, *task); err != nil {
			return err
		}
		if err := tx.SaveVM(ctx, v); err != nil {
			return err
		}
		return tx.SaveRecordGroup(ctx, group)
	}); err != nil {
		log.Error(err, "could not persist task result, recovery will clean up")
		return 1
	}

	if task.Status == api.TaskCompleted {
		return 0
	}
	return 1
}

// finishFailedOp applies §4.1's failure rule: bump Errors, mark dirty,
// demote to maintenance once the threshold is reached.
func finishFailedOp(ctx context.Context, st store.Store, v api.VM, cfg config.Config, log logr.Logger) int {
	v.Errors++
	v.Status = api.StatusDirty
	if cfg.MaxVMErrors > 0 && v.Errors >= cfg.MaxVMErrors {
		v.Status = api.StatusMaintenance
	}
	v.ChildPid = nil
	v.ChildDeadline = nil
	if err := persistVM(ctx, st, v); err != nil {
		log.Error(err, "could not persist failed op")
		return 1
	}
	return 1
}

func persistVM(ctx context.Context, st store.Store, v api.VM) error {
	return st.WithTx(ctx, func(tx store.Tx) error {
		return tx.SaveVM(ctx, v)
	})
}
