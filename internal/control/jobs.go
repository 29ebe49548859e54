// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"encoding/base64"
	"os"
	"strconv"
	"time"

	"github.com/cobaltcore-dev/winevm-scheduler/api"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/job"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/store"
)

func (d *Dispatcher) loadAggregate(ctx context.Context, jobID int64) (*job.Aggregate, error) {
	j, err := d.Store.LoadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	steps, tasks, err := d.Store.LoadStepsAndTasks(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &job.Aggregate{Job: *j, Steps: steps, Tasks: tasks}, nil
}

func (d *Dispatcher) saveAggregate(ctx context.Context, tx store.Tx, agg *job.Aggregate) error {
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
	return nil
}

func fleetByName(fleet []api.VM) map[string]api.VM {
	out := make(map[string]api.VM, len(fleet))
	for _, v := range fleet {
		out[v.Name] = v
	}
	return out
}

// jobCancel implements the jobcancel command (§4.2, §6): every queued
// Task is skipped, every running Task's VM child is killed and the
// Task marked canceled, and dirtied VMs are persisted alongside the
// rolled-up Job/Step/Task state.
func (d *Dispatcher) jobCancel(ctx context.Context, now time.Time, args []string) reply {
	if len(args) != 1 {
		return fail("jobcancel: expected jobId")
	}
	jobID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fail("jobcancel: jobId: %v", err)
	}

	agg, err := d.loadAggregate(ctx, jobID)
	if err != nil {
		return fail("jobcancel: loading job %d: %v", jobID, err)
	}
	fleet, err := d.Store.LoadFleet(ctx)
	if err != nil {
		return fail("jobcancel: loading fleet: %v", err)
	}

	_, dirtied, err := job.Cancel(now, agg, fleetByName(fleet), d.Killer)
	if err != nil {
		return fail("jobcancel: %v", err)
	}

	if err := d.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := d.saveAggregate(ctx, tx, agg); err != nil {
			return err
		}
		for _, v := range dirtied {
			if err := tx.SaveVM(ctx, v); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return fail("jobcancel: persisting: %v", err)
	}

	d.rescheduleJobs(now, "")
	return ok(strconv.Itoa(len(dirtied)))
}

// jobRestart implements the jobrestart command (§4.2, §6).
func (d *Dispatcher) jobRestart(ctx context.Context, now time.Time, args []string) reply {
	if len(args) != 1 {
		return fail("jobrestart: expected jobId")
	}
	jobID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fail("jobrestart: jobId: %v", err)
	}

	agg, err := d.loadAggregate(ctx, jobID)
	if err != nil {
		return fail("jobrestart: loading job %d: %v", jobID, err)
	}

	if err := job.Restart(now, agg, d.DataDir, os.RemoveAll); err != nil {
		return fail("jobrestart: %v", err)
	}

	if err := d.Store.WithTx(ctx, func(tx store.Tx) error {
		return d.saveAggregate(ctx, tx, agg)
	}); err != nil {
		return fail("jobrestart: persisting: %v", err)
	}

	d.rescheduleJobs(now, "")
	return ok("")
}

// getScreenshot implements the getscreenshot command (§6): the image
// blob, in whatever format the hypervisor driver returned, is
// base64-encoded onto the single reply line, since the
// control protocol is otherwise a line-oriented text channel.
func (d *Dispatcher) getScreenshot(ctx context.Context, args []string) reply {
	if len(args) != 1 {
		return fail("getscreenshot: expected vmName")
	}
	vmName := args[0]

	if d.Screenshotter == nil {
		return fail("getscreenshot: not wired")
	}

	fleet, err := d.Store.LoadFleet(ctx)
	if err != nil {
		return fail("getscreenshot: loading fleet: %v", err)
	}
	target, found := fleetByName(fleet)[vmName]
	if !found {
		return fail("getscreenshot: unknown vm %q", vmName)
	}

	data, err := d.Screenshotter.Screenshot(target)
	if err != nil {
		return fail("getscreenshot: %v", err)
	}
	return ok(base64.StdEncoding.EncodeToString(data))
}
