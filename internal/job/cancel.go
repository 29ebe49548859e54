// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package job

import (
	"fmt"
	"time"

	"github.com/cobaltcore-dev/winevm-scheduler/api"
)

// ChildKiller is the minimal capability Cancel needs from
// internal/vm.Manager, kept as a small consumer-side interface so this
// package does not need to import internal/vm.
type ChildKiller interface {
	KillChild(v api.VM) error
}

// Cancel implements §4.2's user cancel: every still-queued Task is
// marked skipped; every running Task has its VM child killed, is
// marked canceled, and its VM is marked dirty with a canceled vmresult
// record emitted. The aggregate is re-rolled-up before returning.
// dirtied holds the VMs that now need persisting as dirty.
func Cancel(now time.Time, agg *Aggregate, fleet map[string]api.VM, killer ChildKiller) (records []api.Record, dirtied []api.VM, err error) {
	for i := range agg.Tasks {
		t := &agg.Tasks[i]
		switch t.Status {
		case api.TaskQueued:
			t.Status = api.TaskSkipped

		case api.TaskRunning:
			v, ok := fleet[t.VM]
			if ok {
				if killErr := killer.KillChild(v); killErr != nil {
					return records, dirtied, fmt.Errorf("job: canceling task %d/%d/%d: %w", t.JobID, t.StepNo, t.No, killErr)
				}
				v.Status = api.StatusDirty
				v.ChildPid = nil
				v.ChildDeadline = nil
				dirtied = append(dirtied, v)
			}
			t.Status = api.TaskCanceled
			ended := now
			t.Ended = &ended

			value := "canceled"
			records = append(records, api.Record{
				Type:  api.RecordVMResult,
				Name:  fmt.Sprintf("%s %s", t.VM, fleet[t.VM].Hostname),
				Value: &value,
			})
		}
	}

	RollUp(now, agg)
	return records, dirtied, nil
}
