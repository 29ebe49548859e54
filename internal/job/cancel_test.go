// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package job

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cobaltcore-dev/winevm-scheduler/api"
)

type fakeKiller struct {
	killed []string
	err    error
}

func (f *fakeKiller) KillChild(v api.VM) error {
	f.killed = append(f.killed, v.Name)
	return f.err
}

func TestCancelSkipsQueuedAndCancelsRunning(t *testing.T) {
	pid := 4242
	fleet := map[string]api.VM{
		"win64-1": {Name: "win64-1", Status: api.StatusRunning, ChildPid: &pid, Hostname: "host-a"},
	}
	agg := &Aggregate{
		Job: api.Job{ID: 1, Status: api.JobRunning},
		Steps: []api.Step{
			{No: 0, Type: api.StepSuite},
		},
		Tasks: []api.Task{
			{JobID: 1, StepNo: 0, No: 0, VM: "win64-1", Status: api.TaskRunning},
			{JobID: 1, StepNo: 0, No: 1, VM: "win64-2", Status: api.TaskQueued},
		},
	}

	killer := &fakeKiller{}
	records, dirtied, err := Cancel(time.Now(), agg, fleet, killer)
	require.NoError(t, err)
	require.Equal(t, []string{"win64-1"}, killer.killed)
	require.Len(t, dirtied, 1)
	require.Equal(t, api.StatusDirty, dirtied[0].Status)
	require.Nil(t, dirtied[0].ChildPid)
	require.Len(t, records, 1)
	require.Equal(t, api.RecordVMResult, records[0].Type)

	require.Equal(t, api.TaskCanceled, agg.Tasks[0].Status)
	require.NotNil(t, agg.Tasks[0].Ended)
	require.Equal(t, api.TaskSkipped, agg.Tasks[1].Status)
	require.Equal(t, api.JobCanceled, agg.Job.Status)
}

func TestCancelPropagatesKillerError(t *testing.T) {
	pid := 1
	fleet := map[string]api.VM{
		"win64-1": {Name: "win64-1", ChildPid: &pid},
	}
	agg := &Aggregate{
		Tasks: []api.Task{{JobID: 1, StepNo: 0, No: 0, VM: "win64-1", Status: api.TaskRunning}},
	}
	killer := &fakeKiller{err: require.AnError}
	_, _, err := Cancel(time.Now(), agg, fleet, killer)
	require.Error(t, err)
}
