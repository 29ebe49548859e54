// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package job

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cobaltcore-dev/winevm-scheduler/api"
)

func TestPropagateSkipsMarksEveryLaterStepQueuedTask(t *testing.T) {
	agg := &Aggregate{
		Steps: []api.Step{
			{No: 0, Type: api.StepBuild, Status: api.JobBadBuild},
			{No: 1, Type: api.StepSuite, Status: api.JobQueued},
			{No: 2, Type: api.StepSingle, Status: api.JobQueued},
		},
		Tasks: []api.Task{
			{StepNo: 0, No: 0, Status: api.TaskBadBuild},
			{StepNo: 1, No: 0, Status: api.TaskQueued},
			{StepNo: 1, No: 1, Status: api.TaskQueued},
			{StepNo: 2, No: 0, Status: api.TaskQueued},
		},
	}
	changed := PropagateSkips(agg)
	require.True(t, changed)
	for _, tk := range agg.Tasks {
		if tk.StepNo == 0 {
			require.Equal(t, api.TaskBadBuild, tk.Status)
		} else {
			require.Equal(t, api.TaskSkipped, tk.Status, "step %d task %d", tk.StepNo, tk.No)
		}
	}
}

func TestPropagateSkipsDoesNothingWhenBuildCompleted(t *testing.T) {
	agg := &Aggregate{
		Steps: []api.Step{
			{No: 0, Type: api.StepBuild, Status: api.JobCompleted},
			{No: 1, Type: api.StepSuite, Status: api.JobQueued},
		},
		Tasks: []api.Task{
			{StepNo: 0, No: 0, Status: api.TaskCompleted},
			{StepNo: 1, No: 0, Status: api.TaskQueued},
		},
	}
	changed := PropagateSkips(agg)
	require.False(t, changed)
	require.Equal(t, api.TaskQueued, agg.Tasks[1].Status)
}

func TestPropagateSkipsIgnoresNonSkippingStepTypes(t *testing.T) {
	agg := &Aggregate{
		Steps: []api.Step{
			{No: 0, Type: api.StepSingle, Status: api.JobBadPatch},
			{No: 1, Type: api.StepSuite, Status: api.JobQueued},
		},
		Tasks: []api.Task{
			{StepNo: 0, No: 0, Status: api.TaskBadPatch},
			{StepNo: 1, No: 0, Status: api.TaskQueued},
		},
	}
	changed := PropagateSkips(agg)
	require.False(t, changed)
	require.Equal(t, api.TaskQueued, agg.Tasks[1].Status)
}
