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

func TestRestartRejectsNonTerminalJob(t *testing.T) {
	agg := &Aggregate{Job: api.Job{ID: 1, Status: api.JobRunning}}
	err := Restart(time.Now(), agg, "/data", func(string) error { return nil })
	require.Error(t, err)
}

func TestRestartRemovesFirstStepTaskDirsAndLaterStepDirsEntirely(t *testing.T) {
	var removed []string
	remove := func(p string) error { removed = append(removed, p); return nil }

	ended := time.Now()
	agg := &Aggregate{
		Job: api.Job{ID: 7, Status: api.JobBadBuild, Ended: &ended},
		Steps: []api.Step{
			{No: 0, Type: api.StepBuild, Status: api.JobBadBuild},
			{No: 1, Type: api.StepSuite, Status: api.JobSkipped},
		},
		Tasks: []api.Task{
			{JobID: 7, StepNo: 0, No: 0, Status: api.TaskBadBuild, TestFailures: 2},
			{JobID: 7, StepNo: 1, No: 0, Status: api.TaskSkipped},
		},
	}

	err := Restart(time.Now(), agg, "/data", remove)
	require.NoError(t, err)
	require.Equal(t, []string{"/data/jobs/7/0/0", "/data/jobs/7/1"}, removed)

	for _, tk := range agg.Tasks {
		require.Equal(t, api.TaskQueued, tk.Status)
		require.Nil(t, tk.Started)
		require.Nil(t, tk.Ended)
		require.Zero(t, tk.TestFailures)
	}
	for _, s := range agg.Steps {
		require.Equal(t, api.JobQueued, s.Status)
	}
	require.Equal(t, api.JobQueued, agg.Job.Status)
	require.Nil(t, agg.Job.Ended)
}

func TestRestartPropagatesRemoveError(t *testing.T) {
	agg := &Aggregate{
		Job:   api.Job{ID: 1, Status: api.JobCompleted},
		Steps: []api.Step{{No: 0, Type: api.StepBuild}},
	}
	err := Restart(time.Now(), agg, "/data", func(string) error { return require.AnError })
	require.Error(t, err)
}
