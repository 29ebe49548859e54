// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cobaltcore-dev/winevm-scheduler/api"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/config"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/store"
)

type noopRecoverer struct{}

func (noopRecoverer) Recover(ctx context.Context, now time.Time) ([]string, []api.Record, error) {
	return nil, nil, nil
}

func TestRunStartsQueuedTaskOnIdleVM(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	mem.Seed(
		[]api.VM{{Name: "win64-1", Status: api.StatusIdle, Hostname: "host-a", Role: api.RoleBase}},
		[]api.Job{{ID: 1, Priority: 0, Status: api.JobQueued}},
		map[int64][]api.Step{1: {{JobID: 1, No: 0, Type: api.StepSuite, Status: api.JobQueued}}},
		map[int64][]api.Task{1: {{JobID: 1, StepNo: 0, No: 0, VM: "win64-1", Status: api.TaskQueued}}},
	)

	cfg := config.Config{Hosts: map[string]config.HostLimits{
		"host-a": {MaxActiveVMs: 4, MaxRunningVMs: 4, MaxRevertingVMs: 2, MaxRevertsWhileRunningVMs: 1, MaxVMsWhenIdle: 1},
	}}
	deps := Deps{
		Store:     mem,
		VM:        noopRecoverer{},
		Runner:    &fakeRunner{},
		GetConfig: func() config.Config { return cfg },
	}

	result, err := Run(ctx, time.Now(), deps, "")
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotEmpty(t, result.TaskRecords)

	fleet, err := mem.LoadFleet(ctx)
	require.NoError(t, err)
	require.Equal(t, api.StatusRunning, fleet[0].Status)

	j, err := mem.LoadJob(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, api.JobRunning, j.Status)
}

func TestRunRevertsOffVMForQueuedTask(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	mem.Seed(
		[]api.VM{{Name: "win64-1", Status: api.StatusOff, Hostname: "host-a", Role: api.RoleBase}},
		[]api.Job{{ID: 1, Priority: 0, Status: api.JobQueued}},
		map[int64][]api.Step{1: {{JobID: 1, No: 0, Type: api.StepSuite, Status: api.JobQueued}}},
		map[int64][]api.Task{1: {{JobID: 1, StepNo: 0, No: 0, VM: "win64-1", Status: api.TaskQueued}}},
	)

	cfg := config.Config{Hosts: map[string]config.HostLimits{
		"host-a": {MaxActiveVMs: 4, MaxRunningVMs: 4, MaxRevertingVMs: 2, MaxRevertsWhileRunningVMs: 1, MaxVMsWhenIdle: 1},
	}}
	runner := &fakeRunner{}
	deps := Deps{
		Store:     mem,
		VM:        noopRecoverer{},
		Runner:    runner,
		GetConfig: func() config.Config { return cfg },
	}

	_, err := Run(ctx, time.Now(), deps, "")
	require.NoError(t, err)
	require.Equal(t, []string{"win64-1"}, runner.reverted)

	fleet, err := mem.LoadFleet(ctx)
	require.NoError(t, err)
	require.Equal(t, api.StatusReverting, fleet[0].Status)
}
