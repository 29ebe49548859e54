// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cobaltcore-dev/winevm-scheduler/api"
)

type fakeRunner struct {
	reverted   []string
	poweredOff []string
	ranTasks   []string
	err        error
}

func (f *fakeRunner) RunRevert(ctx context.Context, v api.VM) (api.VM, error) {
	f.reverted = append(f.reverted, v.Name)
	if f.err != nil {
		return v, f.err
	}
	v.Status = api.StatusReverting
	return v, nil
}

func (f *fakeRunner) RunPowerOff(ctx context.Context, v api.VM) (api.VM, error) {
	f.poweredOff = append(f.poweredOff, v.Name)
	// Mirrors internal/vm.Manager.RunPowerOff: the child's spawn keeps
	// v.Status as-is until the child itself flips it to off, so the
	// caller is responsible for any optimistic status bookkeeping.
	return v, f.err
}

func (f *fakeRunner) RunTask(ctx context.Context, v api.VM, t api.Task) (api.VM, error) {
	f.ranTasks = append(f.ranTasks, v.Name)
	if f.err != nil {
		return v, f.err
	}
	v.Status = api.StatusRunning
	return v, nil
}

func classifyFor(vms ...api.VM) *Classification {
	return Classify(vms)
}

func TestSacrificeVMPrefersDirtyOverIdleAndSleeping(t *testing.T) {
	cls := classifyFor(
		api.VM{Name: "idle-1", Status: api.StatusIdle, Hostname: "host-a"},
		api.VM{Name: "sleeping-1", Status: api.StatusSleeping, Hostname: "host-a"},
		api.VM{Name: "dirty-1", Status: api.StatusDirty, Hostname: "host-a"},
		api.VM{Name: "applicant", Status: api.StatusOff, Hostname: "host-a"},
	)
	rv := &fakeRunner{}
	applicant := NeededVM{VM: "applicant", Host: "host-a"}

	rec, err := SacrificeVM(context.Background(), cls, nil, rv, applicant, nil)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "dirty poweroff", *rec.Value, "sacrificing an already-dirty VM is reported as poweroff, not sacrifice")
	require.Equal(t, "dirty-1 host-a", rec.Name)
	require.Equal(t, []string{"dirty-1"}, rv.poweredOff)
}

func TestSacrificeVMNeverPicksIdleOrSleepingForFutureApplicant(t *testing.T) {
	cls := classifyFor(
		api.VM{Name: "idle-1", Status: api.StatusIdle, Hostname: "host-a"},
		api.VM{Name: "sleeping-1", Status: api.StatusSleeping, Hostname: "host-a"},
	)
	rv := &fakeRunner{}
	applicant := NeededVM{VM: "future-1", Host: "host-a", ForFuture: true}

	rec, err := SacrificeVM(context.Background(), cls, nil, rv, applicant, nil)
	require.NoError(t, err)
	require.Nil(t, rec, "no dirty victim available: nothing sacrificeable for a future applicant")
}

func TestSacrificeVMIgnoresOtherHosts(t *testing.T) {
	cls := classifyFor(
		api.VM{Name: "dirty-other-host", Status: api.StatusDirty, Hostname: "host-b"},
	)
	rv := &fakeRunner{}
	applicant := NeededVM{VM: "applicant", Host: "host-a"}

	rec, err := SacrificeVM(context.Background(), cls, nil, rv, applicant, nil)
	require.NoError(t, err)
	require.Nil(t, rec)
}

// TestSacrificeVMNeverPicksAVictimNeededMoreThanApplicant exercises the
// _CompareNeededVMs gate (§4.3): a lamb VM that is itself strictly more
// important than the applicant is never a victim, even when it is the
// only idle/dirty candidate on the host.
func TestSacrificeVMNeverPicksAVictimNeededMoreThanApplicant(t *testing.T) {
	cls := classifyFor(
		api.VM{Name: "idle-1", Status: api.StatusIdle, Hostname: "host-a"},
		api.VM{Name: "dirty-1", Status: api.StatusDirty, Hostname: "host-a"},
	)
	rv := &fakeRunner{}
	applicant := NeededVM{VM: "applicant", Host: "host-a", Niceness: 5}
	neededIndex := map[string]NeededVM{
		// dirty-1 is needed more urgently than the applicant: a lower
		// Niceness ranks better, so it must never be sacrificed.
		"dirty-1": {VM: "dirty-1", Host: "host-a", Niceness: 1},
	}

	rec, err := SacrificeVM(context.Background(), cls, nil, rv, applicant, neededIndex)
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.Equal(t, "idle-1 host-a", rec.Name, "dirty-1 is gated out despite its lower statusPriority; idle-1 is the only eligible victim left")
}
