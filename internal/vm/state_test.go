// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package vm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cobaltcore-dev/winevm-scheduler/api"
)

func TestValidTransitionFollowsLifecycleDiagram(t *testing.T) {
	cases := []struct {
		from, to api.VMStatus
		want     bool
	}{
		{api.StatusOff, api.StatusReverting, true},
		{api.StatusReverting, api.StatusSleeping, true},
		{api.StatusSleeping, api.StatusIdle, true},
		{api.StatusIdle, api.StatusRunning, true},
		{api.StatusRunning, api.StatusDirty, true},
		{api.StatusDirty, api.StatusOff, true},
		{api.StatusOff, api.StatusIdle, false},
		{api.StatusIdle, api.StatusOff, false},
		{api.StatusRunning, api.StatusReverting, false},
	}
	for _, c := range cases {
		require.Equal(t, c.want, ValidTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestValidTransitionAllowsAdministrativeSideTransitions(t *testing.T) {
	for _, from := range []api.VMStatus{api.StatusOff, api.StatusIdle, api.StatusRunning, api.StatusDirty} {
		require.True(t, ValidTransition(from, api.StatusMaintenance))
		require.True(t, ValidTransition(from, api.StatusOffline))
	}
	require.True(t, ValidTransition(api.StatusMaintenance, api.StatusIdle))
	require.True(t, ValidTransition(api.StatusOffline, api.StatusOff))
}
