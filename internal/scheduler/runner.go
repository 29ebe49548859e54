// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"

	"github.com/cobaltcore-dev/winevm-scheduler/api"
)

// VMRunner is the small consumer-side interface the scheduler needs
// from the C4 lifecycle manager: spawn a revert, spawn a power-off,
// spawn a task execution. Each spawn call persists
// (Status, ChildPid, ChildDeadline) itself and returns the VM exactly
// as it was committed, which the caller must store back into its own
// view instead of its pre-call copy. Satisfied by *internal/vm.Manager.
type VMRunner interface {
	RunRevert(ctx context.Context, v api.VM) (api.VM, error)
	RunPowerOff(ctx context.Context, v api.VM) (api.VM, error)
	RunTask(ctx context.Context, v api.VM, t api.Task) (api.VM, error)
}
