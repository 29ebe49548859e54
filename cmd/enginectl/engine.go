// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/cobaltcore-dev/winevm-scheduler/internal/eventloop"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/obslog"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/store"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/vm"
)

// schedulerTickName is the eventloop.Event name the control channel's
// reschedulejobs/vmstatuschange commands force with Loop.Trigger.
const schedulerTickName = "scheduler-tick"

// engine implements control.Shutdowner (§6 "shutdown"): it is the
// drain/kill side of the command, reached from both the control
// socket and the systemd prepare-for-shutdown callback.
type engine struct {
	store store.Store
	vmMgr *vm.Manager
	loop  *eventloop.Loop
}

// Shutdown stops the event loop from arming any further scheduling
// pass and, per killTasks/killVMs, kills supervised children and/or
// forces every VM off. It does not wait for those kills to finish:
// the caller (control socket reply, or the systemd inhibitor callback)
// observes only that the drain was requested.
func (e *engine) Shutdown(ctx context.Context, killTasks, killVMs bool) error {
	log := obslog.FromContext(ctx, "component", "engine", "killTasks", killTasks, "killVMs", killVMs)
	log.Info("shutdown requested")
	e.loop.Remove(schedulerTickName)

	if !killTasks && !killVMs {
		return nil
	}

	fleet, err := e.store.LoadFleet(ctx)
	if err != nil {
		return fmt.Errorf("engine: loading fleet for shutdown: %w", err)
	}
	for _, v := range fleet {
		if killTasks && v.ChildPid != nil {
			if err := e.vmMgr.KillChild(v); err != nil {
				log.Error(err, "killing child during shutdown", "vm", v.Name)
			}
		}
		if killVMs {
			if _, err := e.vmMgr.RunPowerOff(ctx, v); err != nil {
				log.Error(err, "powering off during shutdown", "vm", v.Name)
			}
		}
	}
	return nil
}
