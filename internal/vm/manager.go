// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package vm

import (
	"context"
	"strconv"
	"time"

	"github.com/cobaltcore-dev/winevm-scheduler/api"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/config"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/hypervisor"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/obslog"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/store"
)

// Manager is the C4 lifecycle manager: it spawns and supervises the
// per-VM child processes that carry out reverts and power-offs, probes
// VMs that need no child (idle/off/monitor checks), and runs
// consistency recovery. The VM-agent capability is not held here: it
// is only ever exercised from inside a spawned child (RunChildMain),
// which builds its own against the re-exec'd process's own wiring.
type Manager struct {
	store  store.Store
	hv     hypervisor.Interface
	getCfg func() config.Config

	configPath string
	breakers   *breakers
}

// NewManager builds a Manager. getCfg is called on every operation so
// a live config.Watcher's reloads take effect without restarting the
// manager.
func NewManager(st store.Store, hv hypervisor.Interface, configPath string, getCfg func() config.Config) *Manager {
	return &Manager{
		store:      st,
		hv:         hv,
		getCfg:     getCfg,
		configPath: configPath,
		breakers:   newBreakers(),
	}
}

// RunRevert spawns a supervised child that reverts v to its
// IdleSnapshot, waits for the VM agent, lets it settle, and transitions
// reverting -> sleeping -> idle on success (§4.1). It returns the VM as
// spawn persisted it (Status/ChildPid/ChildDeadline), which the caller
// must store back into its own view instead of its pre-call copy.
func (m *Manager) RunRevert(ctx context.Context, v api.VM) (api.VM, error) {
	cfg := m.getCfg()
	deadline := time.Duration(cfg.WaitForToolsInVM+cfg.SleepAfterRevert+30) * time.Second
	return m.spawn(ctx, v, opRevert, api.StatusReverting, deadline)
}

// RunPowerOff forcibly transitions v to off from any state (§4.1).
func (m *Manager) RunPowerOff(ctx context.Context, v api.VM) (api.VM, error) {
	return m.spawn(ctx, v, opPowerOff, v.Status, 30*time.Second)
}

// RunTask spawns a supervised child that executes t's command line
// inside v over the VM agent, transitioning idle -> running (§4.2,
// §4.3 "Starting a runnable task"). t's identity travels as the
// child's extra argv so it can reload and reclassify that exact Task
// row once the command exits (§6/§7).
func (m *Manager) RunTask(ctx context.Context, v api.VM, t api.Task) (api.VM, error) {
	deadline := t.Timeout + 30*time.Second
	return m.spawn(ctx, v, opRunTask, api.StatusRunning, deadline,
		strconv.FormatInt(t.JobID, 10), strconv.Itoa(t.StepNo), strconv.Itoa(t.No))
}

// RunCheckIdle probes v's live power state and reports whether the
// hypervisor agrees the VM is up and reachable. No child is spawned:
// this is a cheap synchronous probe.
func (m *Manager) RunCheckIdle(ctx context.Context, v api.VM) (bool, error) {
	var state hypervisor.PowerState
	err := m.breakers.call(v.VirtURI, func() error {
		var err error
		state, err = m.hv.ProbePowerState(v.VirtURI, v.VirtDomain)
		return err
	})
	if err != nil {
		return false, err
	}
	return state == hypervisor.PowerOn, nil
}

// RunCheckOff probes v and reports whether the hypervisor agrees the
// VM is powered off.
func (m *Manager) RunCheckOff(ctx context.Context, v api.VM) (bool, error) {
	var state hypervisor.PowerState
	err := m.breakers.call(v.VirtURI, func() error {
		var err error
		state, err = m.hv.ProbePowerState(v.VirtURI, v.VirtDomain)
		return err
	})
	if err != nil {
		return false, err
	}
	return state == hypervisor.PowerOff, nil
}

// RunMonitor probes an offline VM's live power state so the scheduler
// can decide whether it may leave the offline administrative state
// (§4.1: "transitions out of maintenance/offline only via operator or
// successful probe").
func (m *Manager) RunMonitor(ctx context.Context, v api.VM) (hypervisor.PowerState, error) {
	log := obslog.FromContext(ctx, "component", "vm-manager", "vm", v.Name)
	var state hypervisor.PowerState
	err := m.breakers.call(v.VirtURI, func() error {
		var err error
		state, err = m.hv.ProbePowerState(v.VirtURI, v.VirtDomain)
		return err
	})
	if err != nil {
		log.Error(err, "monitor probe failed")
		return hypervisor.PowerUnknown, err
	}
	return state, nil
}

// Screenshot captures v's current framebuffer, for the control
// channel's getscreenshot command. No breaker is consulted: a
// user-initiated, one-off diagnostic request should surface the
// hypervisor's error directly rather than being suppressed by state
// meant to protect the scheduler's own repeated probing.
func (m *Manager) Screenshot(v api.VM) ([]byte, error) {
	return m.hv.Screenshot(v.VirtURI, v.VirtDomain)
}

// KillChild forcibly terminates v's supervised child, if alive. Used
// both by consistency recovery (deadline/incompatible-state cases) and
// by the job model's Cancel operation (§4.2).
func (m *Manager) KillChild(v api.VM) error {
	return killProcess(v.ChildPid)
}
