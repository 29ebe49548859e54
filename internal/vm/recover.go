// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package vm

import (
	"context"
	"fmt"
	"time"

	"github.com/cobaltcore-dev/winevm-scheduler/api"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/obslog"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/store"
)

// Recover implements the four-case consistency pass of §4.1, run at
// engine start and at the top of every scheduling pass. It mutates and
// persists any VM whose (Status, ChildPid, ChildDeadline) triple does
// not match what its process actually looks like right now, returns
// the set of VM names it touched so the caller can re-roll-up the
// jobs those VMs' tasks belong to, and returns one vmresult Record per
// touched VM (Cases 1-3) so the boterror transition is durable and
// shows up in the reconstructed timeline (§4.1/§7) instead of only
// being logged.
func (m *Manager) Recover(ctx context.Context, now time.Time) ([]string, []api.Record, error) {
	log := obslog.FromContext(ctx, "component", "vm-recover")

	fleet, err := m.store.LoadFleet(ctx)
	if err != nil {
		return nil, nil, err
	}

	var touched []string
	var records []api.Record
	cfg := m.getCfg()

	for _, v := range fleet {
		alive := processAlive(v.ChildPid)
		var detail string

		switch {
		case alive && v.ChildDeadline != nil && now.After(*v.ChildDeadline):
			// Case 1: child alive but past its deadline.
			_ = m.KillChild(v)
			v.Errors++
			if cfg.MaxVMErrors > 0 && v.Errors >= cfg.MaxVMErrors {
				v.Status = api.StatusMaintenance
			} else {
				v.Status = api.StatusDirty
			}
			v.ChildPid = nil
			v.ChildDeadline = nil
			detail = "boterror stuck process"
			log.Info(detail, "vm", v.Name)

		case alive && !v.Status.CanHaveChild():
			// Case 2: child alive but Status incompatible with having one.
			_ = m.KillChild(v)
			v.Status = api.StatusDirty
			v.ChildPid = nil
			v.ChildDeadline = nil
			detail = "boterror unexpected process"
			log.Info(detail, "vm", v.Name)

		case !alive && (v.Status == api.StatusRunning || v.Status == api.StatusReverting ||
			v.Status == api.StatusSleeping || v.ChildPid != nil):
			// Case 3: no child alive but state implies one should be.
			v.Status = api.StatusDirty
			v.ChildPid = nil
			v.ChildDeadline = nil
			detail = "boterror process died"
			log.Info(detail, "vm", v.Name)

		default:
			// Case 4: accepted as-is.
			continue
		}

		if err := persistVM(ctx, m.store, v); err != nil {
			return touched, records, err
		}
		touched = append(touched, v.Name)
		name := fmt.Sprintf("%s %s", v.Name, v.Hostname)
		records = append(records, api.Record{Type: api.RecordVMResult, Name: name, Value: &detail})
	}

	return touched, records, nil
}
