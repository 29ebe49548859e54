// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"fmt"

	"github.com/cobaltcore-dev/winevm-scheduler/api"
)

// PowerOffDirty is stage 4 of the pass (§4.3 "Power-off dirty"): any
// VM still sitting in the lamb set with Status=dirty after reverts
// have run gets a power-off spawned, as long as it still owns its
// hypervisor domain (a VM mid-steal by someone else's revert is
// skipped; the stealer's sacrifice already powered it off).
func PowerOffDirty(ctx context.Context, cls *Classification, rv VMRunner) ([]api.Record, error) {
	var records []api.Record

	for name := range cls.Lamb {
		v := cls.Fleet[name]
		if v.Status != api.StatusDirty {
			continue
		}
		if owner, ok := cls.Domains.Owner(v.Domain()); ok && owner != v.Name {
			continue
		}

		v, err := rv.RunPowerOff(ctx, v)
		if err != nil {
			return records, err
		}
		cls.Fleet[v.Name] = v

		recName := fmt.Sprintf("%s %s", v.Name, v.Hostname)
		value := "dirty poweroff"
		records = append(records, api.Record{Type: api.RecordVMStatus, Name: recName, Value: &value})
	}

	return records, nil
}
