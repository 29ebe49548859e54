// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"fmt"

	"github.com/cobaltcore-dev/winevm-scheduler/api"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/config"
)

// statusPriority ranks a lamb VM's value for keeping, per §4.3's
// tie-break table: idle=2 > sleeping=1 > dirty=0. SacrificeVM picks
// the candidate with the *lowest* priority first: a dirty VM is
// already useless until powered off and re-reverted, so it is always
// sacrificed before an idle or sleeping one.
func statusPriority(s api.VMStatus) int {
	switch s {
	case api.StatusIdle:
		return 2
	case api.StatusSleeping:
		return 1
	case api.StatusDirty:
		return 0
	default:
		return 3
	}
}

// SacrificeVM picks the least valuable lamb VM on the applicant's
// host to power off, freeing capacity so the applicant can revert
// within the same pass (§4.3 "SacrificeVM"). The primary gate is
// _CompareNeededVMs: a lamb VM that itself shows up in neededIndex as
// strictly more important than the applicant (compareNeeded < 0) is
// never a candidate, no matter how idle it looks; among the VMs that
// pass the gate, status (dirty > sleeping > idle) and role/type bias
// break ties. An idle or sleeping VM is never sacrificed on behalf of
// a speculative future applicant; only a dirty one (already doing
// nothing useful) may be. Returns nil if no eligible victim exists.
func SacrificeVM(ctx context.Context, cls *Classification, hostLimits func(string) config.HostLimits, rv VMRunner, applicant NeededVM, neededIndex map[string]NeededVM) (*api.Record, error) {
	var victim string
	bestPriority, bestBias := -1, 0

	for name := range cls.Lamb {
		v := cls.Fleet[name]
		if v.Hostname != applicant.Host || name == applicant.VM {
			continue
		}
		if applicant.ForFuture && v.Status != api.StatusDirty {
			continue
		}
		if vn, ok := neededIndex[name]; ok && compareNeeded(vn, applicant) < 0 {
			continue
		}
		priority := statusPriority(v.Status)
		bias := roleBias(v.Role) + typeBias(v.Type)
		if victim == "" || priority < bestPriority || (priority == bestPriority && bias > bestBias) {
			victim = name
			bestPriority = priority
			bestBias = bias
		}
	}

	if victim == "" {
		return nil, nil
	}
	return sacrificeNamed(ctx, cls, cls.Fleet[victim], rv)
}

// sacrificeNamed marks v dirty (or leaves it dirty if it already was)
// and spawns a power-off, adjusting v's host counters so Active stays
// constant across the sacrifice-then-revert pair within this pass
// (§4.3: "the caller's host counters are adjusted so active stays
// constant").
func sacrificeNamed(ctx context.Context, cls *Classification, v api.VM, rv VMRunner) (*api.Record, error) {
	detail := "sacrifice"
	if v.Status == api.StatusDirty {
		detail = "poweroff"
	}

	v, err := rv.RunPowerOff(ctx, v)
	if err != nil {
		return nil, err
	}
	v.Status = api.StatusDirty
	cls.Fleet[v.Name] = v
	delete(cls.Lamb, v.Name)

	host := cls.hostCounters(v.Hostname)
	host.Active--
	host.FutureIdle--

	name := fmt.Sprintf("%s %s", v.Name, v.Hostname)
	value := "dirty " + detail
	return &api.Record{Type: api.RecordVMStatus, Name: name, Value: &value}, nil
}
