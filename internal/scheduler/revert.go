// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"

	"github.com/cobaltcore-dev/winevm-scheduler/api"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/config"
)

// RevertVMs is stage 3 of the pass (§4.3 "Reverting"): walks
// NeededVMs in rank order and reverts as many as the host's reverts
// cap, sacrifice budget, and dependency readiness allow. Only VMs
// still off are revert candidates (§4.1's lifecycle only allows
// off -> reverting directly); idle VMs are already usable and are
// skipped.
func RevertVMs(ctx context.Context, cls *Classification, hostLimits func(string) config.HostLimits, rv VMRunner, needed []NeededVM) ([]api.Record, error) {
	var records []api.Record

	neededIndex := make(map[string]NeededVM, len(needed))
	for _, n := range needed {
		neededIndex[n.VM] = n
	}

	for _, n := range needed {
		v, ok := cls.Fleet[n.VM]
		if !ok || v.Status != api.StatusOff {
			continue
		}

		host := cls.hostCounters(v.Hostname)
		limits := hostLimits(v.Hostname)
		revertsCap := limits.MaxRevertingVMs
		if host.Running > 0 {
			revertsCap = limits.MaxRevertsWhileRunningVMs
		}
		if host.Reverting >= revertsCap {
			continue
		}

		if !dependenciesReady(cls.Fleet, n.Dependencies) {
			continue
		}

		steal := n.Niceness < NextBase
		claimed, stolenFrom := cls.Domains.Claim(cls.Fleet, cls.Busy, v, steal)
		if !claimed {
			continue
		}

		needsSacrifice := false
		if n.ForFuture {
			needsSacrifice = host.FutureIdle+1 > limits.MaxVMsWhenIdle
		} else {
			needsSacrifice = host.Active+1 > limits.MaxActiveVMs
		}

		if stolenFrom != "" {
			// A successful steal already reassigned the domain; the
			// stolen-from VM must still actually be forced off so the
			// domain is free in practice, counted the same way a
			// regular sacrifice is.
			victim := cls.Fleet[stolenFrom]
			rec, err := sacrificeNamed(ctx, cls, victim, rv)
			if err != nil {
				return records, err
			}
			if rec != nil {
				records = append(records, *rec)
			}
		} else if needsSacrifice {
			rec, err := SacrificeVM(ctx, cls, hostLimits, rv, n, neededIndex)
			if err != nil {
				return records, err
			}
			if rec != nil {
				records = append(records, *rec)
			} else {
				// No eligible victim: this candidate cannot be
				// started this pass without exceeding the limit.
				continue
			}
		}

		v, err := rv.RunRevert(ctx, v)
		if err != nil {
			return records, err
		}
		cls.Fleet[v.Name] = v
		cls.Busy[v.Name] = true
		delete(cls.Lamb, v.Name)
		host.Reverting++
		host.Active++
	}

	return records, nil
}

// dependenciesReady reports whether every dependency VM is already
// committed to running soon (§4.3: "this VM may be prepared only when
// every dependency is already reverting|sleeping|running").
func dependenciesReady(fleet map[string]api.VM, deps []string) bool {
	for _, name := range deps {
		v, ok := fleet[name]
		if !ok {
			return false
		}
		switch v.Status {
		case api.StatusReverting, api.StatusSleeping, api.StatusRunning:
			continue
		default:
			return false
		}
	}
	return true
}
