// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"time"

	"github.com/cobaltcore-dev/winevm-scheduler/api"
)

// SafetyNet is the fallback delay when no VM has a live ChildDeadline
// to wake the pass up sooner (§4.3 "arm_next_tick").
const SafetyNet = 10 * time.Minute

// ArmNextTick is stage 6 of the pass: the engine's event loop should
// re-run the scheduler at the earliest of any fleet-wide ChildDeadline
// or, absent one, after SafetyNet.
func ArmNextTick(now time.Time, fleet []api.VM) time.Duration {
	next := now.Add(SafetyNet)
	for _, v := range fleet {
		if v.ChildDeadline == nil {
			continue
		}
		if v.ChildDeadline.Before(next) {
			next = *v.ChildDeadline
		}
	}
	delay := next.Sub(now)
	if delay < time.Second {
		delay = time.Second
	}
	return delay
}
