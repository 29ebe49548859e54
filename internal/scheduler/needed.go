// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"sort"
	"time"

	"github.com/cobaltcore-dev/winevm-scheduler/api"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/job"
)

// Niceness bands keep the three origins of demand (runnable now, next
// step about to run, speculative future prep) from overlapping; lower
// is always better (§4.3 "NeededVMs ranking").
const (
	NextBase   = 1000
	FutureBase = 2000
)

// NeededVM is one entry in the scheduler's prioritized revert
// worklist: a VM some queued or upcoming work wants, annotated with
// the 4-tuple that ranks it against every other candidate.
type NeededVM struct {
	VM   string
	Host string

	Niceness     int
	Hot          int // 1 if the VM is not off (likely hot in the host page cache)
	Demand       int // number of tasks that want this VM
	Dependencies []string

	// ForFuture marks a FUTURE_BASE entry: speculative prep done only
	// when the host is otherwise idle, never a steal target and never
	// sacrificing an idle/sleeping VM to make room.
	ForFuture bool
}

// roleBias and typeBias implement the "base>winetest>extra" and
// "build>win64>win32" speculative-preparation ordering (§4.3).
func roleBias(r api.VMRole) int {
	switch r {
	case api.RoleBase:
		return 0
	case api.RoleWinetest:
		return 10
	case api.RoleExtra:
		return 20
	default:
		return 30
	}
}

func typeBias(t api.VMType) int {
	switch t {
	case api.VMTypeBuild:
		return 0
	case api.VMTypeWin64:
		return 1
	case api.VMTypeWin32, api.VMTypeWine:
		return 2
	default:
		return 3
	}
}

func hot(fleet map[string]api.VM, name string) int {
	if v, ok := fleet[name]; ok && v.Status != api.StatusOff {
		return 1
	}
	return 0
}

// needed accumulates NeededVM entries keyed by VM name, merging
// repeat demand and keeping the better (lower) niceness per §4.3:
// "When the same VM appears for both a later job and an earlier
// 'next step' task, the better (lower) niceness and its dependency
// list win."
type needed struct {
	fleet map[string]api.VM
	byVM  map[string]*NeededVM
}

func newNeeded(fleet map[string]api.VM) *needed {
	return &needed{fleet: fleet, byVM: make(map[string]*NeededVM)}
}

func (n *needed) add(vmName string, niceness int, deps []string, future bool) {
	v, ok := n.fleet[vmName]
	if !ok {
		return
	}
	existing, seen := n.byVM[vmName]
	if !seen {
		n.byVM[vmName] = &NeededVM{
			VM:           vmName,
			Host:         v.Hostname,
			Niceness:     niceness,
			Hot:          hot(n.fleet, vmName),
			Demand:       1,
			Dependencies: deps,
			ForFuture:    future,
		}
		return
	}
	existing.Demand++
	if niceness < existing.Niceness {
		existing.Niceness = niceness
		existing.Dependencies = deps
		existing.ForFuture = future
	}
}

// list returns every accumulated entry, sorted by rank (§4.3
// "_CompareNeededVMs"): ascending niceness, then hot before cold, then
// higher demand first.
func (n *needed) list() []NeededVM {
	out := make([]NeededVM, 0, len(n.byVM))
	for _, v := range n.byVM {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool {
		return compareNeeded(out[i], out[j]) < 0
	})
	return out
}

func compareNeeded(a, b NeededVM) int {
	if a.Niceness != b.Niceness {
		return a.Niceness - b.Niceness
	}
	if a.Hot != b.Hot {
		return b.Hot - a.Hot
	}
	if a.Demand != b.Demand {
		return b.Demand - a.Demand
	}
	if a.VM != b.VM {
		if a.VM < b.VM {
			return -1
		}
		return 1
	}
	return 0
}

// BuildNeeded walks every queued Job in (Priority, JobId) order
// (JobRank 1, 2, ...) and records its current-step queued tasks'
// VMs (niceness = JobRank) and, when the current step's tasks are
// all already committed to a VM that is reverting/sleeping/running,
// the *next* step's VMs too (niceness = NextBase + JobRank,
// Dependencies = the current step's VM names). buildTimeout is the
// "next-step preparation cutoff" (§9 Design Note): a current-step task
// whose own Timeout exceeds it is far enough out that its payoff
// doesn't justify nicing up next-step prep, so it never counts toward
// curCommitted.
func BuildNeeded(fleet map[string]api.VM, aggs []*job.Aggregate, buildTimeout time.Duration) []NeededVM {
	n := newNeeded(fleet)

	for rank, agg := range aggs {
		jobRank := rank + 1
		cur := agg.FirstNonCompletedStep()
		if cur == nil {
			continue
		}

		curTasks := agg.TasksOf(cur.No)
		curVMs := make([]string, 0, len(curTasks))
		curCommitted := len(curTasks) > 0
		for _, t := range curTasks {
			curVMs = append(curVMs, t.VM)
			if t.Status == api.TaskQueued {
				n.add(t.VM, jobRank, nil, false)
			}
			if buildTimeout > 0 && t.Timeout > buildTimeout {
				curCommitted = false
				continue
			}
			if !stepCommitted(fleet, t) {
				curCommitted = false
			}
		}

		if !curCommitted {
			continue
		}
		next := nextStep(agg, cur.No)
		if next == nil {
			continue
		}
		for _, t := range agg.TasksOf(next.No) {
			if t.Status != api.TaskQueued {
				continue
			}
			n.add(t.VM, NextBase+jobRank, curVMs, false)
		}
	}

	return n.list()
}

// stepCommitted reports whether a current-step task's VM is already
// "about to run" (reverting, sleeping, or running) so the step that
// follows it can start being prepared.
func stepCommitted(fleet map[string]api.VM, t api.Task) bool {
	v, ok := fleet[t.VM]
	if !ok {
		return false
	}
	switch v.Status {
	case api.StatusReverting, api.StatusSleeping, api.StatusRunning:
		return true
	default:
		return t.Status.Terminal()
	}
}

func nextStep(agg *job.Aggregate, stepNo int) *api.Step {
	for i := range agg.Steps {
		if agg.Steps[i].No == stepNo {
			if i+1 < len(agg.Steps) {
				return &agg.Steps[i+1]
			}
			return nil
		}
	}
	return nil
}

// BuildFutureCandidates ranks every enabled, off VM for speculative
// preparation (§4.3 "Future-job preparation"), used only when the
// host has no queued work. Niceness favors base over winetest over
// extra roles, and build over win64 over win32/wine types.
func BuildFutureCandidates(fleet map[string]api.VM) []NeededVM {
	n := newNeeded(fleet)
	for name, v := range fleet {
		if !v.Role.HasEnabledRole() || v.Status != api.StatusOff {
			continue
		}
		niceness := FutureBase + roleBias(v.Role) + typeBias(v.Type)
		n.add(name, niceness, nil, true)
	}
	return n.list()
}
