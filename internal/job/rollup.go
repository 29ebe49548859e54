// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package job

import (
	"time"

	"github.com/cobaltcore-dev/winevm-scheduler/api"
)

// precedence lists the non-queued outcomes from most to least
// significant (§4.2): "running > boterror > badpatch > badbuild >
// canceled > skipped > completed". queued is handled separately by
// the caveat in computeStatus.
var precedence = []api.JobStatus{
	api.JobRunning,
	api.JobBotError,
	api.JobBadPatch,
	api.JobBadBuild,
	api.JobCanceled,
	api.JobSkipped,
	api.JobCompleted,
}

// taskOutcome maps a Task's TaskStatus onto the roll-up domain shared
// by Step/Job status. TaskTimeout has no roll-up class of its own in
// §4.2's list; it is treated as boterror-significant for roll-up
// purposes (both are infrastructure-side terminal outcomes that still
// draw on the task retry budget).
func taskOutcome(s api.TaskStatus) api.JobStatus {
	switch s {
	case api.TaskQueued:
		return api.JobQueued
	case api.TaskRunning:
		return api.JobRunning
	case api.TaskCompleted:
		return api.JobCompleted
	case api.TaskBadPatch:
		return api.JobBadPatch
	case api.TaskBadBuild:
		return api.JobBadBuild
	case api.TaskBotError, api.TaskTimeout:
		return api.JobBotError
	case api.TaskCanceled:
		return api.JobCanceled
	case api.TaskSkipped:
		return api.JobSkipped
	default:
		return api.JobBotError
	}
}

// computeStatus picks the most significant status present in
// statuses, applying the queued caveat: queued only wins outright when
// every input is queued (nothing has run yet); otherwise, any queued
// input alongside a non-queued one means the owner is still in
// progress (running), regardless of what the non-queued ones say.
func computeStatus(statuses []api.JobStatus) api.JobStatus {
	if len(statuses) == 0 {
		return api.JobQueued
	}
	present := make(map[api.JobStatus]bool, len(statuses))
	anyQueued, anyNonQueued := false, false
	for _, s := range statuses {
		if s == api.JobQueued {
			anyQueued = true
			continue
		}
		anyNonQueued = true
		present[s] = true
	}
	if anyQueued {
		if !anyNonQueued {
			return api.JobQueued
		}
		return api.JobRunning
	}
	for _, p := range precedence {
		if present[p] {
			return p
		}
	}
	return api.JobCompleted
}

// RollUp recomputes every Step.Status from its Tasks and Job.Status
// from its Steps, applying the all-skipped-means-canceled rule, and
// sets Job.Ended the first time Job.Status becomes terminal. It
// reports whether anything changed. Running it twice on the same
// inputs is a no-op the second time (P6).
func RollUp(now time.Time, agg *Aggregate) bool {
	changed := false

	stepStatuses := make([]api.JobStatus, len(agg.Steps))
	for i := range agg.Steps {
		s := &agg.Steps[i]
		var outcomes []api.JobStatus
		for _, t := range agg.Tasks {
			if t.StepNo == s.No {
				outcomes = append(outcomes, taskOutcome(t.Status))
			}
		}
		next := computeStatus(outcomes)
		if s.Status != next {
			s.Status = next
			changed = true
		}
		stepStatuses[i] = next
	}

	jobStatus := computeStatus(stepStatuses)
	if jobStatus == api.JobSkipped {
		// The only way every step ends up skipped is a user cancel
		// before anything ran.
		jobStatus = api.JobCanceled
	}
	if agg.Job.Status != jobStatus {
		agg.Job.Status = jobStatus
		changed = true
	}
	if jobStatus.Terminal() && agg.Job.Ended == nil {
		ended := now
		agg.Job.Ended = &ended
		changed = true
	}

	return changed
}
