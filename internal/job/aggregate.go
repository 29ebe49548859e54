// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package job is the C5 capability: status roll-up, skip propagation,
// cancel and restart, implemented as pure functions over an in-memory
// Job/Step/Task aggregate so they are trivially testable without a
// database and, per P6, trivially idempotent.
package job

import "github.com/cobaltcore-dev/winevm-scheduler/api"

// Aggregate is one Job together with the Steps and Tasks it owns,
// assembled from internal/store's LoadJob + LoadStepsAndTasks.
type Aggregate struct {
	Job   api.Job
	Steps []api.Step
	Tasks []api.Task
}

// TasksOf returns the Tasks belonging to step stepNo, in index order
// (callers that need No-order should sort; internal/store already
// returns tasks ordered by (StepNo, No)).
func (a *Aggregate) TasksOf(stepNo int) []api.Task {
	var out []api.Task
	for _, t := range a.Tasks {
		if t.StepNo == stepNo {
			out = append(out, t)
		}
	}
	return out
}

// FirstNonCompletedStep returns the first Step whose Status is not
// JobCompleted, or nil if every Step has completed. The scheduler uses
// this to find the Step a Job is currently working through.
func (a *Aggregate) FirstNonCompletedStep() *api.Step {
	for i := range a.Steps {
		if a.Steps[i].Status != api.JobCompleted {
			return &a.Steps[i]
		}
	}
	return nil
}
