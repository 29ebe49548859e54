// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package job

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cobaltcore-dev/winevm-scheduler/api"
)

// RemoveAll deletes path and everything under it; satisfied by
// os.RemoveAll in production and a recording fake in tests.
type RemoveAll func(path string) error

// Restart implements §4.2's restart: permitted only from a terminal,
// non-queued/non-running Job.Status. The first Step's task
// directories are removed (the step directory itself keeps the
// patch/exe that drives the rebuild); later Steps' directories are
// removed entirely since they only ever held outputs. Every Task is
// reset to queued with Started/Ended/TestFailures cleared, every Step
// back to queued, and the Job itself is reset to queued with a fresh
// Submitted and no Ended.
func Restart(now time.Time, agg *Aggregate, dataDir string, remove RemoveAll) error {
	if !agg.Job.Status.Terminal() || agg.Job.Status == api.JobQueued {
		return fmt.Errorf("job: cannot restart job %d from status %s", agg.Job.ID, agg.Job.Status)
	}

	jobDir := filepath.Join(dataDir, "jobs", strconv.FormatInt(agg.Job.ID, 10))
	for i := range agg.Steps {
		s := &agg.Steps[i]
		stepDir := filepath.Join(jobDir, strconv.Itoa(s.No))
		if i == 0 {
			for _, t := range agg.TasksOf(s.No) {
				taskDir := filepath.Join(stepDir, strconv.Itoa(t.No))
				if err := remove(taskDir); err != nil {
					return fmt.Errorf("job: removing task dir %s: %w", taskDir, err)
				}
			}
		} else {
			if err := remove(stepDir); err != nil {
				return fmt.Errorf("job: removing step dir %s: %w", stepDir, err)
			}
		}
	}

	for i := range agg.Tasks {
		t := &agg.Tasks[i]
		t.Status = api.TaskQueued
		t.Started = nil
		t.Ended = nil
		t.TestFailures = 0
	}
	for i := range agg.Steps {
		agg.Steps[i].Status = api.JobQueued
	}

	agg.Job.Status = api.JobQueued
	agg.Job.Submitted = now
	agg.Job.Ended = nil
	return nil
}
