// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"time"

	"github.com/cobaltcore-dev/winevm-scheduler/api"
)

// Store is the C3 persistence capability: load/save VMs, Jobs, Steps,
// Tasks, Records, with a transactional save for the scheduler pass
// (§5: "two passes never overlap... reads followed by writes inside a
// pass must be performed against a freshly-loaded view at the top of
// the pass").
type Store interface {
	// LoadFleet returns every VM known to the core, ordered by
	// SortOrder, for the classify_and_check stage (§4.3).
	LoadFleet(ctx context.Context) ([]api.VM, error)

	// LoadQueue returns every Job not yet in a terminal state, ordered
	// by (Priority, JobId) as §4.3's NeededVMs ranking requires. Callers
	// that also need Steps/Tasks call LoadStepsAndTasks per job.
	LoadQueue(ctx context.Context) ([]api.Job, error)

	// LoadJob returns a single Job by id.
	LoadJob(ctx context.Context, id int64) (*api.Job, error)

	// LoadStepsAndTasks hydrates the Steps and Tasks owned by jobID,
	// for callers assembling a full internal/job.Aggregate (cancel,
	// restart, roll-up).
	LoadStepsAndTasks(ctx context.Context, jobID int64) ([]api.Step, []api.Task, error)

	// NextRecordGroupID allocates the next monotonic RecordGroup id.
	// The scheduler calls this before spawning any child so that its
	// own group's id precedes any group a spawned child later creates
	// (§3, §5, property P7).
	NextRecordGroupID(ctx context.Context) (int64, error)

	// WithTx runs fn against a transactional view of the store and
	// commits iff fn returns nil. Every mutating scheduler pass runs
	// inside exactly one WithTx call.
	WithTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the transactional view of Store used from inside WithTx.
type Tx interface {
	SaveVM(ctx context.Context, vm api.VM) error
	SaveJob(ctx context.Context, job api.Job) error
	SaveStep(ctx context.Context, step api.Step) error
	SaveTask(ctx context.Context, task api.Task) error

	// SaveRecordGroup persists a RecordGroup and its Records atomically.
	SaveRecordGroup(ctx context.Context, group api.RecordGroup) error

	// LoadRecordGroups returns groups with Timestamp in [since, until],
	// ordered by (Timestamp, Id) as §4.4 reconstruction requires.
	LoadRecordGroups(ctx context.Context, since, until time.Time) ([]api.RecordGroup, error)
}
