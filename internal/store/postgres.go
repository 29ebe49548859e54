// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	// registers the pgx stdlib driver under the name "pgx"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/cobaltcore-dev/winevm-scheduler/api"
)

// Postgres is the production Store, backed by sqlx over pgx's
// database/sql stdlib adapter — the same trio (jmoiron/sqlx +
// jackc/pgx/v5 + pressly/goose migrations, see migrations/) used for
// persistence in jordigilh-kubernaut, adopted here since the teacher
// names no persistence library of its own beyond the Kubernetes API
// server it talks to through client-go.
type Postgres struct {
	db *sqlx.DB
}

// Open connects to dsn (a postgres connection string) via the pgx
// stdlib driver and wraps it in sqlx.
func Open(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connecting: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

// DB returns the underlying *sql.DB, for cmd/enginectl's one-time
// Migrate call at startup.
func (p *Postgres) DB() *sql.DB { return p.db.DB }

func (p *Postgres) LoadFleet(ctx context.Context) ([]api.VM, error) {
	var vms []api.VM
	err := p.db.SelectContext(ctx, &vms, `
		SELECT name, type, role, status, virt_uri, virt_domain, idle_snapshot,
		       hostname, child_pid, child_deadline, errors, sort_order
		FROM vms ORDER BY sort_order`)
	if err != nil {
		return nil, fmt.Errorf("store: loading fleet: %w", err)
	}
	return vms, nil
}

func (p *Postgres) LoadQueue(ctx context.Context) ([]api.Job, error) {
	var jobs []api.Job
	err := p.db.SelectContext(ctx, &jobs, `
		SELECT id, user_name, priority, status, submitted, ended, patch
		FROM jobs
		WHERE status IN ('queued', 'running')
		ORDER BY priority, id`)
	if err != nil {
		return nil, fmt.Errorf("store: loading queue: %w", err)
	}
	return jobs, nil
}

func (p *Postgres) LoadJob(ctx context.Context, id int64) (*api.Job, error) {
	var job api.Job
	err := p.db.GetContext(ctx, &job, `
		SELECT id, user_name, priority, status, submitted, ended, patch
		FROM jobs WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("store: loading job %d: %w", id, err)
	}
	return &job, nil
}

// LoadStepsAndTasks hydrates a job's Steps and Tasks. It is exported
// separately from LoadJob/LoadQueue because most callers (the
// scheduler's classify stage) need only the VM fleet and the
// Task-level queue, not full Step objects; callers that do need the
// full aggregate (cancel, restart, roll-up) call this explicitly.
func (p *Postgres) LoadStepsAndTasks(ctx context.Context, jobID int64) ([]api.Step, []api.Task, error) {
	var steps []api.Step
	if err := p.db.SelectContext(ctx, &steps, `
		SELECT job_id, no, previous_no, type, status, file_name, file_type,
		       in_staging, debug_level, report_successful_tests
		FROM steps WHERE job_id = $1 ORDER BY no`, jobID); err != nil {
		return nil, nil, fmt.Errorf("store: loading steps for job %d: %w", jobID, err)
	}
	var tasks []api.Task
	if err := p.db.SelectContext(ctx, &tasks, `
		SELECT job_id, step_no, no, vm_name, status, timeout, cmd_line_arg,
		       started, ended, test_failures
		FROM tasks WHERE job_id = $1 ORDER BY step_no, no`, jobID); err != nil {
		return nil, nil, fmt.Errorf("store: loading tasks for job %d: %w", jobID, err)
	}
	return steps, tasks, nil
}

func (p *Postgres) NextRecordGroupID(ctx context.Context) (int64, error) {
	var id int64
	err := p.db.GetContext(ctx, &id, `SELECT nextval('record_groups_id_seq')`)
	if err != nil {
		return 0, fmt.Errorf("store: allocating record group id: %w", err)
	}
	return id, nil
}

func (p *Postgres) WithTx(ctx context.Context, fn func(Tx) error) error {
	sqlTx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: beginning tx: %w", err)
	}
	tx := &pgTx{tx: sqlTx}
	if err := fn(tx); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("store: committing tx: %w", err)
	}
	return nil
}

type pgTx struct {
	tx *sqlx.Tx
}

func (t *pgTx) SaveVM(ctx context.Context, vm api.VM) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO vms (name, type, role, status, virt_uri, virt_domain, idle_snapshot,
		                  hostname, child_pid, child_deadline, errors, sort_order)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (name) DO UPDATE SET
			type = EXCLUDED.type, role = EXCLUDED.role, status = EXCLUDED.status,
			virt_uri = EXCLUDED.virt_uri, virt_domain = EXCLUDED.virt_domain,
			idle_snapshot = EXCLUDED.idle_snapshot, hostname = EXCLUDED.hostname,
			child_pid = EXCLUDED.child_pid, child_deadline = EXCLUDED.child_deadline,
			errors = EXCLUDED.errors, sort_order = EXCLUDED.sort_order`,
		vm.Name, vm.Type, vm.Role, vm.Status, vm.VirtURI, vm.VirtDomain, vm.IdleSnapshot,
		vm.Hostname, vm.ChildPid, vm.ChildDeadline, vm.Errors, vm.SortOrder)
	if err != nil {
		return fmt.Errorf("store: saving vm %s: %w", vm.Name, err)
	}
	return nil
}

func (t *pgTx) SaveJob(ctx context.Context, job api.Job) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO jobs (id, user_name, priority, status, submitted, ended, patch)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET
			user_name = EXCLUDED.user_name, priority = EXCLUDED.priority,
			status = EXCLUDED.status, submitted = EXCLUDED.submitted,
			ended = EXCLUDED.ended, patch = EXCLUDED.patch`,
		job.ID, job.User, job.Priority, job.Status, job.Submitted, job.Ended, job.Patch)
	if err != nil {
		return fmt.Errorf("store: saving job %d: %w", job.ID, err)
	}
	return nil
}

func (t *pgTx) SaveStep(ctx context.Context, step api.Step) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO steps (job_id, no, previous_no, type, status, file_name, file_type,
		                    in_staging, debug_level, report_successful_tests)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (job_id, no) DO UPDATE SET
			previous_no = EXCLUDED.previous_no, type = EXCLUDED.type, status = EXCLUDED.status,
			file_name = EXCLUDED.file_name, file_type = EXCLUDED.file_type,
			in_staging = EXCLUDED.in_staging, debug_level = EXCLUDED.debug_level,
			report_successful_tests = EXCLUDED.report_successful_tests`,
		step.JobID, step.No, step.PreviousNo, step.Type, step.Status, step.FileName, step.FileType,
		step.InStaging, step.DebugLevel, step.ReportSuccessfulTests)
	if err != nil {
		return fmt.Errorf("store: saving step %d/%d: %w", step.JobID, step.No, err)
	}
	return nil
}

func (t *pgTx) SaveTask(ctx context.Context, task api.Task) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO tasks (job_id, step_no, no, vm_name, status, timeout, cmd_line_arg,
		                    started, ended, test_failures)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (job_id, step_no, no) DO UPDATE SET
			vm_name = EXCLUDED.vm_name, status = EXCLUDED.status, timeout = EXCLUDED.timeout,
			cmd_line_arg = EXCLUDED.cmd_line_arg, started = EXCLUDED.started, ended = EXCLUDED.ended,
			test_failures = EXCLUDED.test_failures`,
		task.JobID, task.StepNo, task.No, task.VM, task.Status, task.Timeout, task.CmdLineArg,
		task.Started, task.Ended, task.TestFailures)
	if err != nil {
		return fmt.Errorf("store: saving task %d/%d/%d: %w", task.JobID, task.StepNo, task.No, err)
	}
	return nil
}

func (t *pgTx) SaveRecordGroup(ctx context.Context, group api.RecordGroup) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO record_groups (id, timestamp) VALUES ($1, $2)`,
		group.ID, group.Timestamp)
	if err != nil {
		return fmt.Errorf("store: saving record group %d: %w", group.ID, err)
	}
	for _, rec := range group.Records {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO records (group_id, seq, type, name, value)
			VALUES ($1,$2,$3,$4,$5)`,
			group.ID, rec.Seq, rec.Type, rec.Name, rec.Value)
		if err != nil {
			return fmt.Errorf("store: saving record %d/%d: %w", group.ID, rec.Seq, err)
		}
	}
	return nil
}

func (t *pgTx) LoadRecordGroups(ctx context.Context, since, until time.Time) ([]api.RecordGroup, error) {
	var groups []api.RecordGroup
	if err := t.tx.SelectContext(ctx, &groups, `
		SELECT id, timestamp FROM record_groups
		WHERE timestamp BETWEEN $1 AND $2
		ORDER BY timestamp, id`, since, until); err != nil {
		return nil, fmt.Errorf("store: loading record groups: %w", err)
	}
	for i := range groups {
		var recs []api.Record
		if err := t.tx.SelectContext(ctx, &recs, `
			SELECT group_id, seq, type, name, value FROM records
			WHERE group_id = $1 ORDER BY seq`, groups[i].ID); err != nil {
			return nil, fmt.Errorf("store: loading records for group %d: %w", groups[i].ID, err)
		}
		groups[i].Records = recs
	}
	return groups, nil
}
