// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cobaltcore-dev/winevm-scheduler/api"
)

// Memory is an in-process Store used by tests and by --emulate runs,
// the same role the teacher's internal/emulator package plays for
// libvirt/systemd: a stand-in with the real interface but no external
// dependency.
type Memory struct {
	mu sync.Mutex

	vms    map[string]api.VM
	jobs   map[int64]api.Job
	steps  map[int64][]api.Step
	tasks  map[int64][]api.Task
	groups []api.RecordGroup

	nextGroupID int64
}

// NewMemory returns an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{
		vms:   make(map[string]api.VM),
		jobs:  make(map[int64]api.Job),
		steps: make(map[int64][]api.Step),
		tasks: make(map[int64][]api.Task),
	}
}

// Seed installs initial fleet/job state directly, for test setup.
func (m *Memory) Seed(vms []api.VM, jobs []api.Job, steps map[int64][]api.Step, tasks map[int64][]api.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, vm := range vms {
		m.vms[vm.Name] = vm
	}
	for _, job := range jobs {
		m.jobs[job.ID] = job
	}
	for id, s := range steps {
		m.steps[id] = append([]api.Step(nil), s...)
	}
	for id, t := range tasks {
		m.tasks[id] = append([]api.Task(nil), t...)
	}
}

func (m *Memory) LoadFleet(ctx context.Context) ([]api.VM, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]api.VM, 0, len(m.vms))
	for _, vm := range m.vms {
		out = append(out, vm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (m *Memory) LoadQueue(ctx context.Context) ([]api.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]api.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		if job.Status == api.JobQueued || job.Status == api.JobRunning {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) LoadJob(ctx context.Context, id int64) (*api.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("store: job %d not found", id)
	}
	return &job, nil
}

func (m *Memory) LoadStepsAndTasks(ctx context.Context, jobID int64) ([]api.Step, []api.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	steps := append([]api.Step(nil), m.steps[jobID]...)
	tasks := append([]api.Task(nil), m.tasks[jobID]...)
	sort.Slice(steps, func(i, j int) bool { return steps[i].No < steps[j].No })
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].StepNo != tasks[j].StepNo {
			return tasks[i].StepNo < tasks[j].StepNo
		}
		return tasks[i].No < tasks[j].No
	})
	return steps, tasks, nil
}

func (m *Memory) NextRecordGroupID(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextGroupID++
	return m.nextGroupID, nil
}

func (m *Memory) WithTx(ctx context.Context, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memTx{m: m}
	return fn(tx)
}

type memTx struct{ m *Memory }

func (t *memTx) SaveVM(ctx context.Context, vm api.VM) error {
	t.m.vms[vm.Name] = vm
	return nil
}

func (t *memTx) SaveJob(ctx context.Context, job api.Job) error {
	t.m.jobs[job.ID] = job
	return nil
}

func (t *memTx) SaveStep(ctx context.Context, step api.Step) error {
	list := t.m.steps[step.JobID]
	for i, s := range list {
		if s.No == step.No {
			list[i] = step
			return nil
		}
	}
	t.m.steps[step.JobID] = append(list, step)
	return nil
}

func (t *memTx) SaveTask(ctx context.Context, task api.Task) error {
	list := t.m.tasks[task.JobID]
	for i, tk := range list {
		if tk.StepNo == task.StepNo && tk.No == task.No {
			list[i] = task
			return nil
		}
	}
	t.m.tasks[task.JobID] = append(list, task)
	return nil
}

func (t *memTx) SaveRecordGroup(ctx context.Context, group api.RecordGroup) error {
	t.m.groups = append(t.m.groups, group)
	return nil
}

func (t *memTx) LoadRecordGroups(ctx context.Context, since, until time.Time) ([]api.RecordGroup, error) {
	var out []api.RecordGroup
	for _, g := range t.m.groups {
		if !g.Timestamp.Before(since) && !g.Timestamp.After(until) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
