// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package api holds the entity types shared by every component of the
// scheduling core: VMs, Jobs, Steps, Tasks and the activity log.
package api

import "time"

// VMType is the kind of workload a VM is provisioned to run.
type VMType string

const (
	VMTypeBuild VMType = "build"
	VMTypeWin32 VMType = "win32"
	VMTypeWin64 VMType = "win64"
	VMTypeWine  VMType = "wine"
)

// VMRole places a VM in the scheduler's rotation.
type VMRole string

const (
	RoleBase     VMRole = "base"
	RoleWinetest VMRole = "winetest"
	RoleExtra    VMRole = "extra"
	RoleRetired  VMRole = "retired"
	RoleDeleted  VMRole = "deleted"
)

// HasEnabledRole reports whether tasks may still be scheduled on a VM
// carrying this role.
func (r VMRole) HasEnabledRole() bool {
	switch r {
	case RoleBase, RoleWinetest, RoleExtra:
		return true
	default:
		return false
	}
}

// VMStatus is the lifecycle state of a VM (see §4.1 of the spec).
type VMStatus string

const (
	StatusDirty       VMStatus = "dirty"
	StatusReverting   VMStatus = "reverting"
	StatusSleeping    VMStatus = "sleeping"
	StatusIdle        VMStatus = "idle"
	StatusRunning     VMStatus = "running"
	StatusOff         VMStatus = "off"
	StatusOffline     VMStatus = "offline"
	StatusMaintenance VMStatus = "maintenance"
)

// HasEnabledStatus reports whether a VM in this status may still be
// scheduled by the core.
func (s VMStatus) HasEnabledStatus() bool {
	return s != StatusOffline && s != StatusMaintenance
}

// Active reports whether the VM is consuming host resources: any
// status other than off/offline/maintenance.
func (s VMStatus) Active() bool {
	return s != StatusOff && s != StatusOffline && s != StatusMaintenance
}

// CanHaveChild reports whether ChildPid != nil is legal for this status.
func (s VMStatus) CanHaveChild() bool {
	switch s {
	case StatusDirty, StatusReverting, StatusSleeping, StatusRunning:
		return true
	default:
		return false
	}
}

// VM is a named instance bound to a (hypervisor URI, domain, snapshot)
// triple. Multiple VMs may share a (URI, domain) pair but only one may
// be active at a time (hypervisor-domain exclusivity, see
// internal/scheduler/domain.go).
type VM struct {
	Name string `db:"name"`

	Type         VMType   `db:"type"`
	Role         VMRole   `db:"role"`
	Status       VMStatus `db:"status"`
	VirtURI      string   `db:"virt_uri"`
	VirtDomain   string   `db:"virt_domain"`
	IdleSnapshot string   `db:"idle_snapshot"`
	Hostname     string   `db:"hostname"`

	ChildPid      *int       `db:"child_pid"`
	ChildDeadline *time.Time `db:"child_deadline"`

	Errors    int `db:"errors"`
	SortOrder int `db:"sort_order"`
}

// Domain is the derived hypervisor-domain key: "{VirtURI} {VirtDomain}".
func (v VM) Domain() string {
	return v.VirtURI + " " + v.VirtDomain
}

// JobStatus is the externally visible outcome of a Job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobBadPatch  JobStatus = "badpatch"
	JobBadBuild  JobStatus = "badbuild"
	JobBotError  JobStatus = "boterror"
	JobCanceled  JobStatus = "canceled"

	// JobSkipped is only ever assigned to a Step (skip propagation);
	// a Job itself never persists this value — the all-skipped case is
	// reported as JobCanceled instead (§4.2).
	JobSkipped JobStatus = "skipped"
)

// Terminal reports whether a JobStatus cannot transition further
// without an explicit restart.
func (s JobStatus) Terminal() bool {
	return s != JobQueued && s != JobRunning
}

// Job is a user-visible work unit, owning an ordered set of Steps.
type Job struct {
	ID       int64  `db:"id"`
	User     string `db:"user_name"`
	Priority int    `db:"priority"` // lower value = higher precedence

	Status JobStatus `db:"status"`

	Submitted time.Time  `db:"submitted"`
	Ended     *time.Time `db:"ended"`

	Patch *string `db:"patch"`
}

// StepType is the phase kind a Step performs.
type StepType string

const (
	StepSuite    StepType = "suite"
	StepSingle   StepType = "single"
	StepBuild    StepType = "build"
	StepReconfig StepType = "reconfig"
)

// SkipsDownstream reports whether a non-completed terminal outcome of
// a Step of this type propagates skip to every later Step (§4.2).
func (t StepType) SkipsDownstream() bool {
	return t == StepBuild || t == StepReconfig
}

// Step is a phase of a Job (build, test, reconfig, suite). Key is
// (JobID, No); No is strictly increasing within a Job and PreviousNo <
// No enforces a DAG.
type Step struct {
	JobID int64 `db:"job_id"`
	No    int   `db:"no"`

	PreviousNo *int      `db:"previous_no"`
	Type       StepType  `db:"type"`
	Status     JobStatus `db:"status"`

	FileName *string `db:"file_name"`
	FileType *string `db:"file_type"`

	InStaging              bool `db:"in_staging"`
	DebugLevel             int  `db:"debug_level"`
	ReportSuccessfulTests  bool `db:"report_successful_tests"`
}

// TaskStatus is the outcome of one execution of a Step on one VM.
type TaskStatus string

const (
	TaskQueued    TaskStatus = "queued"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskBadPatch  TaskStatus = "badpatch"
	TaskBadBuild  TaskStatus = "badbuild"
	TaskBotError  TaskStatus = "boterror"
	TaskCanceled  TaskStatus = "canceled"
	TaskSkipped   TaskStatus = "skipped"
	TaskTimeout   TaskStatus = "timeout"
)

// Terminal reports whether a TaskStatus requires no further action.
func (s TaskStatus) Terminal() bool {
	return s != TaskQueued && s != TaskRunning
}

// Task is one execution of a Step on one VM. Key is (JobID, StepNo, No).
type Task struct {
	JobID  int64 `db:"job_id"`
	StepNo int   `db:"step_no"`
	No     int   `db:"no"`

	VM     string     `db:"vm_name"`
	Status TaskStatus `db:"status"`

	Timeout    time.Duration `db:"timeout"`
	CmdLineArg string        `db:"cmd_line_arg"`

	Started *time.Time `db:"started"`
	Ended   *time.Time `db:"ended"`

	// TestFailures doubles as the transient-error retry counter.
	TestFailures int `db:"test_failures"`
}

// RecordType classifies a Record within a RecordGroup.
type RecordType string

const (
	RecordEngine    RecordType = "engine"
	RecordTasks     RecordType = "tasks"
	RecordVMResult  RecordType = "vmresult"
	RecordVMStatus  RecordType = "vmstatus"
)

// Record is one audit-log entry inside a RecordGroup.
type Record struct {
	GroupID int64      `db:"group_id"`
	Seq     int        `db:"seq"`
	Type    RecordType `db:"type"`
	Name    string     `db:"name"`
	Value   *string    `db:"value"`
}

// RecordGroup is an atomic bundle of audit records produced by one
// scheduler pass or one child operation.
type RecordGroup struct {
	ID        int64     `db:"id"`
	Timestamp time.Time `db:"timestamp"`
	Records   []Record  `db:"-"`
}
