// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package store is the C3 persistence capability. Design Note §9
// ("Dynamic property descriptors") calls for re-architecting the
// original's reflective descriptor arrays as an explicit schema per
// entity: a tagged union of column kinds with validators. schema.go is
// that schema. postgres.go's SQL is written by hand against the same
// tables and does not consult these values, and no save path calls
// Column.Validate.
package store

import "fmt"

// ColumnKind is the tagged-union discriminant for a schema column.
type ColumnKind int

const (
	// ColumnBasic is a plain scalar column (string, int, time, bool).
	ColumnBasic ColumnKind = iota
	// ColumnEnum is a string column restricted to a fixed value set.
	ColumnEnum
	// ColumnItemRef is a foreign key to a single row of another entity.
	ColumnItemRef
	// ColumnDetailRef is a foreign key from a child row back to its
	// owning parent (the inverse of ColumnItemRef, e.g. Step -> Job).
	ColumnDetailRef
)

// Column describes one column of an entity's schema.
type Column struct {
	Name     string
	Kind     ColumnKind
	Enum     []string // populated when Kind == ColumnEnum
	RefTable string   // populated when Kind == ColumnItemRef/ColumnDetailRef
	Nullable bool
}

// Validate checks that value (already stringified by the caller) is
// legal for an enum column; non-enum columns always validate.
func (c Column) Validate(value string) error {
	if c.Kind != ColumnEnum {
		return nil
	}
	for _, v := range c.Enum {
		if v == value {
			return nil
		}
	}
	return fmt.Errorf("store: %q is not a valid value for column %s (want one of %v)", value, c.Name, c.Enum)
}

// EntitySchema is the explicit schema for one persisted entity,
// replacing the original's runtime descriptor reflection.
type EntitySchema struct {
	Table   string
	Columns []Column
	PrimaryKey []string
}

var (
	vmSchema = EntitySchema{
		Table: "vms",
		PrimaryKey: []string{"name"},
		Columns: []Column{
			{Name: "name", Kind: ColumnBasic},
			{Name: "type", Kind: ColumnEnum, Enum: []string{"build", "win32", "win64", "wine"}},
			{Name: "role", Kind: ColumnEnum, Enum: []string{"base", "winetest", "extra", "retired", "deleted"}},
			{Name: "status", Kind: ColumnEnum, Enum: []string{
				"dirty", "reverting", "sleeping", "idle", "running", "off", "offline", "maintenance",
			}},
			{Name: "virt_uri", Kind: ColumnBasic},
			{Name: "virt_domain", Kind: ColumnBasic},
			{Name: "idle_snapshot", Kind: ColumnBasic},
			{Name: "hostname", Kind: ColumnBasic},
			{Name: "child_pid", Kind: ColumnBasic, Nullable: true},
			{Name: "child_deadline", Kind: ColumnBasic, Nullable: true},
			{Name: "errors", Kind: ColumnBasic},
			{Name: "sort_order", Kind: ColumnBasic},
		},
	}

	jobSchema = EntitySchema{
		Table: "jobs",
		PrimaryKey: []string{"id"},
		Columns: []Column{
			{Name: "id", Kind: ColumnBasic},
			{Name: "user_name", Kind: ColumnBasic},
			{Name: "priority", Kind: ColumnBasic},
			{Name: "status", Kind: ColumnEnum, Enum: []string{
				"queued", "running", "completed", "badpatch", "badbuild", "boterror", "canceled",
			}},
			{Name: "submitted", Kind: ColumnBasic},
			{Name: "ended", Kind: ColumnBasic, Nullable: true},
			{Name: "patch", Kind: ColumnBasic, Nullable: true},
		},
	}

	stepSchema = EntitySchema{
		Table: "steps",
		PrimaryKey: []string{"job_id", "no"},
		Columns: []Column{
			{Name: "job_id", Kind: ColumnDetailRef, RefTable: "jobs"},
			{Name: "no", Kind: ColumnBasic},
			{Name: "previous_no", Kind: ColumnBasic, Nullable: true},
			{Name: "type", Kind: ColumnEnum, Enum: []string{"suite", "single", "build", "reconfig"}},
			{Name: "status", Kind: ColumnEnum, Enum: []string{
				"queued", "running", "completed", "badpatch", "badbuild", "boterror", "canceled", "skipped",
			}},
			{Name: "file_name", Kind: ColumnBasic, Nullable: true},
			{Name: "file_type", Kind: ColumnBasic, Nullable: true},
			{Name: "in_staging", Kind: ColumnBasic},
			{Name: "debug_level", Kind: ColumnBasic},
			{Name: "report_successful_tests", Kind: ColumnBasic},
		},
	}

	taskSchema = EntitySchema{
		Table: "tasks",
		PrimaryKey: []string{"job_id", "step_no", "no"},
		Columns: []Column{
			{Name: "job_id", Kind: ColumnDetailRef, RefTable: "jobs"},
			{Name: "step_no", Kind: ColumnBasic},
			{Name: "no", Kind: ColumnBasic},
			{Name: "vm_name", Kind: ColumnItemRef, RefTable: "vms"},
			{Name: "status", Kind: ColumnEnum, Enum: []string{
				"queued", "running", "completed", "badpatch", "badbuild", "boterror",
				"canceled", "skipped", "timeout",
			}},
			{Name: "timeout", Kind: ColumnBasic},
			{Name: "cmd_line_arg", Kind: ColumnBasic},
			{Name: "started", Kind: ColumnBasic, Nullable: true},
			{Name: "ended", Kind: ColumnBasic, Nullable: true},
			{Name: "test_failures", Kind: ColumnBasic},
		},
	}

	recordGroupSchema = EntitySchema{
		Table: "record_groups",
		PrimaryKey: []string{"id"},
		Columns: []Column{
			{Name: "id", Kind: ColumnBasic},
			{Name: "timestamp", Kind: ColumnBasic},
		},
	}

	recordSchema = EntitySchema{
		Table: "records",
		PrimaryKey: []string{"group_id", "seq"},
		Columns: []Column{
			{Name: "group_id", Kind: ColumnDetailRef, RefTable: "record_groups"},
			{Name: "seq", Kind: ColumnBasic},
			{Name: "type", Kind: ColumnEnum, Enum: []string{"engine", "tasks", "vmresult", "vmstatus"}},
			{Name: "name", Kind: ColumnBasic},
			{Name: "value", Kind: ColumnBasic, Nullable: true},
		},
	}
)
