// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package recorder is the C7 capability: it persists the scheduler's
// audit trail (RecordGroup/Record, §3) through internal/store and
// reconstructs it back into a human-legible timeline (§4.4) for
// cmd/winevmctl's "timeline" subcommand and the debug HTTP handler
// mounted next to the Prometheus endpoint.
package recorder

import (
	"context"
	"fmt"
	"time"

	"github.com/cobaltcore-dev/winevm-scheduler/api"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/store"
)

// Group accumulates Records for one atomic RecordGroup, numbering
// each Record's Seq in append order. A scheduler pass builds exactly
// one Group per run.
type Group struct {
	rg  api.RecordGroup
	seq int
}

// NewGroup starts an empty group stamped with timestamp.
func NewGroup(timestamp time.Time) *Group {
	return &Group{rg: api.RecordGroup{Timestamp: timestamp}}
}

// Empty reports whether no Records have been appended yet.
func (g *Group) Empty() bool {
	return len(g.rg.Records) == 0
}

// VMStatus appends a vmstatus Record for vm on host, with value as
// the new status word (optionally followed by details, e.g. "running
// 12 0 3" or "dirty sacrifice").
func (g *Group) VMStatus(vm, host, value string) {
	g.append(api.RecordVMStatus, fmt.Sprintf("%s %s", vm, host), value)
}

// VMResult appends a vmresult Record for a Task's terminal outcome.
func (g *Group) VMResult(vm, host, value string) {
	g.append(api.RecordVMResult, fmt.Sprintf("%s %s", vm, host), value)
}

// Tasks appends the per-pass "tasks counters" Record.
func (g *Group) Tasks(name, value string) {
	g.append(api.RecordTasks, name, value)
}

// Append adds an already-built Record, renumbering its Seq to fit the
// group's append order. Used by callers (the scheduler pass) that
// build Records themselves rather than through Group's typed helpers.
func (g *Group) Append(r api.Record) {
	r.Seq = g.seq
	g.rg.Records = append(g.rg.Records, r)
	g.seq++
}

func (g *Group) append(t api.RecordType, name, value string) {
	g.rg.Records = append(g.rg.Records, api.Record{
		Type: t, Name: name, Seq: g.seq, Value: &value,
	})
	g.seq++
}

// Persist saves the group under the given pre-allocated RecordGroup
// id, skipping the save entirely when it carries no Records (§4.3:
// "the record is written only if the counter string differs", applied
// group-wide: an empty pass leaves no audit trail).
//
// id must come from a call to Store.NextRecordGroupID made *before*
// the surrounding WithTx: Store implementations may serialize
// NextRecordGroupID and WithTx on the same lock, so allocating the id
// from inside the transaction's callback would deadlock.
func Persist(ctx context.Context, tx store.Tx, id int64, g *Group) error {
	if g.Empty() {
		return nil
	}
	g.rg.ID = id
	return tx.SaveRecordGroup(ctx, g.rg)
}
