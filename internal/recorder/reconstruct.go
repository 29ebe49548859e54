// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package recorder

import (
	"context"
	"strings"
	"time"

	"github.com/cobaltcore-dev/winevm-scheduler/api"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/store"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/vm"
)

// Cell is one contiguous span of a VM's status in the reconstructed
// timeline, from when the status was first observed (Start) until it
// next changed or the window closed (End).
type Cell struct {
	VM     string
	Host   string
	Status string
	Detail string

	Start time.Time
	End   time.Time

	// Rows counts how many RecordGroups this cell spans, including
	// groups that carried no fresh status for this VM and so were
	// merged forward into it (§4.4 "rows increments on the owning
	// cell").
	Rows int

	// Mispredict is set when the status that *closed* this cell was
	// not reachable from it per the VM lifecycle diagram, and wasn't
	// an administrative transition.
	Mispredict bool

	// Result holds the terminal task outcome's vmresult Value, if one
	// arrived while this cell was open (gap-fill rule).
	Result *string
}

// Timeline is the reconstructed table for one window, one Cell per
// contiguous VM status span, in the order their vmstatus Records were
// read: by RecordGroup, then by Record order within a group. Cells
// starting in the same group are not sorted by VM name.
type Timeline struct {
	Cells []Cell
}

// Reconstruct rebuilds the human-legible activity timeline for
// [since, until] from the persisted RecordGroups (§4.4), used by both
// cmd/winevmctl's "timeline" subcommand and the debug HTTP handler.
// now closes out any cell still open at the end of the window.
func Reconstruct(ctx context.Context, st store.Store, since, until, now time.Time) (*Timeline, error) {
	var groups []api.RecordGroup
	err := st.WithTx(ctx, func(tx store.Tx) error {
		var err error
		groups, err = tx.LoadRecordGroups(ctx, since, until)
		return err
	})
	if err != nil {
		return nil, err
	}

	tl := &Timeline{}
	open := make(map[string]int) // VM name -> index into tl.Cells of its currently-open cell

	for _, g := range groups {
		before := make(map[string]int, len(open))
		for k, v := range open {
			before[k] = v
		}

		seen := make(map[string]bool)
		for _, r := range g.Records {
			if r.Type != api.RecordVMStatus {
				continue
			}
			name, host, ok := splitVMHost(r.Name)
			if !ok {
				continue
			}
			status, detail := splitStatusDetail(valueOf(r))
			seen[name] = true

			if idx, has := open[name]; has {
				prev := &tl.Cells[idx]
				prev.End = g.Timestamp
				if !isAdministrative(status) && !vm.ValidTransition(api.VMStatus(prev.Status), api.VMStatus(status)) {
					prev.Mispredict = true
				}
			}

			tl.Cells = append(tl.Cells, Cell{
				VM: name, Host: host, Status: status, Detail: detail,
				Start: g.Timestamp, Rows: 1,
			})
			open[name] = len(tl.Cells) - 1
		}

		for _, r := range g.Records {
			if r.Type != api.RecordVMResult {
				continue
			}
			name, _, ok := splitVMHost(r.Name)
			if !ok {
				continue
			}
			idx, has := before[name]
			if !has {
				continue
			}
			cell := &tl.Cells[idx]
			if cell.Status == "engine" {
				continue
			}
			value := valueOf(r)
			cell.Result = &value
		}

		for name, idx := range open {
			if seen[name] {
				continue
			}
			tl.Cells[idx].Rows++
		}
	}

	for _, idx := range open {
		tl.Cells[idx].End = now
	}

	return tl, nil
}

func valueOf(r api.Record) string {
	if r.Value == nil {
		return ""
	}
	return *r.Value
}

// splitVMHost parses a vmstatus/vmresult Record.Name of the form
// "{VMName} {Host}" (§4.4).
func splitVMHost(recordName string) (vmName, host string, ok bool) {
	parts := strings.SplitN(recordName, " ", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// splitStatusDetail parses a vmstatus Record.Value of the form
// "{status} {details...}", e.g. "running 12 0 3" or "dirty sacrifice".
func splitStatusDetail(value string) (status, detail string) {
	parts := strings.SplitN(value, " ", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return value, ""
}

func isAdministrative(status string) bool {
	return api.VMStatus(status) == api.StatusMaintenance || api.VMStatus(status) == api.StatusOffline
}
