// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package job

import (
	"sort"

	"github.com/cobaltcore-dev/winevm-scheduler/api"
)

// TestList is the set of test identifiers (Task.CmdLineArg) already
// known to fail in the latest full-suite baseline under
// DataDir/latest/testlist.txt (§6).
type TestList map[string]struct{}

// Summary is the §7 job-summary email distinction between failures
// newly introduced by this patch and ones already present upstream.
type Summary struct {
	NewFailures   []string
	KnownFailures []string
	Fixed         []string
}

func failed(s api.TaskStatus) bool {
	switch s {
	case api.TaskBadPatch, api.TaskBadBuild, api.TaskBotError, api.TaskTimeout:
		return true
	default:
		return false
	}
}

// DiffAgainstBaseline classifies each Task's outcome against baseline,
// dropping from spec.md's explicit scope list but named in §7 and kept
// since nothing in the Non-goals excludes it (SPEC_FULL.md §4.2).
func DiffAgainstBaseline(tasks []api.Task, baseline TestList) Summary {
	var sum Summary
	for _, t := range tasks {
		if t.CmdLineArg == "" {
			continue
		}
		_, known := baseline[t.CmdLineArg]
		switch {
		case failed(t.Status) && known:
			sum.KnownFailures = append(sum.KnownFailures, t.CmdLineArg)
		case failed(t.Status) && !known:
			sum.NewFailures = append(sum.NewFailures, t.CmdLineArg)
		case !failed(t.Status) && known:
			sum.Fixed = append(sum.Fixed, t.CmdLineArg)
		}
	}
	sort.Strings(sum.NewFailures)
	sort.Strings(sum.KnownFailures)
	sort.Strings(sum.Fixed)
	return sum
}
