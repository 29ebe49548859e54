// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package control implements the Unix-domain socket command server of
// §6: short newline-terminated commands in, a single reply line out.
// It is grounded on the teacher's HypervisorReconciler.Reconcile shape
// (one entry point, typed branches, structured logging per branch),
// generalized from a single CRD-keyed entry point to a command-keyed
// one read off a socket instead of a watch event.
package control

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cobaltcore-dev/winevm-scheduler/api"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/eventloop"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/job"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/obslog"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/store"
)

// Screenshotter captures a VM's framebuffer; satisfied by
// *internal/vm.Manager.
type Screenshotter interface {
	Screenshot(v api.VM) ([]byte, error)
}

// Shutdowner begins the engine's graceful drain; killTasks/killVMs
// mirror the shutdown command's own arguments (§6).
type Shutdowner interface {
	Shutdown(ctx context.Context, killTasks, killVMs bool) error
}

// Dispatcher holds everything the command handlers need. RescheduleName
// is the eventloop event the dispatcher arms to force an immediate
// scheduler pass (reschedulejobs, vmstatuschange) instead of waiting
// for the next natural tick.
type Dispatcher struct {
	Store         store.Store
	Killer        job.ChildKiller
	Screenshotter Screenshotter
	Shutdown      Shutdowner
	Loop          *eventloop.Loop
	DataDir       string

	RescheduleName string
}

// reply is the protocol's single-line response: "1" + payload on
// success, "0" + message on error (§6).
type reply struct {
	ok      bool
	payload string
}

func ok(payload string) reply  { return reply{ok: true, payload: payload} }
func fail(format string, a ...any) reply {
	return reply{ok: false, payload: fmt.Sprintf(format, a...)}
}

// Encode renders r as the wire line, without the trailing newline.
func (r reply) Encode() string {
	prefix := "0"
	if r.ok {
		prefix = "1"
	}
	if r.payload == "" {
		return prefix
	}
	return prefix + r.payload
}

// Dispatch parses one command line's fields (already split on
// whitespace by the server's scanner) and runs it.
func (d *Dispatcher) Dispatch(ctx context.Context, now time.Time, fields []string) reply {
	if len(fields) == 0 {
		return fail("empty command")
	}
	cmd, args := fields[0], fields[1:]
	log := obslog.FromContext(ctx, "component", "control", "command", cmd)

	switch cmd {
	case "ping":
		return d.ping()
	case "shutdown":
		return d.shutdown(ctx, args)
	case "jobstatuschange":
		return d.jobStatusChange(log, args)
	case "jobcancel":
		return d.jobCancel(ctx, now, args)
	case "jobrestart":
		return d.jobRestart(ctx, now, args)
	case "reschedulejobs":
		return d.rescheduleJobs(now, "reschedulejobs requested")
	case "vmstatuschange":
		return d.vmStatusChange(log, now, args)
	case "winepatchmlsubmission":
		return d.patchTrigger(log, "winepatchmlsubmission")
	case "winepatchwebsubmission":
		return d.patchTrigger(log, "winepatchwebsubmission")
	case "getscreenshot":
		return d.getScreenshot(ctx, args)
	default:
		return fail("unknown command %q", cmd)
	}
}

func (d *Dispatcher) ping() reply {
	return ok("pong")
}

func parseBoolArg(s string) (bool, error) {
	switch s {
	case "0":
		return false, nil
	case "1":
		return true, nil
	default:
		return false, fmt.Errorf("expected 0 or 1, got %q", s)
	}
}

func (d *Dispatcher) shutdown(ctx context.Context, args []string) reply {
	if len(args) != 2 {
		return fail("shutdown: expected killTasks killVMs")
	}
	killTasks, err := parseBoolArg(args[0])
	if err != nil {
		return fail("shutdown: killTasks: %v", err)
	}
	killVMs, err := parseBoolArg(args[1])
	if err != nil {
		return fail("shutdown: killVMs: %v", err)
	}
	if d.Shutdown == nil {
		return fail("shutdown: not wired")
	}
	if err := d.Shutdown.Shutdown(ctx, killTasks, killVMs); err != nil {
		return fail("shutdown: %v", err)
	}
	return ok("")
}

// jobStatusChange is an external notification that a Job's status
// changed by a path other than the scheduler's own roll-up (§6); the
// core's reaction is limited to logging and, on a terminal new status,
// noting that the summary send-log step would fire. Email delivery
// itself is out of scope (§1).
func (d *Dispatcher) jobStatusChange(log interface{ Info(string, ...any) }, args []string) reply {
	if len(args) != 3 {
		return fail("jobstatuschange: expected jobId oldStatus newStatus")
	}
	jobID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fail("jobstatuschange: jobId: %v", err)
	}
	newStatus := api.JobStatus(args[2])
	log.Info("job status change notification", "jobId", jobID, "oldStatus", args[1], "newStatus", newStatus)
	if newStatus.Terminal() {
		log.Info("job reached terminal status, send-log would fire here", "jobId", jobID)
	}
	return ok("")
}

func (d *Dispatcher) patchTrigger(log interface{ Info(string, ...any) }, which string) reply {
	log.Info("patch intake trigger received; patch ingestion itself is out of scope", "trigger", which)
	return ok("")
}

func (d *Dispatcher) rescheduleJobs(now time.Time, reason string) reply {
	if d.Loop == nil || d.RescheduleName == "" {
		return fail("reschedule: event loop not wired")
	}
	if !d.Loop.Trigger(d.RescheduleName, now) {
		return fail("reschedule: scheduler tick event %q is not registered", d.RescheduleName)
	}
	return ok(reason)
}

func (d *Dispatcher) vmStatusChange(log interface{ Info(string, ...any) }, now time.Time, args []string) reply {
	if len(args) != 3 {
		return fail("vmstatuschange: expected vmKey oldStatus newStatus")
	}
	log.Info("vm status change notification", "vmKey", args[0], "oldStatus", args[1], "newStatus", args[2])
	return d.rescheduleJobs(now, "vmstatuschange forced a pass")
}
