// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package vm

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/cobaltcore-dev/winevm-scheduler/api"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/config"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/hypervisor"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/obslog"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/store"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/vmagent"
)

// ChildOp is the operation a supervised child performs, passed as an
// argument to the re-exec'd helper and recognized by cmd/enginectl's
// hidden ChildSubcommand branch.
type ChildOp string

const (
	opRevert   ChildOp = "revert"
	opPowerOff ChildOp = "poweroff"
	opRunTask  ChildOp = "runtask"
)

// ParseChildOp validates s (argv[2] of a re-exec'd child) against the
// known operations.
func ParseChildOp(s string) (ChildOp, bool) {
	switch ChildOp(s) {
	case opRevert, opPowerOff, opRunTask:
		return ChildOp(s), true
	default:
		return "", false
	}
}

// parseTaskArgs decodes the task identity a runtask child receives as
// its trailing argv (cmd/enginectl's runChild passes these straight
// through from Manager.RunTask's extraArgv).
func parseTaskArgs(extra []string) (jobID int64, stepNo, no int, err error) {
	if len(extra) != 3 {
		return 0, 0, 0, fmt.Errorf("vm: runtask expects <jobId> <stepNo> <no>, got %d args", len(extra))
	}
	jobID, err = strconv.ParseInt(extra[0], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("vm: parsing job id %q: %w", extra[0], err)
	}
	stepNo, err = strconv.Atoi(extra[1])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("vm: parsing step no %q: %w", extra[1], err)
	}
	no, err = strconv.Atoi(extra[2])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("vm: parsing task no %q: %w", extra[2], err)
	}
	return jobID, stepNo, no, nil
}

// ChildSubcommand is the hidden argv[1] cmd/enginectl recognizes to
// enter RunChildMain instead of starting the full engine. Kept as an
// exported constant so the daemon's main() and this package agree on
// the contract without a third shared package.
const ChildSubcommand = "__vm_child__"

// spawn forks a supervised child that will perform op against vmName.
// The handshake is the one piece of this package that must not be
// refactored: the parent persists (Status, ChildPid, ChildDeadline)
// before the child is allowed to proceed past its blocking read, so a
// scheduling pass can never observe a child mid-flight with
// ChildPid == nil, and a child that loses the race to a parent crash
// notices via the pid check below and exits without doing any work.
// extraArgv is appended after the VM name (opRunTask uses it to carry
// the Task identity). spawn returns the mutated VM on success so the
// caller can persist exactly what was committed here, instead of a
// stale local copy that would clobber ChildPid/ChildDeadline on the
// next save.
func (m *Manager) spawn(ctx context.Context, v api.VM, op ChildOp, newStatus api.VMStatus, deadline time.Duration, extraArgv ...string) (api.VM, error) {
	orig := v

	syncRead, syncWrite, err := os.Pipe()
	if err != nil {
		return orig, fmt.Errorf("vm: creating sync pipe: %w", err)
	}
	defer syncRead.Close()

	self, err := os.Executable()
	if err != nil {
		syncWrite.Close()
		return orig, fmt.Errorf("vm: resolving self path: %w", err)
	}

	argv := append([]string{ChildSubcommand, string(op), v.Name}, extraArgv...)
	cmd := exec.Command(self, argv...)
	cmd.ExtraFiles = []*os.File{syncRead}
	cmd.Env = append(os.Environ(), "WINEVM_CONFIG_PATH="+m.configPath)

	if err := cmd.Start(); err != nil {
		syncWrite.Close()
		return orig, fmt.Errorf("vm: starting child for %s: %w", v.Name, err)
	}

	pid := cmd.Process.Pid
	dl := time.Now().Add(deadline)
	v.Status = newStatus
	v.ChildPid = &pid
	v.ChildDeadline = &dl

	if err := m.store.WithTx(ctx, func(tx store.Tx) error {
		return tx.SaveVM(ctx, v)
	}); err != nil {
		_ = cmd.Process.Kill()
		syncWrite.Close()
		return orig, fmt.Errorf("vm: persisting spawn of %s: %w", v.Name, err)
	}

	// Unblocks the child's read on its copy of syncRead: closing the
	// write end delivers EOF, which is indistinguishable here from a
	// deliberate wake byte and just as race-free.
	syncWrite.Close()

	go func() {
		_ = cmd.Wait()
	}()
	return v, nil
}

// RunChildMain is the body of the re-exec'd helper process. cmd/enginectl's
// main calls this when os.Args[1] == ChildSubcommand, passing the same
// Store/Hypervisor/VMAgent wiring the parent engine uses (each against
// its own, independently opened connection per §5's shared-resource
// policy). extra carries opRunTask's task-identity argv; other ops
// ignore it.
func RunChildMain(ctx context.Context, st store.Store, hv hypervisor.Interface, agent vmagent.Interface, cfg config.Config, op ChildOp, vmName string, extra ...string) int {
	log := obslog.FromContext(ctx, "component", "vm-child", "vm", vmName, "op", op)

	// fd 3 is the first ExtraFile; block until the parent closes or
	// writes to the write end.
	sync := os.NewFile(3, "sync")
	buf := make([]byte, 1)
	_, _ = io.ReadFull(sync, buf)
	_ = sync.Close()

	ownPid := os.Getpid()
	fleet, err := st.LoadFleet(ctx)
	if err != nil {
		log.Error(err, "child could not reload fleet")
		return 1
	}
	var self *api.VM
	for i := range fleet {
		if fleet[i].Name == vmName {
			self = &fleet[i]
			break
		}
	}
	if self == nil {
		log.Error(nil, "child's vm vanished from the fleet")
		return 1
	}
	if self.ChildPid == nil || *self.ChildPid != ownPid {
		// The parent lost the race (crashed, or a later pass already
		// reassigned this VM to someone else); do nothing.
		log.Info("pid mismatch after wake, exiting without acting", "recordedPid", self.ChildPid)
		return 0
	}

	switch op {
	case opRevert:
		return runChildRevert(ctx, st, hv, agent, cfg, *self)
	case opPowerOff:
		return runChildPowerOff(ctx, st, hv, *self)
	case opRunTask:
		jobID, stepNo, no, err := parseTaskArgs(extra)
		if err != nil {
			log.Error(err, "bad task identity argv")
			return 1
		}
		return runChildTask(ctx, st, agent, cfg, *self, jobID, stepNo, no)
	default:
		log.Error(nil, "unknown child operation")
		return 1
	}
}
