// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package vm

import (
	"os"
	"syscall"
)

// processAlive reports whether pid names a live process. On Unix,
// signal 0 performs only the existence/permission check.
func processAlive(pid *int) bool {
	if pid == nil {
		return false
	}
	proc, err := os.FindProcess(*pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// killProcess sends SIGKILL to pid, if set and alive. Not finding the
// process is not an error: it may have already exited on its own.
func killProcess(pid *int) error {
	if pid == nil {
		return nil
	}
	proc, err := os.FindProcess(*pid)
	if err != nil {
		return nil
	}
	if err := proc.Kill(); err != nil && err != os.ErrProcessDone {
		return err
	}
	return nil
}
