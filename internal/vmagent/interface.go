// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package vmagent is the C2 capability: the per-VM agent protocol is
// explicitly out of scope (spec.md §1), so this package only names the
// opaque surface the VM lifecycle manager needs — remote exec, file
// copy, process wait, and a liveness probe ("WaitForToolsInVM").
package vmagent

import (
	"context"
	"io"
	"time"
)

//go:generate moq -out interface_mock.go . Interface

// Interface is the opaque VM-agent capability.
type Interface interface {
	// Ping waits up to timeout for the in-guest agent to answer,
	// used by RunRevert's "WaitForToolsInVM" step (§4.1).
	Ping(ctx context.Context, vm string, timeout time.Duration) error

	// CopyIn uploads local content to path inside vm.
	CopyIn(ctx context.Context, vm, path string, content io.Reader) error

	// CopyOut downloads path from inside vm.
	CopyOut(ctx context.Context, vm, path string) (io.ReadCloser, error)

	// Exec runs cmdLine inside vm and blocks until it exits or ctx is
	// done, returning the process's exit code.
	Exec(ctx context.Context, vm, cmdLine string) (exitCode int, err error)
}
