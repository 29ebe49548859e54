// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package vmagent

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/cobaltcore-dev/winevm-scheduler/internal/obslog"
)

// NewEmulator returns a mocked Interface that answers instantly and
// successfully, for use in tests and local dry-runs.
func NewEmulator(ctx context.Context) *InterfaceMock {
	log := obslog.FromContext(ctx, "component", "vmagent-emulator")
	return &InterfaceMock{
		PingFunc: func(ctx context.Context, vm string, timeout time.Duration) error {
			log.Info("Ping called", "vm", vm)
			return nil
		},
		CopyInFunc: func(ctx context.Context, vm, path string, content io.Reader) error {
			log.Info("CopyIn called", "vm", vm, "path", path)
			_, err := io.Copy(io.Discard, content)
			return err
		},
		CopyOutFunc: func(ctx context.Context, vm, path string) (io.ReadCloser, error) {
			log.Info("CopyOut called", "vm", vm, "path", path)
			return io.NopCloser(strings.NewReader("")), nil
		},
		ExecFunc: func(ctx context.Context, vm, cmdLine string) (int, error) {
			log.Info("Exec called", "vm", vm, "cmdLine", cmdLine)
			return 0, nil
		},
	}
}
