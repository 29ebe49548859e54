// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package systemd

import (
	"context"

	"github.com/cobaltcore-dev/winevm-scheduler/internal/obslog"
)

// NewEmulator returns an Interface that never actually contacts
// logind, for hosts without a session bus (CI containers, the
// emulated-hypervisor development mode).
func NewEmulator(ctx context.Context) *InterfaceMock {
	log := obslog.FromContext(ctx, "component", "systemd-emulator")
	connected := true
	return &InterfaceMock{
		EnableShutdownInhibitFunc: func(context.Context, func(context.Context) error) error {
			log.Info("shutdown inhibition requested (emulated, no-op)")
			return nil
		},
		DisableShutdownInhibitFunc: func() error {
			log.Info("shutdown inhibition released (emulated, no-op)")
			return nil
		},
		CloseFunc: func() {
			connected = false
		},
		IsConnectedFunc: func() bool {
			return connected
		},
	}
}
