// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package systemd

import "context"

//go:generate moq -out interface_mock.go . Interface

// Interface is the shutdown-inhibit capability cmd/enginectl holds,
// satisfied by *Conn in production and by NewEmulator's *InterfaceMock in environments
// without a logind session bus (e.g. CI containers).
type Interface interface {
	EnableShutdownInhibit(ctx context.Context, cb func(context.Context) error) error
	DisableShutdownInhibit() error
	Close()
	IsConnected() bool
}
