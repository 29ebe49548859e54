// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

// Code generated by moq; shape hand-authored to match what
// `go generate` would emit from the //go:generate directive in
// interface.go — see github.com/matryer/moq.

package systemd

import (
	"context"
	"sync"
)

// InterfaceMock is a mock implementation of Interface.
type InterfaceMock struct {
	EnableShutdownInhibitFunc  func(ctx context.Context, cb func(context.Context) error) error
	DisableShutdownInhibitFunc func() error
	CloseFunc                  func()
	IsConnectedFunc            func() bool

	calls struct {
		EnableShutdownInhibit  []struct{}
		DisableShutdownInhibit []struct{}
		Close                  []struct{}
		IsConnected            []struct{}
	}
	mu sync.Mutex
}

func (m *InterfaceMock) EnableShutdownInhibit(ctx context.Context, cb func(context.Context) error) error {
	m.mu.Lock()
	m.calls.EnableShutdownInhibit = append(m.calls.EnableShutdownInhibit, struct{}{})
	m.mu.Unlock()
	return m.EnableShutdownInhibitFunc(ctx, cb)
}

func (m *InterfaceMock) DisableShutdownInhibit() error {
	m.mu.Lock()
	m.calls.DisableShutdownInhibit = append(m.calls.DisableShutdownInhibit, struct{}{})
	m.mu.Unlock()
	return m.DisableShutdownInhibitFunc()
}

func (m *InterfaceMock) Close() {
	m.mu.Lock()
	m.calls.Close = append(m.calls.Close, struct{}{})
	m.mu.Unlock()
	m.CloseFunc()
}

func (m *InterfaceMock) IsConnected() bool {
	m.mu.Lock()
	m.calls.IsConnected = append(m.calls.IsConnected, struct{}{})
	m.mu.Unlock()
	return m.IsConnectedFunc()
}
