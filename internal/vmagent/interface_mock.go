// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

// Code generated by moq; shape hand-authored to match what
// `go generate` would emit from the //go:generate directive in
// interface.go — see github.com/matryer/moq.

package vmagent

import (
	"context"
	"io"
	"time"
)

// InterfaceMock is a mock implementation of Interface.
type InterfaceMock struct {
	PingFunc    func(ctx context.Context, vm string, timeout time.Duration) error
	CopyInFunc  func(ctx context.Context, vm, path string, content io.Reader) error
	CopyOutFunc func(ctx context.Context, vm, path string) (io.ReadCloser, error)
	ExecFunc    func(ctx context.Context, vm, cmdLine string) (int, error)
}

func (m *InterfaceMock) Ping(ctx context.Context, vm string, timeout time.Duration) error {
	return m.PingFunc(ctx, vm, timeout)
}

func (m *InterfaceMock) CopyIn(ctx context.Context, vm, path string, content io.Reader) error {
	return m.CopyInFunc(ctx, vm, path, content)
}

func (m *InterfaceMock) CopyOut(ctx context.Context, vm, path string) (io.ReadCloser, error) {
	return m.CopyOutFunc(ctx, vm, path)
}

func (m *InterfaceMock) Exec(ctx context.Context, vm, cmdLine string) (int, error) {
	return m.ExecFunc(ctx, vm, cmdLine)
}
