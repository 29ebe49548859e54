// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

// Code generated by moq; shape hand-authored to match what
// `go generate` would emit from the //go:generate directive in
// interface.go — see github.com/matryer/moq.

package hypervisor

import "sync"

// InterfaceMock is a mock implementation of Interface.
type InterfaceMock struct {
	ConnectFunc         func(uri string) error
	CloseFunc           func() error
	PowerOnFunc         func(uri, domain string) error
	PowerOffFunc        func(uri, domain string) error
	RevertFunc          func(uri, domain, snapshot string) error
	ProbePowerStateFunc func(uri, domain string) (PowerState, error)
	ScreenshotFunc      func(uri, domain string) ([]byte, error)

	calls struct {
		Connect         []struct{ URI string }
		Close           []struct{}
		PowerOn         []struct{ URI, Domain string }
		PowerOff        []struct{ URI, Domain string }
		Revert          []struct{ URI, Domain, Snapshot string }
		ProbePowerState []struct{ URI, Domain string }
		Screenshot      []struct{ URI, Domain string }
	}
	mu sync.Mutex
}

func (m *InterfaceMock) Connect(uri string) error {
	m.mu.Lock()
	m.calls.Connect = append(m.calls.Connect, struct{ URI string }{uri})
	m.mu.Unlock()
	return m.ConnectFunc(uri)
}

func (m *InterfaceMock) Close() error {
	m.mu.Lock()
	m.calls.Close = append(m.calls.Close, struct{}{})
	m.mu.Unlock()
	return m.CloseFunc()
}

func (m *InterfaceMock) PowerOn(uri, domain string) error {
	m.mu.Lock()
	m.calls.PowerOn = append(m.calls.PowerOn, struct{ URI, Domain string }{uri, domain})
	m.mu.Unlock()
	return m.PowerOnFunc(uri, domain)
}

func (m *InterfaceMock) PowerOff(uri, domain string) error {
	m.mu.Lock()
	m.calls.PowerOff = append(m.calls.PowerOff, struct{ URI, Domain string }{uri, domain})
	m.mu.Unlock()
	return m.PowerOffFunc(uri, domain)
}

func (m *InterfaceMock) Revert(uri, domain, snapshot string) error {
	m.mu.Lock()
	m.calls.Revert = append(m.calls.Revert, struct{ URI, Domain, Snapshot string }{uri, domain, snapshot})
	m.mu.Unlock()
	return m.RevertFunc(uri, domain, snapshot)
}

func (m *InterfaceMock) ProbePowerState(uri, domain string) (PowerState, error) {
	m.mu.Lock()
	m.calls.ProbePowerState = append(m.calls.ProbePowerState, struct{ URI, Domain string }{uri, domain})
	m.mu.Unlock()
	return m.ProbePowerStateFunc(uri, domain)
}

func (m *InterfaceMock) Screenshot(uri, domain string) ([]byte, error) {
	m.mu.Lock()
	m.calls.Screenshot = append(m.calls.Screenshot, struct{ URI, Domain string }{uri, domain})
	m.mu.Unlock()
	return m.ScreenshotFunc(uri, domain)
}

// PowerOffCalls returns the recorded PowerOff call arguments, useful
// for assertions like "SacrificeVM called RunPowerOff on the victim".
func (m *InterfaceMock) PowerOffCalls() []struct{ URI, Domain string } {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls.PowerOff
}

// RevertCalls returns the recorded Revert call arguments.
func (m *InterfaceMock) RevertCalls() []struct{ URI, Domain, Snapshot string } {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls.Revert
}
