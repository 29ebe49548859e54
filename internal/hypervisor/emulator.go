// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package hypervisor

import (
	"context"
	"sync"

	"github.com/cobaltcore-dev/winevm-scheduler/internal/obslog"
)

// NewEmulator returns a mocked Interface that logs every call and
// tracks domain power state in memory, the way the teacher's
// internal/emulator.NewLibVirtEmulator stands in for the real libvirt
// client under EMULATE=1.
func NewEmulator(ctx context.Context) *InterfaceMock {
	log := obslog.FromContext(ctx, "component", "hypervisor-emulator")
	state := &emulatedFleet{domains: make(map[string]PowerState)}

	return &InterfaceMock{
		ConnectFunc: func(uri string) error {
			log.Info("Connect called", "uri", uri)
			return nil
		},
		CloseFunc: func() error {
			log.Info("Close called")
			return nil
		},
		PowerOnFunc: func(uri, domain string) error {
			log.Info("PowerOn called", "uri", uri, "domain", domain)
			state.set(uri, domain, PowerOn)
			return nil
		},
		PowerOffFunc: func(uri, domain string) error {
			log.Info("PowerOff called", "uri", uri, "domain", domain)
			state.set(uri, domain, PowerOff)
			return nil
		},
		RevertFunc: func(uri, domain, snapshot string) error {
			log.Info("Revert called", "uri", uri, "domain", domain, "snapshot", snapshot)
			state.set(uri, domain, PowerOn)
			return nil
		},
		ProbePowerStateFunc: func(uri, domain string) (PowerState, error) {
			s := state.get(uri, domain)
			log.Info("ProbePowerState called", "uri", uri, "domain", domain, "state", s)
			return s, nil
		},
		ScreenshotFunc: func(uri, domain string) ([]byte, error) {
			log.Info("Screenshot called", "uri", uri, "domain", domain)
			// A minimal valid 1x1 PNG, good enough for emulated runs
			// that exercise the getscreenshot plumbing end-to-end.
			return []byte{
				0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
				0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
				0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
				0x08, 0x02, 0x00, 0x00, 0x00, 0x90, 0x77, 0x53,
				0xde, 0x00, 0x00, 0x00, 0x0c, 0x49, 0x44, 0x41,
				0x54, 0x08, 0xd7, 0x63, 0xf8, 0xcf, 0xc0, 0x00,
				0x00, 0x03, 0x01, 0x01, 0x00, 0x18, 0xdd, 0x8d,
				0xb0, 0x00, 0x00, 0x00, 0x00, 0x49, 0x45, 0x4e,
				0x44, 0xae, 0x42, 0x60, 0x82,
			}, nil
		},
	}
}

// emulatedFleet is the in-memory domain power-state table the
// emulator mutates; kept separate from InterfaceMock's own call-count
// bookkeeping so tests can assert on call counts independently of state.
type emulatedFleet struct {
	mu      sync.Mutex
	domains map[string]PowerState
}

func (f *emulatedFleet) key(uri, domain string) string { return uri + "|" + domain }

func (f *emulatedFleet) set(uri, domain string, s PowerState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.domains[f.key(uri, domain)] = s
}

func (f *emulatedFleet) get(uri, domain string) PowerState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.domains[f.key(uri, domain)]; ok {
		return s
	}
	return PowerOff
}
