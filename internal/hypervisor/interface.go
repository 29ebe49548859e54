// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package hypervisor is the C1 capability: power on/off, revert to
// snapshot, and probe the power state of a VM's underlying libvirt
// domain. It is the one piece of the original driver the teacher
// already implements against the right library (digitalocean/go-libvirt),
// re-scoped from "describe this whole host for a Hypervisor CRD status"
// to the narrower power/revert/probe surface the scheduler needs.
package hypervisor

//go:generate moq -out interface_mock.go . Interface

// PowerState is the observed power state of a libvirt domain.
type PowerState string

const (
	PowerOn     PowerState = "on"
	PowerOff    PowerState = "off"
	PowerUnknown PowerState = "unknown"
)

// Interface is the driver capability the VM lifecycle manager (C4)
// drives every supervised child operation through.
type Interface interface {
	// Connect establishes (or re-establishes) the libvirt connection
	// for uri. Idempotent.
	Connect(uri string) error

	// Close closes all open libvirt connections.
	Close() error

	// PowerOn starts domain (hard power-on, no snapshot revert).
	PowerOn(uri, domain string) error

	// PowerOff forcibly powers off domain (hypervisor hard-off; the
	// guest OS is not asked to shut down cleanly).
	PowerOff(uri, domain string) error

	// Revert reverts domain to the named snapshot.
	Revert(uri, domain, snapshot string) error

	// ProbePowerState asks the hypervisor for the live power state of
	// domain. Used by RunCheckIdle/RunCheckOff/RunMonitor.
	ProbePowerState(uri, domain string) (PowerState, error)

	// Screenshot captures domain's current framebuffer as an image blob,
	// for the control channel's getscreenshot command. The bytes are in
	// whatever format the implementation produces: the emulator returns
	// PNG, LibVirt returns virsh's output unconverted (commonly PPM).
	Screenshot(uri, domain string) ([]byte, error)
}
