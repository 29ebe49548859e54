// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package hypervisor

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	golibvirt "github.com/digitalocean/go-libvirt"
	"github.com/digitalocean/go-libvirt/socket/dialers"

	"github.com/cobaltcore-dev/winevm-scheduler/internal/obslog"
)

// LibVirt implements Interface against real libvirt daemons, one
// connection per (host) URI, mirroring the teacher's single-daemon
// *LibVirt wrapper generalized to a pool keyed by URI (our fleet spans
// multiple hypervisor hosts, the teacher's node-agent only ever talks
// to the local one).
type LibVirt struct {
	mu    sync.Mutex
	conns map[string]*golibvirt.Libvirt
}

// NewLibVirt constructs an empty connection pool; connections are
// opened lazily by Connect/whichever operation needs one.
func NewLibVirt() *LibVirt {
	return &LibVirt{conns: make(map[string]*golibvirt.Libvirt)}
}

func (l *LibVirt) conn(uri string) (*golibvirt.Libvirt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.conns[uri]; ok && v.IsConnected() {
		return v, nil
	}
	v := golibvirt.NewWithDialer(
		dialers.NewLocal(
			dialers.WithSocket(uri),
			dialers.WithLocalTimeout(15*time.Second),
		),
	)
	if err := v.ConnectToURI(golibvirt.ConnectURI(uri)); err != nil {
		return nil, fmt.Errorf("hypervisor: connecting to %s: %w", uri, err)
	}
	l.conns[uri] = v
	return v, nil
}

func (l *LibVirt) Connect(uri string) error {
	_, err := l.conn(uri)
	return err
}

func (l *LibVirt) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for uri, v := range l.conns {
		if err := v.Disconnect(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("hypervisor: disconnecting %s: %w", uri, err)
		}
		delete(l.conns, uri)
	}
	return firstErr
}

func (l *LibVirt) lookup(uri, domain string) (golibvirt.Domain, error) {
	v, err := l.conn(uri)
	if err != nil {
		return golibvirt.Domain{}, err
	}
	return v.DomainLookupByName(domain)
}

func (l *LibVirt) PowerOn(uri, domain string) error {
	v, err := l.conn(uri)
	if err != nil {
		return err
	}
	dom, err := l.lookup(uri, domain)
	if err != nil {
		return fmt.Errorf("hypervisor: lookup %s: %w", domain, err)
	}
	return v.DomainCreate(dom)
}

func (l *LibVirt) PowerOff(uri, domain string) error {
	v, err := l.conn(uri)
	if err != nil {
		return err
	}
	dom, err := l.lookup(uri, domain)
	if err != nil {
		// Already gone is not an error for a power-off request.
		return nil
	}
	return v.DomainDestroy(dom)
}

func (l *LibVirt) Revert(uri, domain, snapshot string) error {
	v, err := l.conn(uri)
	if err != nil {
		return err
	}
	dom, err := l.lookup(uri, domain)
	if err != nil {
		return fmt.Errorf("hypervisor: lookup %s: %w", domain, err)
	}
	snap, err := v.DomainSnapshotLookupByName(dom, snapshot, 0)
	if err != nil {
		return fmt.Errorf("hypervisor: lookup snapshot %s/%s: %w", domain, snapshot, err)
	}
	return v.DomainRevertToSnapshot(snap, 0)
}

// Screenshot shells out to virsh for the one-off framebuffer capture
// rather than driving go-libvirt's raw stream RPC directly: the
// connection pool in conn() speaks the narrow subset of calls this
// package actually needs, and virsh already owns the stream plumbing
// screenshot capture requires.
func (l *LibVirt) Screenshot(uri, domain string) ([]byte, error) {
	f, err := os.CreateTemp("", "winevm-screenshot-*")
	if err != nil {
		return nil, fmt.Errorf("hypervisor: creating screenshot temp file: %w", err)
	}
	path := f.Name()
	_ = f.Close()
	defer os.Remove(path)

	// virsh negotiates whatever image stream the hypervisor offers
	// (commonly PPM for a QEMU framebuffer); the bytes are returned as
	// virsh wrote them, with no conversion to PNG.
	cmd := exec.Command("virsh", "-c", uri, "screenshot", domain, path)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("hypervisor: virsh screenshot %s: %w: %s", domain, err, out)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("hypervisor: reading screenshot for %s: %w", domain, err)
	}
	return data, nil
}

func (l *LibVirt) ProbePowerState(uri, domain string) (PowerState, error) {
	dom, err := l.lookup(uri, domain)
	if err != nil {
		return PowerOff, nil //nolint:nilerr // a domain that cannot be found is simply off
	}
	v, err := l.conn(uri)
	if err != nil {
		return PowerUnknown, err
	}
	_, state, _, _, _, err := v.DomainGetInfo(dom)
	if err != nil {
		return PowerUnknown, fmt.Errorf("hypervisor: getinfo %s: %w", domain, err)
	}
	switch golibvirt.DomainState(state) {
	case golibvirt.DomainRunning, golibvirt.DomainPaused, golibvirt.DomainPmsuspended:
		return PowerOn, nil
	default:
		obslog.Log.V(1).Info("domain reported non-running state", "domain", domain, "state", state)
		return PowerOff, nil
	}
}
