// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package scheduler

import "github.com/cobaltcore-dev/winevm-scheduler/api"

// Domains is the hypervisor-domain-claiming register: at most one VM
// may own a given (VirtURI, VirtDomain) pair at a time, since two VMs
// sharing a domain can never be active simultaneously. It is rebuilt
// empty at the top of every pass (§5: "the domains map is reset at the
// start of each pass") and populated as VMs are classified and as
// reverts/starts claim domains during the pass.
type Domains struct {
	owner map[string]string // domain key -> owning VM name
}

// NewDomains returns an empty register.
func NewDomains() *Domains {
	return &Domains{owner: make(map[string]string)}
}

// Owner returns the VM name currently owning domain, if any.
func (d *Domains) Owner(domain string) (string, bool) {
	name, ok := d.owner[domain]
	return name, ok
}

// Claim attempts to give vm ownership of its hypervisor domain.
//
//   - No owner yet, or the owner is off: claim succeeds outright.
//   - vm already owns it: claim stands.
//   - Someone else owns it and that owner is busy (doing real work,
//     i.e. running or reverting): the claim fails, vm cannot displace it.
//   - Otherwise the claim may steal the domain from the owner, but only
//     if steal is set and the owner is a lamb (dirty/idle/sleeping,
//     uncommitted to any work of its own).
//
// On a successful steal, the previous owner's name is returned as
// stolenFrom so the caller can force it off and adjust host counters.
func (d *Domains) Claim(fleet map[string]api.VM, busy map[string]bool, vm api.VM, steal bool) (claimed bool, stolenFrom string) {
	key := vm.Domain()
	owner, has := d.owner[key]
	if !has || fleet[owner].Status == api.StatusOff {
		d.owner[key] = vm.Name
		return true, ""
	}
	if owner == vm.Name {
		return true, ""
	}
	if busy[owner] {
		return false, ""
	}
	if !steal || !IsLamb(fleet[owner].Status) {
		return false, ""
	}
	d.owner[key] = vm.Name
	return true, owner
}

// IsBusy reports whether a VM in this status is doing real work and
// so cannot be displaced or sacrificed.
func IsBusy(s api.VMStatus) bool {
	return s == api.StatusRunning || s == api.StatusReverting
}

// IsLamb reports whether a VM in this status is uncommitted and so is
// a candidate for domain-stealing and sacrifice: dirty, idle or
// sleeping, but not actively running or mid-revert.
func IsLamb(s api.VMStatus) bool {
	return s == api.StatusDirty || s == api.StatusIdle || s == api.StatusSleeping
}
