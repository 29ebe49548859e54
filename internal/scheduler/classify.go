// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package scheduler

import "github.com/cobaltcore-dev/winevm-scheduler/api"

// HostCounters tracks the per-host resource usage §4.3's limits are
// checked against. Active/Running/Reverting mirror the limit names
// directly; FutureIdle is the subset of Active VMs whose status is a
// lamb status (see IsLamb); the task queue is not consulted. It is used
// by the future-preparation sacrifice rule.
type HostCounters struct {
	Active      int
	Running     int
	Reverting   int
	FutureIdle  int
}

// Classification is the result of classify_and_check: per-host
// counters, the domain-ownership register, and the busy/lamb VM-name
// sets every later stage consults.
type Classification struct {
	Fleet   map[string]api.VM
	Hosts   map[string]*HostCounters
	Domains *Domains
	Busy    map[string]bool
	Lamb    map[string]bool
}

// Classify walks the fleet once, building host counters, the
// busy/lamb sets, and an initial domain-ownership claim for every VM
// that is not off (§4.3 "Hypervisor domain claiming" applies
// continuously; the first pass over the fleet claims in fleet order,
// later stages may steal).
func Classify(fleet []api.VM) *Classification {
	c := &Classification{
		Fleet:   make(map[string]api.VM, len(fleet)),
		Hosts:   make(map[string]*HostCounters),
		Domains: NewDomains(),
		Busy:    make(map[string]bool),
		Lamb:    make(map[string]bool),
	}

	for _, v := range fleet {
		c.Fleet[v.Name] = v
		if IsBusy(v.Status) {
			c.Busy[v.Name] = true
		}
		if IsLamb(v.Status) {
			c.Lamb[v.Name] = true
		}
	}

	for _, v := range fleet {
		host := c.hostCounters(v.Hostname)
		if v.Status.Active() {
			host.Active++
		}
		switch v.Status {
		case api.StatusRunning, api.StatusSleeping, api.StatusDirty:
			host.Running++
		case api.StatusReverting:
			host.Reverting++
		}
		if v.Status.Active() && c.Lamb[v.Name] {
			host.FutureIdle++
		}

		if v.Status != api.StatusOff {
			c.Domains.Claim(c.Fleet, c.Busy, v, false)
		}
	}

	return c
}

func (c *Classification) hostCounters(hostname string) *HostCounters {
	h, ok := c.Hosts[hostname]
	if !ok {
		h = &HostCounters{}
		c.Hosts[hostname] = h
	}
	return h
}
