// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package vm

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// breakers hands out one gobreaker.CircuitBreaker per hypervisor host
// (keyed by VirtURI), the way jordigilh-kubernaut wraps its outbound
// notification channels: a hung libvirt connection trips its breaker
// open and further power-state probes of that host fail fast instead
// of all blocking indefinitely. Spawned children (revert, poweroff,
// runtask) do not go through a breaker.
type breakers struct {
	mu       sync.Mutex
	byHost   map[string]*gobreaker.CircuitBreaker
	settings gobreaker.Settings
}

func newBreakers() *breakers {
	return &breakers{
		byHost: make(map[string]*gobreaker.CircuitBreaker),
		settings: gobreaker.Settings{
			MaxRequests: 1,
			Interval:    0,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		},
	}
}

func (b *breakers) forHost(uri string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.byHost[uri]
	if ok {
		return cb
	}
	settings := b.settings
	settings.Name = uri
	cb = gobreaker.NewCircuitBreaker(settings)
	b.byHost[uri] = cb
	return cb
}

// call runs fn through the breaker for uri. While the breaker is open
// fn is not called and gobreaker's ErrOpenState is returned; otherwise
// fn's own error is returned unchanged.
func (b *breakers) call(uri string, fn func() error) error {
	_, err := b.forHost(uri).Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}
