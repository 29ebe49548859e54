// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/cobaltcore-dev/winevm-scheduler/internal/hypervisor"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/store"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/vmagent"
)

// envEmulate/envPostgresDSN are read both by the parent daemon process
// and by a re-exec'd child: the parent sets them on its own
// environment before spawning any child (internal/vm.spawn forwards
// os.Environ() unchanged), so both processes always agree on which
// backend to use without a second flag-parsing path.
const (
	envEmulate     = "WINEVM_EMULATE"
	envPostgresDSN = "WINEVM_POSTGRES_DSN"
)

func emulateMode() bool { return os.Getenv(envEmulate) == "1" }

// openStore opens the Store this process (daemon or child) should
// use, plus a close func that is a no-op for the in-memory backend.
func openStore(ctx context.Context) (store.Store, func() error, error) {
	if emulateMode() {
		return store.NewMemory(), func() error { return nil }, nil
	}
	dsn := os.Getenv(envPostgresDSN)
	if dsn == "" {
		return nil, nil, fmt.Errorf("wiring: %s not set (use --emulate or --postgres-dsn)", envPostgresDSN)
	}
	pg, err := store.Open(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(pg.DB()); err != nil {
		_ = pg.Close()
		return nil, nil, fmt.Errorf("wiring: applying migrations: %w", err)
	}
	return pg, pg.Close, nil
}

func openHypervisor(ctx context.Context) hypervisor.Interface {
	if emulateMode() {
		return hypervisor.NewEmulator(ctx)
	}
	return hypervisor.NewLibVirt()
}

// openVMAgent always returns the emulator: the in-guest agent wire
// protocol is explicitly out of scope (spec.md §1), so no real
// implementation of vmagent.Interface exists to choose instead.
func openVMAgent(ctx context.Context) vmagent.Interface {
	return vmagent.NewEmulator(ctx)
}
