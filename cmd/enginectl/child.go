// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/cobaltcore-dev/winevm-scheduler/internal/config"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/obslog"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/vm"
)

// runChild is the body of the re-exec'd helper process: os.Args[1] ==
// vm.ChildSubcommand, os.Args[2] is the op, os.Args[3] the VM name,
// and for opRunTask three more tokens (JobID, StepNo, No) identifying
// the Task to run (internal/vm.spawn builds exactly this argv). It
// never goes through cobra: the supervising parent controls the exact
// argv, so there is nothing here for a flag parser to do.
func runChild(args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "enginectl: child mode expects <op> <vmName> [extra...]")
		return 1
	}
	op, ok := vm.ParseChildOp(args[0])
	if !ok {
		fmt.Fprintf(os.Stderr, "enginectl: unknown child op %q\n", args[0])
		return 1
	}
	vmName := args[1]
	extra := args[2:]

	zl, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "enginectl: building logger: %v\n", err)
		return 1
	}
	defer func() { _ = zl.Sync() }()
	obslog.SetBase(zl)
	ctx := obslog.NewContext(context.Background(), obslog.Log)
	log := obslog.FromContext(ctx, "component", "vm-child-main")

	configPath := os.Getenv("WINEVM_CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Error(err, "loading config", "path", configPath)
		return 1
	}

	st, closeStore, err := openStore(ctx)
	if err != nil {
		log.Error(err, "opening store")
		return 1
	}
	defer func() { _ = closeStore() }()

	hv := openHypervisor(ctx)
	agent := openVMAgent(ctx)

	return vm.RunChildMain(ctx, st, hv, agent, cfg, op, vmName, extra...)
}
