// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var socket string

	cmd := &cobra.Command{
		Use:   "winevmctl",
		Short: "Operate a running winevm-scheduler engine over its control socket",
	}
	cmd.PersistentFlags().StringVar(&socket, "socket", "/var/lib/winevm-scheduler/control.sock", "path to the engine's control socket")

	cmd.AddCommand(
		newPingCmd(&socket),
		newShutdownCmd(&socket),
		newJobCancelCmd(&socket),
		newJobRestartCmd(&socket),
		newRescheduleJobsCmd(&socket),
		newVMStatusChangeCmd(&socket),
		newGetScreenshotCmd(&socket),
		newTimelineCmd(),
	)

	return cmd
}
