// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func runSimple(socket string, fields ...string) error {
	ok, payload, err := dial(socket, fields...)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s", payload)
	}
	if payload != "" {
		fmt.Println(payload)
	}
	return nil
}

func newPingCmd(socket *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the engine is alive and answering the control socket",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimple(*socket, "ping")
		},
	}
}

func newShutdownCmd(socket *string) *cobra.Command {
	var killTasks, killVMs bool
	cmd := &cobra.Command{
		Use:   "shutdown",
		Short: "Ask the engine to stop scheduling and optionally drain tasks and VMs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimple(*socket, "shutdown", boolArg(killTasks), boolArg(killVMs))
		},
	}
	cmd.Flags().BoolVar(&killTasks, "kill-tasks", false, "kill every running task's child process")
	cmd.Flags().BoolVar(&killVMs, "kill-vms", false, "power off every VM in the fleet")
	return cmd
}

func newJobCancelCmd(socket *string) *cobra.Command {
	return &cobra.Command{
		Use:   "jobcancel <jobId>",
		Short: "Cancel a job's queued and running tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimple(*socket, "jobcancel", args[0])
		},
	}
}

func newJobRestartCmd(socket *string) *cobra.Command {
	return &cobra.Command{
		Use:   "jobrestart <jobId>",
		Short: "Restart a failed or canceled job from its first step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimple(*socket, "jobrestart", args[0])
		},
	}
}

func newRescheduleJobsCmd(socket *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reschedulejobs",
		Short: "Force an immediate scheduling pass instead of waiting for the next tick",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimple(*socket, "reschedulejobs")
		},
	}
}

func newVMStatusChangeCmd(socket *string) *cobra.Command {
	return &cobra.Command{
		Use:   "vmstatuschange <vmKey> <oldStatus> <newStatus>",
		Short: "Notify the engine of a VM status transition observed out of band",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimple(*socket, "vmstatuschange", args[0], args[1], args[2])
		},
	}
}

func newGetScreenshotCmd(socket *string) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "getscreenshot <vmName>",
		Short: "Save a VM's current framebuffer image (bytes as the hypervisor returned them)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, payload, err := dial(*socket, "getscreenshot", args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s", payload)
			}
			data, err := base64.StdEncoding.DecodeString(payload)
			if err != nil {
				return fmt.Errorf("decoding screenshot: %w", err)
			}
			path := outPath
			if path == "" {
				path = args[0] + ".png"
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
			fmt.Println(path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "output file path (default <vmName>.png)")
	return cmd
}
