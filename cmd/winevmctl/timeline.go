// SPDX-FileCopyrightText: Copyright 2024 SAP SE or an SAP affiliate company and cobaltcore-dev contributors
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/cobaltcore-dev/winevm-scheduler/internal/recorder"
	"github.com/cobaltcore-dev/winevm-scheduler/internal/store"
)

// newTimelineCmd reads RecordGroups straight from the store (not
// through the control socket, which carries no historical data) and
// renders the reconstructed per-VM activity timeline (§4.4).
func newTimelineCmd() *cobra.Command {
	var (
		dsn   string
		vm    string
		since string
		until string
	)

	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Render the reconstructed VM activity timeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				return fmt.Errorf("--postgres-dsn is required")
			}
			pg, err := store.Open(cmd.Context(), dsn)
			if err != nil {
				return fmt.Errorf("connecting to store: %w", err)
			}
			defer pg.Close()

			now := time.Now()
			untilT := now
			if until != "" {
				t, err := time.Parse(time.RFC3339, until)
				if err != nil {
					return fmt.Errorf("invalid --until: %w", err)
				}
				untilT = t
			}
			sinceT := untilT.Add(-24 * time.Hour)
			if since != "" {
				t, err := time.Parse(time.RFC3339, since)
				if err != nil {
					return fmt.Errorf("invalid --since: %w", err)
				}
				sinceT = t
			}

			tl, err := recorder.Reconstruct(cmd.Context(), pg, sinceT, untilT, now)
			if err != nil {
				return fmt.Errorf("reconstructing timeline: %w", err)
			}

			renderTimeline(os.Stdout, tl, vm)
			return nil
		},
	}

	cmd.Flags().StringVar(&dsn, "postgres-dsn", os.Getenv("WINEVM_POSTGRES_DSN"), "postgres connection string")
	cmd.Flags().StringVar(&vm, "vm", "", "restrict the timeline to a single VM")
	cmd.Flags().StringVar(&since, "since", "", "RFC3339 window start (default 24h before --until)")
	cmd.Flags().StringVar(&until, "until", "", "RFC3339 window end (default now)")

	return cmd
}

func renderTimeline(w *os.File, tl *recorder.Timeline, vmFilter string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"VM", "Host", "Status", "Start", "End", "Rows", "Mispredict", "Result"})

	for _, c := range tl.Cells {
		if vmFilter != "" && c.VM != vmFilter {
			continue
		}
		status := c.Status
		if c.Mispredict {
			status = color.Red.Sprint(status)
		}
		result := ""
		if c.Result != nil {
			result = *c.Result
		}
		table.Append([]string{
			c.VM,
			c.Host,
			status,
			c.Start.Format(time.RFC3339),
			c.End.Format(time.RFC3339),
			fmt.Sprintf("%d", c.Rows),
			fmt.Sprintf("%v", c.Mispredict),
			result,
		})
	}

	table.Render()
}
