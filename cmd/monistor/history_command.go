package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"monistor/internal/ipc"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded supervisor, watchdog, and hotplug events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.History(limit)
				if err != nil {
					return fmt.Errorf("history: %w", err)
				}
				if asJSON {
					return writeJSON(cmd, resp.Entries)
				}
				renderHistory(cmd.OutOrStdout(), resp.Entries)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON")
	return cmd
}

func renderHistory(w io.Writer, entries []ipc.HistoryEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No history recorded")
		return
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		pid := "-"
		if e.PID > 0 {
			pid = strconv.Itoa(e.PID)
		}
		rows = append(rows, []string{
			strconv.FormatInt(e.ID, 10),
			formatClock(e.At),
			displayKind(e.Source),
			displayKind(e.Kind),
			pid,
			e.Detail,
		})
	}
	fmt.Fprint(w, renderTable(
		[]string{"ID", "Time", "Source", "Event", "PID", "Detail"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
}
