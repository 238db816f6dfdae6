package main

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"monistor/internal/deps"
	"monistor/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, companion, and watchdog status",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			socket := ctx.socketPath()

			client, err := ipc.Dial(socket)
			if err != nil {
				if !isUnavailable(err) {
					return wrapDialError(err, socket)
				}
				if asJSON {
					return writeJSON(cmd, ipc.StatusResponse{})
				}
				colorize := shouldColorize(stdout)
				for _, line := range renderSectionHeader("Daemon", colorize) {
					fmt.Fprintln(stdout, line)
				}
				fmt.Fprintln(stdout, renderStatusLine("Monistor", statusError, "Not running", colorize))
				fmt.Fprintln(stdout, renderStatusLine("Socket", statusInfo, socket, colorize))
				fmt.Fprintln(stdout)
				renderDependencies(stdout, ctx, colorize)
				return nil
			}
			defer client.Close()

			status, err := client.Status()
			if err != nil {
				return fmt.Errorf("query status: %w", err)
			}
			if asJSON {
				return writeJSON(cmd, status)
			}
			colorize := shouldColorize(stdout)
			renderStatus(stdout, status, socket, time.Now(), colorize)
			fmt.Fprintln(stdout)
			renderDependencies(stdout, ctx, colorize)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw status as JSON")
	return cmd
}

func renderStatus(w io.Writer, st *ipc.StatusResponse, socket string, now time.Time, colorize bool) {
	section := func(title string) {
		for _, line := range renderSectionHeader(title, colorize) {
			fmt.Fprintln(w, line)
		}
	}
	line := func(label string, kind statusKind, message string) {
		fmt.Fprintln(w, renderStatusLine(label, kind, message, colorize))
	}

	section("Daemon")
	if st.Running {
		line("Monistor", statusOK, fmt.Sprintf("Running (pid %d)", st.PID))
	} else {
		line("Monistor", statusError, "Not running")
	}
	if st.SessionID != "" {
		line("Session", statusInfo, st.SessionID)
	}
	if !st.StartedAt.IsZero() {
		line("Started", statusInfo, fmt.Sprintf("%s (%s)", formatClock(st.StartedAt), formatAge(now, st.StartedAt)))
	}
	line("Socket", statusInfo, socket)
	line("Log", statusInfo, st.LogPath)
	if st.HistoryPath != "" {
		kind := statusInfo
		if st.HistoryDropped > 0 {
			kind = statusWarn
		}
		line("History", kind, fmt.Sprintf("%s (%d written, %d dropped)", st.HistoryPath, st.HistoryWritten, st.HistoryDropped))
	} else {
		line("History", statusInfo, "disabled")
	}
	fmt.Fprintln(w)

	section("Companion")
	for _, l := range supervisionLines(st) {
		line(l.label, l.kind, l.message)
	}
	fmt.Fprintln(w)

	section("Watchdog")
	if st.Watchdog == nil {
		fmt.Fprintln(w, "Watchdog is inactive")
	} else {
		wd := st.Watchdog
		line("Last trusted", statusInfo, formatAge(now, wd.LastTrusted))
		rows := [][]string{
			{"Display changes accepted", strconv.Itoa(wd.Accepted)},
			{"Modals closed", strconv.Itoa(wd.Closed)},
			{"Modals left open", strconv.Itoa(wd.LeftOpen)},
			{"Empty stack checks", strconv.Itoa(wd.EmptyStack)},
			{"Pending checks", strconv.Itoa(wd.Pending)},
		}
		fmt.Fprint(w, renderTable([]string{"Outcome", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
	}
	fmt.Fprintln(w)

	section("Shell Bridge")
	line("Subscriptions", statusInfo, strconv.Itoa(st.Bridge.Subscriptions))
	line("Modal stack", statusInfo, strconv.Itoa(st.Bridge.ModalStack))
	cmdKind := statusInfo
	if st.Bridge.Dropped > 0 {
		cmdKind = statusWarn
	}
	line("Commands", cmdKind, fmt.Sprintf("%d queued, %d issued, %d dropped", st.Bridge.Queued, st.Bridge.Issued, st.Bridge.Dropped))
	if rows := notificationRows(st.Bridge.Notifications); len(rows) > 0 {
		fmt.Fprint(w, renderTable([]string{"Notification", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
	}
	fmt.Fprintln(w)

	section("Hotplug")
	if !st.Hotplug.Running {
		line("DRM monitor", statusInfo, "Not running")
		return
	}
	detail := fmt.Sprintf("%d events", st.Hotplug.Events)
	if st.Hotplug.Events > 0 {
		detail = fmt.Sprintf("%s, last %s on %s", detail, formatAge(now, st.Hotplug.LastEvent), st.Hotplug.LastCard)
	}
	line("DRM monitor", statusOK, detail)
}

func renderDependencies(w io.Writer, ctx *commandContext, colorize bool) {
	for _, line := range renderSectionHeader("Dependencies", colorize) {
		fmt.Fprintln(w, line)
	}
	statuses := deps.CheckBinaries([]deps.Requirement{deps.Companion(ctx.configValue())})
	for _, line := range dependencyLines(statuses, colorize) {
		fmt.Fprintln(w, line)
	}
}

func dependencyLines(statuses []deps.Status, colorize bool) []string {
	lines := make([]string, 0, len(statuses))
	for _, dep := range statuses {
		if dep.Available {
			lines = append(lines, renderStatusLine(dep.Name, statusOK, fmt.Sprintf("Ready (%s)", dep.Path), colorize))
			continue
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		}
		detail := dep.Detail
		if detail == "" {
			detail = "not available"
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, detail, colorize))
	}
	return lines
}

type statusEntry struct {
	label   string
	kind    statusKind
	message string
}

func supervisionLines(st *ipc.StatusResponse) []statusEntry {
	if !st.Enabled {
		return []statusEntry{{"Supervision", statusInfo, fmt.Sprintf("Disabled (%d cycles so far)", st.Cycles)}}
	}
	lines := []statusEntry{{"Supervision", statusOK, fmt.Sprintf("Enabled (cycle %d, %d subscriptions)", st.Cycles, st.Subscriptions)}}
	if st.StartupPending {
		lines = append(lines, statusEntry{"Companion", statusWarn, "Waiting for startup delay"})
		return lines
	}
	sup := st.Supervisor
	if sup == nil {
		return lines
	}

	switch sup.State {
	case "running":
		lines = append(lines, statusEntry{"Companion", statusOK, fmt.Sprintf("%s running (pid %d, %d spawns)", sup.Binary, sup.PID, sup.Spawns)})
	case "restarting":
		msg := fmt.Sprintf("%s restarting", sup.Binary)
		if !sup.NextRestart.IsZero() {
			msg = fmt.Sprintf("%s at %s", msg, formatClock(sup.NextRestart))
		}
		lines = append(lines, statusEntry{"Companion", statusWarn, msg})
	case "halted":
		lines = append(lines, statusEntry{"Companion", statusError, fmt.Sprintf("%s halted after %d attempts", sup.Binary, len(sup.Attempts))})
	case "failed":
		lines = append(lines, statusEntry{"Companion", statusError, fmt.Sprintf("%s failed to start", sup.Binary)})
	default:
		lines = append(lines, statusEntry{"Companion", statusInfo, fmt.Sprintf("%s %s", sup.Binary, sup.State)})
	}
	if sup.LastExit != "" {
		lines = append(lines, statusEntry{"Last exit", statusInfo, sup.LastExit})
	}
	return lines
}

func notificationRows(counts map[string]int) [][]string {
	kinds := make([]string, 0, len(counts))
	for kind := range counts {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)
	rows := make([][]string, 0, len(kinds))
	for _, kind := range kinds {
		rows = append(rows, []string{displayKind(kind), strconv.Itoa(counts[kind])})
	}
	return rows
}
