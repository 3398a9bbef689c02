package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"contractflow/internal/api"
	"contractflow/internal/client"
	"contractflow/internal/preflight"
	"contractflow/internal/store"
)

// statusReport is the --json shape of the status command.
type statusReport struct {
	Daemon    *api.DaemonStatus     `json:"daemon,omitempty"`
	DaemonErr string                `json:"daemon_error,omitempty"`
	OCRQueue  *api.OCRQueueResponse `json:"ocr_queue,omitempty"`
	Checks    []preflight.Result    `json:"checks"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, OCR queue and environment status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			report := statusReport{Checks: preflight.RunAll(cmd.Context(), cfg)}
			err = ctx.withClient(func(c *client.Client) error {
				status, err := c.Status(cmd.Context())
				if err != nil {
					return err
				}
				report.Daemon = &status
				queue, err := c.OCRQueue(cmd.Context())
				if err != nil {
					return err
				}
				report.OCRQueue = &queue
				return nil
			})
			if err != nil {
				report.DaemonErr = err.Error()
			}
			if report.Checks == nil {
				report.Checks = []preflight.Result{}
			}

			if ctx.JSONMode() {
				return writeJSON(cmd, report)
			}
			printStatusReport(cmd, report)
			return nil
		},
	}
}

func printStatusReport(cmd *cobra.Command, report statusReport) {
	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)

	for _, line := range renderSectionHeader("System Status", colorize) {
		fmt.Fprintln(stdout, line)
	}
	if report.Daemon == nil {
		fmt.Fprintln(stdout, renderStatusLine("Daemon", statusError, "Not running ("+report.DaemonErr+")", colorize))
	} else {
		d := report.Daemon
		fmt.Fprintln(stdout, renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", d.PID), colorize))
		fmt.Fprintln(stdout, renderStatusLine("Started", statusInfo, d.StartedAt, colorize))
		fmt.Fprintln(stdout, renderStatusLine("Database", statusInfo, d.DatabasePath, colorize))
		fmt.Fprintln(stdout, renderStatusLine("Storage", statusInfo, d.Storage, colorize))
		fmt.Fprintln(stdout, renderStatusLine("OCR", statusInfo, d.OCR, colorize))
	}
	for _, line := range preflightLines(report.Checks, colorize) {
		fmt.Fprintln(stdout, line)
	}

	if q := report.OCRQueue; q != nil {
		fmt.Fprintln(stdout)
		for _, line := range renderSectionHeader("OCR Queue", colorize) {
			fmt.Fprintln(stdout, line)
		}
		kind := statusOK
		if q.Capacity > 0 && q.Queued >= q.Capacity {
			kind = statusWarn
		}
		fmt.Fprintln(stdout, renderStatusLine("Backend", statusInfo, q.Backend, colorize))
		fmt.Fprintln(stdout, renderStatusLine("Queued", kind, fmt.Sprintf("%d of %d", q.Queued, q.Capacity), colorize))
		fmt.Fprintln(stdout, renderStatusLine("Active", statusInfo, strconv.Itoa(len(q.Active)), colorize))
		fmt.Fprintln(stdout, renderStatusLine("Completed", statusInfo, fmt.Sprintf("%d (failed %d)", q.Completed, q.Failed), colorize))
	}

	if report.Daemon == nil {
		return
	}
	fmt.Fprintln(stdout)
	for _, line := range renderSectionHeader("Contracts", colorize) {
		fmt.Fprintln(stdout, line)
	}
	rows := buildCountRows(report.Daemon.Counts)
	if len(rows) == 0 {
		fmt.Fprintln(stdout, "No contracts")
		return
	}
	fmt.Fprint(stdout, renderTable([]string{"State", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
}

func buildCountRows(counts map[string]int) [][]string {
	var rows [][]string
	for _, state := range store.AllStates() {
		n := counts[string(state)]
		if n == 0 {
			continue
		}
		rows = append(rows, []string{stateLabel(string(state)), strconv.Itoa(n)})
	}
	return rows
}
