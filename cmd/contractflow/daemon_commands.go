package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"contractflow/internal/client"
	"contractflow/internal/daemonctl"
	"contractflow/internal/daemonrun"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var startLogLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start contractflowd in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			return ctx.withClient(func(c *client.Client) error {
				if status, err := c.Status(cmd.Context()); err == nil && status.Running {
					fmt.Fprintf(stdout, "Daemon already running (pid %d)\n", status.PID)
					return nil
				}
				exe, err := daemonctl.ResolveBinary()
				if err != nil {
					return err
				}
				fmt.Fprintln(stdout, "Daemon not running, launching...")
				if err := daemonctl.Launch(exe, daemonctl.LaunchOptions{
					ConfigPath: ctx.configPath,
					LogLevel:   startLogLevel,
				}); err != nil {
					return err
				}
				status, err := daemonctl.WaitReady(cmd.Context(), c, 10*time.Second)
				if err != nil {
					return err
				}
				fmt.Fprintf(stdout, "Daemon started (pid %d)\n", status.PID)
				return nil
			})
		},
	}
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Daemon log level override")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the background daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			signalled, err := daemonctl.Stop(cfg)
			if err != nil {
				return err
			}
			if !signalled {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Stop signal sent")
			return nil
		},
	}

	var runLogLevel string
	var runDev bool
	runCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    runLogLevel,
				Development: runDev,
			})
		},
	}
	runCmd.Flags().StringVar(&runLogLevel, "log-level", "", "Log level override")
	runCmd.Flags().BoolVar(&runDev, "dev", false, "Development logging")

	return []*cobra.Command{startCmd, stopCmd, runCmd}
}
