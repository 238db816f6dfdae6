package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"monistor/internal/ipc"
)

func newSupervisionCommands(ctx *commandContext) []*cobra.Command {
	enableCmd := &cobra.Command{
		Use:   "enable",
		Short: "Start supervising the companion and watching for display-change modals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Enable()
				if err != nil {
					return fmt.Errorf("enable: %w", err)
				}
				if !resp.Enabled {
					return errors.New(resp.Message)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Supervision enabled")
				return nil
			})
		},
	}

	disableCmd := &cobra.Command{
		Use:   "disable",
		Short: "Stop the companion and release shell subscriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Disable()
				if err != nil {
					return fmt.Errorf("disable: %w", err)
				}
				if !resp.Disabled {
					return errors.New(resp.Message)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Supervision disabled")
				return nil
			})
		},
	}

	return []*cobra.Command{enableCmd, disableCmd}
}
