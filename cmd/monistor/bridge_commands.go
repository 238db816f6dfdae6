package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"monistor/internal/bridge"
	"monistor/internal/ipc"
)

const defaultCommandWait = 25 * time.Second

func newBridgeCommands(ctx *commandContext) []*cobra.Command {
	var stack []string
	notifyCmd := &cobra.Command{
		Use:   "notify <event>",
		Short: "Forward a shell event (display-change-confirmed, modal-opened, modal-stack)",
		Long: "Forward a shell event to the daemon.\n\n" +
			"--stack replaces the daemon's view of the open modals, bottom first. " +
			"Pass --stack \"\" to clear it; omit the flag to keep the current view.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := strings.TrimSpace(args[0])
			var snapshot []string
			if cmd.Flags().Changed("stack") {
				snapshot = make([]string, 0, len(stack))
				for _, id := range stack {
					if id = strings.TrimSpace(id); id != "" {
						snapshot = append(snapshot, id)
					}
				}
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Notify(kind, snapshot); err != nil {
					return fmt.Errorf("notify %s: %w", kind, err)
				}
				return nil
			})
		},
	}
	notifyCmd.Flags().StringSliceVar(&stack, "stack", nil, "Open modal IDs, bottom first, comma separated")

	var follow bool
	var asText bool
	var wait time.Duration
	commandsCmd := &cobra.Command{
		Use:   "commands",
		Short: "Wait for shell instructions and print them as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				runCtx := cmd.Context()
				for {
					resp, err := client.NextCommand(wait)
					if err != nil {
						return fmt.Errorf("next command: %w", err)
					}
					if resp.Available {
						if asText {
							fmt.Fprintln(cmd.OutOrStdout(), describeCommand(resp.Command))
						} else if err := writeJSONLine(cmd, resp.Command); err != nil {
							return err
						}
					}
					if !follow {
						return nil
					}
					select {
					case <-runCtx.Done():
						return nil
					default:
					}
				}
			})
		},
	}
	commandsCmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep polling until interrupted")
	commandsCmd.Flags().BoolVar(&asText, "text", false, "Print a readable line instead of JSON")
	commandsCmd.Flags().DurationVar(&wait, "wait", defaultCommandWait, "How long each poll waits for a command")

	return []*cobra.Command{notifyCmd, commandsCmd}
}

// describeCommand renders a shell instruction for humans.
func describeCommand(c bridge.Command) string {
	switch c.Kind {
	case bridge.CommandCloseModal:
		return fmt.Sprintf("#%d close modal %s", c.Seq, c.ModalID)
	case bridge.CommandCompleteDisplayChange:
		return fmt.Sprintf("#%d complete display change (accept=%s)", c.Seq, yesNo(c.Accept))
	default:
		return fmt.Sprintf("#%d %s", c.Seq, c.Kind)
	}
}
