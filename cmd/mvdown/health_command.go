package main

import (
	"errors"

	"github.com/spf13/cobra"

	"mvdown/internal/notifications"
	"mvdown/internal/preflight"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	var notify bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the backend, local directories, and notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status := newStatusPrinter(cmd.OutOrStdout())
			status.header("Health")
			failed := 0
			for _, res := range preflight.RunAll(cmd.Context(), cfg, client) {
				kind := statusOK
				if !res.Passed {
					kind = statusError
					failed++
				}
				status.line(res.Name, kind, res.Detail)
			}

			if notify {
				err := notifications.NewService(cfg).Publish(cmd.Context(), notifications.EventTest, nil)
				switch {
				case err != nil:
					failed++
					status.line("Test notification", statusError, err.Error())
				case cfg.Notifications.NtfyTopic == "":
					status.line("Test notification", statusWarn, "not sent; ntfy_topic is empty")
				default:
					status.line("Test notification", statusOK, "sent")
				}
			}

			if failed > 0 {
				return reported(errors.New("health checks failed"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&notify, "notify", false, "Also send a test notification")
	return cmd
}
