package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mvdown/internal/devserver"
)

func newDevServerCommand(ctx *commandContext) *cobra.Command {
	var addr string
	var dir string
	var step time.Duration
	var origins []string

	cmd := &cobra.Command{
		Use:   "dev-server",
		Short: "Run a local emulator of the download backend",
		Long: "Serves the backend API with simulated jobs. Submit a URL containing \"fail\" to\n" +
			"simulate a failure, or \"drop\" to end the progress stream without a result.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(dir) == "" {
				tmp, err := os.MkdirTemp("", "mvdown-devserver-")
				if err != nil {
					return fmt.Errorf("create storage dir: %w", err)
				}
				dir = tmp
			}
			srv, err := devserver.New(devserver.Options{
				Dir:          dir,
				Step:         step,
				AllowOrigins: origins,
				Logger:       ctx.loggerValue(),
			})
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			fmt.Fprintf(cmd.OutOrStdout(), "Serving the backend API on http://%s (files in %s)\n", addr, dir)
			if err := srv.ListenAndServe(runCtx, addr); err != nil {
				return err
			}
			if context.Cause(runCtx) != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Stopped")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8000", "Listen address")
	cmd.Flags().StringVar(&dir, "dir", "", "Directory for simulated downloads (defaults to a temp dir)")
	cmd.Flags().DurationVar(&step, "step", 400*time.Millisecond, "Delay between simulated progress frames")
	cmd.Flags().StringSliceVar(&origins, "allow-origin", nil, "CORS origins to allow (default all)")
	return cmd
}
