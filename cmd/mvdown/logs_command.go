package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"mvdown/internal/logging"
	"mvdown/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var jobID string
	var level string
	var raw bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the mvdown log file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.Paths.LogDir) == "" {
				return fmt.Errorf("paths.log_dir is empty; file logging is disabled")
			}
			path := filepath.Join(cfg.Paths.LogDir, logging.LogFileName)

			filter := logs.Filter{JobID: strings.TrimSpace(jobID)}
			if level != "" {
				if err := filter.MinLevel.UnmarshalText([]byte(level)); err != nil {
					return fmt.Errorf("invalid --level %q: %w", level, err)
				}
			} else {
				filter.MinLevel = slog.LevelDebug
			}

			out := cmd.OutOrStdout()
			emit := func(line string) {
				if raw {
					fmt.Fprintln(out, line)
					return
				}
				if text, ok := logs.Render(line, filter); ok {
					fmt.Fprintln(out, text)
				}
			}

			tail, offset, err := logs.Last(path, lines)
			if err != nil {
				return err
			}
			for _, line := range tail {
				emit(line)
			}
			if !follow {
				return nil
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			_, err = logs.Follow(runCtx, path, offset, 0, emit)
			return err
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().StringVar(&jobID, "job", "", "Only show records for this job id")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level: debug, info, warn, error")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print JSON records unchanged")
	return cmd
}
