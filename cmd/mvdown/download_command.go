package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"mvdown/internal/fetch"
	"mvdown/internal/joblock"
	"mvdown/internal/logging"
	"mvdown/internal/notifications"
	"mvdown/internal/orchestrator"
	"mvdown/internal/presenter"
	"mvdown/internal/progress"
	"mvdown/internal/services"
)

type streamOptions struct {
	background bool
	noLock     bool
	fetch      bool
}

func (o *streamOptions) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.background, "background", false, "Report progress through notifications instead of the terminal")
	cmd.Flags().BoolVar(&o.noLock, "no-lock", false, "Skip the single-download lock in the state directory")
	cmd.Flags().BoolVar(&o.fetch, "fetch", false, "Save the finished file into the download directory")
}

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var formatID string
	var opts streamOptions

	cmd := &cobra.Command{
		Use:   "download <url>",
		Short: "Submit a download and follow its progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sourceURL := strings.TrimSpace(args[0])
			return runStream(cmd, ctx, opts, sourceURL, func(runCtx context.Context, o *orchestrator.Orchestrator) error {
				return o.Submit(runCtx, sourceURL, formatID)
			})
		},
	}
	cmd.Flags().StringVarP(&formatID, "format", "f", "", "Format id from `mvdown formats`")
	_ = cmd.MarkFlagRequired("format")
	opts.bind(cmd)
	return cmd
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var opts streamOptions

	cmd := &cobra.Command{
		Use:   "watch [job-id]",
		Short: "Re-attach to a running download (defaults to the last one)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			jobID := ""
			if len(args) == 1 {
				jobID = strings.TrimSpace(args[0])
			}
			if jobID == "" {
				jobID, err = joblock.LastJob(cfg.Paths.StateDir)
				if err != nil {
					return err
				}
				if jobID == "" {
					return services.Wrap(services.ErrValidation, "cli", "watch", "no job id given and no previous download recorded", nil)
				}
			}
			return runStream(cmd, ctx, opts, "job "+jobID, func(runCtx context.Context, o *orchestrator.Orchestrator) error {
				return o.Attach(runCtx, jobID)
			})
		},
	}
	opts.bind(cmd)
	return cmd
}

// runStream wires the orchestrator to a presenter, starts the job with start,
// and blocks until a terminal event or an interrupt.
func runStream(cmd *cobra.Command, ctx *commandContext, opts streamOptions, label string, start func(context.Context, *orchestrator.Orchestrator) error) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger := ctx.loggerValue()
	client, err := ctx.client()
	if err != nil {
		return err
	}
	tr, err := ctx.transport()
	if err != nil {
		return err
	}

	if !opts.noLock {
		lock := joblock.New(cfg.Paths.StateDir)
		if err := lock.Acquire(); err != nil {
			return err
		}
		defer lock.Release()
	}

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch := orchestrator.New(client, tr, orchestrator.WithLogger(logger))
	defer orch.Cancel()
	sub := orch.Subscribe()
	defer sub.Close()

	out := cmd.OutOrStdout()
	pres := presenter.New(presenter.Options{
		Out:            out,
		Interactive:    presenter.IsTerminal(out),
		Foreground:     !opts.background,
		Notifier:       notifications.NewService(cfg),
		NotifyInterval: cfg.NotifyInterval(),
		Links:          client,
		Label:          label,
		Logger:         logger,
	})
	stopToggle := toggleForegroundOnSignal(runCtx, pres, !opts.background)
	defer stopToggle()

	if err := start(runCtx, orch); err != nil {
		// Submission failures are already queued as a Failed event.
		for sub.Pending() > 0 {
			u, nextErr := sub.Next(runCtx)
			if nextErr != nil {
				break
			}
			pres.Handle(runCtx, u)
		}
		if pres.Outcome() != nil {
			return reported(err)
		}
		return err
	}

	job := orch.Job()
	if err := joblock.RecordJob(cfg.Paths.StateDir, job.ID); err != nil {
		logging.WarnWithContext(logger, "record job id failed", "state_write_failed",
			logging.String(logging.FieldJobID, job.ID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.state_dir permissions"),
		)
	}

	ev, err := pres.Run(runCtx, sub)
	if err != nil {
		if errors.Is(err, context.Canceled) && cmd.Context().Err() == nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Stopped following; the server keeps working. Re-attach with: mvdown watch %s\n", job.ID)
		}
		return err
	}

	switch ev := ev.(type) {
	case progress.Completed:
		if opts.fetch {
			return fetchCompleted(runCtx, cmd, ctx, ev.Filename)
		}
		return nil
	case progress.Failed:
		return reported(errors.New(ev.Message))
	case progress.Closed:
		return reported(services.Wrap(services.ErrAmbiguousClose, "cli", "stream", ev.Reason, nil))
	default:
		return nil
	}
}

// toggleForegroundOnSignal flips between terminal output and background
// notifications on SIGUSR1.
func toggleForegroundOnSignal(parent context.Context, pres *presenter.Presenter, foreground bool) func() {
	ctx, cancel := context.WithCancel(parent)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGUSR1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-signals:
				foreground = !foreground
				pres.SetForeground(ctx, foreground)
			}
		}
	}()
	return func() {
		signal.Stop(signals)
		cancel()
		<-done
	}
}

func fetchCompleted(ctx context.Context, cmd *cobra.Command, cc *commandContext, name string) error {
	cfg, err := cc.ensureConfig()
	if err != nil {
		return err
	}
	client, err := cc.client()
	if err != nil {
		return err
	}
	var bar io.Writer
	if errOut := cmd.ErrOrStderr(); presenter.IsTerminal(errOut) {
		bar = errOut
	}
	res, err := fetch.Fetch(ctx, client, name, fetch.Options{
		Dir:      cfg.Paths.DownloadDir,
		Progress: bar,
		Logger:   cc.loggerValue(),
	})
	if err != nil {
		return err
	}
	printFetchResult(cmd.OutOrStdout(), res)
	return nil
}

func printFetchResult(out io.Writer, res fetch.Result) {
	fmt.Fprintf(out, "Saved %s (%s)\n", res.Path, presenter.FormatSize(res.Bytes))
	if summary := res.Metadata.Summary(); summary != "" {
		fmt.Fprintf(out, "  %s\n", summary)
	}
}
