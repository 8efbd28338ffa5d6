package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"mvdown/internal/logging"
	"mvdown/internal/progress"
	"mvdown/internal/transport"
)

const closedReason = "stream closed before the download finished"

// pump normalizes signals for one generation until a terminal event, a cancel,
// or the end of the stream.
func (o *Orchestrator) pump(ctx context.Context, gen uint64, signals <-chan transport.Signal, done chan struct{}) {
	defer close(done)
	logger := logging.WithContext(ctx, o.logger)
	normalizer := progress.NewNormalizer()
	sampler := logging.NewProgressSampler(10)

	for sig := range signals {
		var ev progress.Event
		switch sig.Kind {
		case transport.SignalFrame:
			ev = normalizer.NextNamed(sig.Event, sig.Data)
		case transport.SignalClosed:
			ev = progress.Closed{Reason: closedReason}
		case transport.SignalFailed:
			ev = progress.Failed{Message: transportMessage(sig.Err)}
		default:
			continue
		}
		o.logEvent(logger, sampler, ev, sig.Err)
		if !o.deliver(gen, ev) {
			return
		}
		if progress.IsTerminal(ev) {
			o.teardown(gen)
			return
		}
	}

	// The channel closed without a terminal signal: the job context ended.
	o.mu.Lock()
	if o.gen == gen && o.job.State == StateStreaming {
		o.job.State = StateIdle
		o.pumpDone = nil
	}
	o.mu.Unlock()
	o.teardown(gen)
	logger.Debug("progress stream stopped")
}

// deliver applies ev to the job record and publishes it. It reports false
// when the generation is no longer current.
func (o *Orchestrator) deliver(gen uint64, ev progress.Event) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gen != gen || o.job.State != StateStreaming {
		return false
	}
	switch e := ev.(type) {
	case progress.Progress:
		o.job.Status = e.Status
		if e.HasPercent {
			o.job.Percent = e.Percent
			o.job.HasPercent = true
		}
	case progress.Completed:
		o.job.State = StateCompleted
		o.job.Status = string(progress.KindCompleted)
		o.job.Percent = 100
		o.job.HasPercent = true
		result := e
		o.job.Result = &result
	case progress.Failed:
		o.job.State = StateFailed
		o.job.Status = string(progress.KindFailed)
		o.job.Error = e.Message
	case progress.Closed:
		o.job.State = StateClosed
		o.job.Status = string(progress.KindClosed)
		o.job.Error = e.Reason
	}
	o.publishLocked(gen, ev)
	return true
}

// teardown closes the transport after a terminal event unless a newer job has
// taken over.
func (o *Orchestrator) teardown(gen uint64) {
	o.runMu.Lock()
	defer o.runMu.Unlock()
	o.mu.Lock()
	current := o.gen == gen
	if current && o.abort != nil {
		o.abort()
		o.abort = nil
	}
	o.mu.Unlock()
	if !current {
		return
	}
	if err := o.transport.Close(); err != nil {
		o.logger.Debug("transport close failed", logging.Error(err))
	}
}

func (o *Orchestrator) logEvent(logger *slog.Logger, sampler *logging.ProgressSampler, ev progress.Event, err error) {
	switch e := ev.(type) {
	case progress.Progress:
		if e.Status == progress.StatusUnknown && e.Message != "" {
			logger.Debug("progress frame ignored", logging.String("detail", e.Message))
			return
		}
		percent := -1.0
		if e.HasPercent {
			percent = e.Percent
		}
		if sampler.ShouldLog(percent, e.Status) {
			attrs := []any{
				logging.String(logging.FieldState, e.Status),
				logging.Float64("percent", e.Percent),
			}
			if pass := sampler.Pass(); pass > 1 {
				attrs = append(attrs, logging.Int("pass", pass))
			}
			logger.Info("download progress", attrs...)
		}
	case progress.Completed:
		logger.Info("download completed", logging.String("filename", e.Filename))
	case progress.Failed:
		attrs := []logging.Attr{logging.String("reason", e.Message)}
		if err != nil {
			attrs = append(attrs, logging.Error(err))
		}
		logging.WarnWithContext(logger, "download failed", "job_failed", attrs...)
	case progress.Closed:
		logging.WarnWithContext(logger, "progress stream closed early", "stream_closed",
			logging.String(logging.FieldErrorHint, "run mvdown watch <id> to re-attach"),
		)
	}
}

func transportMessage(err error) string {
	if err == nil {
		return "Connection lost"
	}
	return fmt.Sprintf("Connection lost: %v", err)
}
