package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"mvdown/internal/backend"
	"mvdown/internal/logging"
	"mvdown/internal/progress"
	"mvdown/internal/services"
	"mvdown/internal/transport"
)

// Orchestrator coordinates job submission and progress streaming.
type Orchestrator struct {
	submitter Submitter
	transport transport.Transport
	logger    *slog.Logger
	hub       *hub
	now       func() time.Time

	// runMu serializes Open and Close on the transport.
	runMu sync.Mutex

	mu       sync.Mutex
	gen      uint64
	job      Job
	abort    context.CancelFunc
	pumpDone chan struct{}
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source used for job timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New constructs an Orchestrator around a backend submitter and a transport.
func New(submitter Submitter, tr transport.Transport, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		submitter: submitter,
		transport: tr,
		logger:    logging.NewNop(),
		hub:       newHub(),
		now:       time.Now,
		job:       Job{State: StateIdle},
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.NewComponentLogger(o.logger, "orchestrator")
	return o
}

// Subscribe registers a new observer. Only updates published after the call
// are delivered.
func (o *Orchestrator) Subscribe() *Subscription {
	return o.hub.subscribe()
}

// Job returns a snapshot of the active or most recent job.
func (o *Orchestrator) Job() Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	job := o.job
	if job.Result != nil {
		result := *job.Result
		job.Result = &result
	}
	return job
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.job.State
}

// Submit starts a new job and opens its progress stream. Any active job is
// cancelled first. The stream lives until a terminal event, Cancel, or the end
// of ctx.
//
// Empty arguments fail with services.ErrValidation before any network call.
// A rejected submission leaves the job Failed, publishes a Failed event, and
// returns an error marked services.ErrSubmission. A stream that cannot be
// opened does the same with services.ErrTransport.
func (o *Orchestrator) Submit(ctx context.Context, sourceURL, formatID string) error {
	sourceURL = strings.TrimSpace(sourceURL)
	formatID = strings.TrimSpace(formatID)
	if sourceURL == "" {
		return services.Wrap(services.ErrValidation, "orchestrator", "submit", "source url is empty", nil)
	}
	if formatID == "" {
		return services.Wrap(services.ErrValidation, "orchestrator", "submit", "format id is empty", nil)
	}

	o.Cancel()

	jobCtx, gen := o.begin(ctx, Job{SourceURL: sourceURL, FormatID: formatID, State: StateSubmitting})
	logger := o.logger.With(logging.String("source_url", sourceURL), logging.String("format_id", formatID))
	logger.Info("submitting download")

	resp, err := o.submitter.SubmitDownload(jobCtx, backend.DownloadRequest{URL: sourceURL, FormatID: formatID})
	if !o.current(gen) {
		return ErrCancelled
	}
	if err != nil && ctx.Err() != nil {
		o.Cancel()
		return ctx.Err()
	}
	if err != nil {
		message := submissionMessage(err)
		logging.ErrorWithContext(logger, "download submission failed", "submit_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the server url and that the backend is running"),
		)
		o.fail(gen, message)
		return services.Wrap(services.ErrSubmission, "orchestrator", "submit", "", err)
	}

	o.mu.Lock()
	if o.gen == gen {
		o.job.ID = resp.DownloadID
	}
	o.mu.Unlock()
	logger.Info("download accepted", logging.String(logging.FieldJobID, resp.DownloadID))

	target := transport.Target{JobID: resp.DownloadID, URL: resp.StreamURL(string(o.transport.Kind()))}
	return o.stream(jobCtx, gen, target)
}

// Attach streams a job that was submitted earlier, for example by another
// process. The job starts directly in the streaming phase.
func (o *Orchestrator) Attach(ctx context.Context, jobID string) error {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return services.Wrap(services.ErrValidation, "orchestrator", "attach", "job id is empty", nil)
	}

	o.Cancel()

	jobCtx, gen := o.begin(ctx, Job{ID: jobID, State: StateSubmitting})
	o.logger.Info("attaching to download", logging.String(logging.FieldJobID, jobID))
	return o.stream(jobCtx, gen, transport.Target{JobID: jobID})
}

// Cancel abandons the active job. The transport is closed before Cancel
// returns, the state becomes Idle, and no terminal event is published. Queued
// updates of the cancelled job are discarded. Cancel is a no-op when no job is
// submitting or streaming.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	if !o.job.State.Active() {
		done := o.pumpDone
		o.mu.Unlock()
		// A finished pump may still be tearing down its transport.
		if done != nil {
			<-done
		}
		return
	}
	cancelled := o.gen
	o.gen++
	if o.abort != nil {
		o.abort()
		o.abort = nil
	}
	done := o.pumpDone
	o.pumpDone = nil
	jobID := o.job.ID
	o.job.State = StateIdle
	o.hub.purge(cancelled)
	o.mu.Unlock()

	o.runMu.Lock()
	if err := o.transport.Close(); err != nil {
		o.logger.Debug("transport close failed", logging.Error(err))
	}
	o.runMu.Unlock()
	if done != nil {
		<-done
	}
	// Anything published between the purge and the pump exiting.
	o.hub.purge(cancelled)
	o.logger.Info("download cancelled", logging.String(logging.FieldJobID, jobID))
}

// begin installs a fresh job record and returns its context and generation.
func (o *Orchestrator) begin(ctx context.Context, job Job) (context.Context, uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gen++
	// A concurrent Submit may have begun after our Cancel; its context ends here.
	if o.abort != nil {
		o.abort()
	}
	jobCtx, cancel := context.WithCancel(ctx)
	o.abort = cancel
	job.StartedAt = o.now()
	job.Transport = string(o.transport.Kind())
	o.job = job
	if job.ID != "" {
		jobCtx = services.WithJobID(jobCtx, job.ID)
	}
	return jobCtx, o.gen
}

func (o *Orchestrator) current(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gen == gen
}

// stream opens the transport for target and starts the pump.
func (o *Orchestrator) stream(ctx context.Context, gen uint64, target transport.Target) error {
	ctx = services.WithJobID(ctx, target.JobID)
	logger := logging.WithContext(ctx, o.logger)

	o.runMu.Lock()
	if !o.current(gen) {
		o.runMu.Unlock()
		return ErrCancelled
	}
	signals, err := o.transport.Open(ctx, target)
	if err != nil {
		o.runMu.Unlock()
		if !o.current(gen) {
			return ErrCancelled
		}
		logging.ErrorWithContext(logger, "progress stream unavailable", "stream_connect_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "try --transport sse or --transport websocket"),
		)
		o.fail(gen, fmt.Sprintf("Connection failed: %v", err))
		return services.Wrap(services.ErrTransport, "orchestrator", "open stream", "", err)
	}

	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		_ = o.transport.Close()
		o.runMu.Unlock()
		return ErrCancelled
	}
	done := make(chan struct{})
	o.pumpDone = done
	o.job.State = StateStreaming
	o.job.Transport = string(o.transport.Kind())
	o.publishLocked(gen, progress.Connected{})
	o.mu.Unlock()
	o.runMu.Unlock()

	logger.Info("progress stream connected", logging.String(logging.FieldTransport, o.Job().Transport))
	go o.pump(ctx, gen, signals, done)
	return nil
}

// fail moves the job to Failed and publishes the message.
func (o *Orchestrator) fail(gen uint64, message string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gen != gen {
		return
	}
	o.job.State = StateFailed
	o.job.Error = message
	if o.abort != nil {
		o.abort()
		o.abort = nil
	}
	o.publishLocked(gen, progress.Failed{Message: message})
}

func (o *Orchestrator) publishLocked(gen uint64, ev progress.Event) {
	o.hub.publish(Update{Generation: gen, JobID: o.job.ID, Event: ev})
}

// submissionMessage renders a submission error the way users see it:
// "Failed: <status> - <detail>" for server rejections, the error text otherwise.
func submissionMessage(err error) string {
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("Failed: %d - %s", apiErr.Status, apiErr.Detail())
	}
	if errors.Is(err, services.ErrTimeout) {
		return "Failed: server did not answer in time"
	}
	return fmt.Sprintf("Failed: %v", err)
}
