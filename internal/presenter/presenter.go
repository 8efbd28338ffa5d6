package presenter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"mvdown/internal/logging"
	"mvdown/internal/notifications"
	"mvdown/internal/orchestrator"
	"mvdown/internal/progress"
)

// Links turns server file references into absolute URLs. *backend.Client
// implements it.
type Links interface {
	ResolveURL(ref string) string
	FileURL(name string) string
}

// Options configures a Presenter.
type Options struct {
	Out io.Writer
	// Interactive selects the progress bar; otherwise plain lines are printed.
	Interactive bool
	// Foreground is the initial visibility.
	Foreground bool
	Notifier   notifications.Service
	// NotifyInterval is the minimum spacing of background progress
	// notifications. Zero disables the limit.
	NotifyInterval time.Duration
	Links          Links
	// Label names the job in notifications, usually the source URL.
	Label  string
	Logger *slog.Logger
}

// Presenter renders updates for one job.
type Presenter struct {
	out      io.Writer
	notifier notifications.Service
	links    Links
	label    string
	logger   *slog.Logger
	limiter  *rate.Limiter
	render   renderer

	mu          sync.Mutex
	foreground  bool
	jobID       string
	lastPercent float64
	hasPercent  bool
	lastStatus  string
	terminal    progress.Event
}

// New constructs a Presenter.
func New(opts Options) *Presenter {
	out := opts.Out
	if out == nil {
		out = io.Discard
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(nil)
	}
	limit := rate.Inf
	if opts.NotifyInterval > 0 {
		limit = rate.Every(opts.NotifyInterval)
	}
	p := &Presenter{
		out:        out,
		notifier:   notifier,
		links:      opts.Links,
		label:      strings.TrimSpace(opts.Label),
		logger:     logging.NewComponentLogger(opts.Logger, "presenter"),
		limiter:    rate.NewLimiter(limit, 1),
		foreground: opts.Foreground,
	}
	if opts.Interactive {
		p.render = newBarRenderer(out)
	} else {
		p.render = newLineRenderer(out)
	}
	return p
}

// LastKnown returns the most recent percent and human status text.
func (p *Presenter) LastKnown() (percent float64, ok bool, status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPercent, p.hasPercent, p.lastStatus
}

// Outcome returns the terminal event seen so far, or nil.
func (p *Presenter) Outcome() progress.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminal
}

// SetForeground switches between terminal output and background
// notifications. Going to the background mid-transfer immediately publishes
// the last known progress.
func (p *Presenter) SetForeground(ctx context.Context, foreground bool) {
	p.mu.Lock()
	if p.foreground == foreground {
		p.mu.Unlock()
		return
	}
	p.foreground = foreground
	active := p.terminal == nil && p.lastStatus != ""
	payload := p.progressPayloadLocked()
	p.mu.Unlock()

	if foreground || !active {
		return
	}
	// Spend the token so the next regular update respects the interval.
	p.limiter.Allow()
	p.publish(ctx, notifications.EventDownloadProgress, payload)
}

// Run consumes updates until a terminal event or the end of ctx, and returns
// the terminal event.
func (p *Presenter) Run(ctx context.Context, sub *orchestrator.Subscription) (progress.Event, error) {
	for u := range sub.Updates(ctx) {
		p.Handle(ctx, u)
		if progress.IsTerminal(u.Event) {
			return u.Event, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, orchestrator.ErrSubscriptionClosed
}

// Handle projects one update.
func (p *Presenter) Handle(ctx context.Context, u orchestrator.Update) {
	p.mu.Lock()
	if u.JobID != "" {
		p.jobID = u.JobID
	}
	foreground := p.foreground
	p.mu.Unlock()

	switch ev := u.Event.(type) {
	case progress.Connected:
		p.observe(progress.Progress{Status: "connected"})
		if foreground {
			p.render.message(fmt.Sprintf("%s  %s", StatusTitle("connected"), StatusDetail("connected", "")))
		} else {
			p.publish(ctx, notifications.EventDownloadStarted, notifications.Payload{"url": p.label, "jobID": u.JobID})
		}
	case progress.Progress:
		percent, hasPercent := p.observe(ev)
		if foreground {
			p.render.progress(ev, percent, hasPercent)
			return
		}
		if p.limiter.Allow() {
			p.mu.Lock()
			payload := p.progressPayloadLocked()
			p.mu.Unlock()
			p.publish(ctx, notifications.EventDownloadProgress, payload)
		}
	case progress.Completed:
		p.finish(ev, "completed")
		p.render.finish()
		p.render.message(fmt.Sprintf("Download Complete! ✓ %s", ev.Filename))
		if ev.Title != "" && ev.Title != ev.Filename {
			p.render.message("  Title: " + ev.Title)
		}
		link := p.fileLink(ev)
		if link != "" {
			p.render.message("  Link: " + link)
		}
		p.render.message(fmt.Sprintf("  Save to device: mvdown fetch %q", ev.Filename))
		p.publish(ctx, notifications.EventDownloadCompleted, notifications.Payload{
			"title":       ev.Title,
			"filename":    ev.Filename,
			"downloadURL": link,
		})
	case progress.Failed:
		p.finish(ev, "failed")
		p.render.finish()
		p.render.message(fmt.Sprintf("Download Failed ✗ %s", ev.Message))
		p.publish(ctx, notifications.EventDownloadFailed, notifications.Payload{"error": ev.Message, "url": p.label})
	case progress.Closed:
		p.finish(ev, "closed")
		p.render.finish()
		p.render.message(fmt.Sprintf("%s: the outcome of the download is unknown (%s)", StatusTitle("closed"), ev.Reason))
		if u.JobID != "" {
			p.render.message("  Re-attach with: mvdown watch " + u.JobID)
		}
		p.publish(ctx, notifications.EventStreamClosed, notifications.Payload{"jobID": u.JobID})
	}
}

// observe records the last known progress and returns the percent to draw.
func (p *Presenter) observe(ev progress.Progress) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev.HasPercent {
		p.lastPercent = ev.Percent
		p.hasPercent = true
	}
	if ev.Status != progress.StatusUnknown || p.lastStatus == "" {
		p.lastStatus = StatusTitle(ev.Status)
	}
	return p.lastPercent, p.hasPercent
}

func (p *Presenter) finish(ev progress.Event, status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.terminal = ev
	p.lastStatus = StatusTitle(status)
	if _, ok := ev.(progress.Completed); ok {
		p.lastPercent = 100
		p.hasPercent = true
	}
}

func (p *Presenter) progressPayloadLocked() notifications.Payload {
	payload := notifications.Payload{"title": p.label, "status": p.lastStatus, "jobID": p.jobID}
	if p.hasPercent {
		payload["percent"] = p.lastPercent
	}
	return payload
}

func (p *Presenter) fileLink(ev progress.Completed) string {
	if p.links == nil {
		return ev.DownloadURL
	}
	if ev.DownloadURL != "" {
		return p.links.ResolveURL(ev.DownloadURL)
	}
	if ev.Filename != "" && ev.Filename != "unknown" {
		return p.links.FileURL(ev.Filename)
	}
	return ""
}

func (p *Presenter) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := p.notifier.Publish(ctx, event, payload); err != nil {
		logging.WarnWithContext(p.logger, "notification failed", "notification_failed",
			logging.String("event", string(event)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
	}
}
