package presenter

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"mvdown/internal/progress"
)

// barScale gives the bar tenth-of-a-percent resolution.
const barScale = 10

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// renderer draws foreground output.
type renderer interface {
	progress(p progress.Progress, percent float64, hasPercent bool)
	message(line string)
	finish()
}

// lineRenderer prints one line per status change or sampled percent bucket.
type lineRenderer struct {
	out        io.Writer
	lastStatus string
	lastBucket int
}

func newLineRenderer(out io.Writer) *lineRenderer {
	return &lineRenderer{out: out, lastBucket: -1}
}

func (r *lineRenderer) progress(p progress.Progress, percent float64, hasPercent bool) {
	bucket := -1
	if hasPercent {
		bucket = int(percent / 10)
	}
	switch {
	case p.Status != r.lastStatus:
		r.lastStatus = p.Status
		r.lastBucket = bucket
	case bucket > r.lastBucket:
		r.lastBucket = bucket
	default:
		return
	}
	fmt.Fprintln(r.out, progressLine(p, percent, hasPercent))
}

func (r *lineRenderer) message(line string) {
	fmt.Fprintln(r.out, line)
}

func (r *lineRenderer) finish() {}

// barRenderer drives a terminal progress bar.
type barRenderer struct {
	out io.Writer
	bar *progressbar.ProgressBar
}

func newBarRenderer(out io.Writer) *barRenderer {
	bar := progressbar.NewOptions(100*barScale,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetDescription(StatusTitle("starting")),
		progressbar.OptionClearOnFinish(),
	)
	return &barRenderer{out: out, bar: bar}
}

func (r *barRenderer) progress(p progress.Progress, percent float64, hasPercent bool) {
	r.bar.Describe(barDescription(p))
	if hasPercent {
		_ = r.bar.Set(int(percent * barScale))
	}
}

func (r *barRenderer) message(line string) {
	_ = r.bar.Clear()
	fmt.Fprintln(r.out, line)
}

func (r *barRenderer) finish() {
	_ = r.bar.Finish()
}

func barDescription(p progress.Progress) string {
	parts := []string{fmt.Sprintf("%-22s", StatusTitle(p.Status))}
	if p.Status == "downloading" {
		parts = append(parts, FormatSpeed(p.Speed))
		if p.HasETA {
			parts = append(parts, "ETA "+FormatETA(p.ETA))
		}
	}
	return strings.Join(parts, " ")
}

func progressLine(p progress.Progress, percent float64, hasPercent bool) string {
	var b strings.Builder
	b.WriteString(StatusTitle(p.Status))
	if hasPercent {
		fmt.Fprintf(&b, "  %5.1f%%", percent)
	}
	if p.Status == "downloading" {
		fmt.Fprintf(&b, "  %s", speedText(p))
		eta := placeholder
		if p.HasETA {
			eta = FormatETA(p.ETA)
		}
		fmt.Fprintf(&b, "  ETA %s", eta)
		fmt.Fprintf(&b, "  %s", FormatTransferred(p.DownloadedBytes, p.TotalBytes))
	} else if detail := StatusDetail(p.Status, p.Message); detail != "" {
		fmt.Fprintf(&b, "  %s", detail)
	}
	return b.String()
}

func speedText(p progress.Progress) string {
	if p.Speed > 0 {
		return FormatSpeed(p.Speed)
	}
	if p.SpeedText != "" {
		return p.SpeedText
	}
	return placeholder
}
