package events

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Reporter writes ordered, human-readable status lines to an output stream.
//
// The state-transition lines are part of the observable contract: scripts
// grep for `Request state: <state>` (legacy dialect) and `Job status:
// <state>` (modern dialect), one line per transition, in order.
type Reporter struct {
	mu  sync.Mutex
	out io.Writer

	lastProgress time.Time
	progressOpen bool
}

// NewReporter creates a reporter writing to out. A nil out means os.Stderr.
func NewReporter(out io.Writer) *Reporter {
	if out == nil {
		out = os.Stderr
	}
	return &Reporter{out: out}
}

// Discard returns a reporter that swallows all output.
func Discard() *Reporter {
	return &Reporter{out: io.Discard}
}

// State emits one state-transition line, e.g. "Request state: running".
// Callers are responsible for deduplicating consecutive identical states.
func (r *Reporter) State(label, state string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeProgress()
	fmt.Fprintf(r.out, "%s: %s\n", label, state)
}

// Printf emits a general status line.
func (r *Reporter) Printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeProgress()
	fmt.Fprintf(r.out, format+"\n", args...)
}

// progressInterval throttles byte-progress updates.
const progressInterval = 500 * time.Millisecond

// Progress emits a throttled in-place byte counter during a download.
func (r *Reporter) Progress(done, total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.Sub(r.lastProgress) < progressInterval {
		return
	}
	r.lastProgress = now
	r.progressOpen = true

	if total > 0 {
		pct := float64(done) / float64(total) * 100
		fmt.Fprintf(r.out, "\rDownloading: %s / %s (%.1f%%)    ", FormatBytes(done), FormatBytes(total), pct)
	} else {
		fmt.Fprintf(r.out, "\rDownloading: %s    ", FormatBytes(done))
	}
}

// DownloadDone emits the final download summary line.
func (r *Reporter) DownloadDone(total int64, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progressOpen = false

	speed := float64(total)
	if s := elapsed.Seconds(); s > 0 {
		speed = float64(total) / s
	}
	fmt.Fprintf(r.out, "\rDownloaded %s in %s (%s/s)        \n",
		FormatBytes(total), formatDuration(elapsed), FormatBytes(int64(speed)))
}

// closeProgress terminates an in-place progress line so the next line starts
// on a fresh row. Callers must hold mu.
func (r *Reporter) closeProgress() {
	if r.progressOpen {
		fmt.Fprintln(r.out)
		r.progressOpen = false
	}
}

// FormatBytes formats bytes as a human-readable string.
func FormatBytes(b int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
		tb = gb * 1024
	)

	switch {
	case b >= tb:
		return fmt.Sprintf("%.2f TB", float64(b)/float64(tb))
	case b >= gb:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}
