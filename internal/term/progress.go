// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package term

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/pdiddy/datfetch/pkg/types"
)

const (
	barWidth       = 30
	redrawInterval = 150 * time.Millisecond
)

// Counter formats a 1-based index over total, padding the index to the
// width of total so consecutive lines stay aligned.
func Counter(index, total int) string {
	return fmt.Sprintf("%*d/%d", len(strconv.Itoa(total)), index, total)
}

// ProgressLine draws a single self-overwriting progress line per transfer:
// a heading naming the item, then percent, bar, bytes, ETA and speed.
// Redraws are throttled; Finish always draws the final state.
type ProgressLine struct {
	out io.Writer
	bar progress.Model
	now func() time.Time

	offset   int64
	total    int64
	done     int64
	started  time.Time
	lastDraw time.Time
}

// NewProgressLine returns a ProgressLine writing to out.
func NewProgressLine(out io.Writer) *ProgressLine {
	return &ProgressLine{
		out: out,
		bar: progress.New(
			progress.WithSolidFill(string(Green)),
			progress.WithWidth(barWidth),
			progress.WithoutPercentage(),
		),
		now: time.Now,
	}
}

// Start prints the heading and the initial line. A non-zero offset marks
// the transfer as a resume.
func (p *ProgressLine) Start(task types.TransferTask, offset, total int64) {
	verb := "Downloading"
	if offset > 0 {
		verb = "Resuming"
	}
	fmt.Fprintln(p.out, Title.Render(fmt.Sprintf("%-11s %s: %s", verb, Counter(task.Index, task.Total), task.DisplayName)))

	p.offset = offset
	p.total = total
	p.done = offset
	p.started = p.now()
	p.lastDraw = time.Time{}
	p.draw()
}

// Advance records n more bytes.
func (p *ProgressLine) Advance(n int64) {
	p.done += n
	if p.now().Sub(p.lastDraw) >= redrawInterval {
		p.draw()
	}
}

// Finish draws the final state and ends the line.
func (p *ProgressLine) Finish(types.TransferTask) {
	p.draw()
	fmt.Fprintln(p.out)
}

func (p *ProgressLine) draw() {
	p.lastDraw = p.now()
	fmt.Fprint(p.out, "\r"+p.View())
}

// View renders the current line without a carriage return.
func (p *ProgressLine) View() string {
	ratio := 0.0
	if p.total > 0 {
		ratio = float64(p.done) / float64(p.total)
	}
	ratio = min(max(ratio, 0), 1)

	elapsed := p.now().Sub(p.started)
	speed := -1.0
	if secs := elapsed.Seconds(); secs > 0 {
		speed = float64(p.done-p.offset) / secs
	}

	pct := lipgloss.NewStyle().Foreground(PercentColor(ratio)).Render(fmt.Sprintf("%3.0f%%", ratio*100))
	return fmt.Sprintf("%s %s %s/%s ETA %s %s",
		pct,
		p.bar.ViewAs(ratio),
		FormatBytes(p.done),
		FormatBytes(p.total),
		FormatETA(speed, p.total, p.done),
		FormatSpeed(speed),
	)
}

// FormatBytes renders n in decimal units.
func FormatBytes(n int64) string {
	const unit = 1000
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(n)/float64(div), "kMGTPE"[exp])
}

// FormatSpeed renders a byte rate. Negative rates are unknown.
func FormatSpeed(bytesPerSecond float64) string {
	if bytesPerSecond < 0 {
		return "--- B/s"
	}
	return FormatBytes(int64(bytesPerSecond)) + "/s"
}

// FormatETA estimates the time left at the given rate.
func FormatETA(bytesPerSecond float64, total, done int64) string {
	if done >= total {
		return "0s"
	}
	if bytesPerSecond <= 0 || total <= 0 {
		return "--:--"
	}
	left := time.Duration(float64(total-done) / bytesPerSecond * float64(time.Second))
	return left.Round(time.Second).String()
}
