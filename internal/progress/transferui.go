package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/term"

	"github.com/rainforce/smbclient/internal/events"
)

// TransferUI renders one mpb bar per transfer, driven by transfer events.
type TransferUI struct {
	progress   *mpb.Progress
	out        io.Writer
	bars       sync.Map // taskID -> *TransferBar
	isTerminal bool
	started    int32 // Atomic counter for bar index (1, 2, 3, ...)
	completed  int32
	failed     int32
}

// TransferBar represents a single transfer's progress bar
type TransferBar struct {
	bar        *mpb.Bar
	ui         *TransferUI
	index      int
	direction  string
	name       string
	size       int64
	startTime  time.Time
	lastUpdate time.Time
}

// NewTransferUI creates a UI writing to w. Bars are drawn only when w is a
// terminal; otherwise one line per start and finish is printed.
func NewTransferUI(w io.Writer) *TransferUI {
	if w == nil {
		w = os.Stderr
	}
	isTerminal := isTerminalWriter(w)

	var p *mpb.Progress
	if isTerminal {
		// Enable ANSI escape sequences on Windows for proper progress bar rendering
		if f, ok := w.(*os.File); ok {
			enableANSIOnWindows(f)
		}

		p = mpb.New(
			mpb.WithOutput(w),
			mpb.WithRefreshRate(300*time.Millisecond), // ~3 times per second
			mpb.WithWidth(100),
		)
	} else {
		// Non-TTY: disable progress bars, just use text output
		p = mpb.New(mpb.WithOutput(io.Discard))
	}

	return &TransferUI{
		progress:   p,
		out:        w,
		isTerminal: isTerminal,
	}
}

func isTerminalWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Run consumes transfer events from ch until ctx is done or ch is closed.
func (u *TransferUI) Run(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if te, ok := e.(*events.TransferEvent); ok {
				u.HandleEvent(te)
			}
		}
	}
}

// HandleEvent applies one transfer event.
func (u *TransferUI) HandleEvent(e *events.TransferEvent) {
	switch e.Type() {
	case events.EventTransferStarted:
		u.addBar(e)
	case events.EventTransferProgress:
		if fb := u.bar(e.TaskID); fb != nil {
			fb.update(e.BytesDone, e.Size)
		}
	case events.EventTransferCompleted:
		if fb := u.bar(e.TaskID); fb != nil {
			fb.complete(e.BytesDone, nil)
			u.bars.Delete(e.TaskID)
		}
	case events.EventTransferFailed:
		fb := u.bar(e.TaskID)
		if fb == nil {
			// Failed before a slot was acquired
			fb = u.addBar(e)
		}
		fb.complete(e.BytesDone, e.Error)
		u.bars.Delete(e.TaskID)
	case events.EventTransferRejected:
		u.printf("✗ %s %s: %s\n", e.Direction, e.Name, errorText(e.Error))
		atomic.AddInt32(&u.failed, 1)
	}
}

func (u *TransferUI) bar(taskID string) *TransferBar {
	if v, ok := u.bars.Load(taskID); ok {
		return v.(*TransferBar)
	}
	return nil
}

func (u *TransferUI) addBar(e *events.TransferEvent) *TransferBar {
	index := int(atomic.AddInt32(&u.started, 1))
	fb := &TransferBar{
		ui:         u,
		index:      index,
		direction:  e.Direction,
		name:       e.Name,
		size:       e.Size,
		startTime:  time.Now(),
		lastUpdate: time.Now(),
	}

	if u.isTerminal {
		fb.bar = u.progress.New(e.Size,
			// Custom bar style with Unicode block characters
			mpb.BarStyle().
				Lbound("[").
				Filler("█").  // U+2588 - Full block for completed portion
				Tip("█").     // Full block at leading edge
				Padding("░"). // U+2591 - Light shade for remaining portion
				Rbound("]"),
			mpb.PrependDecorators(
				decor.Any(func(s decor.Statistics) string {
					return fmt.Sprintf("[%d] %s %s", fb.index, arrow(fb.direction), truncatePath(fb.name, 2))
				}, decor.WCSyncSpace),
			),
			mpb.AppendDecorators(
				decor.CountersKibiByte("% .1f / % .1f", decor.WCSyncSpace),
				decor.Name("  "),
				decor.Percentage(decor.WCSyncSpace),
				decor.Name("  "),
				decor.EwmaSpeed(decor.SizeB1024(0), "% .1f", 30, decor.WCSyncSpace),
				decor.Name("  "),
				decor.Name("ETA ", decor.WCSyncWidth),
				decor.EwmaETA(decor.ET_STYLE_GO, 30),
			),
			mpb.BarRemoveOnComplete(),
		)
	} else {
		// Non-TTY: print simple start message
		u.printf("%s [%d]: %s (%s)\n", startVerb(e.Direction), index, e.Name, formatSize(e.Size))
	}

	u.bars.Store(e.TaskID, fb)
	return fb
}

func (f *TransferBar) update(current, total int64) {
	if f.bar == nil {
		return
	}
	if total > 0 && total != f.size {
		f.size = total
		f.bar.SetTotal(total, false)
	}
	now := time.Now()
	// EWMA needs the elapsed time between samples for speed/ETA
	f.bar.EwmaSetCurrent(current, now.Sub(f.lastUpdate))
	f.lastUpdate = now
}

func (f *TransferBar) complete(bytes int64, err error) {
	elapsed := time.Since(f.startTime)

	if err == nil {
		if f.bar != nil {
			// ENSURE exact 100% completion (no rounding errors)
			f.bar.SetCurrent(bytes)
			f.bar.SetTotal(bytes, true) // Mark done, trigger BarRemoveOnComplete
		}
		speed := 0.0
		if elapsed > 0 {
			speed = float64(bytes) / elapsed.Seconds() / (1024 * 1024)
		}
		f.ui.printf("✓ %s %s (%.1f MiB, %s, %.1f MiB/s)\n",
			arrow(f.direction), f.name, float64(bytes)/(1024*1024), elapsed.Round(time.Millisecond), speed)
		atomic.AddInt32(&f.ui.completed, 1)
		return
	}

	// Error: keep bar visible if terminal, print error
	if f.bar != nil {
		f.bar.Abort(false) // false = don't remove (show failure)
	}
	f.ui.printf("✗ %s %s: %s\n", arrow(f.direction), f.name, errorText(err))
	atomic.AddInt32(&f.ui.failed, 1)
}

// printf writes through mpb's writer on a terminal so output lands above
// the bars without triggering redraw glitches.
func (u *TransferUI) printf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if u.isTerminal {
		_, _ = u.progress.Write([]byte(msg))
		return
	}
	_, _ = io.WriteString(u.out, msg)
}

// Wait blocks until all progress bars complete
func (u *TransferUI) Wait() {
	u.progress.Wait()
}

// Writer returns an io.Writer that safely prints above the progress bars
func (u *TransferUI) Writer() io.Writer {
	if u.isTerminal {
		return u.progress
	}
	return u.out
}

// Completed returns the number of successful transfers seen.
func (u *TransferUI) Completed() int {
	return int(atomic.LoadInt32(&u.completed))
}

// Failed returns the number of failed or rejected transfers seen.
func (u *TransferUI) Failed() int {
	return int(atomic.LoadInt32(&u.failed))
}

// IsTerminal returns whether output is to a terminal
func (u *TransferUI) IsTerminal() bool {
	return u.isTerminal
}

// errorText prefers the user-facing message of categorized errors.
func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	if m, ok := err.(interface{ Message() string }); ok {
		return m.Message()
	}
	return err.Error()
}

func arrow(direction string) string {
	if direction == "upload" {
		return "→"
	}
	return "←"
}

func startVerb(direction string) string {
	if direction == "upload" {
		return "Uploading"
	}
	return "Downloading"
}

func formatSize(n int64) string {
	if n <= 0 {
		return "size unknown"
	}
	return fmt.Sprintf("%.1f MiB", float64(n)/(1024*1024))
}

// truncatePath keeps the last maxComponents components of path.
func truncatePath(path string, maxComponents int) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) <= maxComponents {
		return filepath.Base(path)
	}
	relevant := parts[len(parts)-maxComponents:]
	return "…/" + strings.Join(relevant, "/")
}
