package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/hxsam/appifi/internal/event"
	"github.com/hxsam/appifi/internal/stats"
)

const progressEvery = 5 // ticks

// plainPresenter outputs one line per settled entry to stdout,
// and periodic progress to stderr.
type plainPresenter struct {
	w       io.Writer
	errW    io.Writer
	stats   stats.ReadTicker
	verbose bool
	ticks   int
}

func (p *plainPresenter) Run(events <-chan event.Event) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.handleEvent(ev)
		case <-ticker.C:
			p.stats.Tick()
			p.ticks++
			if p.ticks%progressEvery == 0 {
				p.printProgress()
			}
		}
	}
}

func (p *plainPresenter) handleEvent(ev event.Event) {
	switch ev.Type {
	case event.FileCopied:
		speed := p.stats.RollingSpeed(5)
		fmt.Fprintf(p.w, "%s  %s  %s%s\n", ev.Path, FormatBytes(ev.Size), FormatRate(speed), method(ev))
	case event.FileMoved:
		fmt.Fprintf(p.w, "%s  %s  moved%s\n", ev.Path, FormatBytes(ev.Size), method(ev))
	case event.DirCreated:
		fmt.Fprintf(p.w, "%s/  created%s\n", ev.Path, method(ev))
	case event.DirMoved:
		fmt.Fprintf(p.w, "%s/  moved\n", ev.Path)
	case event.EntrySkipped:
		fmt.Fprintf(p.w, "%s  skipped\n", ev.Path)
	case event.TaskConflict:
		fmt.Fprintf(p.w, "%s  conflict: %s\n", ev.Path, errText(ev))
	case event.TaskFailed:
		fmt.Fprintf(p.w, "%s  %s\n", ev.Path, errText(ev))
	default:
		if p.verbose {
			fmt.Fprintf(p.w, "%s  %s\n", ev.Type, ev.Path)
		}
	}
}

func (p *plainPresenter) printProgress() {
	snap := p.stats.Snapshot()
	fmt.Fprintf(p.errW, "progress: %s in %s files %s dirs %s %s\n",
		FormatBytes(snap.BytesCopied),
		FormatCount(snap.Files()),
		FormatCount(snap.DirsCreated+snap.DirsMoved),
		FormatRate(p.stats.RollingSpeed(10)),
		FormatDuration(snap.Elapsed),
	)
}

func (p *plainPresenter) Summary() string {
	return CompletionSummary(p.stats.Snapshot())
}

func method(ev event.Event) string {
	if ev.Method == "" {
		return ""
	}
	return " (" + ev.Method + ")"
}

func errText(ev event.Event) string {
	if ev.Error == nil {
		return "error"
	}
	return ev.Error.Error()
}
