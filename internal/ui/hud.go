package ui

import (
	"fmt"
	"io"
	"path"
	"time"

	"github.com/hxsam/appifi/internal/event"
	"github.com/hxsam/appifi/internal/stats"
)

// ANSI escape sequences.
const (
	ansiDim   = "\033[2m"
	ansiBold  = "\033[1m"
	ansiReset = "\033[0m"
)

const (
	sparklineWidth = 20
	hudLines       = 2
	hudMinInterval = 50 * time.Millisecond // don't redraw faster than this
)

// hudPresenter provides a TTY display with a scrolling feed of settled
// entries and a 2-line HUD that redraws in place.
type hudPresenter struct {
	w       io.Writer
	stats   stats.ReadTicker
	verbose bool
	width   int // terminal columns, 0 for no truncation

	// Internal state.
	hudDrawn    bool
	lastHUDDraw time.Time
	speeds      *history // one sample per tick
}

func (p *hudPresenter) Run(events <-chan event.Event) error {
	if p.speeds == nil {
		p.speeds = newHistory(sparklineWidth)
	}
	secTicker := time.NewTicker(time.Second)
	defer secTicker.Stop()

	// Redraw ticker for when no events are flowing (e.g., large file copy).
	redrawTicker := time.NewTicker(100 * time.Millisecond)
	defer redrawTicker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				p.clearHUD()
				return nil
			}
			p.handleEvent(ev)
			p.maybeDrawHUD()

		case <-redrawTicker.C:
			p.drawHUD()

		case <-secTicker.C:
			p.stats.Tick()
			p.speeds.push(p.stats.RollingSpeed(1))
		}
	}
}

func (p *hudPresenter) handleEvent(ev event.Event) {
	var line string
	switch ev.Type {
	case event.FileCopied:
		line = fmt.Sprintf("✓  %s  %10s", p.styledPath(ev.Path), FormatBytes(ev.Size))
	case event.FileMoved:
		line = fmt.Sprintf("→  %s  %10s", p.styledPath(ev.Path), FormatBytes(ev.Size))
	case event.DirMoved:
		line = fmt.Sprintf("→  %s/", p.styledPath(ev.Path))
	case event.EntrySkipped:
		line = fmt.Sprintf("–  %s  %sskipped%s", p.styledPath(ev.Path), ansiDim, ansiReset)
	case event.TaskConflict:
		line = fmt.Sprintf("?  %s  %sconflict%s", p.styledPath(ev.Path), ansiBold, ansiReset)
	case event.TaskFailed:
		line = fmt.Sprintf("✗  %s  %s", p.styledPath(ev.Path), errText(ev))
	case event.DirCreated:
		if !p.verbose {
			return
		}
		line = fmt.Sprintf("+  %s/", p.styledPath(ev.Path))
	default:
		return
	}
	p.clearHUD()
	fmt.Fprintln(p.w, line)
	p.drawHUD() // always redraw HUD after feed line
}

// maybeDrawHUD redraws the HUD if enough time has passed since the last draw.
func (p *hudPresenter) maybeDrawHUD() {
	if time.Since(p.lastHUDDraw) < hudMinInterval {
		return
	}
	p.drawHUD()
}

func (p *hudPresenter) drawHUD() {
	snap := p.stats.Snapshot()
	if p.speeds == nil {
		p.speeds = newHistory(sparklineWidth)
	}
	p.clearHUD()

	// Line 1: throughput sparkline + speed + byte total.
	fmt.Fprintf(p.w, "       %s   %s   %s\n",
		p.speeds.render(),
		FormatRate(p.stats.RollingSpeed(10)),
		FormatBytes(snap.BytesCopied))

	// Line 2: counters.
	fmt.Fprintf(p.w, "       %s files   %s dirs   %s skipped   %s conflicts   %s errors   %s\n",
		FormatCount(snap.Files()),
		FormatCount(snap.DirsCreated+snap.DirsMoved),
		FormatCount(snap.FilesSkipped),
		FormatCount(snap.Conflicts),
		FormatCount(snap.Failures()),
		FormatDuration(snap.Elapsed))

	p.hudDrawn = true
	p.lastHUDDraw = time.Now()
}

func (p *hudPresenter) clearHUD() {
	if !p.hudDrawn {
		return
	}
	// Move cursor up N lines and clear to end of screen.
	fmt.Fprintf(p.w, "\033[%dA\033[J", hudLines)
	p.hudDrawn = false
}

func (p *hudPresenter) Summary() string {
	return CompletionSummary(p.stats.Snapshot())
}

// styledPath returns the path with the directory portion dimmed and the
// name in normal weight. Long paths are shortened to the terminal width.
func (p *hudPresenter) styledPath(rel string) string {
	if p.width > 0 {
		rel = truncPath(rel, p.width/2)
	}
	dir, base := path.Split(rel)
	if dir == "" {
		return base
	}
	return fmt.Sprintf("%s%s%s%s", ansiDim, dir, ansiReset, base)
}

// truncPath shortens a path to fit within maxLen characters.
func truncPath(p string, maxLen int) string {
	if len(p) <= maxLen {
		return p
	}
	if maxLen <= 3 {
		return p[:maxLen]
	}
	return "..." + p[len(p)-maxLen+3:]
}
