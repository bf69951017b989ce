package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxsam/appifi/internal/event"
	"github.com/hxsam/appifi/internal/stats"
)

func runHUD(t *testing.T, p *hudPresenter, evs ...event.Event) string {
	t.Helper()
	var out bytes.Buffer
	p.w = &out
	if p.stats == nil {
		p.stats = stats.NewCollector()
	}

	events := make(chan event.Event, len(evs))
	for _, ev := range evs {
		events <- ev
	}
	close(events)

	require.NoError(t, p.Run(events))
	return out.String()
}

func TestHudPresenterFileCopied(t *testing.T) {
	out := runHUD(t, &hudPresenter{}, event.Event{Type: event.FileCopied, Path: "test/file.txt", Size: 1024})

	assert.Contains(t, out, "file.txt")
	assert.Contains(t, out, "✓")
	// Directory is dimmed.
	assert.Contains(t, out, ansiDim+"test/"+ansiReset)
}

func TestHudPresenterFeedSymbols(t *testing.T) {
	out := runHUD(t, &hudPresenter{},
		event.Event{Type: event.FileMoved, Path: "m.txt"},
		event.Event{Type: event.EntrySkipped, Path: "s.txt"},
		event.Event{Type: event.TaskConflict, Path: "c.txt"},
		event.Event{Type: event.TaskFailed, Path: "f.txt", Error: assert.AnError},
	)

	assert.Contains(t, out, "→  m.txt")
	assert.Contains(t, out, "–  s.txt")
	assert.Contains(t, out, "?  c.txt")
	assert.Contains(t, out, "✗  f.txt  "+assert.AnError.Error())
}

func TestHudDirCreatedOnlyWhenVerbose(t *testing.T) {
	ev := event.Event{Type: event.DirCreated, Path: "photos"}

	assert.NotContains(t, runHUD(t, &hudPresenter{}, ev), "photos")
	assert.Contains(t, runHUD(t, &hudPresenter{verbose: true}, ev), "+  photos/")
}

func TestHudAlwaysRedrawsAfterFeedLine(t *testing.T) {
	collector := stats.NewCollector()
	collector.AddFilesCopied(2)

	out := runHUD(t, &hudPresenter{stats: collector},
		event.Event{Type: event.FileCopied, Path: "a.txt", Size: 100},
		event.Event{Type: event.FileCopied, Path: "b.txt", Size: 200},
	)

	assert.Contains(t, out, "a.txt")
	assert.Contains(t, out, "b.txt")
	assert.Contains(t, out, "2 files")
	// HUD is cleared when the channel closes.
	assert.Contains(t, out, "\033[2A\033[J")
}

func TestHudClearHUDSequence(t *testing.T) {
	var out bytes.Buffer
	p := &hudPresenter{w: &out, stats: stats.NewCollector()}

	p.drawHUD()
	assert.True(t, p.hudDrawn)

	out.Reset()
	p.clearHUD()
	assert.Equal(t, "\033[2A\033[J", out.String())
	assert.False(t, p.hudDrawn)

	// Clearing twice writes nothing.
	out.Reset()
	p.clearHUD()
	assert.Empty(t, out.String())
}

func TestHudPresenterSummary(t *testing.T) {
	collector := stats.NewCollector()
	collector.AddFilesCopied(500)
	collector.AddBytesCopied(1024 * 1024 * 100)

	p := &hudPresenter{stats: collector}
	s := p.Summary()
	assert.Contains(t, s, "done ✓")
	assert.Contains(t, s, "files 500")
}

func TestTruncPath(t *testing.T) {
	assert.Equal(t, "short.txt", truncPath("short.txt", 20))
	assert.Equal(t, "...ry/long/path.txt", truncPath("a/very/long/directory/long/path.txt", 19))
	assert.Equal(t, "ab", truncPath("abcdef", 2))
}

func TestStyledPath(t *testing.T) {
	p := &hudPresenter{}

	assert.Equal(t, "file.txt", p.styledPath("file.txt"))
	assert.Equal(t, ansiDim+"some/dir/"+ansiReset+"file.txt", p.styledPath("some/dir/file.txt"))

	p.width = 20
	assert.Equal(t, ansiDim+".../"+ansiReset+"bb.txt", p.styledPath("aaaaaaaa/bb.txt"))
}

func TestCompletionSummary(t *testing.T) {
	snap := stats.Snapshot{
		FilesCopied:  3,
		FilesMoved:   1,
		FilesSkipped: 2,
		FilesFailed:  1,
		DirsCreated:  2,
		Conflicts:    1,
	}
	s := CompletionSummary(snap)
	assert.Contains(t, s, "done ✗")
	assert.Contains(t, s, "files 4")
	assert.Contains(t, s, "dirs 2")
	assert.Contains(t, s, "skipped 2")
	assert.Contains(t, s, "conflicts 1")
	assert.Contains(t, s, "errors 1")
}

func TestNewPresenterSelection(t *testing.T) {
	c := stats.NewCollector()

	assert.IsType(t, &quietPresenter{}, NewPresenter(Config{Stats: c, Quiet: true}))
	assert.IsType(t, &plainPresenter{}, NewPresenter(Config{Stats: c}))
	assert.IsType(t, &plainPresenter{}, NewPresenter(Config{Stats: c, IsTTY: true, NoProgress: true}))
	assert.IsType(t, &hudPresenter{}, NewPresenter(Config{Stats: c, IsTTY: true}))
}
