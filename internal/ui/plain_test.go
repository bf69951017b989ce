package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxsam/appifi/internal/event"
	"github.com/hxsam/appifi/internal/stats"
)

func runPlain(t *testing.T, verbose bool, evs ...event.Event) string {
	t.Helper()
	var out, errOut bytes.Buffer
	p := &plainPresenter{w: &out, errW: &errOut, stats: stats.NewCollector(), verbose: verbose}

	events := make(chan event.Event, len(evs))
	for _, ev := range evs {
		events <- ev
	}
	close(events)

	require.NoError(t, p.Run(events))
	return out.String()
}

func TestPlainPresenterFileCopied(t *testing.T) {
	out := runPlain(t, false,
		event.Event{Type: event.FileCopied, Path: "dir/file.txt", Size: 1024},
		event.Event{Type: event.FileCopied, Path: "dir/big.bin", Size: 1024 * 1024 * 100, Method: "rename"},
	)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "dir/file.txt")
	assert.Contains(t, lines[0], "1.0 KiB")
	assert.Contains(t, lines[1], "dir/big.bin")
	assert.Contains(t, lines[1], "(rename)")
}

func TestPlainPresenterMoves(t *testing.T) {
	out := runPlain(t, false,
		event.Event{Type: event.FileMoved, Path: "a.txt", Size: 3},
		event.Event{Type: event.DirMoved, Path: "photos"},
	)
	assert.Contains(t, out, "a.txt  3 B  moved")
	assert.Contains(t, out, "photos/  moved")
}

func TestPlainPresenterFailedAndConflict(t *testing.T) {
	out := runPlain(t, false,
		event.Event{Type: event.TaskFailed, Path: "fail.txt", Error: assert.AnError},
		event.Event{Type: event.TaskConflict, Path: "dup.txt", Error: assert.AnError},
		event.Event{Type: event.TaskFailed, Path: "noerr.txt"},
	)

	assert.Contains(t, out, "fail.txt  "+assert.AnError.Error())
	assert.Contains(t, out, "dup.txt  conflict: "+assert.AnError.Error())
	assert.Contains(t, out, "noerr.txt  error")
}

func TestPlainPresenterEntrySkipped(t *testing.T) {
	out := runPlain(t, false, event.Event{Type: event.EntrySkipped, Path: "skip.txt"})
	assert.Contains(t, out, "skip.txt  skipped")
}

func TestPlainPresenterVerbose(t *testing.T) {
	ev := event.Event{Type: event.TaskCreated, Path: "a"}

	assert.Empty(t, runPlain(t, false, ev))
	assert.Contains(t, runPlain(t, true, ev), "TaskCreated  a")
}

func TestPlainPresenterSummary(t *testing.T) {
	collector := stats.NewCollector()
	collector.AddFilesCopied(100)
	collector.AddBytesCopied(1024 * 1024)

	p := &plainPresenter{stats: collector}
	s := p.Summary()
	assert.Contains(t, s, "files 100")
	assert.Contains(t, s, "errors 0")
}

func TestPlainPresenterProgress(t *testing.T) {
	var errOut bytes.Buffer
	collector := stats.NewCollector()
	collector.AddFilesCopied(2)
	collector.AddDirsCreated(1)
	collector.AddBytesCopied(2048)

	p := &plainPresenter{errW: &errOut, stats: collector}
	p.printProgress()
	assert.Contains(t, errOut.String(), "progress: 2.0 KiB in 2 files 1 dirs")
}
