package ui

import (
	"fmt"

	"github.com/hxsam/appifi/internal/stats"
)

// CompletionSummary builds a final summary line from a snapshot.
// Format: done ✓  files 1,204  dirs 38  size 2.1 GiB  avg 64.0 MB/s  time 3m 17s  errors 0
func CompletionSummary(snap stats.Snapshot) string {
	avgSpeed := 0.0
	if snap.Elapsed.Seconds() > 0 {
		avgSpeed = float64(snap.BytesCopied) / snap.Elapsed.Seconds()
	}

	icon := "✓"
	if snap.Failures() > 0 {
		icon = "✗"
	}

	base := fmt.Sprintf("done %s  files %s  dirs %s  size %s  avg %s  time %s",
		icon,
		FormatCount(snap.Files()),
		FormatCount(snap.DirsCreated+snap.DirsMoved),
		FormatBytes(snap.BytesCopied),
		FormatRate(avgSpeed),
		FormatDuration(snap.Elapsed),
	)

	if snap.FilesSkipped > 0 {
		base += fmt.Sprintf("  skipped %s", FormatCount(snap.FilesSkipped))
	}
	if snap.Conflicts > 0 {
		base += fmt.Sprintf("  conflicts %s", FormatCount(snap.Conflicts))
	}

	return base + fmt.Sprintf("  errors %d", snap.Failures())
}
