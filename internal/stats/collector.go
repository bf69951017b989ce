// Package stats counts what a copy job did.
package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

const ringSize = 60

// Reader is the read side of a Collector, used by presenters.
type Reader interface {
	Snapshot() Snapshot
	RollingSpeed(seconds int) float64
}

// ReadTicker is a Reader that presenters also advance once per second.
type ReadTicker interface {
	Reader
	Tick()
}

// Collector tracks job statistics using lock-free atomic counters.
type Collector struct {
	entriesRead  atomic.Int64
	filesCopied  atomic.Int64
	filesMoved   atomic.Int64
	filesFailed  atomic.Int64
	filesSkipped atomic.Int64
	bytesCopied  atomic.Int64
	dirsCreated  atomic.Int64
	dirsMoved    atomic.Int64
	dirsFailed   atomic.Int64
	conflicts    atomic.Int64
	startTime    time.Time

	// Ring buffer, written only by Tick.
	mu         sync.Mutex
	throughput [ringSize]int64 // bytes delta per second
	ringIdx    int
	ringCount  int
	lastBytes  int64
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	EntriesRead  int64
	FilesCopied  int64
	FilesMoved   int64
	FilesFailed  int64
	FilesSkipped int64
	BytesCopied  int64
	DirsCreated  int64
	DirsMoved    int64
	DirsFailed   int64
	Conflicts    int64
	Elapsed      time.Duration
}

func (c *Collector) AddEntriesRead(n int64)  { c.entriesRead.Add(n) }
func (c *Collector) AddFilesCopied(n int64)  { c.filesCopied.Add(n) }
func (c *Collector) AddFilesMoved(n int64)   { c.filesMoved.Add(n) }
func (c *Collector) AddFilesFailed(n int64)  { c.filesFailed.Add(n) }
func (c *Collector) AddFilesSkipped(n int64) { c.filesSkipped.Add(n) }
func (c *Collector) AddBytesCopied(n int64)  { c.bytesCopied.Add(n) }
func (c *Collector) AddDirsCreated(n int64)  { c.dirsCreated.Add(n) }
func (c *Collector) AddDirsMoved(n int64)    { c.dirsMoved.Add(n) }
func (c *Collector) AddDirsFailed(n int64)   { c.dirsFailed.Add(n) }
func (c *Collector) AddConflicts(n int64)    { c.conflicts.Add(n) }

// Snapshot returns a point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		EntriesRead:  c.entriesRead.Load(),
		FilesCopied:  c.filesCopied.Load(),
		FilesMoved:   c.filesMoved.Load(),
		FilesFailed:  c.filesFailed.Load(),
		FilesSkipped: c.filesSkipped.Load(),
		BytesCopied:  c.bytesCopied.Load(),
		DirsCreated:  c.dirsCreated.Load(),
		DirsMoved:    c.dirsMoved.Load(),
		DirsFailed:   c.dirsFailed.Load(),
		Conflicts:    c.conflicts.Load(),
		Elapsed:      c.Elapsed(),
	}
}

// Tick records the byte delta since the previous Tick. Called once per
// second by the presenter.
func (c *Collector) Tick() {
	current := c.bytesCopied.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.throughput[c.ringIdx] = current - c.lastBytes
	c.lastBytes = current
	c.ringIdx = (c.ringIdx + 1) % ringSize
	if c.ringCount < ringSize {
		c.ringCount++
	}
}

// RollingSpeed returns average bytes/sec over the last n seconds of samples.
func (c *Collector) RollingSpeed(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := min(seconds, c.ringCount)
	if count <= 0 {
		return 0
	}
	var sum int64
	for i := range count {
		sum += c.throughput[(c.ringIdx-1-i+ringSize)%ringSize]
	}
	return float64(sum) / float64(count)
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

// Files returns the number of files admitted at the destination.
func (s Snapshot) Files() int64 { return s.FilesCopied + s.FilesMoved }

// Failures returns the number of entries that failed.
func (s Snapshot) Failures() int64 { return s.FilesFailed + s.DirsFailed }

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"read=%d copied=%d moved=%d failed=%d skipped=%d bytes=%d dirs=%d conflicts=%d",
		s.EntriesRead, s.FilesCopied, s.FilesMoved, s.Failures(), s.FilesSkipped,
		s.BytesCopied, s.DirsCreated+s.DirsMoved, s.Conflicts,
	)
}

// FormatBytes returns a human-readable byte count in powers of 1024.
func FormatBytes(b int64) string {
	if b < 0 {
		return "-" + humanize.IBytes(uint64(-b))
	}
	return humanize.IBytes(uint64(b))
}
