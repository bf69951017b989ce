package xcopy

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxsam/appifi/internal/errs"
	"github.com/hxsam/appifi/internal/event"
	"github.com/hxsam/appifi/internal/filter"
	"github.com/hxsam/appifi/internal/stats"
	"github.com/hxsam/appifi/internal/underlying"
	"github.com/hxsam/appifi/internal/vfs"
	"github.com/hxsam/appifi/internal/xstat"
)

type harness struct {
	t     *testing.T
	v     *vfs.VFS
	drive string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	v, err := vfs.New(ctx, vfs.Options{Root: t.TempDir(), Store: xstat.NewInodeStore()})
	require.NoError(t, err)
	t.Cleanup(func() { v.Close() })
	d, err := v.CreatePrivateDrive(ctx, uuid.New().String(), "home")
	require.NoError(t, err)
	return &harness{t: t, v: v, drive: d.UUID}
}

func (h *harness) ref(dir string) Ref { return Ref{Drive: h.drive, Dir: dir} }

func (h *harness) dst(dir string) *Ref {
	r := h.ref(dir)
	return &r
}

func (h *harness) mkdir(parent, name string) string {
	h.t.Helper()
	x, _, err := h.v.Mkdir(context.Background(), h.drive, parent, name, underlying.None)
	require.NoError(h.t, err)
	return x.UUID
}

func (h *harness) write(dir, name, content string) string {
	h.t.Helper()
	p, err := h.v.FilePath(h.drive, dir, name)
	require.NoError(h.t, err)
	require.NoError(h.t, os.WriteFile(p, []byte(content), 0644))
	return h.lookup(dir, name)
}

// lookup reads dir and returns the uuid of name.
func (h *harness) lookup(dir, name string) string {
	h.t.Helper()
	n, err := h.v.Resolve(context.Background(), h.drive, dir, []string{name})
	require.NoError(h.t, err)
	return n.UUID
}

func (h *harness) exists(dir, name string) bool {
	h.t.Helper()
	p, err := h.v.FilePath(h.drive, dir, name)
	require.NoError(h.t, err)
	_, err = os.Lstat(p)
	return err == nil
}

func (h *harness) content(dir, name string) string {
	h.t.Helper()
	p, err := h.v.FilePath(h.drive, dir, name)
	require.NoError(h.t, err)
	b, err := os.ReadFile(p)
	require.NoError(h.t, err)
	return string(b)
}

func (h *harness) start(v VFS, opts Options) (*Job, chan event.Event) {
	h.t.Helper()
	events := make(chan event.Event, 4096)
	opts.Events = events
	if opts.Src.Drive == "" {
		opts.Src.Drive = h.drive
	}
	j, err := New(context.Background(), v, opts)
	require.NoError(h.t, err)
	h.t.Cleanup(j.Stop)
	return j, events
}

func wait(t *testing.T, j *Job) Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	st, err := j.Wait(ctx)
	require.NoError(t, err)
	return st
}

func collect(ch chan event.Event) []event.Event {
	var out []event.Event
	for {
		select {
		case e := <-ch:
			out = append(out, e)
		default:
			return out
		}
	}
}

func indexOf(log []event.Event, typ event.Type, path string) int {
	for i, e := range log {
		if e.Type == typ && e.Path == path {
			return i
		}
	}
	return -1
}

func count(log []event.Event, typ event.Type) int {
	n := 0
	for _, e := range log {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func find(t *testing.T, view []Summary, path string) Summary {
	t.Helper()
	for _, s := range view {
		if s.Path == path {
			return s
		}
	}
	t.Fatalf("no task for %q", path)
	return Summary{}
}

// conflictTree builds a/{f1, f2, b/{f3}} and a destination holding the same
// names, so that with file policy None every file stops in Conflict while b
// merges.
func conflictTree(h *harness) (src, dst string) {
	src = h.mkdir(h.drive, "a")
	h.write(src, "f1", "one")
	h.write(src, "f2", "two")
	b := h.mkdir(src, "b")
	h.write(b, "f3", "three")

	dst = h.mkdir(h.drive, "dst")
	h.write(dst, "f1", "old")
	h.write(dst, "f2", "old")
	db := h.mkdir(dst, "b")
	h.write(db, "f3", "old")
	return src, dst
}

func TestStateString(t *testing.T) {
	tests := []struct {
		want  string
		state State
	}{
		{"Pending", Pending},
		{"Working", Working},
		{"Reading", Reading},
		{"Read", Read},
		{"Conflict", Conflict},
		{"Failed", Failed},
		{"Finished", Finished},
		{"Unknown", State(42)},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.String())
		})
	}

	b, err := Conflict.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "Conflict", string(b))
	_, err = State(-1).MarshalText()
	assert.Error(t, err)
}

func TestTransitions(t *testing.T) {
	for to := range numStates {
		assert.False(t, transitions[Finished][to], "Finished -> %s", to)
		assert.False(t, transitions[Failed][to], "Failed -> %s", to)
	}
	assert.True(t, transitions[Conflict][Working])
	assert.False(t, transitions[Conflict][Finished])
	assert.True(t, transitions[Pending][Reading])
	assert.False(t, transitions[Read][Reading])
	assert.True(t, Finished.Terminal())
	assert.False(t, Conflict.Terminal())
}

func TestNewRejectsBadOptions(t *testing.T) {
	h := newHarness(t)
	src := h.mkdir(h.drive, "a")
	inner := h.mkdir(src, "inner")
	ctx := context.Background()

	_, err := New(ctx, h.v, Options{Src: h.ref(uuid.New().String())})
	assert.Equal(t, errs.ENOENT, errs.CodeOf(err))

	_, err = New(ctx, h.v, Options{Src: h.ref(src), Dst: h.dst(src)})
	assert.Equal(t, errs.EINVAL, errs.CodeOf(err))

	_, err = New(ctx, h.v, Options{Src: h.ref(src), Dst: h.dst(inner)})
	assert.Equal(t, errs.EINVAL, errs.CodeOf(err))

	_, err = New(ctx, h.v, Options{Src: h.ref(src), Policies: Policies{Dir: [2]underlying.Policy{underlying.Replace}}})
	assert.Equal(t, errs.EINVAL, errs.CodeOf(err))

	_, err = New(ctx, h.v, Options{Src: h.ref(src), Policies: Policies{File: [2]underlying.Policy{"bogus"}}})
	assert.Equal(t, errs.EINVAL, errs.CodeOf(err))

	_, err = New(ctx, h.v, Options{Src: h.ref(src), Entries: []string{"../x"}})
	assert.Equal(t, errs.EINVAL, errs.CodeOf(err))
}

func TestCopyTreeFilesBeforeDirectories(t *testing.T) {
	h := newHarness(t)
	src := h.mkdir(h.drive, "a")
	h.write(src, "f1", "one")
	b := h.mkdir(src, "b")
	h.write(b, "f2", "two")
	dst := h.mkdir(h.drive, "dst")

	j, events := h.start(h.v, Options{Src: h.ref(src), Dst: h.dst(dst)})
	st := wait(t, j)
	require.Equal(t, Finished, st.State)
	require.NoError(t, st.Err)

	assert.Equal(t, "one", h.content(dst, "f1"))
	assert.Equal(t, "two", h.content(h.lookup(dst, "b"), "f2"))

	log := collect(events)
	f1Done := indexOf(log, event.TaskFinished, "f1")
	bCreated := indexOf(log, event.TaskCreated, "b")
	f2Done := indexOf(log, event.TaskFinished, "b/f2")
	bDone := indexOf(log, event.TaskFinished, "b")
	rootDone := indexOf(log, event.TaskFinished, "")
	require.NotEqual(t, -1, f1Done)
	require.NotEqual(t, -1, bCreated)
	require.NotEqual(t, -1, f2Done)
	require.NotEqual(t, -1, bDone)
	require.NotEqual(t, -1, rootDone)
	assert.Less(t, f1Done, bCreated)
	assert.Less(t, f2Done, bDone)
	assert.Less(t, bDone, rootDone)
	assert.Equal(t, 2, count(log, event.FileCopied))
	assert.Equal(t, 1, count(log, event.DirCreated))

	view := j.View()
	require.Len(t, view, 1)
	assert.Equal(t, Finished, view[0].State)
}

func TestDestroyRemovesEverySubtask(t *testing.T) {
	h := newHarness(t)
	src, dst := conflictTree(h)

	j, events := h.start(h.v, Options{
		Src:      h.ref(src),
		Dst:      h.dst(dst),
		Policies: Policies{Dir: [2]underlying.Policy{underlying.Parents}},
	})
	st := wait(t, j)
	assert.Equal(t, Read, st.State)
	assert.Equal(t, 3, st.Conflicts)
	assert.Equal(t, 5, st.Live)

	view := j.View()
	require.Len(t, view, 5)
	assert.Equal(t, Conflict, find(t, view, "f1").State)
	assert.Equal(t, Conflict, find(t, view, "f2").State)
	assert.Equal(t, Read, find(t, view, "b").State)
	assert.Contains(t, find(t, view, "b/f3").Error, "EEXIST")

	collect(events)
	j.Stop()
	log := collect(events)

	destroyed := map[string]bool{}
	for _, e := range log {
		if e.Type == event.TaskDestroyed {
			destroyed[e.TaskID] = true
		}
	}
	assert.Equal(t, 5, count(log, event.TaskDestroyed))
	for _, s := range view {
		assert.True(t, destroyed[s.ID], s.Path)
	}

	<-j.Done()
	assert.Empty(t, j.tasks)
	for s := range numStates {
		assert.Empty(t, j.index[s], s.String())
	}
	assert.True(t, j.Status().Destroyed)
	assert.ErrorIs(t, j.Destroy(view[0].ID), ErrStopped)
}

func TestFailedDestroysDescendants(t *testing.T) {
	h := newHarness(t)
	src, dst := conflictTree(h)

	j, events := h.start(h.v, Options{
		Src:      h.ref(src),
		Dst:      h.dst(dst),
		Policies: Policies{Dir: [2]underlying.Policy{underlying.Parents}},
	})
	wait(t, j)
	collect(events)

	require.NoError(t, j.call(func() {
		for _, tk := range j.tasks {
			if tk.rel == "b" {
				j.fail(tk, errors.New("boom"))
			}
		}
	}))

	view := j.View()
	require.Len(t, view, 4)
	b := find(t, view, "b")
	assert.Equal(t, Failed, b.State)
	assert.Equal(t, "boom", b.Error)
	for _, s := range view {
		assert.NotEqual(t, "b/f3", s.Path)
	}

	log := collect(events)
	assert.NotEqual(t, -1, indexOf(log, event.TaskDestroyed, "b/f3"))
	assert.NotEqual(t, -1, indexOf(log, event.TaskFailed, "b"))
	assert.Equal(t, 1, j.Status().Failures)
}

func TestResolveConflict(t *testing.T) {
	h := newHarness(t)
	src := h.mkdir(h.drive, "a")
	h.write(src, "f1", "new")
	dst := h.mkdir(h.drive, "dst")
	h.write(dst, "f1", "old")

	j, _ := h.start(h.v, Options{Src: h.ref(src), Dst: h.dst(dst)})
	st := wait(t, j)
	require.Equal(t, 1, st.Conflicts)

	view := j.View()
	f1 := find(t, view, "f1")
	require.Equal(t, Conflict, f1.State)

	assert.Equal(t, errs.ENOENT, errs.CodeOf(j.Resolve(uuid.New().String(), underlying.Rename, false)))
	assert.Equal(t, errs.EINVAL, errs.CodeOf(j.Resolve(view[0].ID, underlying.Rename, false)))
	assert.Equal(t, errs.EINVAL, errs.CodeOf(j.Resolve(f1.ID, underlying.None, false)))

	require.NoError(t, j.Resolve(f1.ID, underlying.Rename, false))
	st = wait(t, j)
	require.Equal(t, Finished, st.State)

	assert.Equal(t, "old", h.content(dst, "f1"))
	assert.Equal(t, "new", h.content(dst, "f1 (2)"))
}

func TestResolveApplyToAll(t *testing.T) {
	h := newHarness(t)
	src := h.mkdir(h.drive, "a")
	h.write(src, "x.txt", "new-x")
	h.write(src, "y.txt", "new-y")
	dst := h.mkdir(h.drive, "dst")
	h.write(dst, "x.txt", "old")
	h.write(dst, "y.txt", "old")

	j, _ := h.start(h.v, Options{Src: h.ref(src), Dst: h.dst(dst)})
	st := wait(t, j)
	require.Equal(t, 2, st.Conflicts)

	x := find(t, j.View(), "x.txt")
	require.NoError(t, j.Resolve(x.ID, underlying.Replace, true))
	st = wait(t, j)
	require.Equal(t, Finished, st.State)

	assert.Equal(t, "new-x", h.content(dst, "x.txt"))
	assert.Equal(t, "new-y", h.content(dst, "y.txt"))
}

func TestSkipPolicyAndFilter(t *testing.T) {
	h := newHarness(t)
	src := h.mkdir(h.drive, "a")
	h.write(src, "keep.txt", "keep")
	h.write(src, "old.txt", "src")
	h.write(src, "skip.log", "log")
	dst := h.mkdir(h.drive, "dst")
	h.write(dst, "old.txt", "dst")

	chain := filter.NewChain()
	require.NoError(t, chain.AddExclude("*.log"))
	collector := stats.NewCollector()

	j, events := h.start(h.v, Options{
		Src:      h.ref(src),
		Dst:      h.dst(dst),
		Policies: Policies{File: [2]underlying.Policy{underlying.Skip, underlying.Skip}},
		Filter:   chain,
		Stats:    collector,
	})
	st := wait(t, j)
	require.Equal(t, Finished, st.State)

	assert.Equal(t, "keep", h.content(dst, "keep.txt"))
	assert.Equal(t, "dst", h.content(dst, "old.txt"))
	assert.False(t, h.exists(dst, "skip.log"))

	snap := collector.Snapshot()
	assert.Equal(t, int64(1), snap.FilesCopied)
	assert.Equal(t, int64(2), snap.FilesSkipped)
	assert.Equal(t, int64(3), snap.EntriesRead)
	assert.Equal(t, 2, count(collect(events), event.EntrySkipped))
}

func TestEntries(t *testing.T) {
	h := newHarness(t)
	src := h.mkdir(h.drive, "a")
	h.write(src, "a.txt", "a")
	h.write(src, "b.txt", "b")
	dst := h.mkdir(h.drive, "dst")

	j, _ := h.start(h.v, Options{Src: h.ref(src), Dst: h.dst(dst), Entries: []string{"b.txt"}})
	require.Equal(t, Finished, wait(t, j).State)
	assert.True(t, h.exists(dst, "b.txt"))
	assert.False(t, h.exists(dst, "a.txt"))

	j2, _ := h.start(h.v, Options{Src: h.ref(src), Dst: h.dst(dst), Entries: []string{"missing"}})
	st := wait(t, j2)
	require.Equal(t, Failed, st.State)
	assert.Equal(t, errs.ENOENT, errs.CodeOf(st.Err))
}

func TestPendingDestination(t *testing.T) {
	h := newHarness(t)
	src := h.mkdir(h.drive, "a")
	h.write(src, "f", "x")
	inner := h.mkdir(src, "inner")
	dst := h.mkdir(h.drive, "dst")

	j, _ := h.start(h.v, Options{Src: h.ref(src)})
	st := wait(t, j)
	require.Equal(t, Pending, st.State)

	assert.Equal(t, errs.EINVAL, errs.CodeOf(j.SetDestination(h.ref(inner))))
	assert.Equal(t, errs.ENOENT, errs.CodeOf(j.SetDestination(h.ref(uuid.New().String()))))

	require.NoError(t, j.SetDestination(h.ref(dst)))
	require.Equal(t, Finished, wait(t, j).State)
	assert.Equal(t, "x", h.content(dst, "f"))
	assert.True(t, h.exists(dst, "inner"))

	assert.Equal(t, errs.EINVAL, errs.CodeOf(j.SetDestination(h.ref(dst))))
}

func TestMoveMergesIntoExistingDirectory(t *testing.T) {
	h := newHarness(t)
	src := h.mkdir(h.drive, "a")
	f1 := h.write(src, "f1", "one")
	b := h.mkdir(src, "b")
	f2 := h.write(b, "f2", "two")
	dst := h.mkdir(h.drive, "dst")
	db := h.mkdir(dst, "b")

	j, events := h.start(h.v, Options{
		Mode:     Move,
		Src:      h.ref(src),
		Dst:      h.dst(dst),
		Policies: Policies{Dir: [2]underlying.Policy{underlying.Parents}},
	})
	require.Equal(t, Finished, wait(t, j).State)

	assert.Equal(t, f1, h.lookup(dst, "f1"))
	assert.Equal(t, f2, h.lookup(db, "f2"))
	assert.False(t, h.exists(src, "f1"))
	assert.False(t, h.exists(src, "b"))

	log := collect(events)
	assert.Equal(t, 2, count(log, event.FileMoved))
	assert.NotEqual(t, -1, indexOf(log, event.DirRemoved, "b"))
}

func TestMoveTakesWholeDirectory(t *testing.T) {
	h := newHarness(t)
	src := h.mkdir(h.drive, "a")
	c := h.mkdir(src, "c")
	g := h.write(c, "g", "x")
	dst := h.mkdir(h.drive, "dst")

	j, events := h.start(h.v, Options{Mode: Move, Src: h.ref(src), Dst: h.dst(dst)})
	require.Equal(t, Finished, wait(t, j).State)

	assert.Equal(t, c, h.lookup(dst, "c"))
	assert.Equal(t, g, h.lookup(c, "g"))
	assert.False(t, h.exists(src, "c"))

	log := collect(events)
	assert.Equal(t, 1, count(log, event.DirMoved))
	assert.Equal(t, 0, count(log, event.FileMoved))
}

// gatedVFS holds every CopyFile until release is closed.
type gatedVFS struct {
	*vfs.VFS
	entered   chan struct{}
	release   chan struct{}
	cancelled atomic.Bool
}

func (g *gatedVFS) CopyFile(ctx context.Context, srcDrive, srcDir, fileUUID, name, dstDrive, dstDir string, policy underlying.Policy) (xstat.XStat, bool, error) {
	g.entered <- struct{}{}
	select {
	case <-ctx.Done():
		g.cancelled.Store(true)
		<-g.release
	case <-g.release:
	}
	return g.VFS.CopyFile(context.Background(), srcDrive, srcDir, fileUUID, name, dstDrive, dstDir, policy)
}

func TestStaleCompletionIsDropped(t *testing.T) {
	h := newHarness(t)
	src := h.mkdir(h.drive, "a")
	h.write(src, "f1", "one")
	dst := h.mkdir(h.drive, "dst")

	g := &gatedVFS{VFS: h.v, entered: make(chan struct{}, 1), release: make(chan struct{})}
	j, events := h.start(g, Options{Src: h.ref(src), Dst: h.dst(dst)})
	<-g.entered

	f1 := find(t, j.View(), "f1")
	require.Equal(t, Working, f1.State)
	require.NoError(t, j.Destroy(f1.ID))
	assert.Equal(t, errs.ENOENT, errs.CodeOf(j.Destroy(f1.ID)))

	require.Equal(t, Finished, wait(t, j).State)
	require.Eventually(t, g.cancelled.Load, 5*time.Second, 10*time.Millisecond)

	close(g.release)
	require.Eventually(t, func() bool { return j.Status().InFlight == 0 }, 5*time.Second, 10*time.Millisecond)

	log := collect(events)
	assert.Equal(t, 0, count(log, event.FileCopied))
	assert.Equal(t, 1, count(log, event.TaskDestroyed))
	assert.Equal(t, Finished, j.Status().State)
}

func TestContextCancelStopsJob(t *testing.T) {
	h := newHarness(t)
	src, dst := conflictTree(h)

	ctx, cancel := context.WithCancel(context.Background())
	j, err := New(ctx, h.v, Options{Src: h.ref(src), Dst: h.dst(dst)})
	require.NoError(t, err)
	wait(t, j)

	cancel()
	select {
	case <-j.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("job did not stop")
	}
	assert.True(t, j.Status().Destroyed)
	assert.Nil(t, j.View())
	assert.ErrorIs(t, j.Resolve("x", underlying.Rename, false), ErrStopped)
}
