package xcopy

import (
	"context"

	"github.com/hxsam/appifi/internal/errs"
	"github.com/hxsam/appifi/internal/event"
	"github.com/hxsam/appifi/internal/underlying"
	"github.com/hxsam/appifi/internal/xstat"
)

// work creates the destination entry of a sub-task with t.attempt. The
// first attempt always runs with None so that every collision is
// classified before a policy is chosen.
func (j *Job) work(t *task) {
	if t.attempt == underlying.Skip {
		j.skip(t)
		return
	}
	if t.kind == xstat.Directory {
		j.workDir(t)
		return
	}
	j.workFile(t)
}

func (j *Job) workDir(t *task) {
	policy := t.attempt
	srcDrive, dstDrive, dstDir := j.srcDrive, j.dstDrive, t.parent.dst

	// A move into a free name takes the whole subtree in one rename.
	if j.mode == Move && policy == underlying.None {
		j.spawn(t, func(ctx context.Context) func() {
			x, err := j.vfs.MvDir(ctx, srcDrive, t.src.UUID, t.src.Name, dstDrive, dstDir)
			return func() {
				if err != nil {
					j.collide(t, err)
					return
				}
				t.dst = x.UUID
				j.stats.AddDirsMoved(1)
				j.emit(t, event.DirMoved, 0, nil)
				j.setState(t, Finished)
			}
		})
		return
	}

	j.spawn(t, func(ctx context.Context) func() {
		x, resolved, err := j.vfs.Mkdir(ctx, dstDrive, dstDir, t.src.Name, policy)
		return func() {
			if err != nil {
				j.collide(t, err)
				return
			}
			t.dst = x.UUID
			if !resolved || policy == underlying.Rename {
				j.stats.AddDirsCreated(1)
				j.emit(t, event.DirCreated, 0, nil)
			}
			j.setState(t, Reading)
		}
	})
}

func (j *Job) workFile(t *task) {
	policy := t.attempt
	srcDrive, srcDir := j.srcDrive, t.parent.src.UUID
	dstDrive, dstDir := j.dstDrive, t.parent.dst
	move := j.mode == Move

	j.spawn(t, func(ctx context.Context) func() {
		var (
			x        xstat.XStat
			resolved bool
			err      error
		)
		if move {
			x, resolved, err = j.vfs.MvFile(ctx, srcDrive, srcDir, t.src.UUID, t.src.Name, dstDrive, dstDir, policy)
		} else {
			x, resolved, err = j.vfs.CopyFile(ctx, srcDrive, srcDir, t.src.UUID, t.src.Name, dstDrive, dstDir, policy)
		}
		return func() {
			if err != nil {
				j.collide(t, err)
				return
			}
			t.dst = x.UUID
			if resolved && policy == underlying.Parents {
				// The existing file was kept.
				j.skip(t)
				return
			}
			if move {
				j.stats.AddFilesMoved(1)
				j.emit(t, event.FileMoved, x.Size, nil)
			} else {
				j.stats.AddFilesCopied(1)
				j.stats.AddBytesCopied(x.Size)
				j.emit(t, event.FileCopied, x.Size, nil)
			}
			j.setState(t, Finished)
		}
	})
}

// collide handles a failed Working attempt. An EEXIST on the first attempt
// picks the policy for the kind of collision: same kind (tagged ECONFLICT)
// or other kind. Anything else fails the task.
func (j *Job) collide(t *task, err error) {
	if !errs.Is(err, errs.EEXIST) || t.attempt != underlying.None {
		j.fail(t, err)
		return
	}
	t.slot = 1
	if errs.Is(err, errs.ECONFLICT) {
		t.slot = 0
	}
	switch p := j.policyFor(t, t.slot); p {
	case underlying.None:
		t.err = err
		j.setState(t, Conflict)
	case underlying.Skip:
		t.attempt = p
		j.skip(t)
	default:
		t.attempt = p
		j.work(t)
	}
}

func (j *Job) policyFor(t *task, slot int) underlying.Policy {
	if p := t.policy[slot]; p != underlying.None {
		return p
	}
	return j.policies.of(t.kind)[slot]
}

func (j *Job) skip(t *task) {
	if t.kind == xstat.File {
		j.stats.AddFilesSkipped(1)
	}
	j.emit(t, event.EntrySkipped, 0, nil)
	j.setState(t, Finished)
}

func (j *Job) fail(t *task, err error) {
	t.err = err
	j.setState(t, Failed)
}

// readSource lists the task's source directory.
func (j *Job) readSource(t *task) {
	srcDrive, srcDir := j.srcDrive, t.src.UUID
	j.spawn(t, func(ctx context.Context) func() {
		var xs []xstat.XStat
		_, err := j.vfs.GetDriveDir(srcDrive, srcDir)
		if err == nil {
			xs, err = j.vfs.Readdir(ctx, srcDir)
		}
		return func() {
			if err != nil {
				j.fail(t, err)
				return
			}
			t.listing = xs
			j.setState(t, Read)
		}
	})
}

// startRead partitions the listing into the file and directory queues and
// pops the first child.
func (j *Job) startRead(t *task) {
	xs, err := j.selectEntries(t)
	t.listing = nil
	if err != nil {
		j.fail(t, err)
		return
	}
	j.stats.AddEntriesRead(int64(len(xs)))

	for _, x := range xs {
		rel := joinRel(t.rel, x.Name)
		if j.filter != nil && !j.filter.Admit(rel, x) {
			j.filtered(t, x, rel)
			continue
		}
		if x.IsDir() {
			t.dirs = append(t.dirs, x)
		} else {
			t.files = append(t.files, x)
		}
	}
	j.next(t)
}

// selectEntries applies the job's entry list to the root's listing.
func (j *Job) selectEntries(t *task) ([]xstat.XStat, error) {
	if t.parent != nil || len(j.entries) == 0 {
		return t.listing, nil
	}
	byName := make(map[string]xstat.XStat, len(t.listing))
	for _, x := range t.listing {
		byName[x.Name] = x
	}
	out := make([]xstat.XStat, 0, len(j.entries))
	for _, name := range j.entries {
		x, ok := byName[name]
		if !ok {
			return nil, errs.New(errs.ENOENT, "xcopy", name, "no such entry in source directory")
		}
		out = append(out, x)
	}
	return out, nil
}

func (j *Job) filtered(t *task, x xstat.XStat, rel string) {
	if !x.IsDir() {
		j.stats.AddFilesSkipped(1)
	}
	j.logger.Debug("entry filtered", "task", t.id, "path", rel)
	j.send(event.Event{Type: event.EntrySkipped, Parent: t.id, Kind: string(x.Type), Path: rel, Size: x.Size})
}

// next pops the next child unless one is still in flight. Files go before
// directories. With both queues empty and no live children the task is
// complete.
func (j *Job) next(t *task) {
	if t.state != Read || t.current != nil || t.closing {
		return
	}
	var x xstat.XStat
	switch {
	case len(t.files) > 0:
		x, t.files = t.files[0], t.files[1:]
	case len(t.dirs) > 0:
		x, t.dirs = t.dirs[0], t.dirs[1:]
	default:
		if len(t.children) == 0 {
			j.complete(t)
		}
		return
	}
	child := j.newTask(t.ctx, t, x)
	t.current = child
	j.start(child, Working)
}

// complete finishes a drained directory. A merged directory in move mode
// first removes its emptied source.
func (j *Job) complete(t *task) {
	if j.mode != Move || t.parent == nil {
		j.setState(t, Finished)
		return
	}
	t.closing = true
	srcDrive, srcDir := j.srcDrive, t.src.UUID
	j.spawn(t, func(ctx context.Context) func() {
		err := j.vfs.RemoveEmptyDir(ctx, srcDrive, srcDir)
		return func() {
			if err != nil {
				j.logger.Warn("source directory not removed", "task", t.id, "path", t.rel, "error", err)
			} else {
				j.emit(t, event.DirRemoved, 0, nil)
			}
			j.setState(t, Finished)
		}
	})
}

func (j *Job) clearQueues(t *task) {
	t.files, t.dirs, t.current = nil, nil, nil
}

func (j *Job) enterConflict(t *task) {
	j.stats.AddConflicts(1)
	j.logger.Info("conflict", "task", t.id, "path", t.rel, "error", t.err)
	j.emit(t, event.TaskConflict, 0, t.err)
	if t.parent != nil {
		j.notify(t.parent, notice{child: t, state: Conflict})
	}
}

func (j *Job) clearError(t *task) {
	t.err = nil
}

// enterFailed destroys every live descendant. The task itself stays until
// its parent or the caller destroys it.
func (j *Job) enterFailed(t *task) {
	for len(t.children) > 0 {
		j.destroy(t.children[0])
	}
	if t.kind == xstat.File {
		j.stats.AddFilesFailed(1)
	} else {
		j.stats.AddDirsFailed(1)
	}
	j.logger.Warn("task failed", "task", t.id, "path", t.rel, "error", t.err)
	j.emit(t, event.TaskFailed, 0, t.err)
	if t.parent != nil {
		j.notify(t.parent, notice{child: t, state: Failed})
	}
}

func (j *Job) enterFinished(t *task) {
	j.emit(t, event.TaskFinished, 0, nil)
	if t.parent != nil {
		j.notify(t.parent, notice{child: t, state: Finished})
	}
}

// drainInbox delivers t's pending notices in order.
func (j *Job) drainInbox(t *task) {
	for len(t.inbox) > 0 {
		if t.destroyed {
			t.inbox = nil
			return
		}
		n := t.inbox[0]
		t.inbox = t.inbox[1:]
		j.observe(t, n)
	}
}

// observe reacts to one notice from a child. A child that settled, in any
// of Conflict, Failed or Finished, or that went away frees the slot for the
// next one; a Finished child is destroyed first.
func (j *Job) observe(t *task, n notice) {
	if n.child == t.current {
		t.current = nil
	}
	if t.state != Read {
		return
	}
	if !n.abandoned && n.state == Finished && !n.child.destroyed {
		j.destroy(n.child)
	}
	j.next(t)
}
