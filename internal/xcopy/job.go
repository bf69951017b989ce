// Package xcopy copies or moves a source directory's entries into a
// destination directory as a tree of independently cancellable tasks.
//
// All task logic runs on one scheduler goroutine per Job. Filesystem work
// runs in its own goroutine and posts its completion back to the scheduler,
// so listings and copies of sibling directories proceed concurrently while
// the state machine itself never needs a lock.
package xcopy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/hxsam/appifi/internal/errs"
	"github.com/hxsam/appifi/internal/event"
	"github.com/hxsam/appifi/internal/filter"
	"github.com/hxsam/appifi/internal/forest"
	"github.com/hxsam/appifi/internal/stats"
	"github.com/hxsam/appifi/internal/underlying"
	"github.com/hxsam/appifi/internal/xstat"
)

// ErrStopped is returned by calls made after the job's root was destroyed.
var ErrStopped = errors.New("xcopy: job stopped")

// VFS is the part of the storage core a job drives.
type VFS interface {
	GetDriveDir(driveUUID, dirUUID string, chain ...string) (forest.Node, error)
	NodePath(id string) ([]forest.Node, error)
	Readdir(ctx context.Context, dirUUID string) ([]xstat.XStat, error)
	Mkdir(ctx context.Context, driveUUID, dirUUID, name string, policy underlying.Policy) (xstat.XStat, bool, error)
	CopyFile(ctx context.Context, srcDrive, srcDir, fileUUID, name, dstDrive, dstDir string, policy underlying.Policy) (xstat.XStat, bool, error)
	MvFile(ctx context.Context, srcDrive, srcDirUUID, fileUUID, name, dstDrive, dstDirUUID string, policy underlying.Policy) (xstat.XStat, bool, error)
	MvDir(ctx context.Context, srcDrive, dirUUID, name, dstDrive, dstDirUUID string) (xstat.XStat, error)
	RemoveEmptyDir(ctx context.Context, driveUUID, dirUUID string) error
}

// Mode selects between copying and moving.
type Mode int

const (
	Copy Mode = iota
	Move
)

func (m Mode) String() string {
	if m == Move {
		return "move"
	}
	return "copy"
}

// Ref names a directory inside a drive.
type Ref struct {
	Drive string `json:"drive"`
	Dir   string `json:"dir"`
}

// Policies are the job-wide conflict policies. Index 0 settles a collision
// with an entry of the same kind, index 1 one with the other kind. None
// leaves the task in Conflict.
type Policies struct {
	Dir  [2]underlying.Policy
	File [2]underlying.Policy
}

func (p *Policies) of(kind xstat.Kind) *[2]underlying.Policy {
	if kind == xstat.Directory {
		return &p.Dir
	}
	return &p.File
}

// Options configures a Job.
type Options struct {
	Mode Mode

	// Src is the source directory.
	Src Ref
	// Entries restricts the job to these names in Src. Empty means all.
	Entries []string
	// Dst is the destination directory. Nil leaves the root Pending until
	// SetDestination.
	Dst *Ref

	Policies Policies
	Filter   *filter.Chain

	Events chan<- event.Event
	Stats  *stats.Collector
	Logger *slog.Logger
}

// Job is a running copy or move. Its methods are safe for concurrent use.
type Job struct {
	vfs      VFS
	mode     Mode
	srcDrive string
	entries  []string
	filter   *filter.Chain
	events   chan<- event.Event
	stats    *stats.Collector
	logger   *slog.Logger

	calls chan func()
	done  chan struct{}
	final Status

	// Everything below is owned by the scheduler goroutine.
	dstDrive string
	policies Policies
	root     *task
	tasks    map[string]*task
	index    [numStates]map[*task]struct{}
	dirty    []*task
	waiters  []chan struct{}
	inflight int
	seq      int
}

// New validates opts and starts a job. The job runs until its root is
// destroyed, by Stop, Destroy or ctx being cancelled.
func New(ctx context.Context, v VFS, opts Options) (*Job, error) {
	if _, err := v.GetDriveDir(opts.Src.Drive, opts.Src.Dir); err != nil {
		return nil, err
	}
	for _, name := range opts.Entries {
		if !underlying.ValidName(name) {
			return nil, errs.New(errs.EINVAL, "xcopy", name, "invalid entry name")
		}
	}
	if err := validatePolicies(opts.Policies); err != nil {
		return nil, err
	}

	j := &Job{
		vfs:      v,
		mode:     opts.Mode,
		srcDrive: opts.Src.Drive,
		entries:  slices.Clone(opts.Entries),
		filter:   opts.Filter,
		events:   opts.Events,
		stats:    opts.Stats,
		logger:   opts.Logger,
		calls:    make(chan func()),
		done:     make(chan struct{}),
		policies: opts.Policies,
		tasks:    make(map[string]*task),
	}
	if j.stats == nil {
		j.stats = stats.NewCollector()
	}
	if j.logger == nil {
		j.logger = slog.Default()
	}
	for s := range j.index {
		j.index[s] = make(map[*task]struct{})
	}

	initial := Pending
	if opts.Dst != nil {
		if err := j.checkDestination(*opts.Dst, opts.Src.Dir); err != nil {
			return nil, err
		}
		j.dstDrive = opts.Dst.Drive
		initial = Reading
	}

	// The scheduler is not running yet, so the root can be started here.
	j.root = j.newTask(ctx, nil, xstat.XStat{UUID: opts.Src.Dir, Type: xstat.Directory})
	if opts.Dst != nil {
		j.root.dst = opts.Dst.Dir
	}
	j.start(j.root, initial)

	go j.run(ctx)
	return j, nil
}

func validatePolicies(p Policies) error {
	for _, policy := range p.Dir {
		if policy == underlying.Replace {
			return errs.New(errs.EINVAL, "xcopy", policy.String(), "replace is not a directory policy")
		}
	}
	for _, policy := range slices.Concat(p.Dir[:], p.File[:]) {
		if _, err := underlying.ParsePolicy(string(policy)); err != nil {
			return errs.Wrap(errs.EINVAL, "xcopy", string(policy), err)
		}
	}
	return nil
}

// checkDestination rejects a destination that does not resolve or that
// lies inside the source directory.
func (j *Job) checkDestination(dst Ref, srcDir string) error {
	if _, err := j.vfs.GetDriveDir(dst.Drive, dst.Dir); err != nil {
		return err
	}
	chain, err := j.vfs.NodePath(dst.Dir)
	if err != nil {
		return err
	}
	for _, n := range chain {
		if n.UUID == srcDir {
			return errs.New(errs.EINVAL, "xcopy", dst.Dir, "destination is inside the source directory")
		}
	}
	return nil
}

func (j *Job) run(ctx context.Context) {
	defer close(j.done)
	for {
		select {
		case fn := <-j.calls:
			fn()
		case <-ctx.Done():
			j.destroy(j.root)
		}
		j.settle()
		if j.root.destroyed {
			j.final = j.status()
			return
		}
	}
}

// settle delivers queued notices and wakes waiters once nothing is in
// flight.
func (j *Job) settle() {
	for len(j.dirty) > 0 {
		t := j.dirty[0]
		j.dirty = j.dirty[1:]
		j.drainInbox(t)
	}
	if j.quiescent() {
		for _, w := range j.waiters {
			close(w)
		}
		j.waiters = nil
	}
}

func (j *Job) quiescent() bool {
	return j.root.destroyed || j.root.state.Terminal() || j.inflight == 0
}

// call runs fn on the scheduler and waits for it. calls is unbuffered, so
// a send only succeeds while the scheduler is running.
func (j *Job) call(fn func()) error {
	reply := make(chan struct{})
	select {
	case j.calls <- func() { fn(); close(reply) }:
	case <-j.done:
		return ErrStopped
	}
	<-reply
	return nil
}

// post queues fn for the scheduler without waiting. It is dropped once the
// job has stopped.
func (j *Job) post(fn func()) {
	select {
	case j.calls <- fn:
	case <-j.done:
	}
}

// spawn runs work off the scheduler with t's context. The returned
// completion runs on the scheduler unless t was destroyed or moved on in the
// meantime.
func (j *Job) spawn(t *task, work func(ctx context.Context) func()) {
	t.gen++
	gen := t.gen
	ctx := t.ctx
	j.inflight++
	go func() {
		complete := work(ctx)
		j.post(func() {
			j.inflight--
			if t.destroyed || t.gen != gen {
				j.logger.Debug("dropping stale completion", "task", t.id, "path", t.rel)
				return
			}
			complete()
		})
	}()
}

func (j *Job) emit(t *task, typ event.Type, size int64, err error) {
	e := event.Event{
		Type:      typ,
		TaskID:    t.id,
		Kind:      string(t.kind),
		Path:      t.rel,
		Size:      size,
		Error:     err,
	}
	if t.parent != nil {
		e.Parent = t.parent.id
	}
	if t.attempt != underlying.None {
		e.Method = t.attempt.String()
	}
	j.send(e)
}

// send never blocks the scheduler; events are dropped when the consumer
// falls behind.
func (j *Job) send(e event.Event) {
	if j.events == nil {
		return
	}
	e.Timestamp = time.Now()
	select {
	case j.events <- e:
	default:
	}
}

func (j *Job) newTask(ctx context.Context, parent *task, x xstat.XStat) *task {
	j.seq++
	t := &task{
		id:     uuid.New().String(),
		seq:    j.seq,
		kind:   x.Type,
		parent: parent,
		src:    x,
	}
	if parent != nil {
		ctx = parent.ctx
		t.rel = joinRel(parent.rel, x.Name)
		parent.children = append(parent.children, t)
	}
	t.ctx, t.cancel = context.WithCancel(ctx)
	j.tasks[t.id] = t
	j.emit(t, event.TaskCreated, 0, nil)
	return t
}

// destroy removes t and its subtree: children first, then t is detached
// from its parent, dropped from the state index and its in-flight work is
// cancelled.
func (j *Job) destroy(t *task) {
	if t.destroyed {
		return
	}
	for _, c := range slices.Clone(t.children) {
		j.destroy(c)
	}
	if p := t.parent; p != nil {
		p.children = slices.DeleteFunc(p.children, func(c *task) bool { return c == t })
		j.notify(p, notice{child: t, abandoned: true})
	}
	if h := lifecycle[t.state].exit; h != nil {
		h(j, t)
	}
	delete(j.index[t.state], t)
	delete(j.tasks, t.id)
	t.cancel()
	t.destroyed = true
	j.logger.Debug("task destroyed", "task", t.id, "path", t.rel, "state", t.state)
	j.emit(t, event.TaskDestroyed, 0, nil)
}

func (j *Job) notify(p *task, n notice) {
	p.inbox = append(p.inbox, n)
	j.dirty = append(j.dirty, p)
}

// View returns a summary of every live task, parents before children.
func (j *Job) View() []Summary {
	var out []Summary
	if err := j.call(func() { out = j.view() }); err != nil {
		return nil
	}
	return out
}

func (j *Job) view() []Summary {
	var out []Summary
	var visit func(t *task)
	visit = func(t *task) {
		out = append(out, t.summary())
		for _, c := range t.children {
			visit(c)
		}
	}
	if !j.root.destroyed {
		visit(j.root)
	}
	return out
}

// Status returns the job's overall state.
func (j *Job) Status() Status {
	var st Status
	if err := j.call(func() { st = j.status() }); err != nil {
		<-j.done
		return j.final
	}
	return st
}

func (j *Job) status() Status {
	return Status{
		State:     j.root.state,
		Destroyed: j.root.destroyed,
		Err:       j.root.err,
		Live:      len(j.tasks),
		Conflicts: len(j.index[Conflict]),
		Failures:  len(j.index[Failed]),
		InFlight:  j.inflight,
	}
}

// Wait blocks until the root is Finished, Failed or destroyed, or until
// nothing is in flight, which leaves only tasks waiting on a decision.
func (j *Job) Wait(ctx context.Context) (Status, error) {
	ch := make(chan struct{})
	err := j.call(func() {
		if j.quiescent() {
			close(ch)
			return
		}
		j.waiters = append(j.waiters, ch)
	})
	if err == nil {
		select {
		case <-ch:
		case <-j.done:
		case <-ctx.Done():
			return Status{}, ctx.Err()
		}
	}
	return j.Status(), nil
}

// Done is closed once the job has stopped.
func (j *Job) Done() <-chan struct{} { return j.done }

// Stop destroys the root task and waits for the scheduler to exit.
func (j *Job) Stop() {
	_ = j.call(func() { j.destroy(j.root) })
	<-j.done
}

// Destroy cancels the task id and its subtree.
func (j *Job) Destroy(id string) error {
	var err error
	if cerr := j.call(func() {
		t, ok := j.tasks[id]
		if !ok {
			err = errs.New(errs.ENOENT, "xcopy", id, "no such task")
			return
		}
		j.destroy(t)
	}); cerr != nil {
		return cerr
	}
	return err
}

// SetDestination gives a Pending root its destination and starts it.
func (j *Job) SetDestination(dst Ref) error {
	if err := j.checkDestination(dst, j.root.src.UUID); err != nil {
		return err
	}
	var err error
	if cerr := j.call(func() {
		if j.root.state != Pending {
			err = errs.New(errs.EINVAL, "xcopy", j.root.id, "destination already set")
			return
		}
		j.dstDrive = dst.Drive
		j.root.dst = dst.Dir
		j.setState(j.root, Reading)
	}); cerr != nil {
		return cerr
	}
	return err
}

// Resolve settles the conflict of task id with policy. With applyToAll the
// policy also becomes the job-wide policy for the same kind of collision,
// and every task waiting on that kind of collision is resumed with it.
func (j *Job) Resolve(id string, policy underlying.Policy, applyToAll bool) error {
	var err error
	if cerr := j.call(func() { err = j.resolve(id, policy, applyToAll) }); cerr != nil {
		return cerr
	}
	return err
}

func (j *Job) resolve(id string, policy underlying.Policy, applyToAll bool) error {
	t, ok := j.tasks[id]
	if !ok {
		return errs.New(errs.ENOENT, "xcopy", id, "no such task")
	}
	if t.state != Conflict {
		return errs.New(errs.EINVAL, "xcopy", id, fmt.Sprintf("task is %s, not in conflict", t.state))
	}
	if policy == underlying.None {
		return errs.New(errs.EINVAL, "xcopy", id, "a resolution needs a policy")
	}
	if t.kind == xstat.Directory && policy == underlying.Replace {
		return errs.New(errs.EINVAL, "xcopy", id, "replace is not a directory policy")
	}

	slot := t.slot
	targets := []*task{t}
	if applyToAll {
		j.policies.of(t.kind)[slot] = policy
		for c := range j.index[Conflict] {
			if c != t && c.kind == t.kind && c.slot == slot && c.policy[slot] == underlying.None {
				targets = append(targets, c)
			}
		}
		slices.SortFunc(targets, func(a, b *task) int { return a.seq - b.seq })
	}
	for _, c := range targets {
		c.policy[slot] = policy
		c.attempt = policy
		j.setState(c, Working)
	}
	return nil
}
