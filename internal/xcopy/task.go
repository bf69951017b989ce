package xcopy

import (
	"context"
	"path"

	"github.com/hxsam/appifi/internal/underlying"
	"github.com/hxsam/appifi/internal/xstat"
)

// task is one node of the job tree. Fields are only touched on the
// scheduler goroutine, except src which never changes.
type task struct {
	id     string
	seq    int
	kind   xstat.Kind
	parent *task

	// children is in creation order.
	children []*task

	src xstat.XStat
	rel string
	dst string

	state     State
	gen       uint64
	ctx       context.Context
	cancel    context.CancelFunc
	destroyed bool

	policy  [2]underlying.Policy
	attempt underlying.Policy
	slot    int
	err     error

	inbox   []notice
	listing []xstat.XStat
	files   []xstat.XStat
	dirs    []xstat.XStat
	current *task
	closing bool
}

// notice is posted into a parent's inbox when a child reaches Conflict,
// Failed or Finished, or is destroyed.
type notice struct {
	child     *task
	state     State
	abandoned bool
}

// Summary is a point-in-time view of one task.
type Summary struct {
	ID     string               `json:"id"`
	Parent string               `json:"parent,omitempty"`
	Type   xstat.Kind           `json:"type"`
	State  State                `json:"state"`
	Name   string               `json:"name,omitempty"`
	Path   string               `json:"path"`
	Src    string               `json:"src"`
	Dst    string               `json:"dst,omitempty"`
	Error  string               `json:"error,omitempty"`
	Policy [2]underlying.Policy `json:"policy"`
}

func (t *task) summary() Summary {
	s := Summary{
		ID:     t.id,
		Type:   t.kind,
		State:  t.state,
		Name:   t.src.Name,
		Path:   t.rel,
		Src:    t.src.UUID,
		Dst:    t.dst,
		Policy: t.policy,
	}
	if t.parent != nil {
		s.Parent = t.parent.id
	}
	if t.err != nil {
		s.Error = t.err.Error()
	}
	return s
}

// Status is the overall state of a job.
type Status struct {
	// State is the root task's state. Once Destroyed it is the state the
	// root was in when it was destroyed.
	State     State
	Destroyed bool
	Err       error

	Live      int
	Conflicts int
	Failures  int
	InFlight  int
}

// Done reports whether the root reached a terminal state or is gone.
func (s Status) Done() bool { return s.Destroyed || s.State.Terminal() }

func joinRel(parent, name string) string {
	if parent == "" {
		return name
	}
	return path.Join(parent, name)
}
