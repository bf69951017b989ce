package xcopy

import "fmt"

// State is the lifecycle state of a task.
type State int

const (
	// Pending waits for a destination. Only a root task without one starts
	// here.
	Pending State = iota
	// Working creates the destination entry: the directory for a directory
	// task, the copied or moved file for a file task.
	Working
	// Reading lists the source directory.
	Reading
	// Read drains the listing one child at a time, files first.
	Read
	// Conflict waits for a policy after a collision no configured policy
	// settled.
	Conflict
	// Failed holds the error that stopped the task.
	Failed
	// Finished means the task and all of its descendants completed.
	Finished

	numStates
)

var stateNames = [...]string{
	Pending:  "Pending",
	Working:  "Working",
	Reading:  "Reading",
	Read:     "Read",
	Conflict: "Conflict",
	Failed:   "Failed",
	Finished: "Finished",
}

func (s State) String() string {
	if s >= 0 && s < numStates {
		return stateNames[s]
	}
	return "Unknown"
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	if s < 0 || s >= numStates {
		return nil, fmt.Errorf("xcopy: unknown state %d", int(s))
	}
	return []byte(stateNames[s]), nil
}

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool { return s == Failed || s == Finished }

// transitions[from][to] is true for every allowed transition.
var transitions = [numStates][numStates]bool{
	Pending:  {Reading: true},
	Working:  {Reading: true, Conflict: true, Failed: true, Finished: true},
	Reading:  {Read: true, Failed: true},
	Read:     {Finished: true, Failed: true},
	Conflict: {Working: true},
}

// hooks run on the scheduler when a task enters or leaves a state. enter may
// itself transition the task.
type hooks struct {
	enter func(j *Job, t *task)
	exit  func(j *Job, t *task)
}

var lifecycle [numStates]hooks

// The table is filled in init because the hooks reach setState, which reads
// the table.
func init() {
	lifecycle = [numStates]hooks{
		Pending:  {},
		Working:  {enter: (*Job).work},
		Reading:  {enter: (*Job).readSource},
		Read:     {enter: (*Job).startRead, exit: (*Job).clearQueues},
		Conflict: {enter: (*Job).enterConflict, exit: (*Job).clearError},
		Failed:   {enter: (*Job).enterFailed},
		Finished: {enter: (*Job).enterFinished},
	}
}

// start places a new task in its initial state.
func (j *Job) start(t *task, initial State) {
	t.state = initial
	j.index[initial][t] = struct{}{}
	j.logger.Debug("task started", "task", t.id, "path", t.rel, "state", initial)
	if h := lifecycle[initial].enter; h != nil {
		h(j, t)
	}
}

// setState moves t to next, running the exit hook of the old state and the
// enter hook of the new one. An illegal transition is a programming error.
func (j *Job) setState(t *task, next State) {
	if t.destroyed {
		return
	}
	if !transitions[t.state][next] {
		panic(fmt.Sprintf("xcopy: task %s: invalid transition %s -> %s", t.id, t.state, next))
	}
	prev := t.state
	if h := lifecycle[prev].exit; h != nil {
		h(j, t)
	}
	delete(j.index[prev], t)
	t.state = next
	t.gen++
	j.index[next][t] = struct{}{}
	j.logger.Debug("task state", "task", t.id, "path", t.rel, "from", prev, "to", next)
	if h := lifecycle[next].enter; h != nil {
		h(j, t)
	}
}
