package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	TaskCreated Type = iota + 1
	TaskConflict
	TaskFailed
	TaskFinished
	TaskDestroyed
	DirCreated
	DirMoved
	DirRemoved
	FileCopied
	FileMoved
	EntrySkipped
)

var typeNames = [...]string{
	TaskCreated:   "TaskCreated",
	TaskConflict:  "TaskConflict",
	TaskFailed:    "TaskFailed",
	TaskFinished:  "TaskFinished",
	TaskDestroyed: "TaskDestroyed",
	DirCreated:    "DirCreated",
	DirMoved:      "DirMoved",
	DirRemoved:    "DirRemoved",
	FileCopied:    "FileCopied",
	FileMoved:     "FileMoved",
	EntrySkipped:  "EntrySkipped",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Event represents a single progress event from a copy job.
type Event struct {
	Type      Type
	Timestamp time.Time
	TaskID    string
	Parent    string // parent task id, empty for the root
	Kind      string // "file" or "directory"
	Path      string // path relative to the job's source directory
	Size      int64  // bytes admitted (FileCopied, FileMoved)
	Method    string // policy that settled a collision, if any
	Error     error
}
