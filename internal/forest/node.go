package forest

import "github.com/hxsam/appifi/internal/xstat"

// Node is a point-in-time copy of a cached directory or file.
type Node struct {
	UUID   string     `json:"uuid"`
	Name   string     `json:"name"`
	Parent string     `json:"parent,omitempty"` // empty for roots
	Type   xstat.Kind `json:"type"`
	Hash   string     `json:"hash,omitempty"`
	Size   int64      `json:"size,omitempty"`
	Mtime  int64      `json:"mtime"`
}

// IsDir reports whether n is a directory.
func (n Node) IsDir() bool { return n.Type == xstat.Directory }

// IsRoot reports whether n is a forest root.
func (n Node) IsRoot() bool { return n.Parent == "" }

// entry is the arena record behind a Node. parent is a lookup key only;
// ownership runs from a directory to its children.
type entry struct {
	uuid   string
	name   string
	parent string
	kind   xstat.Kind
	mtime  int64

	// directories
	children map[string]*entry
	path     string // absolute path, roots only

	// files
	hash string
	size int64
}

func newEntry(x xstat.XStat, parent string) *entry {
	e := &entry{
		uuid:   x.UUID,
		name:   x.Name,
		parent: parent,
		kind:   x.Type,
		mtime:  x.Mtime,
	}
	if e.kind == xstat.Directory {
		e.children = make(map[string]*entry)
	} else {
		e.hash = x.Hash
		e.size = x.Size
	}
	return e
}

func (e *entry) isDir() bool { return e.kind == xstat.Directory }

func (e *entry) snapshot() Node {
	return Node{
		UUID:   e.uuid,
		Name:   e.name,
		Parent: e.parent,
		Type:   e.kind,
		Hash:   e.hash,
		Size:   e.size,
		Mtime:  e.mtime,
	}
}
