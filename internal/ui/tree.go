package ui

import (
	"fmt"

	"github.com/disiqueira/gotree/v3"

	"github.com/hxsam/appifi/internal/forest"
	"github.com/hxsam/appifi/internal/xcopy"
	"github.com/hxsam/appifi/internal/xstat"
)

// Lister returns the cached children of a directory.
type Lister interface {
	Children(dirUUID string) ([]forest.Node, error)
}

// RenderTree draws the cached subtree under root. depth limits recursion;
// zero or less means unlimited.
func RenderTree(l Lister, root forest.Node, label string, depth int) (string, error) {
	tree := gotree.New(label)
	if err := addChildren(l, tree, root, depth, 1); err != nil {
		return "", err
	}
	return tree.Print(), nil
}

func addChildren(l Lister, tree gotree.Tree, dir forest.Node, depth, level int) error {
	children, err := l.Children(dir.UUID)
	if err != nil {
		return err
	}
	for _, c := range children {
		if !c.IsDir() {
			tree.Add(fmt.Sprintf("%s  %s", c.Name, FormatBytes(c.Size)))
			continue
		}
		sub := tree.Add(c.Name + "/")
		if depth > 0 && level >= depth {
			continue
		}
		if err := addChildren(l, sub, c, depth, level+1); err != nil {
			return err
		}
	}
	return nil
}

// RenderTasks draws a job's task tree from its view. The view lists parents
// before children.
func RenderTasks(view []xcopy.Summary) string {
	if len(view) == 0 {
		return ""
	}
	nodes := make(map[string]gotree.Tree, len(view))
	var root gotree.Tree
	for _, s := range view {
		label := taskLabel(s)
		parent, ok := nodes[s.Parent]
		if s.Parent == "" || !ok {
			root = gotree.New(label)
			nodes[s.ID] = root
			continue
		}
		nodes[s.ID] = parent.Add(label)
	}
	return root.Print()
}

func taskLabel(s xcopy.Summary) string {
	name := s.Path
	if name == "" {
		name = "."
	}
	if s.Type == xstat.Directory {
		name += "/"
	}
	label := fmt.Sprintf("%s [%s]", name, s.State)
	if s.Error != "" {
		label += " " + s.Error
	}
	return label
}
