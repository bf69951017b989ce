// Package forest keeps an in-memory mirror of tagged directory trees. Nodes
// are identified by the uuid in their identity tag, never by path; Read is
// the only way external changes enter the cache.
package forest

import (
	"log/slog"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hxsam/appifi/internal/errs"
	"github.com/hxsam/appifi/internal/xstat"
)

// Forest is a set of rooted trees sharing one uuid registry and one
// fingerprint index. It is safe for concurrent use.
type Forest struct {
	store  xstat.Store
	logger *slog.Logger

	mu           sync.RWMutex
	nodes        map[string]*entry
	roots        map[string]*entry
	fingerprints map[string]map[*entry]struct{}
}

// New creates an empty forest reading identity tags from store.
func New(store xstat.Store, logger *slog.Logger) *Forest {
	if logger == nil {
		logger = slog.Default()
	}
	return &Forest{
		store:        store,
		logger:       logger,
		nodes:        make(map[string]*entry),
		roots:        make(map[string]*entry),
		fingerprints: make(map[string]map[*entry]struct{}),
	}
}

// Store returns the identity store the forest reads.
func (f *Forest) Store() xstat.Store { return f.store }

// CreateRoot registers the directory at path as a root. The directory must
// already carry rootUUID.
func (f *Forest) CreateRoot(rootUUID, path string) (Node, error) {
	x, err := xstat.AssertDir(f.store, path, rootUUID)
	if err != nil {
		return Node{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.nodes[rootUUID]; ok {
		return Node{}, errs.New(errs.EEXIST, "create root", path, "uuid already registered")
	}
	e := newEntry(x, "")
	e.path = filepath.Clean(path)
	f.nodes[e.uuid] = e
	f.roots[e.uuid] = e
	return e.snapshot(), nil
}

// DeleteRoot drops a root and everything under it from the cache. Nothing
// on disk is touched.
func (f *Forest) DeleteRoot(rootUUID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.roots[rootUUID]
	if !ok {
		return errs.New(errs.ENOENT, "delete root", rootUUID, "no such root")
	}
	f.destroyLocked(e)
	return nil
}

// Roots returns all roots.
func (f *Forest) Roots() []Node {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Node, 0, len(f.roots))
	for _, e := range f.roots {
		out = append(out, e.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })
	return out
}

// Get returns the node registered under uuid.
func (f *Forest) Get(uuid string) (Node, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.nodes[uuid]
	if !ok {
		return Node{}, false
	}
	return e.snapshot(), true
}

// RootOf returns the root of the tree holding uuid.
func (f *Forest) RootOf(uuid string) (Node, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.nodes[uuid]
	if !ok {
		return Node{}, false
	}
	return f.rootLocked(e).snapshot(), true
}

// AbsPath returns the absolute path the cache believes uuid lives at.
func (f *Forest) AbsPath(uuid string) (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.nodes[uuid]
	if !ok {
		return "", errs.New(errs.ENOENT, "abspath", uuid, "node not found")
	}
	return f.absPathLocked(e), nil
}

// NodePath returns the chain from the root down to uuid, inclusive.
func (f *Forest) NodePath(uuid string) ([]Node, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.nodes[uuid]
	if !ok {
		return nil, errs.New(errs.ENOENT, "nodepath", uuid, "node not found")
	}
	var chain []Node
	for ; e != nil; e = f.nodes[e.parent] {
		chain = append(chain, e.snapshot())
		if e.parent == "" {
			break
		}
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain, nil
}

// Children returns the cached children of a directory, directories first
// and then by name.
func (f *Forest) Children(dirUUID string) ([]Node, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.nodes[dirUUID]
	if !ok {
		return nil, errs.New(errs.ENOENT, "children", dirUUID, "node not found")
	}
	if !e.isDir() {
		return nil, errs.New(errs.ENOTDIR, "children", dirUUID, "not a directory")
	}
	return sortedChildren(e), nil
}

// NameWalk resolves names below dirUUID through cached children only.
func (f *Forest) NameWalk(dirUUID string, names []string) (Node, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.nodes[dirUUID]
	if !ok {
		return Node{}, errs.New(errs.ENOENT, "namewalk", dirUUID, "node not found")
	}
	for _, name := range names {
		if !e.isDir() {
			return Node{}, errs.New(errs.ENOTDIR, "namewalk", e.name, "not a directory")
		}
		next := childByName(e, name)
		if next == nil {
			return Node{}, errs.New(errs.ENOENT, "namewalk", name, "no such entry")
		}
		e = next
	}
	return e.snapshot(), nil
}

// DriveDirs returns every cached directory in the tree rooted at rootUUID,
// the root included, in depth-first order.
func (f *Forest) DriveDirs(rootUUID string) ([]Node, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	root, ok := f.roots[rootUUID]
	if !ok {
		return nil, errs.New(errs.ENOENT, "drivedirs", rootUUID, "no such root")
	}
	var out []Node
	var visit func(e *entry)
	visit = func(e *entry) {
		out = append(out, e.snapshot())
		for _, c := range sortedEntries(e) {
			if c.isDir() {
				visit(c)
			}
		}
	}
	visit(root)
	return out, nil
}

// Contains reports whether ancestor is uuid itself or one of its ancestors.
func (f *Forest) Contains(ancestor, uuid string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	e, ok := f.nodes[uuid]
	if !ok {
		return false
	}
	return f.isAncestorLocked(ancestor, e)
}

// Fingerprints returns every hash with at least one cached file.
func (f *Forest) Fingerprints() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.fingerprints))
	for h := range f.fingerprints {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// FilesByFingerprint returns the cached files whose content hash is hash.
func (f *Forest) FilesByFingerprint(hash string) []Node {
	f.mu.RLock()
	defer f.mu.RUnlock()
	set := f.fingerprints[hash]
	out := make([]Node, 0, len(set))
	for e := range set {
		out = append(out, e.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })
	return out
}

// Len returns the number of registered nodes.
func (f *Forest) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.nodes)
}

// FingerprintCount returns the number of distinct fingerprints.
func (f *Forest) FingerprintCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.fingerprints)
}

// Destroy removes uuid and its subtree from the cache. Roots must be
// removed with DeleteRoot.
func (f *Forest) Destroy(uuid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.nodes[uuid]
	if !ok {
		return errs.New(errs.ENOENT, "destroy", uuid, "node not found")
	}
	if e.parent == "" {
		return errs.New(errs.EINVAL, "destroy", uuid, "node is a root")
	}
	f.destroyLocked(e)
	return nil
}

// Reattach moves uuid under newParent with the given name, keeping its uuid
// and subtree.
func (f *Forest) Reattach(uuid, newParent, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.nodes[uuid]
	if !ok {
		return errs.New(errs.ENOENT, "reattach", uuid, "node not found")
	}
	p, ok := f.nodes[newParent]
	if !ok {
		return errs.New(errs.ENOENT, "reattach", newParent, "parent not found")
	}
	if !p.isDir() {
		return errs.New(errs.ENOTDIR, "reattach", newParent, "parent is not a directory")
	}
	if e.parent == "" {
		return errs.New(errs.EINVAL, "reattach", uuid, "node is a root")
	}
	if f.isAncestorLocked(uuid, p) {
		return errs.New(errs.EINVAL, "reattach", uuid, "cannot move a directory into its own subtree")
	}
	f.reattachLocked(e, p, name)
	return nil
}

func (f *Forest) reattachLocked(e, p *entry, name string) {
	if old, ok := f.nodes[e.parent]; ok {
		delete(old.children, e.uuid)
	}
	e.parent = p.uuid
	e.name = name
	p.children[e.uuid] = e
}

// destroyLocked unregisters e and its subtree, children first.
func (f *Forest) destroyLocked(e *entry) {
	for _, c := range e.children {
		f.destroyLocked(c)
	}
	if e.hash != "" {
		f.unindexLocked(e)
	}
	if p, ok := f.nodes[e.parent]; ok && e.parent != "" {
		delete(p.children, e.uuid)
	}
	delete(f.nodes, e.uuid)
	delete(f.roots, e.uuid)
}

func (f *Forest) indexLocked(e *entry) {
	if e.hash == "" {
		return
	}
	set, ok := f.fingerprints[e.hash]
	if !ok {
		set = make(map[*entry]struct{})
		f.fingerprints[e.hash] = set
	}
	set[e] = struct{}{}
}

func (f *Forest) unindexLocked(e *entry) {
	set := f.fingerprints[e.hash]
	delete(set, e)
	if len(set) == 0 {
		delete(f.fingerprints, e.hash)
	}
}

func (f *Forest) rootLocked(e *entry) *entry {
	for e.parent != "" {
		p, ok := f.nodes[e.parent]
		if !ok {
			break
		}
		e = p
	}
	return e
}

func (f *Forest) absPathLocked(e *entry) string {
	var names []string
	for e.parent != "" {
		names = append(names, e.name)
		p, ok := f.nodes[e.parent]
		if !ok {
			break
		}
		e = p
	}
	parts := make([]string, 0, len(names)+1)
	parts = append(parts, e.path)
	for i := len(names) - 1; i >= 0; i-- {
		parts = append(parts, names[i])
	}
	return filepath.Join(parts...)
}

// isAncestorLocked reports whether ancestor is e or one of e's ancestors.
func (f *Forest) isAncestorLocked(ancestor string, e *entry) bool {
	for {
		if e.uuid == ancestor {
			return true
		}
		if e.parent == "" {
			return false
		}
		p, ok := f.nodes[e.parent]
		if !ok {
			return false
		}
		e = p
	}
}

func childByName(dir *entry, name string) *entry {
	for _, c := range dir.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

func sortedEntries(dir *entry) []*entry {
	out := make([]*entry, 0, len(dir.children))
	for _, c := range dir.children {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].isDir() != out[j].isDir() {
			return out[i].isDir()
		}
		return out[i].name < out[j].name
	})
	return out
}

func sortedChildren(dir *entry) []Node {
	entries := sortedEntries(dir)
	out := make([]Node, len(entries))
	for i, c := range entries {
		out[i] = c.snapshot()
	}
	return out
}
