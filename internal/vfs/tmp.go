package vfs

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/hxsam/appifi/internal/underlying"
	"github.com/hxsam/appifi/internal/xstat"
)

// tmpRegistry tracks in-progress temporary files so Close can remove any
// that a failed operation left behind.
type tmpRegistry struct {
	dir   string
	store xstat.Store

	mu    sync.Mutex
	paths map[string]struct{}
}

func newTmpRegistry(dir string, store xstat.Store) *tmpRegistry {
	return &tmpRegistry{dir: dir, store: store, paths: make(map[string]struct{})}
}

// create reserves a fresh temporary path. The file itself is not created.
func (r *tmpRegistry) create() string {
	p := filepath.Join(r.dir, uuid.New().String())
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths[p] = struct{}{}
	return p
}

// release removes a temporary file and forgets it.
func (r *tmpRegistry) release(p string) {
	underlying.RemoveTmp(r.store, p)
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.paths, p)
}

// cleanup removes all registered temporary files.
func (r *tmpRegistry) cleanup() {
	r.mu.Lock()
	paths := make([]string, 0, len(r.paths))
	for p := range r.paths {
		paths = append(paths, p)
	}
	r.paths = make(map[string]struct{})
	r.mu.Unlock()

	for _, p := range paths {
		underlying.RemoveTmp(r.store, p)
	}
}

// sweep removes leftovers of a previous process from the tmp directory.
func (r *tmpRegistry) sweep() (int, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		p := filepath.Join(r.dir, e.Name())
		xstat.Forget(r.store, p)
		if err := os.RemoveAll(p); err == nil {
			n++
		}
	}
	return n, nil
}
