package drive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/hxsam/appifi/internal/errs"
)

// FileName is the registry file under the storage root.
const FileName = "drives.json"

// Registry persists the drive list. Commits are serialized by a single
// in-process flag: a commit that finds another one in flight fails at once
// with ECOMMITFAIL instead of waiting.
type Registry struct {
	path   string
	tmpDir string

	current    atomic.Pointer[List]
	committing atomic.Bool

	// save writes data to path; replaced in tests.
	save func(path string, data []byte) error
}

// NewRegistry returns a registry stored in froot/drives.json, staging writes
// in tmpDir. Call Load before use.
func NewRegistry(froot, tmpDir string) *Registry {
	r := &Registry{
		path:   filepath.Join(froot, FileName),
		tmpDir: tmpDir,
	}
	r.save = r.saveAtomic
	r.current.Store(NewList())
	return r
}

// Path returns the registry file path.
func (r *Registry) Path() string { return r.path }

// Load reads the registry file. A missing file is an empty list.
func (r *Registry) Load() error {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		r.current.Store(NewList())
		return nil
	}
	if err != nil {
		return fmt.Errorf("read drive registry: %w", err)
	}

	var drives []Drive
	if err := json.Unmarshal(data, &drives); err != nil {
		return fmt.Errorf("parse drive registry %s: %w", r.path, err)
	}
	seen := make(map[string]struct{}, len(drives))
	for i, d := range drives {
		if err := Validate(d); err != nil {
			return fmt.Errorf("drive registry entry %d: %w", i, err)
		}
		if _, dup := seen[d.UUID]; dup {
			return fmt.Errorf("drive registry entry %d: duplicate uuid %s", i, d.UUID)
		}
		seen[d.UUID] = struct{}{}
	}
	r.current.Store(NewList(drives...))
	return nil
}

// Current returns the committed list.
func (r *Registry) Current() *List { return r.current.Load() }

// Commit persists next and makes it current, provided prev is still the
// current list and no other commit is in flight.
func (r *Registry) Commit(prev, next *List) error {
	if !r.committing.CompareAndSwap(false, true) {
		return errs.New(errs.ECOMMITFAIL, "commit", r.path, "another commit is in progress")
	}
	defer r.committing.Store(false)

	if r.current.Load() != prev {
		return errs.New(errs.ECOMMITFAIL, "commit", r.path, "drive list changed since it was read")
	}

	data, err := json.MarshalIndent(next.drives, "", "  ")
	if err != nil {
		return fmt.Errorf("encode drive registry: %w", err)
	}
	if err := r.save(r.path, data); err != nil {
		return err
	}
	r.current.Store(next)
	return nil
}

// saveAtomic writes data to a temporary file and renames it into place.
func (r *Registry) saveAtomic(path string, data []byte) error {
	tmp := filepath.Join(r.tmpDir, uuid.New().String())
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("create registry tmp: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write registry tmp: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync registry tmp: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close registry tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("install drive registry: %w", err)
	}
	return nil
}
