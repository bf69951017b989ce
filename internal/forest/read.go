package forest

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/hxsam/appifi/internal/errs"
	"github.com/hxsam/appifi/internal/xstat"
)

// listed is one directory entry as found on disk.
type listed struct {
	x    xstat.XStat
	info os.FileInfo
}

// Read lists the real directory dirUUID, tags every entry and reconciles the
// cached children with the listing. Children whose uuid is gone are
// destroyed, new uuids are instantiated and known ones refreshed. The
// returned entries are exactly the directory's children afterwards.
//
// A uuid registered elsewhere in the forest is reattached here when its old
// location no longer carries it. When both locations carry it the entry here
// is re-tagged with a fresh uuid. Hard links to an already cached file are
// left out.
func (f *Forest) Read(ctx context.Context, dirUUID string) ([]xstat.XStat, error) {
	path, err := f.dirPath(dirUUID)
	if err != nil {
		return nil, err
	}

	entries, err := f.list(ctx, path)
	if err != nil {
		if errs.Is(err, errs.ENOENT) || errs.Is(err, errs.ENOTDIR) {
			f.vanished(dirUUID, path)
		}
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	dir, ok := f.nodes[dirUUID]
	if !ok || !dir.isDir() {
		return nil, errs.New(errs.ENOENT, "read", path, "directory went away during read").WithX(errs.EDIRTY)
	}
	return f.reconcileLocked(dir, path, entries), nil
}

// ReadTree reads dirUUID and every directory below it.
func (f *Forest) ReadTree(ctx context.Context, dirUUID string) error {
	xs, err := f.Read(ctx, dirUUID)
	if err != nil {
		return err
	}
	for _, x := range xs {
		if !x.IsDir() {
			continue
		}
		if err := f.ReadTree(ctx, x.UUID); err != nil && !errs.Is(err, errs.ENOENT) {
			return err
		}
	}
	return nil
}

func (f *Forest) dirPath(dirUUID string) (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	dir, ok := f.nodes[dirUUID]
	if !ok {
		return "", errs.New(errs.ENOENT, "read", dirUUID, "directory not found")
	}
	if !dir.isDir() {
		return "", errs.New(errs.ENOTDIR, "read", dirUUID, "not a directory")
	}
	return f.absPathLocked(dir), nil
}

// list reads the directory at path and the identity of each entry. Entries
// that are not regular files or directories, or that vanish while being
// examined, are skipped.
func (f *Forest) list(ctx context.Context, path string) ([]listed, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, errs.FromOS("read", path, err)
	}
	if !info.IsDir() {
		return nil, errs.New(errs.ENOTDIR, "read", path, "not a directory")
	}

	dirents, err := os.ReadDir(path)
	if err != nil {
		return nil, errs.FromOS("read", path, err)
	}

	out := make([]listed, 0, len(dirents))
	for _, d := range dirents {
		if err := ctx.Err(); err != nil {
			return nil, errs.Wrap(errs.EINVAL, "read", path, err)
		}
		if !d.IsDir() && !d.Type().IsRegular() {
			continue
		}
		p := filepath.Join(path, d.Name())
		x, err := xstat.Read(f.store, p)
		if err != nil {
			if errs.Is(err, errs.ENOENT) {
				continue
			}
			return nil, err
		}
		info, err := os.Lstat(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, errs.FromOS("read", p, err)
		}
		out = append(out, listed{x: x, info: info})
	}
	return out, nil
}

// vanished drops a non-root directory whose listing failed, unless it was
// moved in the meantime.
func (f *Forest) vanished(dirUUID, path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dir, ok := f.nodes[dirUUID]
	if !ok || dir.parent == "" || f.absPathLocked(dir) != path {
		return
	}
	f.logger.Debug("directory vanished", "dir", dirUUID, "path", path)
	f.destroyLocked(dir)
}

func (f *Forest) reconcileLocked(dir *entry, path string, entries []listed) []xstat.XStat {
	seen := make(map[string]struct{}, len(entries))
	out := make([]xstat.XStat, 0, len(entries))

	for _, l := range entries {
		x := l.x
		entryPath := filepath.Join(path, x.Name)

		if _, dup := seen[x.UUID]; dup {
			if f.sameFileAsChild(dir, x.UUID, l.info, path) {
				continue
			}
			if x, ok := f.retagLocked(entryPath, x); ok {
				f.admitLocked(dir, x)
				seen[x.UUID] = struct{}{}
				out = append(out, x)
			}
			continue
		}

		e, known := f.nodes[x.UUID]
		switch {
		case !known:
			f.admitLocked(dir, x)

		case e.parent == dir.uuid && e.kind == x.Type:
			f.refreshLocked(e, x)

		case e.parent == "" || f.isAncestorLocked(e.uuid, dir):
			var ok bool
			if x, ok = f.retagLocked(entryPath, x); !ok {
				continue
			}
			f.admitLocked(dir, x)

		default:
			oldPath := f.absPathLocked(e)
			if e.parent != dir.uuid && f.carries(oldPath, x.UUID) {
				if sameInode(oldPath, l.info) {
					continue
				}
				var ok bool
				if x, ok = f.retagLocked(entryPath, x); !ok {
					continue
				}
				f.admitLocked(dir, x)
				break
			}
			if e.kind != x.Type {
				f.destroyLocked(e)
				f.admitLocked(dir, x)
				break
			}
			f.logger.Debug("reattaching moved entry", "uuid", x.UUID, "from", oldPath, "to", entryPath)
			f.reattachLocked(e, dir, x.Name)
			f.refreshLocked(e, x)
		}

		seen[x.UUID] = struct{}{}
		out = append(out, x)
	}

	for id, c := range dir.children {
		if _, ok := seen[id]; !ok {
			f.destroyLocked(c)
		}
	}
	dir.mtime = dirMtime(path, dir.mtime)
	return out
}

func (f *Forest) admitLocked(dir *entry, x xstat.XStat) {
	e := newEntry(x, dir.uuid)
	f.nodes[e.uuid] = e
	dir.children[e.uuid] = e
	f.indexLocked(e)
}

func (f *Forest) refreshLocked(e *entry, x xstat.XStat) {
	e.name = x.Name
	e.mtime = x.Mtime
	if e.isDir() {
		return
	}
	if e.hash != x.Hash {
		if e.hash != "" {
			f.unindexLocked(e)
		}
		e.hash = x.Hash
		f.indexLocked(e)
	}
	e.size = x.Size
}

// retagLocked gives the entry at path a fresh identity.
func (f *Forest) retagLocked(path string, x xstat.XStat) (xstat.XStat, bool) {
	fresh := uuid.New().String()
	f.logger.Warn("duplicate identity tag, re-tagging", "uuid", x.UUID, "path", path, "new", fresh)
	nx, err := xstat.Force(f.store, path, xstat.Tag{UUID: fresh})
	if err != nil {
		f.logger.Warn("re-tag failed", "path", path, "error", err)
		return xstat.XStat{}, false
	}
	return nx, true
}

// carries reports whether the entry at path still has identity id.
func (f *Forest) carries(path, id string) bool {
	if _, err := os.Lstat(path); err != nil {
		return false
	}
	x, err := xstat.Read(f.store, path)
	return err == nil && x.UUID == id
}

func (f *Forest) sameFileAsChild(dir *entry, id string, info os.FileInfo, path string) bool {
	e, ok := dir.children[id]
	if !ok {
		return false
	}
	return sameInode(filepath.Join(path, e.name), info)
}

func sameInode(path string, info os.FileInfo) bool {
	other, err := os.Lstat(path)
	if err != nil {
		return false
	}
	return os.SameFile(other, info)
}

func dirMtime(path string, fallback int64) int64 {
	info, err := os.Lstat(path)
	if err != nil {
		return fallback
	}
	return info.ModTime().UnixMilli()
}
