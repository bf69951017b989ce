package underlying

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hxsam/appifi/internal/errs"
	"github.com/hxsam/appifi/internal/xstat"
)

const dirMode = 0755

// maxRenameAttempts bounds the retry loop when concurrent creators keep
// taking the chosen name.
const maxRenameAttempts = 32

// Mkdir creates the directory target under policy. resolved is true when a
// collision was settled by the policy rather than a plain create.
func Mkdir(store xstat.Store, target string, policy Policy) (xstat.XStat, bool, error) {
	if !filepath.IsAbs(target) || !ValidName(filepath.Base(target)) {
		return xstat.XStat{}, false, errs.New(errs.EINVAL, "mkdir", target, "invalid target path")
	}

	switch policy {
	case Parents:
		return mkdirParents(store, target)
	case None, Rename:
	default:
		return xstat.XStat{}, false, errs.New(errs.EINVAL, "mkdir", target, "policy "+policy.String()+" not valid for directories")
	}

	if err := checkParent("mkdir", filepath.Dir(target)); err != nil {
		return xstat.XStat{}, false, err
	}

	err := os.Mkdir(target, dirMode)
	if err == nil {
		x, err := xstat.Read(store, target)
		return x, false, err
	}
	if !errors.Is(err, fs.ErrExist) {
		return xstat.XStat{}, false, errs.FromOS("mkdir", target, err)
	}

	if policy == None {
		return xstat.XStat{}, false, collision("mkdir", target, xstat.Directory)
	}
	if err := notSymlink("mkdir", target); err != nil {
		return xstat.XStat{}, false, err
	}

	for range maxRenameAttempts {
		taken, err := names(filepath.Dir(target))
		if err != nil {
			return xstat.XStat{}, false, err
		}
		candidate := filepath.Join(filepath.Dir(target), Autoname(filepath.Base(target), taken, false))
		err = os.Mkdir(candidate, dirMode)
		if err == nil {
			x, err := xstat.Read(store, candidate)
			return x, true, err
		}
		if !errors.Is(err, fs.ErrExist) {
			return xstat.XStat{}, false, errs.FromOS("mkdir", candidate, err)
		}
	}
	return xstat.XStat{}, false, errs.New(errs.EEXIST, "mkdir", target, "no free name found")
}

func mkdirParents(store xstat.Store, target string) (xstat.XStat, bool, error) {
	info, err := os.Lstat(target)
	if err == nil {
		switch {
		case info.Mode()&fs.ModeSymlink != 0:
			return xstat.XStat{}, false, errs.New(errs.ENOENT, "mkdir", target, "target is a symlink")
		case !info.IsDir():
			return xstat.XStat{}, false, errs.New(errs.EEXIST, "mkdir", target, "target is a file")
		}
		// Lstat resolved the ancestors; an existing target reached through a
		// symlink is not ours.
		if err := checkAncestors(store, "mkdir", filepath.Dir(target)); err != nil {
			return xstat.XStat{}, false, err
		}
		x, err := xstat.Read(store, target)
		return x, true, err
	}

	created, err := mkdirAll(store, target)
	if err != nil {
		return xstat.XStat{}, false, err
	}
	x, err := xstat.Read(store, target)
	return x, !created, err
}

// mkdirAll creates path and any missing ancestors, tagging every directory
// it creates. Existing ancestors are left untouched.
func mkdirAll(store xstat.Store, path string) (bool, error) {
	info, err := os.Lstat(path)
	switch {
	case err == nil:
		if info.Mode()&fs.ModeSymlink != 0 {
			return false, errs.New(errs.ENOENT, "mkdir", path, "path component is a symlink")
		}
		if !info.IsDir() {
			return false, errs.New(errs.EEXIST, "mkdir", path, "path component is a file")
		}
		return false, checkAncestors(store, "mkdir", filepath.Dir(path))
	case !errors.Is(err, fs.ErrNotExist):
		return false, errs.FromOS("mkdir", path, err)
	}

	parent := filepath.Dir(path)
	if parent == path {
		return false, errs.New(errs.ENOENT, "mkdir", path, "no such root")
	}
	if _, err := mkdirAll(store, parent); err != nil {
		if errs.CodeOf(err) == errs.EEXIST {
			return false, errs.New(errs.ENOTDIR, "mkdir", parent, "parent is a file")
		}
		return false, err
	}

	if err := os.Mkdir(path, dirMode); err != nil {
		if errors.Is(err, fs.ErrExist) {
			if info, lerr := os.Lstat(path); lerr == nil && info.IsDir() {
				return false, nil
			}
		}
		return false, errs.FromOS("mkdir", path, err)
	}
	if _, err := xstat.Read(store, path); err != nil {
		return false, err
	}
	return true, nil
}

// checkParent verifies that dir is a real directory.
func checkParent(op, dir string) error {
	info, err := os.Lstat(dir)
	if err != nil {
		return errs.FromOS(op, dir, err)
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return errs.New(errs.ENOENT, op, dir, "parent is a symlink")
	}
	if !info.IsDir() {
		return errs.New(errs.ENOTDIR, op, dir, "parent is not a directory")
	}
	return nil
}

// checkAncestors walks up from dir until it reaches a tagged directory or the
// filesystem root. Every directory on the way must be real; a symlink
// reports ENOENT.
func checkAncestors(store xstat.Store, op, dir string) error {
	for {
		if err := checkParent(op, dir); err != nil {
			return err
		}
		if _, err := store.Get(dir); err == nil {
			return nil
		}
		up := filepath.Dir(dir)
		if up == dir {
			return nil
		}
		dir = up
	}
}

// notSymlink reports ENOENT when target is a symlink, dangling or not. A
// target that is gone by now is not an error.
func notSymlink(op, target string) error {
	info, err := os.Lstat(target)
	if err == nil && info.Mode()&fs.ModeSymlink != 0 {
		return errs.New(errs.ENOENT, op, target, "target is a symlink")
	}
	return nil
}

// collision classifies an EEXIST on target. The error is tagged ECONFLICT
// when the existing entry has the same kind as the one being created.
// A symlink in the way reports ENOENT.
func collision(op, target string, kind xstat.Kind) error {
	if err := notSymlink(op, target); err != nil {
		return err
	}
	info, err := os.Lstat(target)
	if err != nil {
		return errs.FromOS(op, target, err)
	}
	e := errs.New(errs.EEXIST, op, target, "target exists")
	if (kind == xstat.Directory) == info.IsDir() && (info.IsDir() || info.Mode().IsRegular()) {
		return e.WithX(errs.ECONFLICT)
	}
	return e
}

func names(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errs.FromOS("readdir", dir, err)
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name()
	}
	return out, nil
}
