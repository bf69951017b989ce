package vfs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/hxsam/appifi/internal/errs"
	"github.com/hxsam/appifi/internal/forest"
	"github.com/hxsam/appifi/internal/underlying"
	"github.com/hxsam/appifi/internal/xstat"
)

// Mkdir creates name inside a drive directory under policy and returns the
// new entry as the following read of the parent saw it.
func (v *VFS) Mkdir(ctx context.Context, driveUUID, dirUUID, name string, policy underlying.Policy) (x xstat.XStat, resolved bool, err error) {
	defer func(start time.Time) {
		v.observe("mkdir", start, err, "drive", driveUUID, "dir", dirUUID, "name", name, "policy", policy)
	}(time.Now())

	dirPath, err := v.assertedDir("mkdir", driveUUID, dirUUID, name)
	if err != nil {
		return xstat.XStat{}, false, err
	}

	created, resolved, err := underlying.Mkdir(v.store, filepath.Join(dirPath, name), policy)
	x, err = v.settle(ctx, "mkdir", driveUUID, dirUUID, created, err)
	return x, resolved, err
}

// Mkfile admits the prepared temporary file tmp as name inside a drive
// directory.
func (v *VFS) Mkfile(ctx context.Context, driveUUID, dirUUID, name, tmp, hash string, policy underlying.Policy) (x xstat.XStat, resolved bool, err error) {
	defer func(start time.Time) {
		v.observe("mkfile", start, err, "drive", driveUUID, "dir", dirUUID, "name", name, "policy", policy)
	}(time.Now())

	return v.mkfile(ctx, driveUUID, dirUUID, name, tmp, hash, policy)
}

func (v *VFS) mkfile(ctx context.Context, driveUUID, dirUUID, name, tmp, hash string, policy underlying.Policy) (xstat.XStat, bool, error) {
	dirPath, err := v.assertedDir("mkfile", driveUUID, dirUUID, name)
	if err != nil {
		return xstat.XStat{}, false, err
	}

	created, resolved, err := underlying.Mkfile(v.store, filepath.Join(dirPath, name), tmp, hash, policy)
	x, err := v.settle(ctx, "mkfile", driveUUID, dirUUID, created, err)
	return x, resolved, err
}

// CopyFile copies the file fileUUID named name from one drive directory into
// another, sharing extents where the filesystem supports it unless the VFS
// was opened with NoReflink.
func (v *VFS) CopyFile(ctx context.Context, srcDrive, srcDir, fileUUID, name, dstDrive, dstDir string, policy underlying.Policy) (x xstat.XStat, resolved bool, err error) {
	defer func(start time.Time) {
		v.observe("copy_file", start, err, "drive", srcDrive, "dir", srcDir, "file", fileUUID, "name", name,
			"dst_drive", dstDrive, "dst_dir", dstDir, "policy", policy)
	}(time.Now())

	srcPath, err := v.FilePath(srcDrive, srcDir, name)
	if err != nil {
		return xstat.XStat{}, false, err
	}
	if _, err := v.GetDriveDir(dstDrive, dstDir); err != nil {
		return xstat.XStat{}, false, err
	}

	tmp := v.tmp.create()
	defer v.tmp.release(tmp)

	src, result, err := v.copy(v.store, srcPath, fileUUID, tmp)
	if err != nil {
		return xstat.XStat{}, false, err
	}
	v.metrics.RecordCopy(result.Method.String(), result.BytesWritten)

	return v.mkfile(ctx, dstDrive, dstDir, name, tmp, src.Hash, policy)
}

// MvDir moves the directory dirUUID named name into another directory,
// possibly on another drive. The uuid and the cached subtree are kept.
func (v *VFS) MvDir(ctx context.Context, srcDrive, dirUUID, name, dstDrive, dstDirUUID string) (x xstat.XStat, err error) {
	defer func(start time.Time) {
		v.observe("mv_dir", start, err, "drive", srcDrive, "dir", dirUUID, "name", name,
			"dst_drive", dstDrive, "dst_dir", dstDirUUID)
	}(time.Now())

	if !underlying.ValidName(name) {
		return xstat.XStat{}, errs.New(errs.EINVAL, "mvdir", name, "invalid name")
	}
	node, err := v.GetDriveDir(srcDrive, dirUUID)
	if err != nil {
		return xstat.XStat{}, errs.Wrap(errs.EINVAL, "mvdir", dirUUID, err)
	}
	if node.IsRoot() {
		return xstat.XStat{}, errs.New(errs.EINVAL, "mvdir", dirUUID, "cannot move a drive root")
	}
	if node.Name != name {
		return xstat.XStat{}, errs.New(errs.EINVAL, "mvdir", name, "name does not match directory")
	}
	if _, err := v.GetDriveDir(dstDrive, dstDirUUID); err != nil {
		return xstat.XStat{}, errs.Wrap(errs.EINVAL, "mvdir", dstDirUUID, err)
	}
	if v.forest.Contains(dirUUID, dstDirUUID) {
		return xstat.XStat{}, errs.New(errs.EINVAL, "mvdir", dstDirUUID, "cannot move a directory into its own subtree")
	}

	srcParent := node.Parent
	srcPath, err := v.forest.AbsPath(dirUUID)
	if err != nil {
		return xstat.XStat{}, err
	}
	if _, err := xstat.AssertDir(v.store, srcPath, dirUUID); err != nil {
		return xstat.XStat{}, err
	}
	dstPath, err := v.forest.AbsPath(dstDirUUID)
	if err != nil {
		return xstat.XStat{}, err
	}
	if _, err := xstat.AssertDir(v.store, dstPath, dstDirUUID); err != nil {
		return xstat.XStat{}, err
	}

	moved, _, err := underlying.Move(v.store, srcPath, filepath.Join(dstPath, name), xstat.Directory, underlying.None)
	if err != nil {
		return xstat.XStat{}, err
	}
	if err := v.forest.Reattach(dirUUID, dstDirUUID, moved.Name); err != nil {
		return xstat.XStat{}, errs.Wrap(errs.EINCONSISTENCE, "mvdir", dirUUID, err)
	}
	return v.resync(ctx, "mvdir", srcParent, dstDrive, dstDirUUID, moved)
}

// MvFile moves the file fileUUID named name from one drive directory into
// another under policy. The uuid is kept.
func (v *VFS) MvFile(ctx context.Context, srcDrive, srcDirUUID, fileUUID, name, dstDrive, dstDirUUID string, policy underlying.Policy) (x xstat.XStat, resolved bool, err error) {
	defer func(start time.Time) {
		v.observe("mv_file", start, err, "drive", srcDrive, "dir", srcDirUUID, "file", fileUUID, "name", name,
			"dst_drive", dstDrive, "dst_dir", dstDirUUID, "policy", policy)
	}(time.Now())

	srcPath, err := v.FilePath(srcDrive, srcDirUUID, name)
	if err != nil {
		return xstat.XStat{}, false, errs.Wrap(errs.EINVAL, "mvfile", srcDirUUID, err)
	}
	srcDirPath := filepath.Dir(srcPath)
	if _, err := xstat.AssertDir(v.store, srcDirPath, srcDirUUID); err != nil {
		return xstat.XStat{}, false, err
	}
	if _, err := xstat.AssertFile(v.store, srcPath, fileUUID); err != nil {
		return xstat.XStat{}, false, err
	}
	dstPath, err := v.DirectoryPath(dstDrive, dstDirUUID)
	if err != nil {
		return xstat.XStat{}, false, errs.Wrap(errs.EINVAL, "mvfile", dstDirUUID, err)
	}
	if _, err := xstat.AssertDir(v.store, dstPath, dstDirUUID); err != nil {
		return xstat.XStat{}, false, err
	}

	moved, resolved, err := underlying.Move(v.store, srcPath, filepath.Join(dstPath, name), xstat.File, policy)
	if err != nil {
		return xstat.XStat{}, false, err
	}
	if moved.UUID == fileUUID {
		if _, ok := v.forest.Get(fileUUID); ok {
			if err := v.forest.Reattach(fileUUID, dstDirUUID, moved.Name); err != nil {
				return xstat.XStat{}, false, errs.Wrap(errs.EINCONSISTENCE, "mvfile", fileUUID, err)
			}
		}
	}
	x, err = v.resync(ctx, "mvfile", srcDirUUID, dstDrive, dstDirUUID, moved)
	return x, resolved, err
}

// Readdir reads a directory and returns its entries.
func (v *VFS) Readdir(ctx context.Context, dirUUID string) (xs []xstat.XStat, err error) {
	defer func(start time.Time) { v.observe("readdir", start, err, "dir", dirUUID) }(time.Now())
	return v.forest.Read(ctx, dirUUID)
}

// ReadDrive reads every directory of a drive.
func (v *VFS) ReadDrive(ctx context.Context, driveUUID string) (err error) {
	defer func(start time.Time) { v.observe("read_drive", start, err, "drive", driveUUID) }(time.Now())
	if _, err := v.GetDriveDir(driveUUID, driveUUID); err != nil {
		return err
	}
	return v.forest.ReadTree(ctx, driveUUID)
}

// Resolve walks names below a drive directory, reading each directory on the
// way so that entries created outside the cache are found.
func (v *VFS) Resolve(ctx context.Context, driveUUID, dirUUID string, names []string) (forest.Node, error) {
	cur, err := v.GetDriveDir(driveUUID, dirUUID)
	if err != nil {
		return forest.Node{}, err
	}
	for _, name := range names {
		if _, err := v.forest.Read(ctx, cur.UUID); err != nil {
			return forest.Node{}, err
		}
		if cur, err = v.forest.NameWalk(cur.UUID, []string{name}); err != nil {
			return forest.Node{}, err
		}
	}
	return cur, nil
}

// HashFile computes the fingerprint of a file and records it in the file's
// identity tag.
func (v *VFS) HashFile(ctx context.Context, driveUUID, dirUUID, fileUUID, name string) (x xstat.XStat, err error) {
	defer func(start time.Time) {
		v.observe("hash_file", start, err, "drive", driveUUID, "dir", dirUUID, "file", fileUUID, "name", name)
	}(time.Now())

	p, err := v.FilePath(driveUUID, dirUUID, name)
	if err != nil {
		return xstat.XStat{}, err
	}
	before, err := xstat.AssertFile(v.store, p, fileUUID)
	if err != nil {
		return xstat.XStat{}, err
	}
	if before.Hash == "" {
		h, err := xstat.HashFile(p)
		if err != nil {
			return xstat.XStat{}, errs.FromOS("hash", p, err)
		}
		after, err := xstat.AssertFile(v.store, p, fileUUID)
		if err != nil {
			return xstat.XStat{}, err
		}
		if after.Mtime != before.Mtime || after.Size != before.Size {
			return xstat.XStat{}, errs.New(errs.EINCONSISTENCE, "hash", p, "file changed while hashing").WithX(errs.EDIRTY)
		}
		if _, err := xstat.Force(v.store, p, xstat.Tag{UUID: fileUUID, Hash: h, Htime: before.Mtime}); err != nil {
			return xstat.XStat{}, err
		}
	}
	return v.settle(ctx, "hash", driveUUID, dirUUID, xstat.XStat{UUID: fileUUID}, nil)
}

// RemoveEmptyDir removes an empty, non-root drive directory.
func (v *VFS) RemoveEmptyDir(ctx context.Context, driveUUID, dirUUID string) (err error) {
	defer func(start time.Time) { v.observe("remove_empty_dir", start, err, "drive", driveUUID, "dir", dirUUID) }(time.Now())

	node, err := v.GetDriveDir(driveUUID, dirUUID)
	if err != nil {
		return err
	}
	if node.IsRoot() {
		return errs.New(errs.EINVAL, "rmdir", dirUUID, "cannot remove a drive root")
	}
	p, err := v.forest.AbsPath(dirUUID)
	if err != nil {
		return err
	}
	if _, err := xstat.AssertDir(v.store, p, dirUUID); err != nil {
		return err
	}
	xstat.Forget(v.store, p)
	if err := os.Remove(p); err != nil {
		_, _ = xstat.Force(v.store, p, xstat.Tag{UUID: dirUUID})
		return errs.FromOS("rmdir", p, err)
	}
	if _, err := v.forest.Read(ctx, node.Parent); err != nil {
		return err
	}
	return nil
}

// assertedDir resolves a drive directory, validates name and checks the
// directory's real identity.
func (v *VFS) assertedDir(op, driveUUID, dirUUID, name string) (string, error) {
	if !underlying.ValidName(name) {
		return "", errs.New(errs.EINVAL, op, name, "invalid name")
	}
	if _, err := v.GetDriveDir(driveUUID, dirUUID); err != nil {
		return "", err
	}
	p, err := v.forest.AbsPath(dirUUID)
	if err != nil {
		return "", err
	}
	if _, err := xstat.AssertDir(v.store, p, dirUUID); err != nil {
		return "", err
	}
	return p, nil
}

// settle re-resolves the parent after a primitive ran, reads it, and returns
// want as the read saw it. The parent vanishing in the meantime is EDIRTY.
func (v *VFS) settle(ctx context.Context, op, driveUUID, dirUUID string, want xstat.XStat, opErr error) (xstat.XStat, error) {
	if _, err := v.GetDriveDir(driveUUID, dirUUID); err != nil {
		return xstat.XStat{}, tagDirty(err)
	}
	if opErr != nil {
		return xstat.XStat{}, opErr
	}

	xs, err := v.forest.Read(ctx, dirUUID)
	if err != nil {
		return xstat.XStat{}, err
	}
	for _, x := range xs {
		if x.UUID == want.UUID {
			return x, nil
		}
	}
	return xstat.XStat{}, errs.New(errs.ENOENT, op, want.Name, "entry not found after create").WithX(errs.EDIRTY)
}

// resync reads the old and new parents after a move and returns the moved
// entry as the read of the new parent saw it.
func (v *VFS) resync(ctx context.Context, op, oldParent, dstDrive, dstDir string, moved xstat.XStat) (xstat.XStat, error) {
	if _, err := v.forest.Read(ctx, oldParent); err != nil && !errs.Is(err, errs.ENOENT) {
		return xstat.XStat{}, err
	}
	return v.settle(ctx, op, dstDrive, dstDir, moved, nil)
}

func tagDirty(err error) error {
	var e *errs.Error
	if errors.As(err, &e) {
		return e.WithX(errs.EDIRTY)
	}
	return &errs.Error{Code: errs.ENOENT, XCode: errs.EDIRTY, Op: "resolve", Err: err}
}
