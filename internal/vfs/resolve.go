package vfs

import (
	"path/filepath"

	"github.com/hxsam/appifi/internal/errs"
	"github.com/hxsam/appifi/internal/forest"
	"github.com/hxsam/appifi/internal/underlying"
)

// GetDriveDir resolves dirUUID inside driveUUID. When chain is given it is
// the uuid path from the directory upward (the directory first) and must be
// a prefix of the directory's real ancestry.
func (v *VFS) GetDriveDir(driveUUID, dirUUID string, chain ...string) (forest.Node, error) {
	root, ok := v.forest.Get(driveUUID)
	if !ok || !root.IsRoot() {
		return forest.Node{}, errs.New(errs.ENOENT, "resolve", driveUUID, "drive not found")
	}
	dir, ok := v.forest.Get(dirUUID)
	if !ok {
		return forest.Node{}, errs.New(errs.ENOENT, "resolve", dirUUID, "directory not found")
	}
	if !dir.IsDir() {
		return forest.Node{}, errs.New(errs.ENOTDIR, "resolve", dirUUID, "not a directory")
	}
	if r, ok := v.forest.RootOf(dirUUID); !ok || r.UUID != driveUUID {
		return forest.Node{}, errs.New(errs.ENOENT, "resolve", dirUUID, "directory not in drive")
	}

	if len(chain) > 0 {
		path, err := v.forest.NodePath(dirUUID)
		if err != nil {
			return forest.Node{}, err
		}
		if len(chain) > len(path) {
			return forest.Node{}, errs.New(errs.EINVAL, "resolve", dirUUID, "uuid chain longer than directory path")
		}
		for i, id := range chain {
			if path[len(path)-1-i].UUID != id {
				return forest.Node{}, errs.New(errs.EINVAL, "resolve", dirUUID, "uuid chain does not match directory path")
			}
		}
	}
	return dir, nil
}

// DriveDirs returns every cached directory of a drive.
func (v *VFS) DriveDirs(driveUUID string) ([]forest.Node, error) {
	return v.forest.DriveDirs(driveUUID)
}

// DirectoryPath returns the absolute path of a drive directory.
func (v *VFS) DirectoryPath(driveUUID, dirUUID string) (string, error) {
	if _, err := v.GetDriveDir(driveUUID, dirUUID); err != nil {
		return "", err
	}
	return v.forest.AbsPath(dirUUID)
}

// FilePath returns the absolute path of name inside a drive directory.
func (v *VFS) FilePath(driveUUID, dirUUID, name string) (string, error) {
	if !underlying.ValidName(name) {
		return "", errs.New(errs.EINVAL, "filepath", name, "invalid name")
	}
	dir, err := v.DirectoryPath(driveUUID, dirUUID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// Get returns a cached node.
func (v *VFS) Get(id string) (forest.Node, bool) { return v.forest.Get(id) }

// Children returns the cached children of a directory without reading it.
func (v *VFS) Children(dirUUID string) ([]forest.Node, error) {
	return v.forest.Children(dirUUID)
}

// NodePath returns the chain from the drive root down to id.
func (v *VFS) NodePath(id string) ([]forest.Node, error) {
	return v.forest.NodePath(id)
}

// Fingerprints returns every known content hash.
func (v *VFS) Fingerprints() []string { return v.forest.Fingerprints() }

// FilesByFingerprint returns the cached files with content hash.
func (v *VFS) FilesByFingerprint(hash string) []forest.Node {
	return v.forest.FilesByFingerprint(hash)
}
