package main

import (
	"context"
	"strings"

	"github.com/hxsam/appifi/internal/drive"
	"github.com/hxsam/appifi/internal/errs"
	"github.com/hxsam/appifi/internal/forest"
	"github.com/hxsam/appifi/internal/vfs"
)

// ref is a parsed DRIVE[:PATH] argument. DRIVE is a drive uuid, tag or
// label; PATH is slash separated below the drive root.
type ref struct {
	drive string
	names []string
}

func parseRef(arg string) (ref, error) {
	d, p, _ := strings.Cut(arg, ":")
	if d == "" {
		return ref{}, errs.New(errs.EINVAL, "parse", arg, "missing drive")
	}
	r := ref{drive: d}
	for _, name := range strings.Split(p, "/") {
		switch name {
		case "", ".":
			continue
		case "..":
			return ref{}, errs.New(errs.EINVAL, "parse", arg, "'..' is not allowed")
		}
		r.names = append(r.names, name)
	}
	return r, nil
}

func (r ref) String() string {
	return r.drive + ":/" + strings.Join(r.names, "/")
}

// parent splits r into its parent directory and last name. The drive root
// has no parent.
func (r ref) parent() (ref, string, bool) {
	if len(r.names) == 0 {
		return r, "", false
	}
	return ref{drive: r.drive, names: r.names[:len(r.names)-1]}, r.names[len(r.names)-1], true
}

// findDrive looks a drive up by uuid, then by tag or label.
func findDrive(drives []drive.Drive, key string) (drive.Drive, error) {
	for _, d := range drives {
		if d.UUID == key {
			return d, nil
		}
	}
	var found []drive.Drive
	for _, d := range drives {
		if d.Tag == key || d.Label == key {
			found = append(found, d)
		}
	}
	switch len(found) {
	case 0:
		return drive.Drive{}, errs.New(errs.ENOENT, "drive", key, "no such drive")
	case 1:
		return found[0], nil
	default:
		return drive.Drive{}, errs.New(errs.EINVAL, "drive", key, "ambiguous drive name, use its uuid")
	}
}

// resolve finds the drive and node r names.
func resolve(ctx context.Context, v *vfs.VFS, r ref) (drive.Drive, forest.Node, error) {
	d, err := findDrive(v.Drives(), r.drive)
	if err != nil {
		return drive.Drive{}, forest.Node{}, err
	}
	n, err := v.Resolve(ctx, d.UUID, d.UUID, r.names)
	if err != nil {
		return drive.Drive{}, forest.Node{}, err
	}
	return d, n, nil
}

// resolveDir is resolve for arguments that must name a directory.
func resolveDir(ctx context.Context, v *vfs.VFS, r ref) (drive.Drive, forest.Node, error) {
	d, n, err := resolve(ctx, v, r)
	if err != nil {
		return d, n, err
	}
	if !n.IsDir() {
		return d, n, errs.New(errs.ENOTDIR, "resolve", r.String(), "not a directory")
	}
	return d, n, nil
}
