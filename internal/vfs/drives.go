package vfs

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/hxsam/appifi/internal/drive"
	"github.com/hxsam/appifi/internal/errs"
)

// Drives returns the committed drive list.
func (v *VFS) Drives() []drive.Drive {
	return v.registry.Current().All()
}

// Drive returns the drive with id.
func (v *VFS) Drive(id string) (drive.Drive, error) {
	d, ok := v.registry.Current().Get(id)
	if !ok {
		return drive.Drive{}, errs.New(errs.ENOENT, "drive", id, "no such drive")
	}
	return d, nil
}

// CreatePrivateDrive registers a private drive for owner and creates its
// root directory.
func (v *VFS) CreatePrivateDrive(ctx context.Context, owner, tag string) (d drive.Drive, err error) {
	defer func(start time.Time) { v.observe("create_private_drive", start, err, "owner", owner) }(time.Now())

	d = drive.NewPrivate(owner, tag)
	return d, v.addDrive(ctx, d)
}

// CreatePublicDrive registers a public drive and creates its root
// directory.
func (v *VFS) CreatePublicDrive(ctx context.Context, props drive.PublicProps) (d drive.Drive, err error) {
	defer func(start time.Time) { v.observe("create_public_drive", start, err) }(time.Now())

	if err := drive.ValidateProps(props); err != nil {
		return drive.Drive{}, errs.Wrap(errs.EINVAL, "create public drive", "", err)
	}
	d = drive.NewPublic(props)
	if d.Writelist == nil {
		d.Writelist = []string{}
	}
	if d.Readlist == nil {
		d.Readlist = []string{}
	}
	return d, v.addDrive(ctx, d)
}

// addDrive prepares and registers the drive's root before committing it, so
// the registry never lists a drive without one.
func (v *VFS) addDrive(ctx context.Context, d drive.Drive) error {
	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.EINVAL, "create drive", d.UUID, err)
	}
	if err := drive.Validate(d); err != nil {
		return errs.Wrap(errs.EINVAL, "create drive", d.UUID, err)
	}
	if err := v.createDriveRoot(d); err != nil {
		return err
	}
	prev := v.registry.Current()
	if err := v.registry.Commit(prev, prev.With(d)); err != nil {
		_ = v.forest.DeleteRoot(d.UUID)
		_ = os.Remove(filepath.Join(v.drivesDir, d.UUID)) // only if still empty
		return err
	}
	return nil
}

// UpdatePublicDrive applies props to a public drive.
func (v *VFS) UpdatePublicDrive(ctx context.Context, id string, props drive.PublicProps) (d drive.Drive, err error) {
	defer func(start time.Time) { v.observe("update_public_drive", start, err, "drive", id) }(time.Now())

	if err := ctx.Err(); err != nil {
		return drive.Drive{}, errs.Wrap(errs.EINVAL, "update drive", id, err)
	}
	if err := drive.ValidateProps(props); err != nil {
		return drive.Drive{}, errs.Wrap(errs.EINVAL, "update drive", id, err)
	}

	prev := v.registry.Current()
	i := prev.Index(id)
	if i < 0 {
		return drive.Drive{}, errs.New(errs.EINVAL, "update drive", id, "no such drive")
	}
	cur := prev.At(i)
	if !cur.IsPublic() {
		return drive.Drive{}, errs.New(errs.EINVAL, "update drive", id, "not a public drive")
	}
	d = cur.Apply(props)
	if err := v.registry.Commit(prev, prev.Replace(i, d)); err != nil {
		return drive.Drive{}, err
	}
	return d, nil
}

// DeleteDrive removes a drive from the registry and drops its cached tree.
// The drive's data is left on disk.
func (v *VFS) DeleteDrive(ctx context.Context, id string) (err error) {
	defer func(start time.Time) { v.observe("delete_drive", start, err, "drive", id) }(time.Now())

	if err := ctx.Err(); err != nil {
		return errs.Wrap(errs.EINVAL, "delete drive", id, err)
	}
	prev := v.registry.Current()
	if prev.Index(id) < 0 {
		return errs.New(errs.ENOENT, "delete drive", id, "no such drive")
	}
	if err := v.registry.Commit(prev, prev.Without(id)); err != nil {
		return err
	}
	return v.forest.DeleteRoot(id)
}
