//go:build linux

package platform

import (
	"os"

	"golang.org/x/sys/unix"
)

// RenameNoReplace renames oldpath to newpath, failing with EEXIST if newpath
// exists. Filesystems that refuse RENAME_NOREPLACE get a check-then-rename,
// which is not atomic.
func RenameNoReplace(oldpath, newpath string) error {
	err := unix.Renameat2(unix.AT_FDCWD, oldpath, unix.AT_FDCWD, newpath, unix.RENAME_NOREPLACE)
	if err == nil {
		return nil
	}
	if !isFallbackErr(err) {
		return &os.LinkError{Op: "renameat2", Old: oldpath, New: newpath, Err: err}
	}
	return renameChecked(oldpath, newpath)
}
