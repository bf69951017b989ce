//go:build !linux

package platform

// RenameNoReplace renames oldpath to newpath, failing with EEXIST if newpath
// exists. The check and the rename are not atomic on this platform.
func RenameNoReplace(oldpath, newpath string) error {
	return renameChecked(oldpath, newpath)
}
