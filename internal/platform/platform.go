// Package platform shares or copies file contents using the cheapest
// mechanism the kernel and filesystem offer.
package platform

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"
)

// CopyMethod identifies which syscall/strategy was used for a copy.
type CopyMethod int

const (
	ReadWrite     CopyMethod = iota
	CopyFileRange            // Linux copy_file_range(2)
	Sendfile                 // Linux sendfile(2)
	Reflink                  // Linux FICLONE ioctl
	Clonefile                // macOS clonefile(2)
)

func (m CopyMethod) String() string {
	switch m {
	case ReadWrite:
		return "read_write"
	case CopyFileRange:
		return "copy_file_range"
	case Sendfile:
		return "sendfile"
	case Reflink:
		return "reflink"
	case Clonefile:
		return "clonefile"
	default:
		return "unknown"
	}
}

// Shared reports whether the copy shares storage extents with its source
// instead of duplicating the data.
func (m CopyMethod) Shared() bool {
	return m == Reflink || m == Clonefile
}

// CopyResult reports the outcome of a copy operation.
type CopyResult struct {
	BytesWritten int64
	Method       CopyMethod
}

// CloneFile makes dst a copy of src. dst must not exist; on failure nothing
// is left behind at dst.
func CloneFile(src, dst string) (CopyResult, error) {
	info, err := os.Stat(src)
	if err != nil {
		return CopyResult{}, err
	}
	if !info.Mode().IsRegular() {
		return CopyResult{}, &os.PathError{Op: "clone", Path: src, Err: unix.EINVAL}
	}

	result, err := cloneFile(src, dst, info)
	if err != nil {
		if !errors.Is(err, fs.ErrExist) {
			_ = os.Remove(dst)
		}
		return result, fmt.Errorf("clone %s: %w", src, err)
	}
	return result, nil
}

// createDst opens a fresh destination file, refusing to overwrite.
func createDst(path string, mode os.FileMode) (*os.File, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode.Perm())
}

// isFallbackErr returns true if err should trigger a fallback to the next copy strategy.
func isFallbackErr(err error) bool {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return false
	}
	switch errno {
	case unix.ENOSYS, unix.EXDEV, unix.EINVAL, unix.ENOTSUP, unix.ENOTTY:
		return true
	}
	// EOPNOTSUPP and ENOTSUP share a value on linux but not on darwin.
	return errno == unix.EOPNOTSUPP
}
