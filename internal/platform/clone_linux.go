//go:build linux

package platform

import (
	"os"

	"golang.org/x/sys/unix"
)

// cloneFile tries FICLONE, then copy_file_range, then sendfile, and finally
// read/write, falling through on unsupported/cross-device errors.
func cloneFile(src, dst string, info os.FileInfo) (CopyResult, error) {
	srcFd, err := os.Open(src)
	if err != nil {
		return CopyResult{}, err
	}
	defer srcFd.Close()

	dstFd, err := createDst(dst, info.Mode())
	if err != nil {
		return CopyResult{}, err
	}
	defer dstFd.Close()

	size := info.Size()

	//nolint:gosec // G115: fd values are small non-negative integers
	err = unix.IoctlFileClone(int(dstFd.Fd()), int(srcFd.Fd()))
	if err == nil {
		return CopyResult{BytesWritten: size, Method: Reflink}, dstFd.Close()
	}
	if !isFallbackErr(err) {
		return CopyResult{}, err
	}

	if size > 0 {
		// Reservation is advisory; not every filesystem supports fallocate.
		_ = unix.Fallocate(int(dstFd.Fd()), 0, 0, size) //nolint:gosec // G115
	}

	result, err := copyFileRange(srcFd, dstFd, size)
	if err == nil {
		return result, dstFd.Close()
	}
	if !isFallbackErr(err) || result.BytesWritten > 0 {
		return result, err
	}

	result, err = copySendfile(srcFd, dstFd, size)
	if err == nil {
		return result, dstFd.Close()
	}
	if !isFallbackErr(err) || result.BytesWritten > 0 {
		return result, err
	}

	result, err = copyReadWrite(srcFd, dstFd, size)
	if err != nil {
		return result, err
	}
	return result, dstFd.Close()
}

func copyFileRange(srcFd, dstFd *os.File, size int64) (CopyResult, error) {
	remaining := size
	var roff, woff int64

	var totalWritten int64
	for remaining > 0 {
		n, err := unix.CopyFileRange(int(srcFd.Fd()), &roff, int(dstFd.Fd()), &woff, int(remaining), 0)
		if err != nil {
			return CopyResult{BytesWritten: totalWritten, Method: CopyFileRange}, err
		}
		if n == 0 {
			break
		}
		remaining -= int64(n)
		totalWritten += int64(n)
	}

	return CopyResult{BytesWritten: totalWritten, Method: CopyFileRange}, nil
}

func copySendfile(srcFd, dstFd *os.File, size int64) (CopyResult, error) {
	remaining := size
	var offset int64

	var totalWritten int64
	for remaining > 0 {
		n, err := unix.Sendfile(int(dstFd.Fd()), int(srcFd.Fd()), &offset, int(remaining))
		if err != nil {
			return CopyResult{BytesWritten: totalWritten, Method: Sendfile}, err
		}
		if n == 0 {
			break
		}
		remaining -= int64(n)
		totalWritten += int64(n)
	}

	return CopyResult{BytesWritten: totalWritten, Method: Sendfile}, nil
}
