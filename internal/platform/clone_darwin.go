//go:build darwin

package platform

import (
	"os"

	"golang.org/x/sys/unix"
)

// cloneFile tries clonefile first, then falls back to read/write on macOS.
func cloneFile(src, dst string, info os.FileInfo) (CopyResult, error) {
	err := unix.Clonefile(src, dst, unix.CLONE_NOFOLLOW)
	if err == nil {
		return CopyResult{BytesWritten: info.Size(), Method: Clonefile}, nil
	}
	if !isFallbackErr(err) {
		return CopyResult{}, err
	}

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

	result, err := copyReadWrite(srcFd, dstFd, info.Size())
	if err != nil {
		return result, err
	}
	return result, dstFd.Close()
}
