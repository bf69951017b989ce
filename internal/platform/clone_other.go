//go:build !linux && !darwin

package platform

import "os"

// cloneFile falls back to read/write on unsupported platforms.
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

	result, err := copyReadWrite(srcFd, dstFd, info.Size())
	if err != nil {
		return result, err
	}
	return result, dstFd.Close()
}
