package platform

import (
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

const bufferSize = 1 << 20 // 1 MiB

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, bufferSize)
		return &b
	},
}

// copyReadWrite copies data using pread/pwrite with a pooled buffer.
func copyReadWrite(srcFd, dstFd *os.File, size int64) (CopyResult, error) {
	bufp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bufp)
	buf := *bufp

	var offset, totalWritten int64
	remaining := size
	srcRawFd := int(srcFd.Fd())
	dstRawFd := int(dstFd.Fd())

	for remaining > 0 {
		toRead := int(min(remaining, bufferSize))

		n, err := unix.Pread(srcRawFd, buf[:toRead], offset)
		if err != nil {
			return CopyResult{BytesWritten: totalWritten, Method: ReadWrite}, err
		}
		if n == 0 {
			break
		}

		written := 0
		for written < n {
			w, err := unix.Pwrite(dstRawFd, buf[written:n], offset+int64(written))
			if err != nil {
				return CopyResult{BytesWritten: totalWritten + int64(written), Method: ReadWrite}, err
			}
			written += w
		}

		offset += int64(n)
		remaining -= int64(n)
		totalWritten += int64(n)
	}

	return CopyResult{BytesWritten: totalWritten, Method: ReadWrite}, nil
}

// CopyReadWrite copies src into a new file at dst without any extent sharing.
func CopyReadWrite(src, dst string) (CopyResult, error) {
	info, err := os.Stat(src)
	if err != nil {
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
