package underlying

import (
	"fmt"
	"os"

	"github.com/hxsam/appifi/internal/errs"
	"github.com/hxsam/appifi/internal/platform"
	"github.com/hxsam/appifi/internal/xstat"
)

// Clone copies the file at src into the new file tmp, sharing extents when
// the filesystem allows it. The source must still carry srcUUID. The returned
// XStat is the source's, with Hash filled in from the copy when the source
// tag has no valid fingerprint.
func Clone(store xstat.Store, src, srcUUID, tmp string) (xstat.XStat, platform.CopyResult, error) {
	return clone(store, src, srcUUID, tmp, platform.CloneFile)
}

// Copy is Clone without extent sharing: tmp always gets its own copy of the
// data.
func Copy(store xstat.Store, src, srcUUID, tmp string) (xstat.XStat, platform.CopyResult, error) {
	return clone(store, src, srcUUID, tmp, platform.CopyReadWrite)
}

func clone(store xstat.Store, src, srcUUID, tmp string, copyFn func(src, dst string) (platform.CopyResult, error)) (xstat.XStat, platform.CopyResult, error) {
	x, err := xstat.AssertFile(store, src, srcUUID)
	if err != nil {
		return xstat.XStat{}, platform.CopyResult{}, err
	}

	result, err := copyFn(src, tmp)
	if err != nil {
		return xstat.XStat{}, result, errs.FromOS("clone", src, err)
	}

	info, err := os.Lstat(src)
	if err != nil || info.ModTime().UnixMilli() != x.Mtime || info.Size() != x.Size {
		RemoveTmp(store, tmp)
		return xstat.XStat{}, result, errs.New(errs.EINCONSISTENCE, "clone", src, "source changed during copy")
	}

	if x.Hash == "" {
		h, err := xstat.HashFile(tmp)
		if err != nil {
			RemoveTmp(store, tmp)
			return xstat.XStat{}, result, fmt.Errorf("fingerprint %s: %w", src, err)
		}
		x.Hash = h
	}
	return x, result, nil
}
