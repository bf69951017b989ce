package underlying

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"

	"github.com/hxsam/appifi/internal/errs"
	"github.com/hxsam/appifi/internal/xstat"
)

// Mkfile admits the prepared temporary file tmp at target under policy. The
// admitted file gets a fresh uuid and carries hash as its fingerprint.
// Parents keeps an existing file and reports it with resolved set.
//
// tmp is never consumed except by Replace; callers remove it with RemoveTmp
// on every path.
func Mkfile(store xstat.Store, target, tmp, hash string, policy Policy) (xstat.XStat, bool, error) {
	if !filepath.IsAbs(target) || !ValidName(filepath.Base(target)) {
		return xstat.XStat{}, false, errs.New(errs.EINVAL, "mkfile", target, "invalid target path")
	}
	if policy == Skip {
		return xstat.XStat{}, false, errs.New(errs.EINVAL, "mkfile", target, "policy skip not valid here")
	}
	if err := checkParent("mkfile", filepath.Dir(target)); err != nil {
		return xstat.XStat{}, false, err
	}

	tmpInfo, err := os.Lstat(tmp)
	if err != nil {
		return xstat.XStat{}, false, errs.FromOS("mkfile", tmp, err)
	}
	if !tmpInfo.Mode().IsRegular() {
		return xstat.XStat{}, false, errs.New(errs.EINVAL, "mkfile", tmp, "tmp is not a regular file")
	}
	if _, err := xstat.Force(store, tmp, xstat.Tag{UUID: uuid.New().String(), Hash: hash}); err != nil {
		return xstat.XStat{}, false, err
	}

	err = os.Link(tmp, target)
	if err == nil {
		x, err := xstat.Read(store, target)
		return x, false, err
	}
	if !errors.Is(err, fs.ErrExist) {
		return xstat.XStat{}, false, errs.FromOS("mkfile", target, err)
	}

	switch policy {
	case None:
		return xstat.XStat{}, false, collision("mkfile", target, xstat.File)

	case Parents:
		if cerr := collision("mkfile", target, xstat.File); !errs.Is(cerr, errs.ECONFLICT) {
			return xstat.XStat{}, false, cerr
		}
		x, err := xstat.Read(store, target)
		return x, true, err

	case Replace:
		if cerr := collision("mkfile", target, xstat.File); !errs.Is(cerr, errs.ECONFLICT) {
			return xstat.XStat{}, false, cerr
		}
		xstat.Forget(store, target)
		if err := os.Rename(tmp, target); err != nil {
			return xstat.XStat{}, false, errs.FromOS("mkfile", target, err)
		}
		x, err := xstat.Read(store, target)
		return x, true, err

	case Rename:
		if err := notSymlink("mkfile", target); err != nil {
			return xstat.XStat{}, false, err
		}
		for range maxRenameAttempts {
			taken, err := names(filepath.Dir(target))
			if err != nil {
				return xstat.XStat{}, false, err
			}
			candidate := filepath.Join(filepath.Dir(target), Autoname(filepath.Base(target), taken, true))
			err = os.Link(tmp, candidate)
			if err == nil {
				x, err := xstat.Read(store, candidate)
				return x, true, err
			}
			if !errors.Is(err, fs.ErrExist) {
				return xstat.XStat{}, false, errs.FromOS("mkfile", candidate, err)
			}
		}
		return xstat.XStat{}, false, errs.New(errs.EEXIST, "mkfile", target, "no free name found")
	}
	return xstat.XStat{}, false, errs.New(errs.EINVAL, "mkfile", target, "unknown policy "+policy.String())
}

// RemoveTmp deletes a temporary file. Out-of-band tags are dropped only when
// no admitted link still shares the inode.
func RemoveTmp(store xstat.Store, tmp string) {
	info, err := os.Lstat(tmp)
	if err != nil {
		return
	}
	if st, ok := info.Sys().(*syscall.Stat_t); ok && st.Nlink <= 1 {
		xstat.Forget(store, tmp)
	}
	_ = os.Remove(tmp)
}
